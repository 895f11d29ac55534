package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wikidex/wikidex/internal/config"
	"github.com/wikidex/wikidex/internal/harvest"
	"github.com/wikidex/wikidex/internal/search"
	"github.com/wikidex/wikidex/internal/storage/postgres"
)

type stubEngine struct {
	ready       bool
	results     []search.Result
	suggestions []string
	searchLimit int
	relatedErr  error
	rebuildGate chan struct{}
	rebuilds    int
}

func (e *stubEngine) Search(_ context.Context, _ string, limit int) ([]search.Result, error) {
	e.searchLimit = limit
	return e.results, nil
}

func (e *stubEngine) Related(_ context.Context, _ int64, _ int) ([]search.Result, error) {
	if e.relatedErr != nil {
		return nil, e.relatedErr
	}
	return e.results, nil
}

func (e *stubEngine) Suggest(_ context.Context, _ string, _ int) ([]string, error) {
	return e.suggestions, nil
}

func (e *stubEngine) Rebuild(_ context.Context) error {
	if e.rebuildGate != nil {
		<-e.rebuildGate
	}
	e.rebuilds++
	return nil
}

func (e *stubEngine) Ready() bool { return e.ready }

func (e *stubEngine) Analytics() (search.Analytics, bool) {
	if !e.ready {
		return search.Analytics{}, false
	}
	return search.Analytics{Documents: 3, VocabularySize: 42, Density: 0.2}, true
}

type stubReader struct {
	articles map[int64]harvest.Article
	stats    postgres.Stats
}

func (r *stubReader) GetByID(_ context.Context, id int64) (harvest.Article, error) {
	a, ok := r.articles[id]
	if !ok {
		return harvest.Article{}, postgres.ErrNotFound
	}
	return a, nil
}

func (r *stubReader) Stats(_ context.Context) (postgres.Stats, error) {
	return r.stats, nil
}

func (r *stubReader) Recent(_ context.Context, limit int) ([]harvest.Article, error) {
	out := make([]harvest.Article, 0, limit)
	for _, a := range r.articles {
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestServer(engine *stubEngine, reader *stubReader, cfg config.ServerConfig) *httptest.Server {
	if reader == nil {
		reader = &stubReader{articles: map[int64]harvest.Article{}}
	}
	srv := NewServer(engine, reader, cfg, zap.NewNop())
	return httptest.NewServer(srv.Handler())
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(&stubEngine{}, nil, config.ServerConfig{})
	defer ts.Close()

	var body map[string]string
	status := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestReadyzReflectsModelState(t *testing.T) {
	engine := &stubEngine{}
	ts := newTestServer(engine, nil, config.ServerConfig{})
	defer ts.Close()

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/readyz", nil))

	engine.ready = true
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/readyz", nil))
}

func TestSearchRequiresQuery(t *testing.T) {
	ts := newTestServer(&stubEngine{ready: true}, nil, config.ServerConfig{})
	defer ts.Close()

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/v1/search", nil))
}

func TestSearchReturnsResults(t *testing.T) {
	engine := &stubEngine{
		ready: true,
		results: []search.Result{
			{ID: 7, Title: "Compiler", Score: 0.82},
		},
	}
	ts := newTestServer(engine, nil, config.ServerConfig{})
	defer ts.Close()

	var body struct {
		Query   string          `json:"query"`
		Count   int             `json:"count"`
		Results []search.Result `json:"results"`
	}
	status := getJSON(t, ts.URL+"/v1/search?q=compiler", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "compiler", body.Query)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Results, 1)
	assert.Equal(t, int64(7), body.Results[0].ID)
	assert.Equal(t, defaultSearchLimit, engine.searchLimit)
}

func TestSearchClampsLimit(t *testing.T) {
	engine := &stubEngine{ready: true}
	ts := newTestServer(engine, nil, config.ServerConfig{})
	defer ts.Close()

	getJSON(t, ts.URL+"/v1/search?q=x&limit=5000", nil)
	assert.Equal(t, maxSearchLimit, engine.searchLimit)

	getJSON(t, ts.URL+"/v1/search?q=x&limit=-3", nil)
	assert.Equal(t, defaultSearchLimit, engine.searchLimit)
}

func TestSuggest(t *testing.T) {
	engine := &stubEngine{suggestions: []string{"Cat", "Category Theory"}}
	ts := newTestServer(engine, nil, config.ServerConfig{})
	defer ts.Close()

	var body struct {
		Suggestions []string `json:"suggestions"`
	}
	status := getJSON(t, ts.URL+"/v1/suggest?q=Cat", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"Cat", "Category Theory"}, body.Suggestions)
}

func TestGetArticle(t *testing.T) {
	reader := &stubReader{articles: map[int64]harvest.Article{
		12: {ID: 12, Title: "Go (programming language)", WordCount: 900},
	}}
	ts := newTestServer(&stubEngine{}, reader, config.ServerConfig{})
	defer ts.Close()

	var body struct {
		Article harvest.Article `json:"article"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/articles/12", &body))
	assert.Equal(t, "Go (programming language)", body.Article.Title)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/v1/articles/99", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/v1/articles/abc", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/v1/articles/-4", nil))
}

func TestRelatedNotIndexed(t *testing.T) {
	engine := &stubEngine{ready: true, relatedErr: search.ErrNotIndexed}
	ts := newTestServer(engine, nil, config.ServerConfig{})
	defer ts.Close()

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/v1/articles/5/related", nil))
}

func TestStatsCombinesStoreAndIndex(t *testing.T) {
	engine := &stubEngine{ready: true}
	reader := &stubReader{
		articles: map[int64]harvest.Article{1: {ID: 1, Title: "Entropy"}},
		stats:    postgres.Stats{Total: 128, AvgWords: 640.5, MaxWords: 2100, MinWords: 101},
	}
	ts := newTestServer(engine, reader, config.ServerConfig{})
	defer ts.Close()

	var body struct {
		Articles struct {
			Total    int64   `json:"total"`
			AvgWords float64 `json:"avg_words"`
		} `json:"articles"`
		Index  *search.Analytics `json:"index"`
		Recent []harvest.Article `json:"recent"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/stats", &body))
	assert.Equal(t, int64(128), body.Articles.Total)
	assert.InDelta(t, 640.5, body.Articles.AvgWords, 1e-9)
	require.NotNil(t, body.Index)
	assert.Equal(t, 3, body.Index.Documents)
	assert.Len(t, body.Recent, 1)
}

func TestReindexRejectsConcurrent(t *testing.T) {
	engine := &stubEngine{rebuildGate: make(chan struct{})}
	ts := newTestServer(engine, nil, config.ServerConfig{})
	defer ts.Close()

	post := func() int {
		resp, err := http.Post(ts.URL+"/v1/reindex", "application/json", nil)
		require.NoError(t, err)
		defer func() {
			_ = resp.Body.Close()
		}()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusAccepted, post())
	assert.Equal(t, http.StatusConflict, post())

	close(engine.rebuildGate)
	assert.Eventually(t, func() bool {
		return post() == http.StatusAccepted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAPIKeyMiddleware(t *testing.T) {
	ts := newTestServer(&stubEngine{}, nil, config.ServerConfig{APIKey: "sekrit"})
	defer ts.Close()

	assert.Equal(t, http.StatusForbidden, getJSON(t, ts.URL+"/healthz", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz?api_key=sekrit", nil))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sekrit")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
