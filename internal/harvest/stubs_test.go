package harvest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fixedClock returns a constant time; throughput numbers are irrelevant
// in tests.
type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time {
	return c.t
}

// passthroughStripper returns the markup unchanged.
type passthroughStripper struct{}

func (passthroughStripper) Strip(html string) string {
	return html
}

// stubSource serves canned payloads and counts fetches per title.
type stubSource struct {
	mu           sync.Mutex
	summaries    map[string]PageSummary
	contents     map[string]PageContent
	categories   map[string]CategoryPage
	failSummary  map[string]int
	summaryCalls map[string]int

	blockTitle   string
	blockGate    chan struct{}
	blockEntered chan struct{}
	enteredOnce  sync.Once
}

func newStubSource() *stubSource {
	return &stubSource{
		summaries:    make(map[string]PageSummary),
		contents:     make(map[string]PageContent),
		categories:   make(map[string]CategoryPage),
		failSummary:  make(map[string]int),
		summaryCalls: make(map[string]int),
	}
}

func (s *stubSource) addArticle(title, summary, html string, links ...string) {
	s.summaries[title] = PageSummary{Title: title, Extract: summary, URL: "https://example.org/" + title}
	s.contents[title] = PageContent{HTML: html, Links: links}
}

// blockOn makes Summary for the given title park until the gate closes,
// signaling blockEntered once the call is underway.
func (s *stubSource) blockOn(title string) {
	s.blockTitle = title
	s.blockGate = make(chan struct{})
	s.blockEntered = make(chan struct{})
}

func (s *stubSource) Summary(ctx context.Context, title string) (PageSummary, error) {
	if s.blockGate != nil && title == s.blockTitle {
		s.enteredOnce.Do(func() { close(s.blockEntered) })
		select {
		case <-ctx.Done():
			return PageSummary{}, ctx.Err()
		case <-s.blockGate:
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaryCalls[title]++
	if s.failSummary[title] > 0 {
		s.failSummary[title]--
		return PageSummary{}, errors.New("upstream returned 503")
	}
	summary, ok := s.summaries[title]
	if !ok {
		return PageSummary{}, errors.New("summary not found")
	}
	return summary, nil
}

func (s *stubSource) ContentAndLinks(_ context.Context, title string) (PageContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.contents[title]
	if !ok {
		return PageContent{}, errors.New("content not found")
	}
	return content, nil
}

func (s *stubSource) CategoryMembers(_ context.Context, category, _ string) (CategoryPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.categories[category]
	if !ok {
		return CategoryPage{}, errors.New("category not found")
	}
	return page, nil
}

func (s *stubSource) calls(title string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryCalls[title]
}

// stubStore keeps articles in memory with upsert-on-title semantics.
type stubStore struct {
	mu        sync.Mutex
	records   map[string]Article
	preloaded []string
	upserts   int
	failFirst int
	honorCtx  bool
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]Article)}
}

func (s *stubStore) BatchUpsert(ctx context.Context, articles []Article) (int64, error) {
	if s.honorCtx {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.failFirst > 0 {
		s.failFirst--
		return 0, errors.New("store unavailable")
	}
	var inserted int64
	for _, a := range articles {
		if _, exists := s.records[a.Title]; exists {
			continue
		}
		s.records[a.Title] = a
		inserted++
	}
	return inserted, nil
}

func (s *stubStore) Titles(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.preloaded...), nil
}

func (s *stubStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *stubStore) upsertCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func fastRetry() RetryPolicy {
	return NewExponentialRetryPolicy(2, time.Millisecond, 2*time.Millisecond)
}
