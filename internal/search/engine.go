package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wikidex/wikidex/internal/harvest"
	"github.com/wikidex/wikidex/internal/index"
)

// ErrNotIndexed is returned by Related when the article exists in the
// store but is absent from the current model.
var ErrNotIndexed = errors.New("article not indexed")

const (
	// searchScoreFloor drops results whose cosine similarity is noise.
	searchScoreFloor = 0.01
	// relatedScoreFloor is stricter: related articles must share real
	// vocabulary, not a stray term.
	relatedScoreFloor = 0.1
	// suggestFetchFactor over-fetches title candidates so ranking has
	// something to reorder.
	suggestFetchFactor = 5
	// minSuggestLength is the shortest prefix worth suggesting on.
	minSuggestLength = 2
)

// Store is the slice of the article store the engine reads from.
type Store interface {
	FetchAll(ctx context.Context, minContentLength int) ([]harvest.Article, error)
	GetByID(ctx context.Context, id int64) (harvest.Article, error)
	TitlesLike(ctx context.Context, pattern string, limit int) ([]string, error)
}

// Result is one ranked hit.
type Result struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	URL       string  `json:"url"`
	WordCount int     `json:"word_count"`
	Score     float64 `json:"score"`
}

// Analytics describes the current model.
type Analytics struct {
	Documents      int       `json:"documents"`
	VocabularySize int       `json:"vocabulary_size"`
	Density        float64   `json:"density"`
	BuiltAt        time.Time `json:"built_at"`
}

// Engine answers queries against an immutable model swapped in whole on
// rebuild. Readers never block writers and vice versa.
type Engine struct {
	store            Store
	builder          *index.Builder
	snapshotPath     string
	minContentLength int
	logger           *zap.Logger

	model atomic.Pointer[index.Model]
}

// NewEngine constructs an Engine with no model loaded. Call LoadOrBuild
// or Rebuild before serving queries; until then every search returns
// empty results.
func NewEngine(store Store, builder *index.Builder, snapshotPath string, minContentLength int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:            store,
		builder:          builder,
		snapshotPath:     snapshotPath,
		minContentLength: minContentLength,
		logger:           logger,
	}
}

// Ready reports whether a model is loaded.
func (e *Engine) Ready() bool {
	return e.model.Load() != nil
}

// Analytics returns model-level statistics, or false when no model is
// loaded yet.
func (e *Engine) Analytics() (Analytics, bool) {
	model := e.model.Load()
	if model == nil {
		return Analytics{}, false
	}
	return Analytics{
		Documents:      model.Docs(),
		VocabularySize: model.VocabularySize(),
		Density:        model.Density(),
		BuiltAt:        model.BuiltAt,
	}, true
}

// Search ranks indexed articles against free-text query by cosine
// similarity, best first. Ties keep store id order. An unloaded model
// or a query with no known terms yields an empty result set, not an
// error.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	model := e.model.Load()
	if model == nil || limit <= 0 {
		return []Result{}, nil
	}

	vec := model.Vectorize(query)
	if len(vec.Indices) == 0 {
		return []Result{}, nil
	}
	return e.rank(ctx, model, vec, limit, searchScoreFloor, -1)
}

// Related returns the articles most similar to the one identified by
// id, excluding the article itself.
func (e *Engine) Related(ctx context.Context, id int64, limit int) ([]Result, error) {
	model := e.model.Load()
	if model == nil {
		return nil, ErrNotIndexed
	}
	row := model.IndexOf(id)
	if row < 0 {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotIndexed)
	}
	if limit <= 0 {
		return []Result{}, nil
	}
	return e.rank(ctx, model, model.Vectors[row], limit, relatedScoreFloor, row)
}

// rank scores every document against vec, keeps those strictly above
// floor, and hydrates the top limit rows from the store. skipRow
// excludes one document row, -1 to keep all.
func (e *Engine) rank(ctx context.Context, model *index.Model, vec index.SparseVector, limit int, floor float64, skipRow int) ([]Result, error) {
	type scored struct {
		row   int
		score float64
	}
	hits := make([]scored, 0, limit)
	for row, doc := range model.Vectors {
		if row == skipRow {
			continue
		}
		if score := vec.Dot(doc); score > floor {
			hits = append(hits, scored{row: row, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		article, err := e.store.GetByID(ctx, model.ArticleIDs[hit.row])
		if err != nil {
			return nil, fmt.Errorf("hydrate result: %w", err)
		}
		results = append(results, Result{
			ID:        article.ID,
			Title:     article.Title,
			Summary:   article.Summary,
			URL:       article.URL,
			WordCount: article.WordCount,
			Score:     hit.score,
		})
	}
	return results, nil
}

// Suggest completes a partial title. Prefix matches rank before
// substring matches; within each group shorter titles come first, then
// lexicographic order.
func (e *Engine) Suggest(ctx context.Context, partial string, limit int) ([]string, error) {
	partial = strings.TrimSpace(partial)
	if len(partial) < minSuggestLength || limit <= 0 {
		return []string{}, nil
	}

	candidates, err := e.store.TitlesLike(ctx, partial, limit*suggestFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("suggest %q: %w", partial, err)
	}

	lower := strings.ToLower(partial)
	sort.Slice(candidates, func(i, j int) bool {
		pi := strings.HasPrefix(strings.ToLower(candidates[i]), lower)
		pj := strings.HasPrefix(strings.ToLower(candidates[j]), lower)
		if pi != pj {
			return pi
		}
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) < len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Rebuild derives a fresh model from the full stored corpus, snapshots
// it, and swaps it in atomically. In-flight queries keep the model they
// started with.
func (e *Engine) Rebuild(ctx context.Context) error {
	start := time.Now()
	docs, err := e.store.FetchAll(ctx, e.minContentLength)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	model, err := e.builder.Build(docs)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}

	if e.snapshotPath != "" {
		if err := index.SaveSnapshot(e.snapshotPath, model); err != nil {
			// The in-memory model is still good. The next process
			// start pays a rebuild instead.
			e.logger.Warn("snapshot save failed", zap.String("path", e.snapshotPath), zap.Error(err))
		}
	}

	e.model.Store(model)
	e.logger.Info("model rebuilt",
		zap.Int("documents", model.Docs()),
		zap.Int("features", model.VocabularySize()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// LoadOrBuild restores the model from the snapshot when one is present
// and valid, otherwise rebuilds from the store.
func (e *Engine) LoadOrBuild(ctx context.Context) error {
	if e.snapshotPath != "" {
		model, err := index.LoadSnapshot(e.snapshotPath)
		if err == nil {
			e.model.Store(model)
			e.logger.Info("model restored from snapshot",
				zap.String("path", e.snapshotPath),
				zap.Int("documents", model.Docs()),
				zap.Time("built_at", model.BuiltAt),
			)
			return nil
		}
		e.logger.Warn("snapshot unusable, rebuilding", zap.String("path", e.snapshotPath), zap.Error(err))
	}
	return e.Rebuild(ctx)
}
