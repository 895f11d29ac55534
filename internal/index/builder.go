package index

import (
	"errors"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wikidex/wikidex/internal/harvest"
)

// ErrEmptyCorpus is returned when no document survives the minimum
// length filter.
var ErrEmptyCorpus = errors.New("no indexable documents in corpus")

// titleWeight repeats the title in the document text so title matches
// rank above body matches.
const titleWeight = 3

// BuilderConfig bounds the vocabulary.
type BuilderConfig struct {
	MaxFeatures      int
	MinDocFreq       int
	MaxDocFreqFrac   float64
	MinContentLength int
}

// Builder constructs Models from a stored corpus.
type Builder struct {
	cfg    BuilderConfig
	clock  harvest.Clock
	logger *zap.Logger
}

// NewBuilder constructs a Builder, substituting defaults for
// non-positive config values.
func NewBuilder(cfg BuilderConfig, clock harvest.Clock, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = 10000
	}
	if cfg.MinDocFreq <= 0 {
		cfg.MinDocFreq = 2
	}
	if cfg.MaxDocFreqFrac <= 0 || cfg.MaxDocFreqFrac > 1 {
		cfg.MaxDocFreqFrac = 0.8
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = 100
	}
	return &Builder{cfg: cfg, clock: clock, logger: logger}
}

// Build derives a fresh Model from the documents. Row order follows the
// input order, so callers should pass a deterministically ordered
// corpus.
func (b *Builder) Build(docs []harvest.Article) (*Model, error) {
	indexable := docs[:0:0]
	for _, doc := range docs {
		if len(doc.CleanContent) > b.cfg.MinContentLength {
			indexable = append(indexable, doc)
		}
	}
	if len(indexable) == 0 {
		return nil, ErrEmptyCorpus
	}

	// Per-document term counts plus corpus-wide document and term
	// frequencies, gathered in one pass.
	docTerms := make([]map[string]float64, len(indexable))
	docFreq := make(map[string]int)
	termFreq := make(map[string]float64)
	for i, doc := range indexable {
		counts := make(map[string]float64)
		for _, term := range Terms(Tokenize(documentText(doc))) {
			counts[term]++
		}
		docTerms[i] = counts
		for term, count := range counts {
			docFreq[term]++
			termFreq[term] += count
		}
	}

	vocabulary := b.selectVocabulary(docFreq, termFreq, len(indexable))
	if len(vocabulary) == 0 {
		return nil, ErrEmptyCorpus
	}

	total := float64(len(indexable))
	idf := make([]float64, len(vocabulary))
	for term, feature := range vocabulary {
		idf[feature] = math.Log((1+total)/(1+float64(docFreq[term]))) + 1
	}

	model := &Model{
		Vocabulary: vocabulary,
		IDF:        idf,
		Vectors:    make([]SparseVector, len(indexable)),
		ArticleIDs: make([]int64, len(indexable)),
		BuiltAt:    b.clock.Now(),
	}
	for i, counts := range docTerms {
		model.ArticleIDs[i] = indexable[i].ID
		model.Vectors[i] = vectorizeCounts(counts, vocabulary, idf)
	}

	b.logger.Info("index built",
		zap.Int("documents", model.Docs()),
		zap.Int("features", model.VocabularySize()),
		zap.Float64("density", model.Density()),
	)
	return model, nil
}

// selectVocabulary prunes terms by document frequency and caps the
// feature count, keeping the terms with the highest corpus frequency.
// Feature ids are assigned in lexicographic term order so rebuilds over
// the same corpus are reproducible.
func (b *Builder) selectVocabulary(docFreq map[string]int, termFreq map[string]float64, docs int) map[string]int {
	maxDF := int(b.cfg.MaxDocFreqFrac * float64(docs))
	if maxDF < 1 {
		maxDF = 1
	}
	minDF := b.cfg.MinDocFreq
	if minDF > docs {
		minDF = docs
	}

	kept := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if df >= minDF && df <= maxDF {
			kept = append(kept, term)
		}
	}

	if len(kept) > b.cfg.MaxFeatures {
		sort.Slice(kept, func(i, j int) bool {
			if termFreq[kept[i]] != termFreq[kept[j]] {
				return termFreq[kept[i]] > termFreq[kept[j]]
			}
			return kept[i] < kept[j]
		})
		kept = kept[:b.cfg.MaxFeatures]
	}
	sort.Strings(kept)

	vocabulary := make(map[string]int, len(kept))
	for feature, term := range kept {
		vocabulary[term] = feature
	}
	return vocabulary
}

func vectorizeCounts(counts map[string]float64, vocabulary map[string]int, idf []float64) SparseVector {
	weights := make(map[int32]float64, len(counts))
	for term, count := range counts {
		if feature, ok := vocabulary[term]; ok {
			weights[int32(feature)] = count * idf[feature]
		}
	}

	vec := SparseVector{
		Indices: make([]int32, 0, len(weights)),
		Values:  make([]float64, 0, len(weights)),
	}
	for feature := range weights {
		vec.Indices = append(vec.Indices, feature)
	}
	sort.Slice(vec.Indices, func(i, j int) bool { return vec.Indices[i] < vec.Indices[j] })
	for _, feature := range vec.Indices {
		vec.Values = append(vec.Values, weights[feature])
	}
	vec.normalize()
	return vec
}

func documentText(doc harvest.Article) string {
	parts := make([]string, 0, titleWeight+2)
	for i := 0; i < titleWeight; i++ {
		parts = append(parts, doc.Title)
	}
	parts = append(parts, doc.Summary, doc.CleanContent)
	return strings.Join(parts, " ")
}
