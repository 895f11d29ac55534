package index

import (
	"math"
	"sort"
	"time"
)

// SparseVector stores the non-zero features of one document, indices
// sorted ascending.
type SparseVector struct {
	Indices []int32
	Values  []float64
}

// Dot returns the dot product of two sparse vectors. Since document
// vectors are L2-normalized at build time, this is cosine similarity.
func (v SparseVector) Dot(other SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(other.Indices) {
		switch {
		case v.Indices[i] < other.Indices[j]:
			i++
		case v.Indices[i] > other.Indices[j]:
			j++
		default:
			sum += v.Values[i] * other.Values[j]
			i++
			j++
		}
	}
	return sum
}

// normalize scales the vector to unit L2 length in place. A zero vector
// is left untouched.
func (v SparseVector) normalize() {
	var sumSquares float64
	for _, val := range v.Values {
		sumSquares += val * val
	}
	if sumSquares == 0 {
		return
	}
	norm := math.Sqrt(sumSquares)
	for i := range v.Values {
		v.Values[i] /= norm
	}
}

// Model is the immutable retrieval model: vocabulary, idf weights and
// one normalized vector per indexed article. A rebuild produces a fresh
// Model; existing instances are never patched.
type Model struct {
	Vocabulary map[string]int
	IDF        []float64
	Vectors    []SparseVector
	ArticleIDs []int64
	BuiltAt    time.Time
}

// Docs returns the number of indexed documents.
func (m *Model) Docs() int {
	return len(m.ArticleIDs)
}

// VocabularySize returns the number of features.
func (m *Model) VocabularySize() int {
	return len(m.Vocabulary)
}

// Density is the fraction of non-zero cells in the document-term
// matrix.
func (m *Model) Density() float64 {
	if len(m.Vectors) == 0 || len(m.Vocabulary) == 0 {
		return 0
	}
	var nonZero int
	for _, v := range m.Vectors {
		nonZero += len(v.Indices)
	}
	return float64(nonZero) / (float64(len(m.Vectors)) * float64(len(m.Vocabulary)))
}

// IndexOf returns the row of articleID, or -1 when it is not indexed.
func (m *Model) IndexOf(articleID int64) int {
	for i, id := range m.ArticleIDs {
		if id == articleID {
			return i
		}
	}
	return -1
}

// Vectorize projects free text into the model's feature space. Terms
// outside the vocabulary contribute nothing, which is expected for
// arbitrary queries. The result is L2-normalized.
func (m *Model) Vectorize(text string) SparseVector {
	counts := make(map[int]float64)
	for _, term := range Terms(Tokenize(text)) {
		if feature, ok := m.Vocabulary[term]; ok {
			counts[feature]++
		}
	}
	if len(counts) == 0 {
		return SparseVector{}
	}

	vec := SparseVector{
		Indices: make([]int32, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for feature := range counts {
		vec.Indices = append(vec.Indices, int32(feature))
	}
	sort.Slice(vec.Indices, func(i, j int) bool { return vec.Indices[i] < vec.Indices[j] })
	for _, feature := range vec.Indices {
		vec.Values = append(vec.Values, counts[int(feature)]*m.IDF[feature])
	}
	vec.normalize()
	return vec
}
