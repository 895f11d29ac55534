package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	model := &Model{
		Vocabulary: map[string]int{"graph": 0, "vertex": 1},
		IDF:        []float64{1.0, 1.4054651081081644},
		Vectors: []SparseVector{
			{Indices: []int32{0, 1}, Values: []float64{0.6, 0.8}},
		},
		ArticleIDs: []int64{42},
		BuiltAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	path := filepath.Join(t.TempDir(), "nested", "index.snap")
	require.NoError(t, SaveSnapshot(path, model))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, model.Vocabulary, loaded.Vocabulary)
	assert.Equal(t, model.IDF, loaded.IDF)
	assert.Equal(t, model.Vectors, loaded.Vectors)
	assert.Equal(t, model.ArticleIDs, loaded.ArticleIDs)
	assert.True(t, model.BuiltAt.Equal(loaded.BuiltAt))
}

func TestSnapshotOverwritesExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.snap")
	first := &Model{ArticleIDs: []int64{1}, Vectors: make([]SparseVector, 1)}
	second := &Model{ArticleIDs: []int64{1, 2}, Vectors: make([]SparseVector, 2)}

	require.NoError(t, SaveSnapshot(path, first))
	require.NoError(t, SaveSnapshot(path, second))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, loaded.ArticleIDs)
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.snap"))
	assert.Error(t, err)
}

func TestLoadSnapshotCorruptPayload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "corrupt.snap")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0o600))

	_, err := LoadSnapshot(path)
	assert.Error(t, err)
}

func TestSnapshotLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "index.snap")
	require.NoError(t, SaveSnapshot(path, &Model{ArticleIDs: []int64{7}, Vectors: make([]SparseVector, 1)}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "index.snap", entries[0].Name())
}
