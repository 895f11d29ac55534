package index

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// SaveSnapshot serializes the model to path as a single artifact. The
// write goes to a temp file first and is renamed into place so readers
// never observe a half-written snapshot.
func SaveSnapshot(path string, model *Model) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if err := gob.NewEncoder(tmp).Encode(model); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// LoadSnapshot deserializes a model previously written by SaveSnapshot.
// Callers treat any error, missing file or corrupt payload alike, as a
// signal to rebuild from the store.
func LoadSnapshot(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var model Model
	if err := gob.NewDecoder(f).Decode(&model); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if len(model.Vectors) != len(model.ArticleIDs) {
		return nil, fmt.Errorf("snapshot %s: vector/id length mismatch", path)
	}
	return &model, nil
}
