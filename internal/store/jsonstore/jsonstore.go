package jsonstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/idilsaglam/posts/internal/model"
)

// JSON-backed storage. Single file, human-readable, portable.
// Callers serialize access; memstore holds its lock while saving.

// Load reads posts from path. A missing file is an empty list.
func Load(path string) ([]model.Post, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.Post{}, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	var posts []model.Post
	if err := json.Unmarshal(b, &posts); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return posts, nil
}

// Save writes posts to path, replacing it atomically.
func Save(path string, posts []model.Post) error {
	b, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
