// Package cache keeps the last merged post list of every plugin, in memory
// and as one JSON file per plugin on disk.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/DeafMist/campus-feed/backend/internal/models"
)

// Store maps plugin ids to their most recent posts. One lock guards the
// whole map.
type Store struct {
	mu    sync.RWMutex
	items map[string][]models.Post
	dir   string
}

// NewStore creates a store persisting to dir.
func NewStore(dir string) *Store {
	return &Store{
		items: make(map[string][]models.Post),
		dir:   dir,
	}
}

// Dir returns the directory cache files live in.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the cache file of id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Load returns the posts known for id. The in-memory entry wins; otherwise
// the cache file is read. A missing file yields an empty list, a malformed one
// is an error.
func (s *Store) Load(ctx context.Context, id string) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if posts, ok := s.items[id]; ok {
		return slices.Clone(posts), nil
	}
	return s.readFile(ctx, id)
}

// Put replaces the entry of id.
func (s *Store) Put(id string, posts []models.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[id] = slices.Clone(posts)
}

// IDs lists the plugin ids held in memory, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Save writes every in-memory entry to its cache file.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create cache dir: %w", err)
	}

	for id, posts := range s.items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeFile(id, posts); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) readFile(ctx context.Context, id string) ([]models.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Post{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", path, err)
	}

	var posts []models.Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", path, err)
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

func (s *Store) writeFile(id string, posts []models.Post) error {
	if posts == nil {
		posts = []models.Post{}
	}
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", id, err)
	}

	path := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create cache file %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write cache %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace cache %s: %w", path, err)
	}
	return nil
}
