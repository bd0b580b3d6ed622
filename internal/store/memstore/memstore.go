// Package memstore is the posts store behind the API server: an in-memory
// map guarded by a RWMutex, optionally mirrored to a JSON file.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/idilsaglam/posts/internal/model"
	"github.com/idilsaglam/posts/internal/store/jsonstore"
)

var (
	ErrNotFound    = errors.New("post not found")
	ErrIdempotency = errors.New("idempotency key refers to a missing post")
)

type Store struct {
	mu     sync.RWMutex
	posts  map[model.ID]model.Post
	order  []model.ID // newest first
	nextID model.ID
	idempo map[string]model.ID
	path   string // empty: memory only
}

// New returns an empty, memory-only store.
func New() *Store {
	return &Store{
		posts:  make(map[model.ID]model.Post),
		idempo: make(map[string]model.ID),
		nextID: 1,
	}
}

// Open loads path (if it exists) and writes every change back to it.
func Open(path string) (*Store, error) {
	posts, err := jsonstore.Load(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := New()
	s.path = path
	for _, p := range posts {
		if p.ID == 0 {
			continue
		}
		s.posts[p.ID] = p
		s.order = append(s.order, p.ID)
		if p.ID >= s.nextID {
			s.nextID = p.ID + 1
		}
	}
	return s, nil
}

// List returns all posts, newest first.
func (s *Store) List(ctx context.Context) ([]model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(), nil
}

// Get returns one post.
func (s *Store) Get(ctx context.Context, id model.ID) (model.Post, error) {
	if err := ctx.Err(); err != nil {
		return model.Post{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return model.Post{}, ErrNotFound
	}
	return p, nil
}

// Create stores a new post. A repeated idempotency key returns the post it
// created the first time with reused set.
func (s *Store) Create(ctx context.Context, d model.Draft, idempotencyKey string) (p model.Post, reused bool, err error) {
	if err := ctx.Err(); err != nil {
		return model.Post{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if id, ok := s.idempo[idempotencyKey]; ok {
			existing, ok := s.posts[id]
			if !ok {
				return model.Post{}, false, ErrIdempotency
			}
			return existing, true, nil
		}
	}

	p = model.Post{ID: s.nextID, Title: d.Title}
	s.posts[p.ID] = p
	s.order = slices.Insert(s.order, 0, p.ID)
	if err := s.persist(); err != nil {
		delete(s.posts, p.ID)
		s.order = s.order[1:]
		return model.Post{}, false, err
	}
	s.nextID++
	if idempotencyKey != "" {
		s.idempo[idempotencyKey] = p.ID
	}
	return p, false, nil
}

// Update applies patch to the post with the given ID.
func (s *Store) Update(ctx context.Context, id model.ID, patch model.Patch) (model.Post, error) {
	if err := ctx.Err(); err != nil {
		return model.Post{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before, ok := s.posts[id]
	if !ok {
		return model.Post{}, ErrNotFound
	}
	after := before
	patch.Apply(&after)
	s.posts[id] = after
	if err := s.persist(); err != nil {
		s.posts[id] = before
		return model.Post{}, err
	}
	return after, nil
}

// Delete removes the post with the given ID.
func (s *Store) Delete(ctx context.Context, id model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return ErrNotFound
	}
	i := slices.Index(s.order, id)
	delete(s.posts, id)
	s.order = slices.Delete(s.order, i, i+1)
	if err := s.persist(); err != nil {
		s.posts[id] = p
		s.order = slices.Insert(s.order, i, id)
		return err
	}
	return nil
}

// snapshot copies the posts in order. Callers hold s.mu.
func (s *Store) snapshot() []model.Post {
	out := make([]model.Post, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.posts[id])
	}
	return out
}

// persist writes the current state to disk. Callers hold s.mu.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	if err := jsonstore.Save(s.path, s.snapshot()); err != nil {
		return fmt.Errorf("persist posts: %w", err)
	}
	return nil
}
