// Package plugintest provides scripted plugins for tests.
package plugintest

import (
	"context"
	"sync"

	"github.com/DeafMist/campus-feed/backend/internal/models"
	"github.com/DeafMist/campus-feed/backend/internal/plugin"
)

// Result is what one Crawl call returns.
type Result struct {
	Posts []models.Post
	Err   error
}

// Stub replays Results in order, repeating the last one once exhausted.
type Stub struct {
	info    plugin.Info
	mu      sync.Mutex
	results []Result
	calls   int
	limits  []int
}

// New returns a stub with the given id whose identity fields derive from it.
func New(id string, results ...Result) *Stub {
	return &Stub{
		info: plugin.Info{
			ID:          id,
			Title:       id + " board",
			Description: id + " notices",
			BaseURL:     "https://" + id + ".example.com",
		},
		results: results,
	}
}

// Failing returns a stub whose every crawl fails with a request error.
func Failing(id string) *Stub {
	return New(id, Result{Err: plugin.RequestError(id, nil, "connection refused")})
}

func (s *Stub) Info() plugin.Info {
	return s.info
}

func (s *Stub) Crawl(ctx context.Context, limit int) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.limits = append(s.limits, limit)
	idx := s.calls
	s.calls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.results) == 0 {
		return nil, nil
	}
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	r := s.results[idx]
	if r.Err != nil {
		return nil, r.Err
	}
	posts := make([]models.Post, len(r.Posts))
	copy(posts, r.Posts)
	return posts, nil
}

// Calls returns how many times Crawl ran.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Limits returns the limit passed to each Crawl call.
func (s *Stub) Limits() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.limits...)
}
