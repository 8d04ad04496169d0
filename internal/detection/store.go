package detection

import (
	"sync"
	"time"
)

// Store is an append-only, insertion-ordered log of results safe for one
// writer and any number of concurrent readers. Readers always receive copies.
type Store struct {
	mu         sync.RWMutex
	results    []Result
	maxResults int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxResults bounds the store; the oldest results are dropped once it
// holds n entries. Zero or negative means unbounded.
func WithMaxResults(n int) StoreOption {
	return func(s *Store) {
		s.maxResults = max(n, 0)
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds r to the end of the log.
func (s *Store) Append(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxResults > 0 && len(s.results) >= s.maxResults {
		// Shift in place to keep the backing array bounded.
		drop := len(s.results) - s.maxResults + 1
		n := copy(s.results, s.results[drop:])
		clear(s.results[n:])
		s.results = s.results[:n]
	}
	s.results = append(s.results, r)
}

// Query returns results with From strictly after from and To strictly
// before to, in insertion order. A nil bound is open.
func (s *Store) Query(from, to *time.Time) []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Result, 0, len(s.results))
	for i := range s.results {
		r := &s.results[i]
		if from != nil && !r.From.After(*from) {
			continue
		}
		if to != nil && !r.To.Before(*to) {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// Latest returns the most recently appended result.
func (s *Store) Latest() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.results) == 0 {
		return Result{}, false
	}
	return s.results[len(s.results)-1], true
}

// Len returns the number of stored results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Clear removes all results. Calling it on an empty store is a no-op.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = nil
}

// FilterByConfidence keeps results whose confidence is at least threshold,
// preserving order. The input is not modified.
func FilterByConfidence(results []Result, threshold float32) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Confidence >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// FilterByLabel keeps results with one of the given labels, preserving order.
func FilterByLabel(results []Result, labels ...EventType) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		for _, l := range labels {
			if r.Label == l {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
