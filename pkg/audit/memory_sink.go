package audit

import (
	"context"
	"sort"
	"sync"
)

// MemorySink keeps entries in memory
type MemorySink struct {
	mu      sync.Mutex
	entries []*Entry
	failErr error
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWith makes every subsequent Append return err. Pass nil to recover.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *MemorySink) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.entries = append(s.entries, entry.Clone())
	return nil
}

// Entries returns a copy of everything appended so far, in append order
func (s *MemorySink) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	return out
}

// Search returns matching entries, newest first
func (s *MemorySink) Search(_ context.Context, filter SearchFilter) ([]*Entry, error) {
	s.mu.Lock()
	var matched []*Entry
	for _, e := range s.entries {
		if filter.Matches(e) {
			matched = append(matched, e.Clone())
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*Entry{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemorySink) Close() error { return nil }
