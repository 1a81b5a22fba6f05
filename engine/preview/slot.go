package preview

import (
	"context"
	"sync"
)

// Slot sequences loads for one UI slot. Every Begin supersedes the previous
// load: its context is canceled and its later commits are ignored, so only
// the latest issued request can change what the slot shows.
type Slot struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Begin issues a new sequence number and a context that is canceled when a
// newer load begins or the slot is closed.
func (s *Slot) Begin(parent context.Context) (uint64, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return s.seq, ctx
}

// Latest returns the most recently issued sequence number
func (s *Slot) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// IsLatest reports whether seq is still the current load
func (s *Slot) IsLatest(seq uint64) bool {
	return s.Latest() == seq
}

// Commit runs apply only if seq is still the latest load. apply runs under
// the slot lock so a newer Begin cannot interleave with it.
func (s *Slot) Commit(seq uint64, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return false
	}
	apply()
	return true
}

// Finish releases the context of a completed load
func (s *Slot) Finish(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == s.seq && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Close cancels any in-flight load and makes its result stale
func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}
