package workflow

import (
	"context"
	"sync"
)

// Subscriber observes every transition applied to a Store. It runs synchronously after the
// store lock is released, in subscription order, and must not block.
type Subscriber func(ctx context.Context, prev, next State)

// Store owns the single workflow state bundle of a session.
type Store struct {
	mu          sync.RWMutex
	state       State
	seq         uint64
	subscribers []Subscriber
}

func NewStore() *Store {
	return &Store{state: Initial()}
}

// Subscribe registers fn for all future transitions.
func (s *Store) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = append(s.subscribers, fn)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.clone()
}

// Update applies fn to the current state and notifies subscribers.
func (s *Store) Update(ctx context.Context, fn func(State) State) State {
	s.mu.Lock()
	prev := s.state
	s.state = fn(prev.clone())
	next := s.state
	subs := s.subscribers
	s.mu.Unlock()

	s.notify(ctx, subs, prev, next)

	return next.clone()
}

// Begin moves the workflow into loading and returns the sequence number that the
// matching response must present to Settle.
func (s *Store) Begin(ctx context.Context) (uint64, State) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	prev := s.state
	s.state = prev.clone().Loading()
	next := s.state
	subs := s.subscribers
	s.mu.Unlock()

	s.notify(ctx, subs, prev, next)

	return seq, next.clone()
}

// Settle applies fn only when seq still identifies the latest submission.
// A response for a superseded submission is dropped and ok is false.
func (s *Store) Settle(ctx context.Context, seq uint64, fn func(State) State) (State, bool) {
	s.mu.Lock()
	if seq != s.seq {
		current := s.state.clone()
		s.mu.Unlock()

		return current, false
	}

	prev := s.state
	s.state = fn(prev.clone())
	next := s.state
	subs := s.subscribers
	s.mu.Unlock()

	s.notify(ctx, subs, prev, next)

	return next.clone(), true
}

func (s *Store) notify(ctx context.Context, subs []Subscriber, prev, next State) {
	for _, fn := range subs {
		fn(ctx, prev.clone(), next.clone())
	}
}
