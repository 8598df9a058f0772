package nordchat

import "sync"

// Store holds the published AppState. Dispatch is meant to be called from
// a single goroutine; State may be called from anywhere.
type Store struct {
	mu          sync.RWMutex
	state       AppState
	subscribers []func(prev, next AppState, action Action)
}

// NewStore creates a store holding InitialState.
func NewStore() *Store {
	return &Store{state: InitialState()}
}

// State returns the current snapshot.
func (s *Store) State() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to run after every successful dispatch.
func (s *Store) Subscribe(fn func(prev, next AppState, action Action)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Dispatch reduces action against the current snapshot and publishes the
// result. On error nothing is published.
func (s *Store) Dispatch(action Action) (AppState, error) {
	s.mu.Lock()
	prev := s.state
	next, err := Reduce(prev, action)
	if err != nil {
		s.mu.Unlock()
		return prev, err
	}
	s.state = next
	subs := s.subscribers
	s.mu.Unlock()

	for _, fn := range subs {
		fn(prev, next, action)
	}
	return next, nil
}
