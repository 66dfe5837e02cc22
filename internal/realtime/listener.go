package realtime

import "sync"

// Listener wraps a callback so it has an identity: registering the same
// *Listener twice is a no-op.
type Listener[T any] struct {
	fn func(T)
}

func Listen[T any](fn func(T)) *Listener[T] {
	return &Listener[T]{fn: fn}
}

type listenerSet[T any] struct {
	mu    sync.Mutex
	items map[*Listener[T]]struct{}
	order []*Listener[T]
}

func (s *listenerSet[T]) add(l *Listener[T]) func() {
	if l == nil || l.fn == nil {
		return func() {}
	}
	s.mu.Lock()
	if s.items == nil {
		s.items = make(map[*Listener[T]]struct{})
	}
	if _, ok := s.items[l]; !ok {
		s.items[l] = struct{}{}
		s.order = append(s.order, l)
	}
	s.mu.Unlock()
	return func() { s.remove(l) }
}

func (s *listenerSet[T]) remove(l *Listener[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[l]; !ok {
		return
	}
	delete(s.items, l)
	for i, cur := range s.order {
		if cur == l {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *listenerSet[T]) snapshot() []*Listener[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Listener[T], len(s.order))
	copy(out, s.order)
	return out
}

func (s *listenerSet[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *listenerSet[T]) dispatch(v T) {
	for _, l := range s.snapshot() {
		l.fn(v)
	}
}
