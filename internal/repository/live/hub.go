// Package live broadcasts full-list snapshots to long-lived subscribers.
//
// Every published snapshot is queued for every subscriber, so a slow reader
// still observes each write in commit order. A new subscriber first receives
// the latest snapshot, if one has been published.
package live

import (
	"context"
	"sync"
)

type Hub[T any] struct {
	mu      sync.Mutex
	subs    map[*subscriber[T]]struct{}
	current T
	primed  bool
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*subscriber[T]]struct{})}
}

// Primed reports whether at least one snapshot has been published.
func (h *Hub[T]) Primed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.primed
}

// Publish records v as the current snapshot and queues it for every subscriber.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = v
	h.primed = true
	for s := range h.subs {
		s.push(v)
	}
}

// Subscribe registers a subscriber until ctx is done. transform is applied to
// every snapshot before delivery; pass nil to deliver snapshots unchanged.
func (h *Hub[T]) Subscribe(ctx context.Context, transform func(T) T) <-chan T {
	s := &subscriber[T]{
		out:       make(chan T),
		wake:      make(chan struct{}, 1),
		transform: transform,
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	if h.primed {
		s.push(h.current)
	}
	h.mu.Unlock()

	go func() {
		s.pump(ctx)
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
	}()

	return s.out
}

// Len returns the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

type subscriber[T any] struct {
	mu        sync.Mutex
	queue     []T
	out       chan T
	wake      chan struct{}
	transform func(T) T
}

func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) pop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if len(s.queue) == 0 {
		return zero, false
	}
	v := s.queue[0]
	s.queue[0] = zero
	s.queue = s.queue[1:]
	return v, true
}

func (s *subscriber[T]) pump(ctx context.Context) {
	defer close(s.out)

	for {
		v, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		if s.transform != nil {
			v = s.transform(v)
		}

		select {
		case <-ctx.Done():
			return
		case s.out <- v:
		}
	}
}
