// Package session keeps the per-shopper state objects the HTTP API drives
// between requests.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Disposer is implemented by session state that owns timers.
type Disposer interface {
	Dispose()
}

type entry[T Disposer] struct {
	value    T
	lastSeen time.Time
}

// Registry maps session ids to state and expires idle sessions.
type Registry[T Disposer] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	now     func() time.Time
}

func NewRegistry[T Disposer]() *Registry[T] {
	return &Registry[T]{
		entries: make(map[string]*entry[T]),
		now:     time.Now,
	}
}

// Add stores v under a new id and returns the id.
func (r *Registry[T]) Add(v T) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &entry[T]{value: v, lastSeen: r.now()}
	return id
}

// Get returns the session and marks it as used.
func (r *Registry[T]) Get(id string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.value, nil
}

// Remove disposes and forgets the session.
func (r *Registry[T]) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.value.Dispose()
	return nil
}

// Sweep disposes every session idle for longer than maxIdle and returns how
// many were removed.
func (r *Registry[T]) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var expired []T
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.value)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, v := range expired {
		v.Dispose()
	}
	return len(expired)
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll disposes every session. Used on shutdown.
func (r *Registry[T]) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry[T])
	r.mu.Unlock()

	for _, e := range entries {
		e.value.Dispose()
	}
}
