package agent

import (
	"context"
	"sync"
)

// Lazy builds a value on first use and caches it. A failed build is not
// cached, so the next call retries.
type Lazy[T any] struct {
	build func(ctx context.Context) (T, error)

	mu    sync.Mutex
	value T
	ok    bool
}

// NewLazy returns a Lazy that calls build.
func NewLazy[T any](build func(ctx context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{build: build}
}

// Get returns the cached value, building it if needed.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ok {
		return l.value, nil
	}
	v, err := l.build(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	l.value, l.ok = v, true
	return v, nil
}
