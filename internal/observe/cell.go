// Package observe provides the observable state primitives shared by the scanner,
// the connection machines, and the hub: value cells with change subscriptions and
// a bounded diagnostic stream.
package observe

import (
	"sync"
)

// DefaultWatchBuffer is the subscription buffer used when Watch is given a non-positive size.
const DefaultWatchBuffer = 16

// Cell holds a single observable value. Many goroutines may read it; writes are
// serialized and fan out to every active watcher.
type Cell[T any] struct {
	mu       sync.RWMutex
	value    T
	equal    func(a, b T) bool
	watchers map[*RingChannel[T]]struct{}
	closed   bool
}

// NewCell creates a cell holding initial. When equal is non-nil, Set only notifies
// watchers for values that differ from the current one.
func NewCell[T any](initial T, equal func(a, b T) bool) *Cell[T] {
	return &Cell[T]{
		value:    initial,
		equal:    equal,
		watchers: make(map[*RingChannel[T]]struct{}),
	}
}

// Equal is the equality function for comparable cell types.
func Equal[T comparable](a, b T) bool {
	return a == b
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores v and notifies watchers. It reports whether the value changed.
func (c *Cell[T]) Set(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.equal != nil && c.equal(c.value, v) {
		return false
	}
	c.value = v
	for w := range c.watchers {
		w.Send(v)
	}
	return true
}

// Update applies fn to the current value atomically and stores the result.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := fn(c.value)
	if c.closed || (c.equal != nil && c.equal(c.value, next)) {
		return c.value
	}
	c.value = next
	for w := range c.watchers {
		w.Send(next)
	}
	return next
}

// Watch subscribes to future changes. The returned channel keeps the newest
// `buffer` values when the reader falls behind. The cancel function
// unsubscribes and closes the channel.
func (c *Cell[T]) Watch(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = DefaultWatchBuffer
	}
	rc := NewRingChannel[T](buffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		rc.Close()
		return rc.C(), func() {}
	}
	c.watchers[rc] = struct{}{}
	c.mu.Unlock()

	return rc.C(), func() {
		c.mu.Lock()
		delete(c.watchers, rc)
		c.mu.Unlock()
		rc.Close()
	}
}

// Close closes every watcher channel. Later Sets are ignored.
func (c *Cell[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for w := range c.watchers {
		w.Close()
		delete(c.watchers, w)
	}
}
