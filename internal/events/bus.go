package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mkpazon/TmiK/pkg/sdk"
)

const defaultBuffer = 64

// Bus fans every published value out to all current subscribers, in publish
// order. By default a full subscriber makes Publish wait rather than lose the
// value; a lossy bus skips that subscriber instead.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[*Subscription[T]]struct{}
	buf    int
	lossy  bool
	closed bool
}

func NewBus[T any]() *Bus[T] {
	return NewBufferedBus[T](defaultBuffer)
}

func NewBufferedBus[T any](buf int) *Bus[T] {
	return &Bus[T]{
		subs: make(map[*Subscription[T]]struct{}),
		buf:  buf,
	}
}

// NewLossyBus returns a bus that drops values for subscribers whose buffer
// is full, so one stalled reader never holds up the publisher or the others.
func NewLossyBus[T any](buf int) *Bus[T] {
	b := NewBufferedBus[T](buf)
	b.lossy = true
	return b
}

// Subscribe registers a new subscriber. Values published before the call are
// not replayed. Subscribing to a closed bus yields an ended stream.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		bus:  b,
		ch:   make(chan T, b.buf),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		close(s.ch)
	} else {
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()
	return s
}

// Publish delivers v to every subscriber. It returns early with ctx.Err()
// when ctx is done before all subscribers took the value.
func (b *Bus[T]) Publish(ctx context.Context, v T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for s := range b.subs {
		if b.lossy {
			select {
			case s.ch <- v:
			default:
				s.dropped.Add(1)
			}
			continue
		}
		select {
		case s.ch <- v:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Len reports the number of live subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription; pending values are still drained by Next.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
}

func (b *Bus[T]) unsubscribe(s *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// Subscription is one subscriber's view of a Bus. It implements sdk.Stream.
type Subscription[T any] struct {
	bus     *Bus[T]
	ch      chan T
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// Dropped counts values a lossy bus skipped because this subscriber was full.
func (s *Subscription[T]) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-s.ch:
		if !ok {
			return zero, sdk.ErrStreamClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close unsubscribes. It is safe to call more than once and concurrently
// with Publish.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		// unblock a Publish waiting on us before taking the write lock
		close(s.done)
		s.bus.unsubscribe(s)
	})
}

var _ sdk.Stream[int] = (*Subscription[int])(nil)
