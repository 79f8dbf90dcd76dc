package sdk

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned by Stream.Next once the stream has ended.
var ErrStreamClosed = errors.New("stream closed")

// Stream is a pull based sequence. Next blocks until a value is available,
// ctx is done, or the stream ends.
type Stream[T any] interface {
	Next(ctx context.Context) (T, error)
	Close()
}

type (
	MessageStream = Stream[Message]
	StateStream   = Stream[ConnectionState]
)

// Scope is a node of the client tree. It owns an inbound message stream and
// forwards raw lines towards the connection.
type Scope interface {
	Parent() Scope
	Messages() MessageStream
	SendRaw(ctx context.Context, raw string) error
}

// StateProvider is implemented by scopes that can hand out the connection
// state stream.
type StateProvider interface {
	StateStream() StateStream
}

// Child is a scope that only nests under its parent and forwards to it.
type Child struct {
	parent Scope
}

func NewChild(parent Scope) *Child { return &Child{parent: parent} }

func (c *Child) Parent() Scope           { return c.parent }
func (c *Child) Messages() MessageStream { return c.parent.Messages() }

func (c *Child) SendRaw(ctx context.Context, raw string) error {
	return c.parent.SendRaw(ctx, raw)
}
