package plugins

import (
	"context"
	"sync"

	"github.com/mkpazon/TmiK/internal/events"
	"github.com/mkpazon/TmiK/pkg/sdk"
)

// rootScope is an in-memory session: tests publish into its buses and read
// back what was sent.
type rootScope struct {
	msgs   *events.Bus[sdk.Message]
	states *events.Bus[sdk.ConnectionState]

	mu   sync.Mutex
	sent []string
}

func newRootScope() *rootScope {
	return &rootScope{
		msgs:   events.NewBus[sdk.Message](),
		states: events.NewBus[sdk.ConnectionState](),
	}
}

func (r *rootScope) Parent() sdk.Scope            { return nil }
func (r *rootScope) Messages() sdk.MessageStream  { return r.msgs.Subscribe() }
func (r *rootScope) StateStream() sdk.StateStream { return r.states.Subscribe() }

func (r *rootScope) SendRaw(_ context.Context, raw string) error {
	r.mu.Lock()
	r.sent = append(r.sent, raw)
	r.mu.Unlock()
	return nil
}

func (r *rootScope) Sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

// statelessRoot is a root that cannot provide connection state.
type statelessRoot struct{ root *rootScope }

func (s statelessRoot) Parent() sdk.Scope           { return nil }
func (s statelessRoot) Messages() sdk.MessageStream { return s.root.Messages() }

func (s statelessRoot) SendRaw(ctx context.Context, raw string) error {
	return s.root.SendRaw(ctx, raw)
}

func text(s string) sdk.Message {
	return sdk.Message{Command: "PRIVMSG", Params: []string{"#chan", s}}
}
