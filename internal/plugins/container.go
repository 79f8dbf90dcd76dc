package plugins

import (
	"context"
	"errors"
	"sync"

	"github.com/mkpazon/TmiK/pkg/sdk"
	"go.uber.org/zap"
)

// Container is a scope that threads all traffic through an ordered list of
// plugins: incoming messages, outgoing raw sends and connection state.
type Container struct {
	parent  sdk.Scope
	state   sdk.StateProvider
	log     *zap.Logger
	metrics *Metrics

	mu      sync.RWMutex
	plugins []sdk.Plugin

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Container)

// WithStateProvider sets the state source explicitly, skipping the ancestor walk.
func WithStateProvider(p sdk.StateProvider) Option {
	return func(c *Container) { c.state = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Container) { c.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Container) { c.metrics = m }
}

// NewContainer resolves the state source and starts relaying state updates to
// plugins until ctx is done or Close is called.
func NewContainer(ctx context.Context, parent sdk.Scope, opts ...Option) (*Container, error) {
	c := &Container{parent: parent, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	if c.state == nil {
		p, err := findStateProvider(parent)
		if err != nil {
			return nil, err
		}
		c.state = p
	}

	// subscribe before returning so no update after construction is missed
	states := c.state.StateStream()
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.relay(ctx, states)
	return c, nil
}

// Build mirrors the container DSL: construct, then run setup to register plugins.
func Build(ctx context.Context, parent sdk.Scope, setup func(*Container), opts ...Option) (*Container, error) {
	c, err := NewContainer(ctx, parent, opts...)
	if err != nil {
		return nil, err
	}
	if setup != nil {
		setup(c)
	}
	return c, nil
}

func findStateProvider(parent sdk.Scope) (sdk.StateProvider, error) {
	depth := 0
	for s := parent; s != nil; s = s.Parent() {
		depth++
		if p, ok := s.(sdk.StateProvider); ok {
			return p, nil
		}
	}
	return nil, &MissingStateProviderError{Depth: depth}
}

// Register appends plugins to the chain. Intended for setup, before traffic starts.
func (c *Container) Register(ps ...sdk.Plugin) {
	c.mu.Lock()
	c.plugins = append(c.plugins, ps...)
	c.mu.Unlock()
	for _, p := range ps {
		c.log.Debug("plugin registered", zap.String("name", PluginName(p)))
	}
}

// Use is Register in builder form.
func (c *Container) Use(p sdk.Plugin) *Container {
	c.Register(p)
	return c
}

// Plugins returns the registered plugins in order.
func (c *Container) Plugins() []sdk.Plugin {
	ps := c.snapshot()
	return append([]sdk.Plugin(nil), ps...)
}

// the chain is append-only, so a header copy is stable to iterate
func (c *Container) snapshot() []sdk.Plugin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plugins
}

func (c *Container) Parent() sdk.Scope { return c.parent }

// StateStream re-exposes the resolved upstream state stream, so nested
// containers can chain off this one.
func (c *Container) StateStream() sdk.StateStream { return c.state.StateStream() }

// Messages returns the parent's stream, filtered and mapped by the chain. The
// pipeline runs inside Next, on the consumer's goroutine.
func (c *Container) Messages() sdk.MessageStream {
	return &messageStream{src: c.parent.Messages(), c: c}
}

// SendRaw filters and maps raw, then forwards it to the parent. A vetoed send
// returns nil and has no effect.
func (c *Container) SendRaw(ctx context.Context, raw string) error {
	out, ok := c.outgoing(raw)
	if !ok {
		return nil
	}
	return c.parent.SendRaw(ctx, out)
}

// Done is closed once the state relay has stopped.
func (c *Container) Done() <-chan struct{} { return c.done }

// Close stops the state relay, waits for it, then stops every plugin that
// implements sdk.Stopper in registration order. Later calls do nothing.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		for _, p := range c.snapshot() {
			s, ok := p.(sdk.Stopper)
			if !ok {
				continue
			}
			if err := s.Stop(); err != nil {
				c.log.Warn("plugin stop failed", zap.String("name", PluginName(p)), zap.Error(err))
			}
		}
	})
}

func (c *Container) incoming(msg sdk.Message) (sdk.Message, bool) {
	ps := c.snapshot()
	for _, p := range ps {
		if !p.FilterIncoming(msg) {
			c.metrics.dropped(directionIn)
			return sdk.Message{}, false
		}
	}
	for _, p := range ps {
		msg = p.MapIncoming(msg)
	}
	c.metrics.accepted(directionIn)
	return msg, true
}

func (c *Container) outgoing(raw string) (string, bool) {
	ps := c.snapshot()
	for _, p := range ps {
		if !p.FilterOutgoing(raw) {
			c.metrics.dropped(directionOut)
			c.log.Debug("outgoing message vetoed", zap.String("plugin", PluginName(p)))
			return "", false
		}
	}
	for _, p := range ps {
		raw = p.MapOutgoing(raw)
	}
	c.metrics.accepted(directionOut)
	return raw, true
}

func (c *Container) relay(ctx context.Context, states sdk.StateStream) {
	defer close(c.done)
	defer states.Close()
	for {
		st, err := states.Next(ctx)
		if err != nil {
			if !errors.Is(err, sdk.ErrStreamClosed) && ctx.Err() == nil {
				c.log.Warn("state stream failed", zap.Error(err))
			}
			return
		}
		c.metrics.state(st)
		for _, p := range c.snapshot() {
			p.OnConnectionStateChange(st)
		}
	}
}

type messageStream struct {
	src sdk.MessageStream
	c   *Container
}

func (s *messageStream) Next(ctx context.Context) (sdk.Message, error) {
	for {
		msg, err := s.src.Next(ctx)
		if err != nil {
			return sdk.Message{}, err
		}
		if out, ok := s.c.incoming(msg); ok {
			return out, nil
		}
	}
}

func (s *messageStream) Close() { s.src.Close() }

// PluginName reports p's name when it has one, otherwise its type.
func PluginName(p sdk.Plugin) string {
	if n, ok := p.(sdk.Named); ok && n.Name() != "" {
		return n.Name()
	}
	return typeName(p)
}

var (
	_ sdk.Scope         = (*Container)(nil)
	_ sdk.StateProvider = (*Container)(nil)
)
