package sdk

// Plugin transforms or filters incoming and outgoing traffic of a container
// and observes connection state changes. Embed Base (or use Funcs) to only
// override the hooks you care about.
type Plugin interface {
	FilterIncoming(msg Message) bool
	FilterOutgoing(raw string) bool
	MapIncoming(msg Message) Message
	MapOutgoing(raw string) string
	OnConnectionStateChange(state ConnectionState)
}

// Named is implemented by plugins that want to be reported by name.
type Named interface {
	Name() string
}

// Stopper is implemented by plugins holding resources that must be released
// when their container closes.
type Stopper interface {
	Stop() error
}

// Base is a pass-through Plugin meant for embedding.
type Base struct{}

func (Base) FilterIncoming(Message) bool             { return true }
func (Base) FilterOutgoing(string) bool              { return true }
func (Base) MapIncoming(msg Message) Message         { return msg }
func (Base) MapOutgoing(raw string) string           { return raw }
func (Base) OnConnectionStateChange(ConnectionState) {}

// Funcs builds a Plugin out of optional hooks. Nil hooks pass through.
type Funcs struct {
	PluginName   string
	Incoming     func(msg Message) bool
	Outgoing     func(raw string) bool
	MapIn        func(msg Message) Message
	MapOut       func(raw string) string
	StateChanged func(state ConnectionState)
}

func (f Funcs) Name() string { return f.PluginName }

func (f Funcs) FilterIncoming(msg Message) bool {
	if f.Incoming == nil {
		return true
	}
	return f.Incoming(msg)
}

func (f Funcs) FilterOutgoing(raw string) bool {
	if f.Outgoing == nil {
		return true
	}
	return f.Outgoing(raw)
}

func (f Funcs) MapIncoming(msg Message) Message {
	if f.MapIn == nil {
		return msg
	}
	return f.MapIn(msg)
}

func (f Funcs) MapOutgoing(raw string) string {
	if f.MapOut == nil {
		return raw
	}
	return f.MapOut(raw)
}

func (f Funcs) OnConnectionStateChange(state ConnectionState) {
	if f.StateChanged != nil {
		f.StateChanged(state)
	}
}

// Factory builds a plugin from its load context. Shared objects loaded by
// the gateway export a symbol of this type.
type Factory func(ctx Context) (Plugin, error)
