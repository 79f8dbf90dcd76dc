package plugins

import (
	"errors"
	"fmt"
	"plugin"

	"github.com/mkpazon/TmiK/internal/config"
	"github.com/mkpazon/TmiK/pkg/sdk"
	"go.uber.org/zap"
)

var errNotFactory = errors.New("symbol is not a plugin factory")

// Loader builds plugins from config entries and registers them on a container.
type Loader struct {
	log  *zap.Logger
	open func(path, symbol string) (sdk.Factory, error)
}

func NewLoader(log *zap.Logger) *Loader {
	return &Loader{log: log, open: openShared}
}

// Load registers every entry that builds, in order. Broken entries are logged
// and skipped; the count of loaded plugins is returned.
func (l *Loader) Load(c *Container, entries []config.PluginEntry) int {
	n := 0
	for _, e := range entries {
		p, err := l.build(e)
		if err != nil {
			l.log.Error("failed to load plugin",
				zap.String("name", e.Name),
				zap.Error(err))
			continue
		}
		c.Register(p)
		n++
		l.log.Info("plugin loaded",
			zap.String("name", e.Name),
			zap.String("path", e.Path))
	}
	return n
}

func (l *Loader) build(e config.PluginEntry) (sdk.Plugin, error) {
	var (
		factory sdk.Factory
		err     error
	)
	if e.Path != "" {
		factory, err = l.open(e.Path, e.Entry)
		if err != nil {
			return nil, err
		}
	} else {
		var ok bool
		if factory, ok = Builtin(e.Name); !ok {
			return nil, fmt.Errorf("unknown builtin plugin %q", e.Name)
		}
	}
	ctx := newPluginContext(l.log.With(zap.String("plugin", e.Name)), e.Config)
	return factory(ctx)
}

func openShared(path, symbol string) (sdk.Factory, error) {
	if symbol == "" {
		symbol = "New"
	}
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	switch f := sym.(type) {
	case func(sdk.Context) (sdk.Plugin, error):
		return f, nil
	case *sdk.Factory:
		return *f, nil
	default:
		return nil, fmt.Errorf("%s in %s: %w", symbol, path, errNotFactory)
	}
}
