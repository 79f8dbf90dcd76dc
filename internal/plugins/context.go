package plugins

import (
	"fmt"

	"github.com/mkpazon/TmiK/pkg/sdk"
	"go.uber.org/zap"
)

type pluginContext struct {
	log    *zap.Logger
	config map[string]interface{}
}

func newPluginContext(log *zap.Logger, cfg map[string]interface{}) sdk.Context {
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	return &pluginContext{log: log, config: cfg}
}

func (c *pluginContext) Log() *zap.Logger               { return c.log }
func (c *pluginContext) Config() map[string]interface{} { return c.config }

func typeName(p sdk.Plugin) string { return fmt.Sprintf("%T", p) }
