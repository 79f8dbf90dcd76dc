package sdk

import "go.uber.org/zap"

// Context is what a plugin factory receives when the gateway loads it.
type Context interface {
	Log() *zap.Logger
	Config() map[string]interface{}
}
