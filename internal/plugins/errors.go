package plugins

import "errors"

// ErrMissingStateProvider means a container was built without a state stream
// and none of its ancestors provides one. It is a wiring error, never retried.
var ErrMissingStateProvider = errors.New("no parent of the container provides connection state (implements sdk.StateProvider)")

// MissingStateProviderError records how far the ancestor walk went.
type MissingStateProviderError struct {
	Depth int // number of scopes inspected
}

func (e *MissingStateProviderError) Error() string {
	return ErrMissingStateProvider.Error()
}

func (e *MissingStateProviderError) Unwrap() error { return ErrMissingStateProvider }
