package schema

import "errors"

var (
	ErrSystemNotFound    = errors.New("schema: system not found")
	ErrAdapterTypeUnknown = errors.New("schema: adapter type unknown")
	ErrAdapterNotConnected = errors.New("schema: adapter not connected")
)
