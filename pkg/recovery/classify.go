package recovery

import (
	"context"
	"errors"
	"net"
)

// isRetriable classifies an error as network, timeout, or
// transient-resource — the three classes the spec allows a RETRY
// strategy to apply to.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var transient *ErrTransientResource
	if errors.As(err, &transient) {
		return true
	}

	return false
}
