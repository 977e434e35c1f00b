package ratelimit

import "errors"

var (
	ErrIPRequired      = errors.New("ratelimit: ip is required")
	ErrAccountRequired = errors.New("ratelimit: account is required")
)
