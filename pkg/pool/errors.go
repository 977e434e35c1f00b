package pool

import "errors"

var (
	ErrPoolNotFound     = errors.New("pool: named pool not found")
	ErrPoolAlreadyExists = errors.New("pool: named pool already exists")
	ErrAcquireTimeout   = errors.New("pool: acquire timed out")
	ErrPoolClosed       = errors.New("pool: pool is closed")
)
