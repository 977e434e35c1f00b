package facade

import "errors"

var (
	ErrMappingNil      = errors.New("facade: mapping is required")
	ErrDataNil         = errors.New("facade: data is required")
	ErrMappingInactive = errors.New("facade: mapping is inactive")
	ErrBatchDataShape  = errors.New("facade: dataArray must be an ordered sequence")
)
