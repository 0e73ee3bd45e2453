package brevis

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCustomInput = errors.New("invalid custom input")
	ErrFailedToProve      = errors.New("failed to prove")
	ErrQueryFailed        = errors.New("query failed")
)
