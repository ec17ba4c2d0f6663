package funnel

import (
	"errors"
	"fmt"
)

var (
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrDeadlineExpired also matches ErrSlippageExceeded.
	ErrDeadlineExpired = fmt.Errorf("%w: deadline expired", ErrSlippageExceeded)
	ErrPairMismatch    = errors.New("token does not belong to pool")
	ErrInvalidPath     = errors.New("invalid swap path")
	ErrNoRoute         = errors.New("no pair connects token to pool")
)
