package config

import "errors"

// ErrMissingRPCEndpoint indicates that the required ETH_RPC_URL variable is
// not set in the environment.
var ErrMissingRPCEndpoint = errors.New("missing ETH_RPC_URL environment variable")

// ErrMissingVariable is returned when a required variable is unset.
var ErrMissingVariable = errors.New("missing environment variable")

// ErrInvalidAddress is returned when a variable is not a hex address.
var ErrInvalidAddress = errors.New("invalid address")

// ErrInvalidFeeDefaults is returned for a malformed FEE_DEFAULTS entry.
var ErrInvalidFeeDefaults = errors.New("invalid FEE_DEFAULTS entry")
