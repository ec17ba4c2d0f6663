// Package funnel implements the liquidity-funnel operations: single-token
// decompose and partition, dual-token rebalance, and remove-and-consolidate.
// Every operation has a side-effect-free quote and an execute that, given
// unchanged pool state, reproduces the quote exactly.
package funnel

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
)

// BaseService provides common dependencies for the funnel services.
type BaseService struct {
	logger *slog.Logger
}

// FeeSource resolves the swap fee of a pair factory in basis points.
type FeeSource interface {
	Fee(factory common.Address) (uint16, error)
}
