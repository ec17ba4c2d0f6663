// Package amm describes the external constant-product AMM the funnel
// drives. The funnel owns none of this state; it reads it immediately
// before solving and mutates it only through the calls below.
package amm

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrPairNotFound is returned when no pair exists for a token pair.
	ErrPairNotFound = errors.New("pair not found")
	// ErrUnknownPool is returned for an address that is not a pair.
	ErrUnknownPool = errors.New("unknown pool")
	// ErrTokenNotInPool is returned when a token is not one of the pair's two.
	ErrTokenNotInPool = errors.New("token not in pool")
	// ErrInsufficientShares is returned when burning more shares than held.
	ErrInsufficientShares = errors.New("insufficient pool shares")
)

// Reserves is a point-in-time view of a pair. TotalShares is the pair's
// share supply at the same point as the reserves.
type Reserves struct {
	Pool        common.Address
	Factory     common.Address
	Token0      common.Address
	Token1      common.Address
	Reserve0    uint256.Int
	Reserve1    uint256.Int
	TotalShares uint256.Int
}

// Has reports whether token is one of the pair's tokens.
func (r Reserves) Has(token common.Address) bool {
	return token == r.Token0 || token == r.Token1
}

// Other returns the pair token that is not token.
func (r Reserves) Other(token common.Address) common.Address {
	if token == r.Token0 {
		return r.Token1
	}
	return r.Token0
}

// Oriented returns (reserveIn, reserveOut) for a swap that sells tokenIn.
func (r Reserves) Oriented(tokenIn common.Address) (reserveIn, reserveOut uint256.Int, err error) {
	switch tokenIn {
	case r.Token0:
		return r.Reserve0, r.Reserve1, nil
	case r.Token1:
		return r.Reserve1, r.Reserve0, nil
	default:
		return uint256.Int{}, uint256.Int{}, ErrTokenNotInPool
	}
}

// Reader is the read-only side of the AMM.
type Reader interface {
	ReservesOf(ctx context.Context, pool common.Address) (Reserves, error)
	TotalShares(ctx context.Context, pool common.Address) (uint256.Int, error)
	PairFor(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error)
}

// AMM adds the mutating calls. Swap and RemoveLiquidity settle with the
// caller; AddLiquidity credits shares to recipient and returns the amounts
// the pair actually took.
type AMM interface {
	Reader

	Swap(ctx context.Context, pool common.Address, amountIn *uint256.Int, tokenIn common.Address) (uint256.Int, error)
	AddLiquidity(ctx context.Context, pool common.Address, amount0, amount1 *uint256.Int, recipient common.Address) (shares, used0, used1 uint256.Int, err error)
	RemoveLiquidity(ctx context.Context, pool common.Address, shares *uint256.Int, owner common.Address) (amount0, amount1 uint256.Int, err error)

	// Atomic runs fn as one unit of work: if fn returns an error, none of
	// the mutations it made are kept.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}
