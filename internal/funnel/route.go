package funnel

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/nulln0ne/uniswap-funnel/internal/amm"
	"github.com/nulln0ne/uniswap-funnel/pkg/fixedpoint"
	"github.com/nulln0ne/uniswap-funnel/pkg/uniswapv2"
)

// swapFunc has the shape of amm.AMM.Swap so quotes and executions walk
// paths through the same code.
type swapFunc func(ctx context.Context, pool common.Address, amountIn *uint256.Int, tokenIn common.Address) (uint256.Int, error)

// validatePaths checks that path1 and path2 start at the pool's two tokens
// (in either order), end at the same token and never revisit a token. It
// returns the destination token.
func validatePaths(r amm.Reserves, path1, path2 []common.Address) (common.Address, error) {
	for i, path := range [2][]common.Address{path1, path2} {
		if len(path) == 0 {
			return common.Address{}, fmt.Errorf("%w: path%d is empty", ErrInvalidPath, i+1)
		}
		if mapset.NewThreadUnsafeSet(path...).Cardinality() != len(path) {
			return common.Address{}, fmt.Errorf("%w: path%d repeats a token", ErrInvalidPath, i+1)
		}
	}

	start1, start2 := path1[0], path2[0]
	if !(start1 == r.Token0 && start2 == r.Token1) && !(start1 == r.Token1 && start2 == r.Token0) {
		return common.Address{}, fmt.Errorf("%w: paths must start at %s and %s", ErrInvalidPath, r.Token0.Hex(), r.Token1.Hex())
	}
	dst := path1[len(path1)-1]
	if path2[len(path2)-1] != dst {
		return common.Address{}, fmt.Errorf("%w: paths end at different tokens", ErrInvalidPath)
	}
	return dst, nil
}

// walk swaps amountIn along path, one pair per adjacent token pair. A
// single-token path performs no swap and returns amountIn.
func walk(ctx context.Context, reader amm.Reader, swap swapFunc, path []common.Address, amountIn uint256.Int) ([]Hop, uint256.Int, error) {
	hops := make([]Hop, 0, len(path)-1)
	amount := amountIn
	for i := 0; i+1 < len(path); i++ {
		tokenIn, tokenOut := path[i], path[i+1]
		pool, err := reader.PairFor(ctx, tokenIn, tokenOut)
		if err != nil {
			return nil, uint256.Int{}, fmt.Errorf("hop %d %s->%s: %w", i, tokenIn.Hex(), tokenOut.Hex(), err)
		}
		out, err := swap(ctx, pool, &amount, tokenIn)
		if err != nil {
			return nil, uint256.Int{}, fmt.Errorf("hop %d via %s: %w", i, pool.Hex(), err)
		}
		hops = append(hops, Hop{
			Pool:      pool,
			TokenIn:   tokenIn,
			TokenOut:  tokenOut,
			AmountIn:  amount,
			AmountOut: out,
		})
		amount = out
	}
	return hops, amount, nil
}

// simulation replays pair mutations against locally cached reserves so a
// sequence of hops can be quoted without touching the AMM.
type simulation struct {
	reader amm.Reader
	fees   FeeSource
	pools  map[common.Address]*amm.Reserves
}

func newSimulation(reader amm.Reader, fees FeeSource) *simulation {
	return &simulation{
		reader: reader,
		fees:   fees,
		pools:  make(map[common.Address]*amm.Reserves),
	}
}

func (s *simulation) load(ctx context.Context, pool common.Address) (*amm.Reserves, error) {
	if r, ok := s.pools[pool]; ok {
		return r, nil
	}
	r, err := s.reader.ReservesOf(ctx, pool)
	if err != nil {
		return nil, err
	}
	s.pools[pool] = &r
	return &r, nil
}

// burn redeems shares of pool and removes the redeemed amounts from the
// cached reserves.
func (s *simulation) burn(ctx context.Context, pool common.Address, shares *uint256.Int) (amount0, amount1 uint256.Int, err error) {
	r, err := s.load(ctx, pool)
	if err != nil {
		return amount0, amount1, err
	}
	a0, a1, err := uniswapv2.RedeemedAmounts(shares, &r.Reserve0, &r.Reserve1, &r.TotalShares)
	if err != nil {
		return amount0, amount1, err
	}
	r.Reserve0.Sub(&r.Reserve0, a0)
	r.Reserve1.Sub(&r.Reserve1, a1)
	r.TotalShares.Sub(&r.TotalShares, shares)
	return *a0, *a1, nil
}

// swap prices amountIn with the factory fee from the registry and applies
// the trade to the cached reserves. Like the pair, it refuses a swap that
// pays nothing.
func (s *simulation) swap(ctx context.Context, pool common.Address, amountIn *uint256.Int, tokenIn common.Address) (uint256.Int, error) {
	r, err := s.load(ctx, pool)
	if err != nil {
		return uint256.Int{}, err
	}
	fee, err := s.fees.Fee(r.Factory)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("fee of factory %s: %w", r.Factory.Hex(), err)
	}

	reserveIn, reserveOut := &r.Reserve0, &r.Reserve1
	switch tokenIn {
	case r.Token0:
	case r.Token1:
		reserveIn, reserveOut = &r.Reserve1, &r.Reserve0
	default:
		return uint256.Int{}, amm.ErrTokenNotInPool
	}

	out, err := uniswapv2.GetAmountOut(amountIn, reserveIn, reserveOut, fee)
	if err != nil {
		return uint256.Int{}, err
	}
	if out.IsZero() {
		return uint256.Int{}, uniswapv2.ErrInsufficientOutput
	}
	newIn, err := fixedpoint.Add(reserveIn, amountIn)
	if err != nil {
		return uint256.Int{}, err
	}
	reserveIn.Set(newIn)
	reserveOut.Sub(reserveOut, out)
	return *out, nil
}
