// Package solver computes how much of one pool asset to swap for the other
// before a deposit, so that the deposit lands on the pool's reserve ratio.
//
// Swapping x of A for y = GetAmountOut(x) moves the reserves to (rA+x, rB-y)
// with rB-y = rB*rA*D/(rA*D + x*F), where F = 10000-fee and D = 10000.
// Requiring (a-x)/(b+y) = (rA+x)/(rB-y) reduces to
//
//	F*x^2 + rA*(F+D)*x - rA*D*k = 0,  k = (a*rB - b*rA)/(b + rB)
//
// whose only non-negative root is
//
//	x = (sqrt(rA*(rA*(F+D)^2 + 4*F*D*k)) - rA*(F+D)) / (2*F)
//
// With b = 0, k is exactly a. Every division floors, which swaps slightly
// less than the real root and leaves dust in the input asset.
package solver

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/nulln0ne/uniswap-funnel/pkg/fixedpoint"
	"github.com/nulln0ne/uniswap-funnel/pkg/uniswapv2"
)

// ErrZeroInput is returned when every supplied amount is zero.
var ErrZeroInput = errors.New("solver: zero input")

// Snapshot is the pool state a plan is computed against. It is passed by
// value; nothing in this package keeps or mutates it.
type Snapshot struct {
	ReserveA uint256.Int
	ReserveB uint256.Int
	FeeBps   uint16
}

// Direction tells which way a plan swaps.
type Direction uint8

const (
	NoSwap Direction = iota
	SwapAToB
	SwapBToA
)

func (d Direction) String() string {
	switch d {
	case SwapAToB:
		return "a_to_b"
	case SwapBToA:
		return "b_to_a"
	default:
		return "none"
	}
}

// Plan is the solver's answer: the swap to perform, what to deposit after it
// and the reserves the deposit will see.
type Plan struct {
	Direction Direction
	AmountIn  uint256.Int
	AmountOut uint256.Int

	ResidualA uint256.Int
	ResidualB uint256.Int

	ReserveA uint256.Int
	ReserveB uint256.Int
}

// OptimalSwapAmount returns the amount of the input asset to swap when
// depositing amountIn of it alone into a pool with the given reserves.
func OptimalSwapAmount(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, uniswapv2.ErrInsufficientLiquidity
	}
	f, err := uniswapv2.FeeMultiplier(feeBps)
	if err != nil {
		return nil, err
	}
	if amountIn.IsZero() {
		return new(uint256.Int), nil
	}
	return root(amountIn, reserveIn, f.Uint64())
}

// RebalanceSwapAmount returns how much of the excess side to swap when
// amountIn of the input asset and amountOther of the other asset are
// deposited together. The caller must pass the side in excess as the input,
// i.e. amountIn*reserveOut >= amountOther*reserveIn.
func RebalanceSwapAmount(amountIn, amountOther, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, uniswapv2.ErrInsufficientLiquidity
	}
	f, err := uniswapv2.FeeMultiplier(feeBps)
	if err != nil {
		return nil, err
	}
	if amountOther.IsZero() {
		if amountIn.IsZero() {
			return new(uint256.Int), nil
		}
		return root(amountIn, reserveIn, f.Uint64())
	}

	k, err := netExcess(amountIn, amountOther, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if k.IsZero() {
		return k, nil
	}
	return root(k, reserveIn, f.Uint64())
}

// Partition plans a single-asset deposit of amountA.
func Partition(amountA *uint256.Int, snap Snapshot) (Plan, error) {
	return Rebalance(amountA, new(uint256.Int), snap)
}

// Rebalance plans a deposit of amountA and amountB in arbitrary proportion.
// The side whose value exceeds the reserve ratio is swapped from; an exact
// match swaps nothing.
func Rebalance(amountA, amountB *uint256.Int, snap Snapshot) (Plan, error) {
	rA, rB := &snap.ReserveA, &snap.ReserveB
	if rA.IsZero() || rB.IsZero() {
		return Plan{}, uniswapv2.ErrInsufficientLiquidity
	}
	if _, err := uniswapv2.FeeMultiplier(snap.FeeBps); err != nil {
		return Plan{}, err
	}
	if amountA.IsZero() && amountB.IsZero() {
		return Plan{}, ErrZeroInput
	}

	valueA, err := fixedpoint.Mul(amountA, rB)
	if err != nil {
		return Plan{}, err
	}
	valueB, err := fixedpoint.Mul(amountB, rA)
	if err != nil {
		return Plan{}, err
	}

	switch valueA.Cmp(valueB) {
	case 1:
		return plan(SwapAToB, amountA, amountB, rA, rB, snap.FeeBps)
	case -1:
		p, err := plan(SwapBToA, amountB, amountA, rB, rA, snap.FeeBps)
		if err != nil {
			return Plan{}, err
		}
		// plan works in (in, other) order; put it back into (A, B)
		p.ResidualA, p.ResidualB = p.ResidualB, p.ResidualA
		p.ReserveA, p.ReserveB = p.ReserveB, p.ReserveA
		return p, nil
	default:
		return noSwap(amountA, amountB, rA, rB), nil
	}
}

// plan solves for the swap from the "in" side and fills a Plan in
// (in, other) order.
func plan(dir Direction, amountIn, amountOther, reserveIn, reserveOut *uint256.Int, feeBps uint16) (Plan, error) {
	x, err := RebalanceSwapAmount(amountIn, amountOther, reserveIn, reserveOut, feeBps)
	if err != nil {
		return Plan{}, err
	}
	if x.IsZero() {
		return noSwap(amountIn, amountOther, reserveIn, reserveOut), nil
	}
	y, err := uniswapv2.GetAmountOut(x, reserveIn, reserveOut, feeBps)
	if err != nil {
		return Plan{}, err
	}
	// the pair rejects a swap that pays out nothing
	if y.IsZero() {
		return noSwap(amountIn, amountOther, reserveIn, reserveOut), nil
	}

	var p Plan
	p.Direction = dir
	p.AmountIn.Set(x)
	p.AmountOut.Set(y)
	p.ResidualA.Sub(amountIn, x)
	if _, overflow := p.ResidualB.AddOverflow(amountOther, y); overflow {
		return Plan{}, fixedpoint.ErrOverflow
	}
	if _, overflow := p.ReserveA.AddOverflow(reserveIn, x); overflow {
		return Plan{}, fixedpoint.ErrOverflow
	}
	p.ReserveB.Sub(reserveOut, y)
	return p, nil
}

func noSwap(amountA, amountB, reserveA, reserveB *uint256.Int) Plan {
	var p Plan
	p.ResidualA.Set(amountA)
	p.ResidualB.Set(amountB)
	p.ReserveA.Set(reserveA)
	p.ReserveB.Set(reserveB)
	return p
}

// netExcess returns k = (a*rOut - b*rIn) / (b + rOut), the single-sided
// amount that is equivalent to depositing a and b together.
func netExcess(a, b, rIn, rOut *uint256.Int) (*uint256.Int, error) {
	valueA, err := fixedpoint.Mul(a, rOut)
	if err != nil {
		return nil, err
	}
	valueB, err := fixedpoint.Mul(b, rIn)
	if err != nil {
		return nil, err
	}
	excess, err := fixedpoint.Sub(valueA, valueB)
	if err != nil {
		return nil, err
	}
	denom, err := fixedpoint.Add(b, rOut)
	if err != nil {
		return nil, err
	}
	return excess.Div(excess, denom), nil
}

// root evaluates the closed form for a single-sided amount k against
// reserveIn, with f = 10000 - fee.
func root(k, reserveIn *uint256.Int, f uint64) (*uint256.Int, error) {
	sum := f + uniswapv2.BasisPoints
	sumU := uint256.NewInt(sum)
	sumSq := uint256.NewInt(sum * sum)
	fourFD := uint256.NewInt(4 * f * uniswapv2.BasisPoints)

	// inner = rA*(F+D)^2 + 4*F*D*k
	inner, err := fixedpoint.Mul(reserveIn, sumSq)
	if err != nil {
		return nil, err
	}
	scaled, err := fixedpoint.Mul(k, fourFD)
	if err != nil {
		return nil, err
	}
	if inner, err = fixedpoint.Add(inner, scaled); err != nil {
		return nil, err
	}
	disc, err := fixedpoint.Mul(reserveIn, inner)
	if err != nil {
		return nil, err
	}

	// disc >= (rA*(F+D))^2, so the floor root never drops below rA*(F+D)
	offset, err := fixedpoint.Mul(reserveIn, sumU)
	if err != nil {
		return nil, err
	}
	x, err := fixedpoint.Sub(fixedpoint.Sqrt(disc), offset)
	if err != nil {
		return nil, err
	}
	return x.Div(x, uint256.NewInt(2*f)), nil
}
