package uniswapv2

import (
	"github.com/holiman/uint256"

	"github.com/nulln0ne/uniswap-funnel/pkg/fixedpoint"
)

const (
	// BasisPoints is 100% expressed in basis points.
	BasisPoints = 10000
	// MinimumLiquidity is locked forever by the first deposit into a pair.
	MinimumLiquidity = 1000
)

var (
	bps     = uint256.NewInt(BasisPoints)
	minLiqU = uint256.NewInt(MinimumLiquidity)
	oneU    = uint256.NewInt(1)
)

// FeeMultiplier returns 10000 - feeBps, the share of the input that takes
// part in pricing.
func FeeMultiplier(feeBps uint16) (*uint256.Int, error) {
	if feeBps >= BasisPoints {
		return nil, ErrInvalidFee
	}
	return uint256.NewInt(uint64(BasisPoints - feeBps)), nil
}

// GetAmountOut mirrors the pair's swap formula:
//
//	amountIn*(10000-fee)*reserveOut / (reserveIn*10000 + amountIn*(10000-fee))
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInput
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	f, err := FeeMultiplier(feeBps)
	if err != nil {
		return nil, err
	}

	// amountInWithFee = amountIn * (10000 - fee)
	amountInWithFee, err := fixedpoint.Mul(amountIn, f)
	if err != nil {
		return nil, err
	}
	// denominator = reserveIn * 10000 + amountInWithFee
	denominator, err := fixedpoint.Mul(reserveIn, bps)
	if err != nil {
		return nil, err
	}
	if denominator, err = fixedpoint.Add(denominator, amountInWithFee); err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(amountInWithFee, reserveOut, denominator)
}

// GetAmountIn returns the smallest input that yields at least amountOut.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutput
	}
	if reserveIn.IsZero() || reserveOut.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	f, err := FeeMultiplier(feeBps)
	if err != nil {
		return nil, err
	}

	numerator, err := fixedpoint.Mul(reserveIn, amountOut)
	if err != nil {
		return nil, err
	}
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	if denominator, err = fixedpoint.Mul(denominator, f); err != nil {
		return nil, err
	}
	amountIn, err := fixedpoint.MulDiv(numerator, bps, denominator)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Add(amountIn, oneU)
}

// Quote returns the amount of B worth amountA at the current reserve ratio.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if amountA.IsZero() {
		return nil, ErrInsufficientAmount
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	return fixedpoint.MulDiv(amountA, reserveB, reserveA)
}

// OptimalDeposit picks the amounts the router actually transfers for an
// addLiquidity call: one side is used in full and the other is cut down to
// the reserve ratio. An empty pair takes both amounts as given.
func OptimalDeposit(desiredA, desiredB, reserveA, reserveB *uint256.Int) (usedA, usedB *uint256.Int, err error) {
	if reserveA.IsZero() && reserveB.IsZero() {
		return desiredA.Clone(), desiredB.Clone(), nil
	}
	if desiredA.IsZero() || desiredB.IsZero() {
		return nil, nil, ErrInsufficientAmount
	}

	optimalB, err := Quote(desiredA, reserveA, reserveB)
	if err != nil {
		return nil, nil, err
	}
	if !optimalB.Gt(desiredB) {
		return desiredA.Clone(), optimalB, nil
	}

	optimalA, err := Quote(desiredB, reserveB, reserveA)
	if err != nil {
		return nil, nil, err
	}
	// optimalA <= desiredA always holds here; the router asserts it.
	if optimalA.Gt(desiredA) {
		return nil, nil, ErrInsufficientAmount
	}
	return optimalA, desiredB.Clone(), nil
}

// MintedShares returns the pool shares minted for depositing amountA and
// amountB into a pair holding the given reserves and supply.
func MintedShares(amountA, amountB, reserveA, reserveB, totalSupply *uint256.Int) (*uint256.Int, error) {
	var liquidity *uint256.Int
	if totalSupply.IsZero() {
		product, err := fixedpoint.Mul(amountA, amountB)
		if err != nil {
			return nil, err
		}
		root := fixedpoint.Sqrt(product)
		if !root.Gt(minLiqU) {
			return nil, ErrInsufficientLiquidityMinted
		}
		liquidity = new(uint256.Int).Sub(root, minLiqU)
	} else {
		if reserveA.IsZero() || reserveB.IsZero() {
			return nil, ErrInsufficientLiquidity
		}
		sharesA, err := fixedpoint.MulDiv(amountA, totalSupply, reserveA)
		if err != nil {
			return nil, err
		}
		sharesB, err := fixedpoint.MulDiv(amountB, totalSupply, reserveB)
		if err != nil {
			return nil, err
		}
		liquidity = fixedpoint.Min(sharesA, sharesB)
	}
	if liquidity.IsZero() {
		return nil, ErrInsufficientLiquidityMinted
	}
	return liquidity, nil
}

// RedeemedAmounts returns what burning shares pays out of each reserve.
func RedeemedAmounts(shares, reserveA, reserveB, totalSupply *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	if totalSupply.IsZero() || shares.Gt(totalSupply) {
		return nil, nil, ErrInsufficientLiquidity
	}
	if amountA, err = fixedpoint.MulDiv(shares, reserveA, totalSupply); err != nil {
		return nil, nil, err
	}
	if amountB, err = fixedpoint.MulDiv(shares, reserveB, totalSupply); err != nil {
		return nil, nil, err
	}
	if amountA.IsZero() || amountB.IsZero() {
		return nil, nil, ErrInsufficientLiquidityBurned
	}
	return amountA, amountB, nil
}
