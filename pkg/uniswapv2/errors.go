package uniswapv2

import "errors"

var (
	ErrInsufficientInput           = errors.New("insufficient input amount")
	ErrInsufficientOutput          = errors.New("insufficient output amount")
	ErrInsufficientAmount          = errors.New("insufficient amount")
	ErrInsufficientLiquidity       = errors.New("insufficient liquidity")
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("insufficient liquidity burned")
	// ErrInvalidFee is returned for a fee of 100% or more.
	ErrInvalidFee = errors.New("fee must be below 10000 bps")
)
