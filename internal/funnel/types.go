package funnel

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/nulln0ne/uniswap-funnel/pkg/solver"
)

// Hop is one swap through one pair.
type Hop struct {
	Pool      common.Address
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  uint256.Int
	AmountOut uint256.Int
}

// SwapPlan is the quote for a deposit flow. TokenA is the side the caller
// funds first (the base token, or the intermediate token for decompose).
type SwapPlan struct {
	Pool    common.Address
	Factory common.Address
	TokenA  common.Address
	TokenB  common.Address
	FeeBps  uint16

	// PreSwap is set for decompose: the foreign token is first swapped
	// into TokenA through this hop.
	PreSwap *Hop

	Plan solver.Plan

	UsedA  uint256.Int
	UsedB  uint256.Int
	DustA  uint256.Int
	DustB  uint256.Int
	Shares uint256.Int
}

// LiquidityReceipt is what a deposit flow actually did.
type LiquidityReceipt struct {
	Pool      common.Address
	Recipient common.Address
	TokenA    common.Address
	TokenB    common.Address

	PreSwap *Hop
	Swap    *Hop

	UsedA  uint256.Int
	UsedB  uint256.Int
	DustA  uint256.Int
	DustB  uint256.Int
	Shares uint256.Int
}

// RemovalPlan describes burning shares and consolidating both redeemed
// tokens into DstToken. Path1 runs before Path2.
type RemovalPlan struct {
	Pool    common.Address
	Shares  uint256.Int
	Token0  common.Address
	Token1  common.Address
	Amount0 uint256.Int
	Amount1 uint256.Int

	Path1 []Hop
	Path2 []Hop

	DstToken  common.Address
	AmountOut uint256.Int
	MinOut    uint256.Int
}
