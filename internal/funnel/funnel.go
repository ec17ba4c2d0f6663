package funnel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/nulln0ne/uniswap-funnel/internal/amm"
	"github.com/nulln0ne/uniswap-funnel/internal/metrics"
	"github.com/nulln0ne/uniswap-funnel/pkg/solver"
)

// Funnel executes funnel operations against an AMM. Each execution runs as
// one amm.AMM.Atomic unit: any failure, including a missed slippage guard,
// leaves the pools as they were.
type Funnel struct {
	*Quoter
	amm amm.AMM
	now func() time.Time
}

// Option configures a Funnel.
type Option func(*Funnel)

// WithClock replaces the clock used for deadline checks.
func WithClock(now func() time.Time) Option {
	return func(f *Funnel) {
		f.now = now
	}
}

// New returns a Funnel driving a. m may be nil.
func New(logger *slog.Logger, a amm.AMM, fees FeeSource, m *metrics.Metrics, opts ...Option) *Funnel {
	f := &Funnel{
		Quoter: NewQuoter(logger, a, fees, m),
		amm:    a,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DecomposeAndAddLiquidity swaps amountIn of base into pool's tokens, adds
// liquidity for recipient and returns what was minted and the dust left in
// each pool token. A foreign base first goes through the pair linking it to
// the pool. It fails with ErrSlippageExceeded when fewer than minShares are
// minted.
func (f *Funnel) DecomposeAndAddLiquidity(ctx context.Context, pool, base, recipient common.Address, amountIn, minShares *uint256.Int) (receipt LiquidityReceipt, err error) {
	defer f.observe(opDecompose, time.Now(), &err)

	err = f.amm.Atomic(ctx, func(ctx context.Context) error {
		r, err := f.amm.ReservesOf(ctx, pool)
		if err != nil {
			return err
		}
		if r.Has(base) {
			receipt, err = f.deposit(ctx, pool, base, recipient, amountIn, new(uint256.Int), minShares)
			return err
		}
		if amountIn.IsZero() {
			return solver.ErrZeroInput
		}

		hop, err := f.entryHop(ctx, r, base, amountIn, f.amm.Swap)
		if err != nil {
			return err
		}
		receipt, err = f.deposit(ctx, pool, hop.TokenOut, recipient, &hop.AmountOut, new(uint256.Int), minShares)
		if err != nil {
			return err
		}
		receipt.PreSwap = &hop
		return nil
	})
	if err != nil {
		return LiquidityReceipt{}, err
	}
	f.recordDust(opDecompose, receipt)
	return receipt, nil
}

// PartitionAndAddLiquidity deposits amountIn of base, one of pool's tokens,
// swapping the part the solver picks for the other token first.
func (f *Funnel) PartitionAndAddLiquidity(ctx context.Context, pool, base, recipient common.Address, amountIn, minShares *uint256.Int) (receipt LiquidityReceipt, err error) {
	defer f.observe(opPartition, time.Now(), &err)

	err = f.amm.Atomic(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = f.deposit(ctx, pool, base, recipient, amountIn, new(uint256.Int), minShares)
		return err
	})
	if err != nil {
		return LiquidityReceipt{}, err
	}
	f.recordDust(opPartition, receipt)
	return receipt, nil
}

// RebalanceAndAddLiquidity deposits amountInBase of base and amountInFarm of
// the pool's other token, swapping from whichever side is in excess.
func (f *Funnel) RebalanceAndAddLiquidity(ctx context.Context, pool, base, recipient common.Address, amountInBase, amountInFarm, minShares *uint256.Int) (receipt LiquidityReceipt, err error) {
	defer f.observe(opRebalance, time.Now(), &err)

	err = f.amm.Atomic(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = f.deposit(ctx, pool, base, recipient, amountInBase, amountInFarm, minShares)
		return err
	})
	if err != nil {
		return LiquidityReceipt{}, err
	}
	f.recordDust(opRebalance, receipt)
	return receipt, nil
}

// RemoveLiquidityAndSwapToDstToken burns owner's shares of pool and routes
// the redeemed tokens along path1 then path2 to their common last token.
// A zero deadline never expires.
func (f *Funnel) RemoveLiquidityAndSwapToDstToken(ctx context.Context, pool common.Address, shares *uint256.Int, owner common.Address, path1, path2 []common.Address, minOut *uint256.Int, deadline time.Time) (plan RemovalPlan, err error) {
	defer f.observe(opRemoval, time.Now(), &err)

	if !deadline.IsZero() && f.now().After(deadline) {
		return RemovalPlan{}, ErrDeadlineExpired
	}

	err = f.amm.Atomic(ctx, func(ctx context.Context) error {
		r, err := f.amm.ReservesOf(ctx, pool)
		if err != nil {
			return err
		}
		dst, err := validatePaths(r, path1, path2)
		if err != nil {
			return err
		}

		amount0, amount1, err := f.amm.RemoveLiquidity(ctx, pool, shares, owner)
		if err != nil {
			return err
		}
		plan = RemovalPlan{
			Pool:     pool,
			Token0:   r.Token0,
			Token1:   r.Token1,
			Amount0:  amount0,
			Amount1:  amount1,
			DstToken: dst,
		}
		plan.Shares.Set(shares)
		plan.MinOut.Set(minOut)

		if err := f.route(ctx, &plan, path1, path2, f.amm.Swap); err != nil {
			return err
		}
		if plan.AmountOut.Lt(minOut) {
			return fmt.Errorf("%w: got %s, want at least %s", ErrSlippageExceeded, plan.AmountOut.Dec(), minOut.Dec())
		}
		return nil
	})
	if err != nil {
		return RemovalPlan{}, err
	}

	f.logger.Info("liquidity removed",
		slog.String("pool", pool.Hex()),
		slog.String("owner", owner.Hex()),
		slog.String("dst", plan.DstToken.Hex()),
		slog.String("amount_out", plan.AmountOut.Dec()),
	)
	return plan, nil
}

// deposit re-plans against the pool's current reserves, performs the
// planned swap and adds the residuals as liquidity. It must run inside
// Atomic.
func (f *Funnel) deposit(ctx context.Context, pool, base, recipient common.Address, amountA, amountB, minShares *uint256.Int) (LiquidityReceipt, error) {
	r, err := f.amm.ReservesOf(ctx, pool)
	if err != nil {
		return LiquidityReceipt{}, err
	}
	plan, err := f.planDeposit(ctx, r, base, amountA, amountB)
	if err != nil {
		return LiquidityReceipt{}, err
	}

	receipt := LiquidityReceipt{
		Pool:      pool,
		Recipient: recipient,
		TokenA:    plan.TokenA,
		TokenB:    plan.TokenB,
	}
	residualA, residualB := plan.Plan.ResidualA, plan.Plan.ResidualB

	tokenIn, tokenOut := plan.TokenA, plan.TokenB
	if plan.Plan.Direction == solver.SwapBToA {
		tokenIn, tokenOut = plan.TokenB, plan.TokenA
	}
	if plan.Plan.Direction != solver.NoSwap {
		out, err := f.amm.Swap(ctx, pool, &plan.Plan.AmountIn, tokenIn)
		if err != nil {
			return LiquidityReceipt{}, fmt.Errorf("swap %s in %s: %w", tokenIn.Hex(), pool.Hex(), err)
		}
		// settle with what the pair paid, which equals the plan unless the
		// registry fee disagrees with the pair
		if plan.Plan.Direction == solver.SwapAToB {
			residualB.Add(amountB, &out)
		} else {
			residualA.Add(amountA, &out)
		}
		receipt.Swap = &Hop{
			Pool:      pool,
			TokenIn:   tokenIn,
			TokenOut:  tokenOut,
			AmountIn:  plan.Plan.AmountIn,
			AmountOut: out,
		}
	}

	amount0, amount1 := &residualA, &residualB
	if plan.TokenA != r.Token0 {
		amount0, amount1 = &residualB, &residualA
	}
	shares, used0, used1, err := f.amm.AddLiquidity(ctx, pool, amount0, amount1, recipient)
	if err != nil {
		return LiquidityReceipt{}, fmt.Errorf("add liquidity to %s: %w", pool.Hex(), err)
	}
	if shares.Lt(minShares) {
		return LiquidityReceipt{}, fmt.Errorf("%w: minted %s shares, want at least %s", ErrSlippageExceeded, shares.Dec(), minShares.Dec())
	}

	usedA, usedB := used0, used1
	if plan.TokenA != r.Token0 {
		usedA, usedB = used1, used0
	}
	receipt.Shares = shares
	receipt.UsedA = usedA
	receipt.UsedB = usedB
	receipt.DustA.Sub(&residualA, &usedA)
	receipt.DustB.Sub(&residualB, &usedB)

	f.logger.Info("liquidity added",
		slog.String("pool", pool.Hex()),
		slog.String("recipient", recipient.Hex()),
		slog.String("direction", plan.Plan.Direction.String()),
		slog.String("shares", shares.Dec()),
	)
	return receipt, nil
}

func (f *Funnel) recordDust(op string, receipt LiquidityReceipt) {
	f.metrics.Dust(op, &receipt.DustA, &receipt.DustB)
}
