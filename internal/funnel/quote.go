package funnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/nulln0ne/uniswap-funnel/internal/amm"
	"github.com/nulln0ne/uniswap-funnel/internal/metrics"
	"github.com/nulln0ne/uniswap-funnel/pkg/fixedpoint"
	"github.com/nulln0ne/uniswap-funnel/pkg/solver"
	"github.com/nulln0ne/uniswap-funnel/pkg/uniswapv2"
)

const (
	opDecompose = "decompose"
	opPartition = "partition"
	opRebalance = "rebalance"
	opRemoval   = "removal"
)

// Quoter answers the quote side of every funnel operation. It only reads
// pool state.
type Quoter struct {
	BaseService
	reader  amm.Reader
	fees    FeeSource
	metrics *metrics.Metrics
}

// NewQuoter returns a Quoter reading pools through reader. m may be nil.
func NewQuoter(logger *slog.Logger, reader amm.Reader, fees FeeSource, m *metrics.Metrics) *Quoter {
	return &Quoter{
		BaseService: BaseService{logger: logger},
		reader:      reader,
		fees:        fees,
		metrics:     m,
	}
}

// QuoteDecompose quotes depositing amountIn of base into pool. When base is
// not one of the pool's tokens it is first swapped into one of them through
// the pair connecting the two.
func (q *Quoter) QuoteDecompose(ctx context.Context, pool, base common.Address, amountIn *uint256.Int) (plan SwapPlan, err error) {
	defer q.observe("quote_"+opDecompose, time.Now(), &err)

	r, err := q.reader.ReservesOf(ctx, pool)
	if err != nil {
		return SwapPlan{}, err
	}
	if r.Has(base) {
		return q.planDeposit(ctx, r, base, amountIn, new(uint256.Int))
	}
	if amountIn.IsZero() {
		return SwapPlan{}, solver.ErrZeroInput
	}

	sim := newSimulation(q.reader, q.fees)
	hop, err := q.entryHop(ctx, r, base, amountIn, sim.swap)
	if err != nil {
		return SwapPlan{}, err
	}
	plan, err = q.planDeposit(ctx, r, hop.TokenOut, &hop.AmountOut, new(uint256.Int))
	if err != nil {
		return SwapPlan{}, err
	}
	plan.PreSwap = &hop
	return plan, nil
}

// QuotePartition quotes depositing amountIn of base, one of pool's tokens.
func (q *Quoter) QuotePartition(ctx context.Context, pool, base common.Address, amountIn *uint256.Int) (plan SwapPlan, err error) {
	defer q.observe("quote_"+opPartition, time.Now(), &err)

	r, err := q.reader.ReservesOf(ctx, pool)
	if err != nil {
		return SwapPlan{}, err
	}
	return q.planDeposit(ctx, r, base, amountIn, new(uint256.Int))
}

// QuoteRebalance quotes depositing amountBase of base together with
// amountFarm of the pool's other token.
func (q *Quoter) QuoteRebalance(ctx context.Context, pool, base common.Address, amountBase, amountFarm *uint256.Int) (plan SwapPlan, err error) {
	defer q.observe("quote_"+opRebalance, time.Now(), &err)

	r, err := q.reader.ReservesOf(ctx, pool)
	if err != nil {
		return SwapPlan{}, err
	}
	return q.planDeposit(ctx, r, base, amountBase, amountFarm)
}

// QuoteRemoval quotes burning shares of pool and routing the two redeemed
// tokens along path1 and path2 to their common last token. Hops are
// simulated in execution order, so paths that cross the same pair (or the
// burned pool itself) quote what execution will pay.
func (q *Quoter) QuoteRemoval(ctx context.Context, pool common.Address, shares *uint256.Int, path1, path2 []common.Address) (plan RemovalPlan, err error) {
	defer q.observe("quote_"+opRemoval, time.Now(), &err)

	r, err := q.reader.ReservesOf(ctx, pool)
	if err != nil {
		return RemovalPlan{}, err
	}
	dst, err := validatePaths(r, path1, path2)
	if err != nil {
		return RemovalPlan{}, err
	}

	sim := newSimulation(q.reader, q.fees)
	amount0, amount1, err := sim.burn(ctx, pool, shares)
	if err != nil {
		return RemovalPlan{}, err
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

	if err := q.route(ctx, &plan, path1, path2, sim.swap); err != nil {
		return RemovalPlan{}, err
	}
	q.logger.Debug("removal quoted",
		slog.String("pool", pool.Hex()),
		slog.String("dst", dst.Hex()),
		slog.String("amount_out", plan.AmountOut.Dec()),
	)
	return plan, nil
}

// planDeposit solves the swap for depositing amountA of base and amountB of
// the other token into r, and predicts the mint that follows it.
func (q *Quoter) planDeposit(ctx context.Context, r amm.Reserves, base common.Address, amountA, amountB *uint256.Int) (SwapPlan, error) {
	if !r.Has(base) {
		return SwapPlan{}, fmt.Errorf("%w: %s not in %s", ErrPairMismatch, base.Hex(), r.Pool.Hex())
	}
	fee, err := q.fees.Fee(r.Factory)
	if err != nil {
		return SwapPlan{}, fmt.Errorf("fee of factory %s: %w", r.Factory.Hex(), err)
	}
	reserveA, reserveB, err := r.Oriented(base)
	if err != nil {
		return SwapPlan{}, err
	}

	p, err := solver.Rebalance(amountA, amountB, solver.Snapshot{
		ReserveA: reserveA,
		ReserveB: reserveB,
		FeeBps:   fee,
	})
	if err != nil {
		return SwapPlan{}, err
	}

	usedA, usedB, err := uniswapv2.OptimalDeposit(&p.ResidualA, &p.ResidualB, &p.ReserveA, &p.ReserveB)
	if err != nil {
		return SwapPlan{}, err
	}
	shares, err := uniswapv2.MintedShares(usedA, usedB, &p.ReserveA, &p.ReserveB, &r.TotalShares)
	if err != nil {
		return SwapPlan{}, err
	}

	plan := SwapPlan{
		Pool:    r.Pool,
		Factory: r.Factory,
		TokenA:  base,
		TokenB:  r.Other(base),
		FeeBps:  fee,
		Plan:    p,
	}
	plan.UsedA.Set(usedA)
	plan.UsedB.Set(usedB)
	plan.DustA.Sub(&p.ResidualA, usedA)
	plan.DustB.Sub(&p.ResidualB, usedB)
	plan.Shares.Set(shares)

	q.logger.Debug("deposit planned",
		slog.String("pool", r.Pool.Hex()),
		slog.String("direction", p.Direction.String()),
		slog.String("swap_in", p.AmountIn.Dec()),
		slog.String("shares", plan.Shares.Dec()),
	)
	return plan, nil
}

// entryHop resolves the pair that turns a foreign token into one of r's
// tokens, trying Token0 first, and runs the swap through swap. A pair with
// no liquidity is skipped like a missing one.
func (q *Quoter) entryHop(ctx context.Context, r amm.Reserves, base common.Address, amountIn *uint256.Int, swap swapFunc) (Hop, error) {
	for _, mid := range [2]common.Address{r.Token0, r.Token1} {
		hopPool, err := q.reader.PairFor(ctx, base, mid)
		if errors.Is(err, amm.ErrPairNotFound) {
			continue
		}
		if err != nil {
			return Hop{}, err
		}
		out, err := swap(ctx, hopPool, amountIn, base)
		if errors.Is(err, uniswapv2.ErrInsufficientLiquidity) {
			continue
		}
		if err != nil {
			return Hop{}, fmt.Errorf("swap %s via %s: %w", base.Hex(), hopPool.Hex(), err)
		}
		hop := Hop{Pool: hopPool, TokenIn: base, TokenOut: mid, AmountOut: out}
		hop.AmountIn.Set(amountIn)
		return hop, nil
	}
	return Hop{}, fmt.Errorf("%w: %s to %s", ErrNoRoute, base.Hex(), r.Pool.Hex())
}

// route walks path1 then path2, filling the hops and the summed output.
func (q *Quoter) route(ctx context.Context, plan *RemovalPlan, path1, path2 []common.Address, swap swapFunc) error {
	first, second := plan.Amount0, plan.Amount1
	if path1[0] == plan.Token1 {
		first, second = plan.Amount1, plan.Amount0
	}

	hops1, out1, err := walk(ctx, q.reader, swap, path1, first)
	if err != nil {
		return err
	}
	hops2, out2, err := walk(ctx, q.reader, swap, path2, second)
	if err != nil {
		return err
	}
	plan.Path1, plan.Path2 = hops1, hops2
	if _, overflow := plan.AmountOut.AddOverflow(&out1, &out2); overflow {
		return fixedpoint.ErrOverflow
	}
	return nil
}

func (q *Quoter) observe(op string, start time.Time, err *error) {
	q.metrics.Observe(op, start, *err)
}
