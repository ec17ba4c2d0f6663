package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"

	"github.com/nulln0ne/uniswap-funnel/internal/funnel"
)

const quoteTimeout = 10 * time.Second

type QuoteHandler struct {
	BaseHandler
	quoter *funnel.Quoter
}

func NewQuoteHandler(logger *slog.Logger, quoter *funnel.Quoter) *QuoteHandler {
	return &QuoteHandler{
		BaseHandler: BaseHandler{
			logger: logger,
		},
		quoter: quoter,
	}
}

type DepositQuoteRequest struct {
	Pool       string `query:"pool"`
	Base       string `query:"base"`
	Amount     string `query:"amount"`
	AmountBase string `query:"amount_base"`
	AmountFarm string `query:"amount_farm"`
}

type RemovalQuoteRequest struct {
	Pool   string `query:"pool"`
	Shares string `query:"shares"`
	Path1  string `query:"path1"`
	Path2  string `query:"path2"`
}

type HopResponse struct {
	Pool      string `json:"pool"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}

type SwapPlanResponse struct {
	Pool      string       `json:"pool"`
	TokenA    string       `json:"token_a"`
	TokenB    string       `json:"token_b"`
	FeeBps    uint16       `json:"fee_bps"`
	PreSwap   *HopResponse `json:"pre_swap,omitempty"`
	Direction string       `json:"direction"`
	SwapIn    string       `json:"swap_in"`
	SwapOut   string       `json:"swap_out"`
	UsedA     string       `json:"used_a"`
	UsedB     string       `json:"used_b"`
	DustA     string       `json:"dust_a"`
	DustB     string       `json:"dust_b"`
	Shares    string       `json:"shares"`
}

type RemovalPlanResponse struct {
	Pool      string        `json:"pool"`
	Shares    string        `json:"shares"`
	Amount0   string        `json:"amount0"`
	Amount1   string        `json:"amount1"`
	Path1     []HopResponse `json:"path1"`
	Path2     []HopResponse `json:"path2"`
	DstToken  string        `json:"dst_token"`
	AmountOut string        `json:"amount_out"`
}

// Decompose serves GET /quote/decompose?pool&base&amount.
func (h *QuoteHandler) Decompose() fiber.Handler {
	return func(c fiber.Ctx) error {
		req, pool, base, err := h.parseDeposit(c)
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount, false)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), quoteTimeout)
		defer cancel()
		plan, err := h.quoter.QuoteDecompose(ctx, pool, base, amount)
		if err != nil {
			return mapError(h.logger, err)
		}
		return c.JSON(newSwapPlanResponse(plan))
	}
}

// Partition serves GET /quote/partition?pool&base&amount.
func (h *QuoteHandler) Partition() fiber.Handler {
	return func(c fiber.Ctx) error {
		req, pool, base, err := h.parseDeposit(c)
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount, false)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), quoteTimeout)
		defer cancel()
		plan, err := h.quoter.QuotePartition(ctx, pool, base, amount)
		if err != nil {
			return mapError(h.logger, err)
		}
		return c.JSON(newSwapPlanResponse(plan))
	}
}

// Rebalance serves GET /quote/rebalance?pool&base&amount_base&amount_farm.
// Either amount may be zero, not both.
func (h *QuoteHandler) Rebalance() fiber.Handler {
	return func(c fiber.Ctx) error {
		req, pool, base, err := h.parseDeposit(c)
		if err != nil {
			return err
		}
		amountBase, err := parseAmount("amount_base", req.AmountBase, true)
		if err != nil {
			return err
		}
		amountFarm, err := parseAmount("amount_farm", req.AmountFarm, true)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), quoteTimeout)
		defer cancel()
		plan, err := h.quoter.QuoteRebalance(ctx, pool, base, amountBase, amountFarm)
		if err != nil {
			return mapError(h.logger, err)
		}
		return c.JSON(newSwapPlanResponse(plan))
	}
}

// Removal serves GET /quote/removal?pool&shares&path1&path2 with paths as
// comma-separated token addresses.
func (h *QuoteHandler) Removal() fiber.Handler {
	return func(c fiber.Ctx) error {
		var req RemovalQuoteRequest
		if err := c.Bind().Query(&req); err != nil {
			h.logger.Debug("failed to bind query parameters", "err", err)
			return ErrInvalidQueryParameters
		}
		pool, err := parseAddress("pool", req.Pool)
		if err != nil {
			return err
		}
		shares, err := parseAmount("shares", req.Shares, false)
		if err != nil {
			return err
		}
		path1, err := parsePath("path1", req.Path1)
		if err != nil {
			return err
		}
		path2, err := parsePath("path2", req.Path2)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), quoteTimeout)
		defer cancel()
		plan, err := h.quoter.QuoteRemoval(ctx, pool, shares, path1, path2)
		if err != nil {
			return mapError(h.logger, err)
		}
		return c.JSON(newRemovalPlanResponse(plan))
	}
}

func (h *QuoteHandler) parseDeposit(c fiber.Ctx) (*DepositQuoteRequest, common.Address, common.Address, error) {
	var req DepositQuoteRequest
	if err := c.Bind().Query(&req); err != nil {
		h.logger.Debug("failed to bind query parameters", "err", err)
		return nil, common.Address{}, common.Address{}, ErrInvalidQueryParameters
	}
	pool, err := parseAddress("pool", req.Pool)
	if err != nil {
		return nil, common.Address{}, common.Address{}, err
	}
	base, err := parseAddress("base", req.Base)
	if err != nil {
		return nil, common.Address{}, common.Address{}, err
	}
	return &req, pool, base, nil
}

func newHopResponse(hop funnel.Hop) HopResponse {
	return HopResponse{
		Pool:      hop.Pool.Hex(),
		TokenIn:   hop.TokenIn.Hex(),
		TokenOut:  hop.TokenOut.Hex(),
		AmountIn:  hop.AmountIn.Dec(),
		AmountOut: hop.AmountOut.Dec(),
	}
}

func newHopResponses(hops []funnel.Hop) []HopResponse {
	out := make([]HopResponse, 0, len(hops))
	for _, hop := range hops {
		out = append(out, newHopResponse(hop))
	}
	return out
}

func newSwapPlanResponse(plan funnel.SwapPlan) SwapPlanResponse {
	resp := SwapPlanResponse{
		Pool:      plan.Pool.Hex(),
		TokenA:    plan.TokenA.Hex(),
		TokenB:    plan.TokenB.Hex(),
		FeeBps:    plan.FeeBps,
		Direction: plan.Plan.Direction.String(),
		SwapIn:    plan.Plan.AmountIn.Dec(),
		SwapOut:   plan.Plan.AmountOut.Dec(),
		UsedA:     plan.UsedA.Dec(),
		UsedB:     plan.UsedB.Dec(),
		DustA:     plan.DustA.Dec(),
		DustB:     plan.DustB.Dec(),
		Shares:    plan.Shares.Dec(),
	}
	if plan.PreSwap != nil {
		hop := newHopResponse(*plan.PreSwap)
		resp.PreSwap = &hop
	}
	return resp
}

func newRemovalPlanResponse(plan funnel.RemovalPlan) RemovalPlanResponse {
	return RemovalPlanResponse{
		Pool:      plan.Pool.Hex(),
		Shares:    plan.Shares.Dec(),
		Amount0:   plan.Amount0.Dec(),
		Amount1:   plan.Amount1.Dec(),
		Path1:     newHopResponses(plan.Path1),
		Path2:     newHopResponses(plan.Path2),
		DstToken:  plan.DstToken.Hex(),
		AmountOut: plan.AmountOut.Dec(),
	}
}
