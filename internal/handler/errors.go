package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/nulln0ne/uniswap-funnel/internal/amm"
	"github.com/nulln0ne/uniswap-funnel/internal/feeregistry"
	"github.com/nulln0ne/uniswap-funnel/internal/funnel"
	"github.com/nulln0ne/uniswap-funnel/pkg/fixedpoint"
	"github.com/nulln0ne/uniswap-funnel/pkg/solver"
	"github.com/nulln0ne/uniswap-funnel/pkg/uniswapv2"
)

// ErrInvalidQueryParameters indicates that the request query string could not
// be parsed into the expected structure.
var ErrInvalidQueryParameters = fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")

// ErrInvalidBody indicates that the request body is not the expected JSON.
var ErrInvalidBody = fiber.NewError(fiber.StatusBadRequest, "invalid request body")

// ErrAmountRequired is returned when an amount parameter is missing.
var ErrAmountRequired = fiber.NewError(fiber.StatusBadRequest, "amount is required")

// ErrInvalidAmountFormat is returned when an amount cannot be parsed as a
// base-10 unsigned integer.
var ErrInvalidAmountFormat = fiber.NewError(fiber.StatusBadRequest, "invalid amount format")

// ErrAmountNonPositive is returned when an amount that must be positive is zero.
var ErrAmountNonPositive = fiber.NewError(fiber.StatusBadRequest, "amount must be greater than zero")

// ErrInvalidSignature is returned when a fee update signature is malformed
// or no signer can be recovered from it.
var ErrInvalidSignature = fiber.NewError(fiber.StatusBadRequest, "invalid signature")

// ErrLiquidityUnprocessable is returned when a pool cannot serve the request:
// empty reserves, a swap that pays nothing, or a mint or burn of zero shares.
var ErrLiquidityUnprocessable = fiber.NewError(fiber.StatusUnprocessableEntity, "pool has insufficient reserves")

// ErrOverflowUnprocessable is returned when the amounts involved do not fit
// in 256 bits.
var ErrOverflowUnprocessable = fiber.NewError(fiber.StatusUnprocessableEntity, "amounts overflow 256 bits")

// ErrNotOwnerForbidden is returned when a fee update is signed by anyone but
// the registry owner.
var ErrNotOwnerForbidden = fiber.NewError(fiber.StatusForbidden, "signer is not the registry owner")

// ErrQuoteFailedInternal signals a generic server-side failure.
var ErrQuoteFailedInternal = fiber.NewError(fiber.StatusInternalServerError, "quote failed")

// NewInvalidAmount wraps an amount parsing error for field into a 400.
func NewInvalidAmount(field string, err error) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+": "+err.Error())
}

// NewAddressRequired returns a 400 Bad Request for a missing address field.
func NewAddressRequired(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, field+" address is required")
}

// NewInvalidAddress returns a 400 Bad Request for an invalid address format.
func NewInvalidAddress(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+" address")
}

// mapError turns a domain error into the HTTP error returned to the client.
// Anything unrecognised is logged and reported as a 500.
func mapError(logger *slog.Logger, err error) error {
	switch {
	case errors.Is(err, funnel.ErrPairMismatch),
		errors.Is(err, funnel.ErrInvalidPath),
		errors.Is(err, funnel.ErrNoRoute),
		errors.Is(err, solver.ErrZeroInput),
		errors.Is(err, uniswapv2.ErrInsufficientInput),
		errors.Is(err, uniswapv2.ErrInsufficientAmount),
		errors.Is(err, feeregistry.ErrInvalidRate):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, amm.ErrUnknownPool),
		errors.Is(err, amm.ErrPairNotFound),
		errors.Is(err, feeregistry.ErrUnknownFactory):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, feeregistry.ErrUnauthorized):
		return ErrNotOwnerForbidden
	case errors.Is(err, feeregistry.ErrStaleNonce):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, uniswapv2.ErrInsufficientLiquidity),
		errors.Is(err, uniswapv2.ErrInsufficientOutput),
		errors.Is(err, uniswapv2.ErrInsufficientLiquidityMinted),
		errors.Is(err, uniswapv2.ErrInsufficientLiquidityBurned):
		return ErrLiquidityUnprocessable
	case errors.Is(err, fixedpoint.ErrOverflow):
		return ErrOverflowUnprocessable
	default:
		logger.Error("request failed", "err", err)
		return ErrQuoteFailedInternal
	}
}
