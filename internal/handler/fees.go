package handler

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v3"

	"github.com/nulln0ne/uniswap-funnel/internal/feeregistry"
)

type FeeHandler struct {
	BaseHandler
	registry *feeregistry.Registry
}

func NewFeeHandler(logger *slog.Logger, registry *feeregistry.Registry) *FeeHandler {
	return &FeeHandler{
		BaseHandler: BaseHandler{
			logger: logger,
		},
		registry: registry,
	}
}

type RegistryResponse struct {
	Owner string `json:"owner"`
	Nonce uint64 `json:"nonce"`
}

type FeeResponse struct {
	Factory string `json:"factory"`
	FeeBps  uint16 `json:"fee_bps"`
}

// SetFeeRequest carries an owner signature over SetFeeMessage.
type SetFeeRequest struct {
	FeeBps    uint16 `json:"fee_bps"`
	Signature string `json:"signature"`
}

// SetFeeMessage is the text the owner signs, EIP-191 style, to set feeBps
// for factory at the registry's current nonce.
func SetFeeMessage(factory common.Address, feeBps uint16, nonce uint64) string {
	return fmt.Sprintf("setFee:%s:%d:%d", factory.Hex(), feeBps, nonce)
}

// Registry serves GET /fees with the owner and the nonce the next update
// must sign.
func (h *FeeHandler) Registry() fiber.Handler {
	return func(c fiber.Ctx) error {
		nonce, err := h.registry.Nonce()
		if err != nil {
			return mapError(h.logger, err)
		}
		return c.JSON(RegistryResponse{Owner: h.registry.Owner().Hex(), Nonce: nonce})
	}
}

// Get serves GET /fees/:factory.
func (h *FeeHandler) Get() fiber.Handler {
	return func(c fiber.Ctx) error {
		factory, err := parseAddress("factory", c.Params("factory"))
		if err != nil {
			return err
		}
		fee, err := h.registry.Fee(factory)
		if err != nil {
			return mapError(h.logger, err)
		}
		return c.JSON(FeeResponse{Factory: factory.Hex(), FeeBps: fee})
	}
}

// Set serves PUT /fees/:factory. The signer recovered from the signature is
// the caller the registry checks against its owner.
func (h *FeeHandler) Set() fiber.Handler {
	return func(c fiber.Ctx) error {
		factory, err := parseAddress("factory", c.Params("factory"))
		if err != nil {
			return err
		}
		var req SetFeeRequest
		if err := c.Bind().JSON(&req); err != nil {
			h.logger.Debug("failed to bind body", "err", err)
			return ErrInvalidBody
		}

		nonce, err := h.registry.Nonce()
		if err != nil {
			return mapError(h.logger, err)
		}
		signer, err := recoverSigner(SetFeeMessage(factory, req.FeeBps, nonce), req.Signature)
		if err != nil {
			h.logger.Debug("signature recovery failed", "err", err)
			return ErrInvalidSignature
		}

		if err := h.registry.SetFeeAt(signer, factory, req.FeeBps, nonce); err != nil {
			return mapError(h.logger, err)
		}
		h.logger.Info("fee updated",
			slog.String("factory", factory.Hex()),
			slog.Int("fee_bps", int(req.FeeBps)),
			slog.Uint64("nonce", nonce),
		)
		return c.JSON(FeeResponse{Factory: factory.Hex(), FeeBps: req.FeeBps})
	}
}

// recoverSigner returns the address whose key produced sig over the
// EIP-191 personal message msg. Wallet-style V values of 27/28 are accepted.
func recoverSigner(msg, sig string) (common.Address, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return common.Address{}, err
	}
	if len(raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(raw))
	}
	if raw[crypto.RecoveryIDOffset] >= 27 {
		raw[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(msg)), raw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
