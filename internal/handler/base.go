// Package handler defines HTTP request handlers and related utilities.
package handler

import (
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BaseHandler provides common dependencies for HTTP handlers.
type BaseHandler struct {
	logger *slog.Logger
}

func parseAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, NewAddressRequired(field)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, NewInvalidAddress(field)
	}
	return common.HexToAddress(s), nil
}

// parseAmount parses a base-10 amount. Zero is rejected unless allowZero.
func parseAmount(field, s string, allowZero bool) (*uint256.Int, error) {
	if s == "" {
		return nil, ErrAmountRequired
	}
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, NewInvalidAmount(field, err)
	}
	if amount.IsZero() && !allowZero {
		return nil, ErrAmountNonPositive
	}
	return amount, nil
}

// parsePath parses a comma-separated token list.
func parsePath(field, s string) ([]common.Address, error) {
	if s == "" {
		return nil, NewAddressRequired(field)
	}
	parts := strings.Split(s, ",")
	path := make([]common.Address, 0, len(parts))
	for _, p := range parts {
		addr, err := parseAddress(field, strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		path = append(path, addr)
	}
	return path, nil
}
