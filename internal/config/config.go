package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	Addr        string
	RPCEndpoint string
	LogLevel    string
	LogFormat   string

	// Factory is the Uniswap V2 factory pairs are resolved through.
	Factory common.Address
	// FeeOwner is the only address allowed to change registered fees.
	FeeOwner common.Address
	// FeeStorePath is a LevelDB directory for the fee registry. Empty keeps
	// the registry in memory.
	FeeStorePath string
	// FeeDefaults are registered by the owner at start-up.
	FeeDefaults map[common.Address]uint16
}

func FromEnv() (*Config, error) {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":1337"
	}

	rpcURL := os.Getenv("ETH_RPC_URL")
	if rpcURL == "" {
		return nil, ErrMissingRPCEndpoint
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "text"
	}

	factory, err := requireAddress("FACTORY_ADDRESS")
	if err != nil {
		return nil, err
	}
	owner, err := requireAddress("FEE_OWNER")
	if err != nil {
		return nil, err
	}

	defaults, err := ParseFeeDefaults(os.Getenv("FEE_DEFAULTS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:         addr,
		RPCEndpoint:  rpcURL,
		LogLevel:     logLevel,
		LogFormat:    logFormat,
		Factory:      factory,
		FeeOwner:     owner,
		FeeStorePath: os.Getenv("FEE_STORE_PATH"),
		FeeDefaults:  defaults,
	}

	return cfg, nil
}

// ParseFeeDefaults parses "factory=bps,factory=bps". Blank input yields an
// empty map.
func ParseFeeDefaults(s string) (map[common.Address]uint16, error) {
	out := make(map[common.Address]uint16)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		addr, bps, ok := strings.Cut(entry, "=")
		addr, bps = strings.TrimSpace(addr), strings.TrimSpace(bps)
		if !ok || !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFeeDefaults, entry)
		}
		fee, err := strconv.ParseUint(bps, 10, 16)
		if err != nil || fee >= 10_000 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFeeDefaults, entry)
		}
		out[common.HexToAddress(addr)] = uint16(fee)
	}
	return out, nil
}

func requireAddress(name string) (common.Address, error) {
	v := os.Getenv(name)
	if v == "" {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMissingVariable, name)
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%w: %s=%q", ErrInvalidAddress, name, v)
	}
	return common.HexToAddress(v), nil
}
