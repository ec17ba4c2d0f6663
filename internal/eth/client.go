// Package eth reads Uniswap V2 pair state from an Ethereum node.
package eth

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

const dialTimeout = 15 * time.Second

func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	return ethclient.DialContext(ctx, url)
}
