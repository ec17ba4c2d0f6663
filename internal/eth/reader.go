package eth

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"github.com/nulln0ne/uniswap-funnel/internal/amm"
)

const factoryABI = `[{"constant":true,"inputs":[{"name":"","type":"address"},{"name":"","type":"address"}],"name":"getPair","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

// UniswapV2Pair storage layout:
//
//	slot 0  totalSupply
//	slot 5  factory
//	slot 6  token0
//	slot 7  token1
//	slot 8  reserve0 (uint112) | reserve1 (uint112) | blockTimestampLast (uint32)
const (
	slotTotalSupply = 0
	slotFactory     = 5
	slotToken0      = 6
	slotToken1      = 7
	slotReserves    = 8
)

// Reader implements amm.Reader over a node by reading pair storage directly
// and resolving pairs through the factory's getPair.
type Reader struct {
	logger  *slog.Logger
	client  *ethclient.Client
	factory common.Address
	abi     abi.ABI
}

var _ amm.Reader = (*Reader)(nil)

// NewReader returns a Reader that resolves pairs through factory.
func NewReader(logger *slog.Logger, client *ethclient.Client, factory common.Address) (*Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	return &Reader{
		logger:  logger,
		client:  client,
		factory: factory,
		abi:     parsed,
	}, nil
}

// ReservesOf reads the pair's factory, tokens, reserves and share supply at
// a single block.
func (r *Reader) ReservesOf(ctx context.Context, pool common.Address) (amm.Reserves, error) {
	blockNum, err := r.blockNumber(ctx)
	if err != nil {
		return amm.Reserves{}, err
	}

	var words [5][]byte
	for i, slot := range [5]uint64{slotFactory, slotToken0, slotToken1, slotReserves, slotTotalSupply} {
		if words[i], err = r.readSlot(ctx, pool, blockNum, slot); err != nil {
			return amm.Reserves{}, err
		}
	}

	res := amm.Reserves{
		Pool:    pool,
		Factory: common.BytesToAddress(words[0]),
		Token0:  common.BytesToAddress(words[1]),
		Token1:  common.BytesToAddress(words[2]),
	}
	if res.Token0 == (common.Address{}) || res.Token1 == (common.Address{}) {
		return amm.Reserves{}, fmt.Errorf("%w: %s", amm.ErrUnknownPool, pool.Hex())
	}
	res.Reserve0, res.Reserve1 = parseReserves(words[3])
	res.TotalShares.SetBytes(words[4])

	r.logger.Debug("reserves read",
		slog.String("pool", pool.Hex()),
		slog.Uint64("block", blockNum.Uint64()),
		slog.String("reserve0", res.Reserve0.Dec()),
		slog.String("reserve1", res.Reserve1.Dec()),
		slog.String("total_shares", res.TotalShares.Dec()),
	)
	return res, nil
}

// TotalShares reads the pair's LP totalSupply. Callers that combine it with
// reserves should take Reserves.TotalShares instead, which is read at the
// same block.
func (r *Reader) TotalShares(ctx context.Context, pool common.Address) (uint256.Int, error) {
	blockNum, err := r.blockNumber(ctx)
	if err != nil {
		return uint256.Int{}, err
	}
	b, err := r.readSlot(ctx, pool, blockNum, slotTotalSupply)
	if err != nil {
		return uint256.Int{}, err
	}
	var ts uint256.Int
	ts.SetBytes(b)
	return ts, nil
}

// PairFor calls factory.getPair. The factory returns the zero address for
// a pair that was never created.
func (r *Reader) PairFor(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	data, err := r.abi.Pack("getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getPair: %w", err)
	}
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("getPair(%s, %s): %w", tokenA.Hex(), tokenB.Hex(), err)
	}
	values, err := r.abi.Unpack("getPair", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack getPair: %w", err)
	}
	pair, ok := values[0].(common.Address)
	if !ok || pair == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s/%s", amm.ErrPairNotFound, tokenA.Hex(), tokenB.Hex())
	}
	return pair, nil
}

func (r *Reader) blockNumber(ctx context.Context) (*big.Int, error) {
	bn, err := r.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	return new(big.Int).SetUint64(bn), nil
}

// readSlot reads one storage word at blockNum.
func (r *Reader) readSlot(ctx context.Context, pool common.Address, blockNum *big.Int, slot uint64) ([]byte, error) {
	key := common.BigToHash(new(big.Int).SetUint64(slot))
	b, err := r.client.StorageAt(ctx, pool, key, blockNum)
	if err != nil {
		return nil, fmt.Errorf("storageAt slot %d (pool %s, block %v): %w", slot, pool.Hex(), blockNum, err)
	}
	return b, nil
}

var mask112 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 112), 1)

// parseReserves unpacks the two uint112 reserves from the big-endian
// storage word [ timestamp(32) | reserve1(112) | reserve0(112) ].
func parseReserves(b []byte) (reserve0, reserve1 uint256.Int) {
	var v uint256.Int
	v.SetBytes(b)
	reserve0.And(&v, mask112)
	reserve1.Rsh(&v, 112)
	reserve1.And(&reserve1, mask112)
	return reserve0, reserve1
}
