// Package memory is an in-process Uniswap V2 factory/pair simulator that
// implements amm.AMM. Pricing, minting and burning go through the same
// pkg/uniswapv2 formulas the funnel quotes with, so it settles exactly like
// a deployed pair with the protocol fee switched off.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/nulln0ne/uniswap-funnel/internal/amm"
	"github.com/nulln0ne/uniswap-funnel/pkg/fixedpoint"
	"github.com/nulln0ne/uniswap-funnel/pkg/uniswapv2"
)

// pairInitCodeHash is keccak256 of the UniswapV2Pair creation code, used to
// derive pair addresses the same way UniswapV2Library.pairFor does.
var pairInitCodeHash = common.FromHex("96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")

var (
	ErrUnknownFactory  = errors.New("unknown factory")
	ErrIdenticalTokens = errors.New("identical tokens")
	ErrPairExists      = errors.New("pair exists")
)

type pair struct {
	factory     common.Address
	token0      common.Address
	token1      common.Address
	reserve0    uint256.Int
	reserve1    uint256.Int
	totalSupply uint256.Int
	balances    map[common.Address]uint256.Int
}

func (p *pair) clone() *pair {
	c := *p
	c.balances = make(map[common.Address]uint256.Int, len(p.balances))
	for k, v := range p.balances {
		c.balances[k] = v
	}
	return &c
}

type state struct {
	fees   map[common.Address]uint16
	pairs  map[common.Address]*pair
	lookup map[[2]common.Address]common.Address
}

func (s *state) clone() *state {
	c := &state{
		fees:   make(map[common.Address]uint16, len(s.fees)),
		pairs:  make(map[common.Address]*pair, len(s.pairs)),
		lookup: make(map[[2]common.Address]common.Address, len(s.lookup)),
	}
	for k, v := range s.fees {
		c.fees[k] = v
	}
	for k, v := range s.pairs {
		c.pairs[k] = v.clone()
	}
	for k, v := range s.lookup {
		c.lookup[k] = v
	}
	return c
}

// AMM is safe for concurrent use. Atomic units of work are serialized with
// respect to each other and to mutations made outside of one, so a rollback
// never discards another caller's swap or deposit.
type AMM struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *state
}

var _ amm.AMM = (*AMM)(nil)

// New returns an empty AMM with no factories.
func New() *AMM {
	return &AMM{st: &state{
		fees:   make(map[common.Address]uint16),
		pairs:  make(map[common.Address]*pair),
		lookup: make(map[[2]common.Address]common.Address),
	}}
}

// AddFactory registers a factory whose pairs charge feeBps on every swap.
func (m *AMM) AddFactory(factory common.Address, feeBps uint16) error {
	if feeBps >= uniswapv2.BasisPoints {
		return uniswapv2.ErrInvalidFee
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.fees[factory] = feeBps
	return nil
}

// CreatePair deploys an empty pair for tokenA/tokenB under factory.
func (m *AMM) CreatePair(factory, tokenA, tokenB common.Address) (common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, ErrIdenticalTokens
	}
	token0, token1 := sortTokens(tokenA, tokenB)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.fees[factory]; !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownFactory, factory.Hex())
	}
	addr := pairAddress(factory, token0, token1)
	if _, ok := m.st.pairs[addr]; ok {
		return common.Address{}, ErrPairExists
	}
	m.st.pairs[addr] = &pair{
		factory:  factory,
		token0:   token0,
		token1:   token1,
		balances: make(map[common.Address]uint256.Int),
	}
	if _, ok := m.st.lookup[[2]common.Address{token0, token1}]; !ok {
		m.st.lookup[[2]common.Address{token0, token1}] = addr
	}
	return addr, nil
}

// ShareBalance returns holder's pool shares in pool.
func (m *AMM) ShareBalance(pool, holder common.Address) uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.pairs[pool]
	if !ok {
		return uint256.Int{}
	}
	return p.balances[holder]
}

func (m *AMM) ReservesOf(_ context.Context, pool common.Address) (amm.Reserves, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.pair(pool)
	if err != nil {
		return amm.Reserves{}, err
	}
	return amm.Reserves{
		Pool:        pool,
		Factory:     p.factory,
		Token0:      p.token0,
		Token1:      p.token1,
		Reserve0:    p.reserve0,
		Reserve1:    p.reserve1,
		TotalShares: p.totalSupply,
	}, nil
}

func (m *AMM) TotalShares(_ context.Context, pool common.Address) (uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.pair(pool)
	if err != nil {
		return uint256.Int{}, err
	}
	return p.totalSupply, nil
}

func (m *AMM) PairFor(_ context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1 := sortTokens(tokenA, tokenB)
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, ok := m.st.lookup[[2]common.Address{token0, token1}]
	if !ok {
		return common.Address{}, amm.ErrPairNotFound
	}
	return addr, nil
}

func (m *AMM) Swap(ctx context.Context, pool common.Address, amountIn *uint256.Int, tokenIn common.Address) (uint256.Int, error) {
	defer m.enter(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.pair(pool)
	if err != nil {
		return uint256.Int{}, err
	}

	reserveIn, reserveOut := &p.reserve0, &p.reserve1
	switch tokenIn {
	case p.token0:
	case p.token1:
		reserveIn, reserveOut = &p.reserve1, &p.reserve0
	default:
		return uint256.Int{}, amm.ErrTokenNotInPool
	}

	out, err := uniswapv2.GetAmountOut(amountIn, reserveIn, reserveOut, m.st.fees[p.factory])
	if err != nil {
		return uint256.Int{}, err
	}
	if out.IsZero() {
		return uint256.Int{}, uniswapv2.ErrInsufficientOutput
	}
	newIn, err := fixedpoint.Add(reserveIn, amountIn)
	if err != nil {
		return uint256.Int{}, err
	}
	reserveIn.Set(newIn)
	reserveOut.Sub(reserveOut, out)
	return *out, nil
}

func (m *AMM) AddLiquidity(ctx context.Context, pool common.Address, amount0, amount1 *uint256.Int, recipient common.Address) (shares, used0, used1 uint256.Int, err error) {
	defer m.enter(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.pair(pool)
	if err != nil {
		return shares, used0, used1, err
	}

	u0, u1, err := uniswapv2.OptimalDeposit(amount0, amount1, &p.reserve0, &p.reserve1)
	if err != nil {
		return shares, used0, used1, err
	}
	minted, err := uniswapv2.MintedShares(u0, u1, &p.reserve0, &p.reserve1, &p.totalSupply)
	if err != nil {
		return shares, used0, used1, err
	}

	if p.totalSupply.IsZero() {
		// permanently locked to the zero address
		locked := uint256.NewInt(uniswapv2.MinimumLiquidity)
		p.balances[common.Address{}] = *locked
		p.totalSupply.Set(locked)
	}
	p.totalSupply.Add(&p.totalSupply, minted)
	bal := p.balances[recipient]
	bal.Add(&bal, minted)
	p.balances[recipient] = bal
	p.reserve0.Add(&p.reserve0, u0)
	p.reserve1.Add(&p.reserve1, u1)

	return *minted, *u0, *u1, nil
}

func (m *AMM) RemoveLiquidity(ctx context.Context, pool common.Address, shares *uint256.Int, owner common.Address) (amount0, amount1 uint256.Int, err error) {
	defer m.enter(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.pair(pool)
	if err != nil {
		return amount0, amount1, err
	}

	bal := p.balances[owner]
	if bal.Lt(shares) {
		return amount0, amount1, amm.ErrInsufficientShares
	}
	a0, a1, err := uniswapv2.RedeemedAmounts(shares, &p.reserve0, &p.reserve1, &p.totalSupply)
	if err != nil {
		return amount0, amount1, err
	}

	bal.Sub(&bal, shares)
	p.balances[owner] = bal
	p.totalSupply.Sub(&p.totalSupply, shares)
	p.reserve0.Sub(&p.reserve0, a0)
	p.reserve1.Sub(&p.reserve1, a1)
	return *a0, *a1, nil
}

// Atomic snapshots all pairs, runs fn and restores the snapshot if fn fails.
func (m *AMM) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	saved := m.st.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, m)); err != nil {
		m.mu.Lock()
		m.st = saved
		m.mu.Unlock()
		return err
	}
	return nil
}

type txKey struct{}

// enter serializes a mutation with running units of work. Calls made with
// the context Atomic hands to fn already hold txMu.
func (m *AMM) enter(ctx context.Context) (exit func()) {
	if owner, _ := ctx.Value(txKey{}).(*AMM); owner == m {
		return func() {}
	}
	m.txMu.Lock()
	return m.txMu.Unlock
}

func (m *AMM) pair(pool common.Address) (*pair, error) {
	p, ok := m.st.pairs[pool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", amm.ErrUnknownPool, pool.Hex())
	}
	return p, nil
}

func sortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

func pairAddress(factory, token0, token1 common.Address) common.Address {
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, pairInitCodeHash)
}
