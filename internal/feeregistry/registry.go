// Package feeregistry maps pair factories to their swap fee. Only the owner
// fixed at construction may write; a factory without an entry is an error
// rather than a zero fee.
package feeregistry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"

	"github.com/nulln0ne/uniswap-funnel/pkg/uniswapv2"
)

var (
	ErrUnauthorized   = errors.New("caller is not the registry owner")
	ErrInvalidRate    = errors.New("fee rate must be below 10000 bps")
	ErrUnknownFactory = errors.New("no fee registered for factory")
	ErrStaleNonce     = errors.New("registry nonce has moved")
)

var (
	feePrefix = []byte("fee-")
	nonceKey  = []byte("nonce")
)

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	owner common.Address
	db    ethdb.KeyValueStore
}

// New returns a registry owned by owner and persisted in db.
func New(owner common.Address, db ethdb.KeyValueStore) *Registry {
	return &Registry{owner: owner, db: db}
}

func (r *Registry) Owner() common.Address {
	return r.owner
}

// SetFee records feeBps for factory and bumps the nonce.
func (r *Registry) SetFee(caller, factory common.Address, feeBps uint16) error {
	return r.setFee(caller, factory, feeBps, nil)
}

// SetFeeAt is SetFee that only applies while the nonce still equals nonce.
func (r *Registry) SetFeeAt(caller, factory common.Address, feeBps uint16, nonce uint64) error {
	return r.setFee(caller, factory, feeBps, &nonce)
}

func (r *Registry) setFee(caller, factory common.Address, feeBps uint16, expect *uint64) error {
	if caller != r.owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	if feeBps >= uniswapv2.BasisPoints {
		return fmt.Errorf("%w: got %d", ErrInvalidRate, feeBps)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nonce, err := r.nonce()
	if err != nil {
		return err
	}
	if expect != nil && *expect != nonce {
		return fmt.Errorf("%w: at %d, signed for %d", ErrStaleNonce, nonce, *expect)
	}
	batch := r.db.NewBatch()
	if err := batch.Put(feeKey(factory), binary.BigEndian.AppendUint16(nil, feeBps)); err != nil {
		return err
	}
	if err := batch.Put(nonceKey, binary.BigEndian.AppendUint64(nil, nonce+1)); err != nil {
		return err
	}
	return batch.Write()
}

// Fee returns the fee registered for factory.
func (r *Registry) Fee(factory common.Address) (uint16, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := feeKey(factory)
	ok, err := r.db.Has(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFactory, factory.Hex())
	}
	raw, err := r.db.Get(key)
	if err != nil {
		return 0, err
	}
	if len(raw) != 2 {
		return 0, fmt.Errorf("corrupt fee entry for %s", factory.Hex())
	}
	return binary.BigEndian.Uint16(raw), nil
}

// Nonce counts successful SetFee calls. Signed updates commit to it so a
// signature cannot be replayed.
func (r *Registry) Nonce() (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nonce()
}

func (r *Registry) nonce() (uint64, error) {
	ok, err := r.db.Has(nonceKey)
	if err != nil || !ok {
		return 0, err
	}
	raw, err := r.db.Get(nonceKey)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, errors.New("corrupt nonce entry")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func feeKey(factory common.Address) []byte {
	return append(append([]byte{}, feePrefix...), factory.Bytes()...)
}
