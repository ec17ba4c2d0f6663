// Package fixedpoint is the exact unsigned integer kernel used by the pool
// math. Every value is a 256-bit word, the same width the pools settle in.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("fixedpoint: overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("fixedpoint: underflow")
	// ErrDivisionByZero is returned for a zero denominator.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
)

var one = uint256.NewInt(1)

// MulDiv returns floor(a*b/denom). The product is carried in a 512-bit
// intermediate, so it only fails when the quotient itself overflows.
func MulDiv(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, denom)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Mul returns a*b.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Add returns a+b.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns a-b.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Lt(b) {
		return nil, ErrUnderflow
	}
	return new(uint256.Int).Sub(a, b), nil
}

// Min returns a copy of the smaller operand.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// Sqrt returns floor(sqrt(n)) using Newton's iteration from an initial guess
// that is never below the root, so the sequence decreases monotonically and
// stops after O(log n) steps.
func Sqrt(n *uint256.Int) *uint256.Int {
	if n.IsZero() {
		return new(uint256.Int)
	}

	// 2^ceil(bits/2) >= sqrt(n)
	x := new(uint256.Int).Lsh(one, uint((n.BitLen()+1)/2))
	y := new(uint256.Int)
	for {
		y.Div(n, x)
		y.Add(y, x)
		y.Rsh(y, 1)
		if !y.Lt(x) {
			break
		}
		x.Set(y)
	}

	assertSqrt(n, x)
	return x
}

// assertSqrt checks r^2 <= n < (r+1)^2.
func assertSqrt(n, r *uint256.Int) {
	sq, overflow := new(uint256.Int).MulOverflow(r, r)
	if overflow || sq.Gt(n) {
		panic("fixedpoint: sqrt result too large")
	}
	next := new(uint256.Int).Add(r, one)
	sq, overflow = sq.MulOverflow(next, next)
	if !overflow && !sq.Gt(n) {
		panic("fixedpoint: sqrt result too small")
	}
}
