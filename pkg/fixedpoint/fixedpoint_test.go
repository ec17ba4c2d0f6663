package fixedpoint

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxU256() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

func TestMulDiv(t *testing.T) {
	testCases := []struct {
		name        string
		a, b, denom *uint256.Int
		expected    *uint256.Int
		expectedErr error
	}{
		{
			name:     "small values",
			a:        uint256.NewInt(7),
			b:        uint256.NewInt(3),
			denom:    uint256.NewInt(2),
			expected: uint256.NewInt(10),
		},
		{
			name:     "product exceeds 256 bits but quotient fits",
			a:        maxU256(),
			b:        uint256.NewInt(4),
			denom:    uint256.NewInt(8),
			expected: new(uint256.Int).Rsh(maxU256(), 1),
		},
		{
			name:     "a*b/b is exact at full width",
			a:        maxU256(),
			b:        maxU256(),
			denom:    maxU256(),
			expected: maxU256(),
		},
		{
			name:        "quotient overflows",
			a:           maxU256(),
			b:           uint256.NewInt(2),
			denom:       uint256.NewInt(1),
			expectedErr: ErrOverflow,
		},
		{
			name:        "zero denominator",
			a:           uint256.NewInt(1),
			b:           uint256.NewInt(1),
			denom:       new(uint256.Int),
			expectedErr: ErrDivisionByZero,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MulDiv(tc.a, tc.b, tc.denom)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected.Dec(), got.Dec())
		})
	}
}

func TestMulDiv_MatchesBigInt(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		a := randU256(rng, 200)
		b := randU256(rng, 120)
		d := randU256(rng, 160)
		if d.IsZero() {
			d.SetOne()
		}

		want := new(big.Int).Mul(a.ToBig(), b.ToBig())
		want.Div(want, d.ToBig())

		got, err := MulDiv(a, b, d)
		if want.BitLen() > 256 {
			require.ErrorIs(t, err, ErrOverflow)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, want.String(), got.Dec())
	}
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := Add(maxU256(), uint256.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Mul(maxU256(), uint256.NewInt(2))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Sub(uint256.NewInt(1), uint256.NewInt(2))
	require.ErrorIs(t, err, ErrUnderflow)

	got, err := Sub(uint256.NewInt(5), uint256.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Uint64())

	assert.Equal(t, uint64(2), Min(uint256.NewInt(2), uint256.NewInt(9)).Uint64())
}

func TestSqrt(t *testing.T) {
	cases := map[uint64]uint64{
		0:  0,
		1:  1,
		2:  1,
		3:  1,
		4:  2,
		15: 3,
		16: 4,
		17: 4,
		// (10^9)^2
		1_000_000_000_000_000_000: 1_000_000_000,
	}
	for n, want := range cases {
		got := Sqrt(uint256.NewInt(n))
		assert.Equal(t, want, got.Uint64(), "sqrt(%d)", n)
	}

	// floor(sqrt(2^256-1)) = 2^128-1
	want := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	assert.Equal(t, want.Dec(), Sqrt(maxU256()).Dec())
}

func TestSqrt_MatchesBigInt(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		n := randU256(rng, 256)
		want := new(big.Int).Sqrt(n.ToBig())
		require.Equal(t, want.String(), Sqrt(n).Dec(), "sqrt(%s)", n.Dec())
	}
}

// randU256 returns a random value of up to maxBits bits, with the bit length
// itself drawn at random so small and large magnitudes are both covered.
func randU256(rng *rand.Rand, maxBits int) *uint256.Int {
	bits := rng.Intn(maxBits + 1)
	var words [4]uint64
	for i := range words {
		words[i] = rng.Uint64()
	}
	z := new(uint256.Int)
	z[0], z[1], z[2], z[3] = words[0], words[1], words[2], words[3]
	if bits < 256 {
		z.Rsh(z, uint(256-bits))
	}
	return z
}

func BenchmarkSqrt(b *testing.B) {
	n := uint256.MustFromDecimal("398800900000000000000000000000000000000000000000000000000000")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Sqrt(n)
	}
}
