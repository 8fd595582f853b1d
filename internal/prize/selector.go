package prize

import (
	"crypto/rand"
	"encoding/binary"
)

// RNG is a source of uniform reals in [0,1).
type RNG interface {
	Float64() float64
}

// RNGFunc adapts a plain function to RNG.
type RNGFunc func() float64

func (f RNGFunc) Float64() float64 { return f() }

// Fixed returns an RNG that always yields r.
func Fixed(r float64) RNG {
	return RNGFunc(func() float64 { return r })
}

// CryptoRNG draws from crypto/rand. It is safe for concurrent use.
type CryptoRNG struct{}

func (CryptoRNG) Float64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms.
		panic(err)
	}
	// 53 random bits give every representable float64 step in [0,1).
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Select draws one option from t. The table is walked in declared order and
// the first option whose running probability total reaches r is returned.
// Options with zero probability are never picked. If rounding leaves r above
// the final total, the last option with positive probability is returned.
func Select(t Table, rng RNG) Option {
	if len(t.options) == 0 {
		panic("prize: select from an empty table")
	}
	r := rng.Float64()
	var running float64
	last := -1
	for i, o := range t.options {
		if o.Probability <= 0 {
			continue
		}
		last = i
		running += o.Probability
		if running >= r {
			return o
		}
	}
	if last < 0 {
		panic("prize: table has no option with positive probability")
	}
	return t.options[last]
}
