package plan

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

// Hasher accumulates integer fields into a 64-bit FNV-1a hash.
// Field order matters.
//
//	h := plan.NewHasher().Int(p.M).Int(p.N).Uint64(uint64(p.Stream)).Sum()
type Hasher struct {
	h uint64
}

// NewHasher returns a hasher at the FNV offset basis.
func NewHasher() Hasher {
	return Hasher{h: fnvOffset}
}

// Uint64 mixes v into the hash.
func (h Hasher) Uint64(v uint64) Hasher {
	for i := 0; i < 8; i++ {
		h.h ^= v & 0xff
		h.h *= fnvPrime
		v >>= 8
	}
	return h
}

// Int mixes v into the hash.
func (h Hasher) Int(v int) Hasher {
	return h.Uint64(uint64(v)) //nolint:gosec // G115: bit pattern only
}

// Ints mixes every value of vs into the hash.
func (h Hasher) Ints(vs ...int) Hasher {
	for _, v := range vs {
		h = h.Int(v)
	}
	return h
}

// Sum returns the accumulated hash.
func (h Hasher) Sum() uint64 {
	return h.h
}
