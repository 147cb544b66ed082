package types

import (
	"math/bits"
	"strconv"
	"strings"
)

// MaxComponentKinds is the largest number of component kinds one engine can
// declare. Bitset is sized to hold one bit per kind.
const MaxComponentKinds = 256

// Bitset is a fixed-width set of component kinds, one bit per declared kind.
// The zero value is the empty set.
type Bitset [4]uint64

// Set enables the bit for the given component kind.
func (b *Bitset) Set(id ComponentID) {
	b[id>>6] |= uint64(1) << uint64(id&63)
}

// Clear disables the bit for the given component kind.
func (b *Bitset) Clear(id ComponentID) {
	b[id>>6] &^= uint64(1) << uint64(id&63)
}

// Has reports whether the bit for the given component kind is set.
func (b Bitset) Has(id ComponentID) bool {
	return b[id>>6]&(uint64(1)<<uint64(id&63)) != 0
}

// ContainsAll reports whether every bit set in sub is also set in b. The
// empty bitset is a subset of every bitset.
func (b Bitset) ContainsAll(sub Bitset) bool {
	return b[0]&sub[0] == sub[0] &&
		b[1]&sub[1] == sub[1] &&
		b[2]&sub[2] == sub[2] &&
		b[3]&sub[3] == sub[3]
}

// IsZero reports whether no bit is set.
func (b Bitset) IsZero() bool {
	return b[0]|b[1]|b[2]|b[3] == 0
}

// Equal reports whether b and other hold exactly the same bits.
func (b Bitset) Equal(other Bitset) bool {
	return b == other
}

// Union returns the bitwise union of b and other.
func (b Bitset) Union(other Bitset) Bitset {
	return Bitset{b[0] | other[0], b[1] | other[1], b[2] | other[2], b[3] | other[3]}
}

// Intersect returns the bitwise intersection of b and other.
func (b Bitset) Intersect(other Bitset) Bitset {
	return Bitset{b[0] & other[0], b[1] & other[1], b[2] & other[2], b[3] & other[3]}
}

// Count returns the number of set bits.
func (b Bitset) Count() int {
	return bits.OnesCount64(b[0]) + bits.OnesCount64(b[1]) +
		bits.OnesCount64(b[2]) + bits.OnesCount64(b[3])
}

// Each calls fn for every set bit in ascending order.
func (b Bitset) Each(fn func(ComponentID)) {
	for w := 0; w < len(b); w++ {
		word := b[w]
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			fn(ComponentID(w<<6 + bit))
			word &= word - 1
		}
	}
}

// String renders the set bits as a comma-separated list, for logging.
func (b Bitset) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	b.Each(func(id ComponentID) {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.WriteString(strconv.Itoa(int(id)))
	})
	sb.WriteByte('}')
	return sb.String()
}
