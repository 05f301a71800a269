package posting

import (
	"encoding/binary"

	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

// Pair is one two-field posting: a primary id and a one-byte auxiliary
// value (for relation triples, the argument position).
type Pair struct {
	ID  int64
	Aux uint8
}

const countSize = 8

// EncodePairs serialises pairs in the persisted triple-index layout:
//
//	uint64 count | uint8[count] aux | int64[count] delta(id)
//
// All integers are little-endian. Ids are delta-encoded against their
// predecessor in storage order, whether or not they are sorted.
func EncodePairs(pairs []Pair) []byte {
	n := len(pairs)
	buf := make([]byte, countSize+n*9)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	ids := make([]int64, n)
	for i, p := range pairs {
		buf[countSize+i] = p.Aux
		ids[i] = p.ID
	}
	DeltaEncode(ids)
	base := countSize + n
	for i, id := range ids {
		binary.LittleEndian.PutUint64(buf[base+i*8:], uint64(id))
	}
	return buf
}

// DecodePairs is the inverse of EncodePairs. The buffer must be exactly
// 8 + 9*count bytes long.
func DecodePairs(data []byte) ([]Pair, error) {
	if len(data) < countSize {
		return nil, apperrors.Decodef("pair list of %d bytes has no count header", len(data))
	}
	count := binary.LittleEndian.Uint64(data)
	body := uint64(len(data) - countSize)
	if count > body/9 || count*9 != body {
		return nil, apperrors.Decodef("pair list declares %d entries in %d bytes", count, body)
	}
	n := int(count)
	aux := data[countSize : countSize+n]
	idBytes := data[countSize+n:]
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(binary.LittleEndian.Uint64(idBytes[i*8:]))
	}
	DeltaDecode(ids)
	pairs := make([]Pair, n)
	for i := range pairs {
		pairs[i] = Pair{ID: ids[i], Aux: aux[i]}
	}
	return pairs, nil
}

// UpdatePairs appends add after the entries already encoded in data and
// re-encodes the result. Empty data is treated as an empty list. The cost is
// proportional to the existing list, so callers should batch additions.
func UpdatePairs(data []byte, add []Pair) ([]byte, error) {
	if len(data) == 0 {
		return EncodePairs(add), nil
	}
	existing, err := DecodePairs(data)
	if err != nil {
		return nil, err
	}
	return EncodePairs(append(existing, add...)), nil
}

// DeltaEncode replaces every element but the first with its difference from
// the preceding element, walking from the end so each step sees the unmodified
// predecessor.
func DeltaEncode(values []int64) {
	for i := len(values) - 1; i > 0; i-- {
		values[i] -= values[i-1]
	}
}

// DeltaDecode reverses DeltaEncode with a running sum.
func DeltaDecode(values []int64) {
	for i := 1; i < len(values); i++ {
		values[i] += values[i-1]
	}
}
