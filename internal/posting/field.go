package posting

import (
	"encoding/binary"
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

// FieldType names a fixed-width little-endian integer column type. The names
// are the ones persisted in index metadata.
type FieldType string

const (
	Int8   FieldType = "i1"
	Int16  FieldType = "i2"
	Int32  FieldType = "i4"
	Int64  FieldType = "i8"
	Uint8  FieldType = "u1"
	Uint16 FieldType = "u2"
	Uint32 FieldType = "u4"
)

// ParseFieldType validates a persisted type name.
func ParseFieldType(name string) (FieldType, error) {
	t := FieldType(name)
	if t.Width() == 0 {
		return "", fmt.Errorf("field type %q: %w", name, apperrors.ErrUnsupportedSchema)
	}
	return t, nil
}

// Width is the encoded size of one element in bytes, or 0 for an unknown type.
func (t FieldType) Width() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32:
		return 4
	case Int64:
		return 8
	default:
		return 0
	}
}

// Fits reports whether v is representable in t.
func (t FieldType) Fits(v int64) bool {
	switch t {
	case Int8:
		return v >= math.MinInt8 && v <= math.MaxInt8
	case Int16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case Int32:
		return v >= math.MinInt32 && v <= math.MaxInt32
	case Int64:
		return true
	case Uint8:
		return v >= 0 && v <= math.MaxUint8
	case Uint16:
		return v >= 0 && v <= math.MaxUint16
	case Uint32:
		return v >= 0 && v <= math.MaxUint32
	default:
		return false
	}
}

// Max is the largest value representable in t.
func (t FieldType) Max() int64 {
	switch t {
	case Int8:
		return math.MaxInt8
	case Int16:
		return math.MaxInt16
	case Int32:
		return math.MaxInt32
	case Uint8:
		return math.MaxUint8
	case Uint16:
		return math.MaxUint16
	case Uint32:
		return math.MaxUint32
	default:
		return math.MaxInt64
	}
}

func (t FieldType) put(dst []byte, v int64) {
	switch t {
	case Int8, Uint8:
		dst[0] = byte(v)
	case Int16, Uint16:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case Int32, Uint32:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case Int64:
		binary.LittleEndian.PutUint64(dst, uint64(v))
	}
}

func (t FieldType) get(src []byte) int64 {
	switch t {
	case Int8:
		return int64(int8(src[0]))
	case Uint8:
		return int64(src[0])
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(src)))
	case Uint16:
		return int64(binary.LittleEndian.Uint16(src))
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(src)))
	case Uint32:
		return int64(binary.LittleEndian.Uint32(src))
	case Int64:
		return int64(binary.LittleEndian.Uint64(src))
	default:
		return 0
	}
}

// Field declares one posting column.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Schema is the ordered list of posting columns. Field 0 is the primary
// (record id) column.
type Schema []Field

// NewSchema validates fields: at least one, unique names, known types.
func NewSchema(fields ...Field) (Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema has no fields: %w", apperrors.ErrUnsupportedSchema)
	}
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.Type.Width() == 0 {
			return nil, fmt.Errorf("field %d %q type %q: %w", i, f.Name, f.Type, apperrors.ErrUnsupportedSchema)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q: %w", f.Name, apperrors.ErrUnsupportedSchema)
		}
		seen[f.Name] = struct{}{}
	}
	return Schema(append([]Field(nil), fields...)), nil
}

// Index returns the position of the named field.
func (s Schema) Index(name string) (int, bool) {
	for i, f := range s {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Check reports whether values form a valid row: one value per field, each
// within its field's range.
func (s Schema) Check(values []int64) error {
	if len(values) != len(s) {
		return apperrors.Invalidf("posting has %d values, schema has %d fields", len(values), len(s))
	}
	for i, v := range values {
		if !s[i].Type.Fits(v) {
			return apperrors.Invalidf("value %d overflows field %q (%s)", v, s[i].Name, s[i].Type)
		}
	}
	return nil
}

// Equal reports whether both schemas declare the same fields in order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// deltaField reports whether field i is stored delta-encoded: only a 64-bit
// signed primary column is.
func (s Schema) deltaField(i int) bool {
	return i == 0 && s[0].Type == Int64
}
