package posting

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

// GrowStep is the fixed number of rows added to a List's capacity whenever
// an append overflows it.
const GrowStep = 32

// List is a columnar posting list: one fixed-width byte arena per schema
// field, all holding Len() rows. Values are stored plainly in memory; delta
// encoding of the primary column happens only in EncodeField.
type List struct {
	schema   Schema
	size     int
	capacity int
	columns  [][]byte
}

// NewList returns an empty list with GrowStep rows of capacity.
func NewList(schema Schema) *List {
	l := &List{schema: schema, columns: make([][]byte, len(schema))}
	l.reserve(GrowStep)
	return l
}

func (l *List) Schema() Schema { return l.schema }

func (l *List) Len() int { return l.size }

func (l *List) Cap() int { return l.capacity }

// Append adds one row. values must hold exactly one value per field, each
// representable in its field's type.
func (l *List) Append(values ...int64) error {
	if err := l.schema.Check(values); err != nil {
		return err
	}
	if l.size == l.capacity {
		l.reserve(l.capacity + GrowStep)
	}
	for i, v := range values {
		w := l.schema[i].Type.Width()
		l.schema[i].Type.put(l.columns[i][l.size*w:], v)
	}
	l.size++
	return nil
}

// AppendList concatenates other's rows after l's rows, preserving order.
func (l *List) AppendList(other *List) error {
	if !l.schema.Equal(other.schema) {
		return apperrors.Invalidf("appending posting list with a different schema")
	}
	if other.size == 0 {
		return nil
	}
	need := l.size + other.size
	if need > l.capacity {
		steps := (need - l.capacity + GrowStep - 1) / GrowStep
		l.reserve(l.capacity + steps*GrowStep)
	}
	for i, f := range l.schema {
		w := f.Type.Width()
		copy(l.columns[i][l.size*w:], other.columns[i][:other.size*w])
	}
	l.size = need
	return nil
}

// Value returns field's value in row.
func (l *List) Value(field, row int) int64 {
	w := l.schema[field].Type.Width()
	return l.schema[field].Type.get(l.columns[field][row*w:])
}

// Row returns all field values of row.
func (l *List) Row(row int) []int64 {
	out := make([]int64, len(l.schema))
	for i := range l.schema {
		out[i] = l.Value(i, row)
	}
	return out
}

// Column returns a copy of field's values in storage order.
func (l *List) Column(field int) []int64 {
	out := make([]int64, l.size)
	for row := range out {
		out[row] = l.Value(field, row)
	}
	return out
}

// EncodeField returns field's on-disk bytes: Len() little-endian elements,
// delta-encoded when the field is an i8 primary column.
func (l *List) EncodeField(field int) []byte {
	t := l.schema[field].Type
	w := t.Width()
	out := make([]byte, l.size*w)
	if !l.schema.deltaField(field) {
		copy(out, l.columns[field][:l.size*w])
		return out
	}
	values := l.Column(field)
	DeltaEncode(values)
	for i, v := range values {
		t.put(out[i*w:], v)
	}
	return out
}

// DecodeList rebuilds a list from per-field byte arrays produced by
// EncodeField. A column whose length is not a multiple of its width, or
// columns disagreeing on the row count, fail with errors.ErrDecode.
func DecodeList(schema Schema, fields [][]byte) (*List, error) {
	if len(fields) != len(schema) {
		return nil, apperrors.Decodef("got %d columns for a %d-field schema", len(fields), len(schema))
	}
	rows := -1
	for i, raw := range fields {
		w := schema[i].Type.Width()
		if w == 0 {
			return nil, fmt.Errorf("field %q: %w", schema[i].Name, apperrors.ErrUnsupportedSchema)
		}
		if len(raw)%w != 0 {
			return nil, apperrors.Decodef("field %q has %d bytes, not a multiple of %d", schema[i].Name, len(raw), w)
		}
		n := len(raw) / w
		if rows >= 0 && n != rows {
			return nil, apperrors.Decodef("field %q has %d rows, expected %d", schema[i].Name, n, rows)
		}
		rows = n
	}
	l := &List{schema: schema, size: rows, capacity: rows, columns: make([][]byte, len(schema))}
	for i, raw := range fields {
		l.columns[i] = append([]byte(nil), raw...)
	}
	if rows > 0 && schema.deltaField(0) {
		values := l.Column(0)
		DeltaDecode(values)
		for i, v := range values {
			schema[0].Type.put(l.columns[0][i*8:], v)
		}
	}
	return l, nil
}

func (l *List) reserve(capacity int) {
	for i, f := range l.schema {
		w := f.Type.Width()
		grown := make([]byte, capacity*w)
		copy(grown, l.columns[i][:l.size*w])
		l.columns[i] = grown
	}
	l.capacity = capacity
}
