package posting

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

func TestEncodePairsLayout(t *testing.T) {
	data := EncodePairs([]Pair{{ID: 10, Aux: 1}, {ID: 15, Aux: 2}, {ID: 12, Aux: 3}})

	want := make([]byte, 0, 8+3*9)
	want = binary.LittleEndian.AppendUint64(want, 3)
	want = append(want, 1, 2, 3)
	for _, d := range []int64{10, 5, -3} {
		want = binary.LittleEndian.AppendUint64(want, uint64(d))
	}
	if !bytes.Equal(data, want) {
		t.Fatalf("layout mismatch\n got %v\nwant %v", data, want)
	}
}

func TestPairsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(300)
		pairs := make([]Pair, n)
		for i := range pairs {
			pairs[i] = Pair{ID: rng.Int63n(1<<40) - 1<<39, Aux: uint8(rng.Intn(256))}
		}
		got, err := DecodePairs(EncodePairs(pairs))
		if err != nil {
			t.Fatalf("DecodePairs: %v", err)
		}
		if len(got) != len(pairs) {
			t.Fatalf("len = %d, want %d", len(got), len(pairs))
		}
		for i := range pairs {
			if got[i] != pairs[i] {
				t.Fatalf("pair %d = %+v, want %+v", i, got[i], pairs[i])
			}
		}
	}
}

func TestPairsSentinelIDs(t *testing.T) {
	pairs := []Pair{{ID: -1, Aux: 0}, {ID: 7, Aux: 1}, {ID: -2, Aux: 2}}
	got, err := DecodePairs(EncodePairs(pairs))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, pairs) {
		t.Errorf("got %+v, want %+v", got, pairs)
	}
}

func TestUpdatePairsAppendsInWriteOrder(t *testing.T) {
	first := []Pair{{ID: 100, Aux: 1}, {ID: 101, Aux: 2}}
	second := []Pair{{ID: 50, Aux: 3}, {ID: 200, Aux: 1}}

	merged, err := UpdatePairs(EncodePairs(first), second)
	if err != nil {
		t.Fatal(err)
	}
	oneShot := EncodePairs(append(append([]Pair{}, first...), second...))
	if !bytes.Equal(merged, oneShot) {
		t.Fatal("two-step update differs from single encode")
	}

	fromEmpty, err := UpdatePairs(nil, first)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fromEmpty, EncodePairs(first)) {
		t.Fatal("update of empty data differs from encode")
	}
}

func TestDecodePairsRejectsCorruptInput(t *testing.T) {
	good := EncodePairs([]Pair{{ID: 1, Aux: 1}, {ID: 2, Aux: 2}})
	cases := map[string][]byte{
		"short header":  good[:5],
		"truncated":     good[:len(good)-1],
		"trailing byte": append(append([]byte{}, good...), 0),
		"huge count":    binary.LittleEndian.AppendUint64(nil, 1<<62),
	}
	for name, data := range cases {
		if _, err := DecodePairs(data); !errors.Is(err, apperrors.ErrDecode) {
			t.Errorf("%s: err = %v, want ErrDecode", name, err)
		}
	}
	if got, err := DecodePairs(EncodePairs(nil)); err != nil || len(got) != 0 {
		t.Errorf("empty list: got %v, %v", got, err)
	}
}

func TestDeltaRoundTripUnsorted(t *testing.T) {
	values := []int64{5, 3, 9, 9, -4, 100}
	work := append([]int64{}, values...)
	DeltaEncode(work)
	if !reflect.DeepEqual(work, []int64{5, -2, 6, 0, -13, 104}) {
		t.Fatalf("encoded = %v", work)
	}
	DeltaDecode(work)
	if !reflect.DeepEqual(work, values) {
		t.Fatalf("decoded = %v, want %v", work, values)
	}
}

func testSchema(t *testing.T) Schema {
	t.Helper()
	s, err := NewSchema(
		Field{Name: "doc", Type: Int64},
		Field{Name: "position", Type: Uint8},
		Field{Name: "rel", Type: Int16},
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestListGrowsByFixedStep(t *testing.T) {
	l := NewList(testSchema(t))
	if l.Cap() != GrowStep {
		t.Fatalf("initial cap = %d", l.Cap())
	}
	for i := 0; i < GrowStep+1; i++ {
		if err := l.Append(int64(i), int64(i%4), int64(-i)); err != nil {
			t.Fatal(err)
		}
	}
	if l.Len() != GrowStep+1 || l.Cap() != 2*GrowStep {
		t.Fatalf("len=%d cap=%d", l.Len(), l.Cap())
	}
	if got := l.Row(GrowStep); !reflect.DeepEqual(got, []int64{GrowStep, GrowStep % 4, -GrowStep}) {
		t.Errorf("last row = %v", got)
	}
}

func TestListAppendValidation(t *testing.T) {
	l := NewList(testSchema(t))
	if err := l.Append(1, 2); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("short row err = %v", err)
	}
	if err := l.Append(1, 256, 0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("overflow err = %v", err)
	}
	if err := l.Append(1, -1, 0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("negative unsigned err = %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("rejected rows were stored")
	}
}

func TestListEncodeDecodeRoundTrip(t *testing.T) {
	schema := testSchema(t)
	l := NewList(schema)
	rows := [][]int64{{10, 0, 3}, {11, 1, -7}, {9, 0, 300}, {13, 2, 0}}
	for _, r := range rows {
		if err := l.Append(r...); err != nil {
			t.Fatal(err)
		}
	}
	fields := make([][]byte, len(schema))
	for i := range schema {
		fields[i] = l.EncodeField(i)
	}
	// Primary column is delta-encoded on disk.
	if got := int64(binary.LittleEndian.Uint64(fields[0][8:])); got != 1 {
		t.Errorf("second stored doc delta = %d, want 1", got)
	}
	decoded, err := DecodeList(schema, fields)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range rows {
		if got := decoded.Row(i); !reflect.DeepEqual(got, r) {
			t.Errorf("row %d = %v, want %v", i, got, r)
		}
	}
}

func TestDecodeListRejectsCorruptColumns(t *testing.T) {
	schema := testSchema(t)
	cases := map[string][][]byte{
		"bad width":      {make([]byte, 12), make([]byte, 1), make([]byte, 2)},
		"row mismatch":   {make([]byte, 16), make([]byte, 1), make([]byte, 4)},
		"missing column": {make([]byte, 8), make([]byte, 1)},
	}
	for name, fields := range cases {
		if _, err := DecodeList(schema, fields); !errors.Is(err, apperrors.ErrDecode) {
			t.Errorf("%s: err = %v, want ErrDecode", name, err)
		}
	}
}

func TestAppendListConcatenates(t *testing.T) {
	schema := testSchema(t)
	a := NewList(schema)
	b := NewList(schema)
	for i := 0; i < 40; i++ {
		a.Append(int64(i), 0, 0)
	}
	for i := 0; i < 70; i++ {
		b.Append(int64(1000+i), 1, 1)
	}
	if err := a.AppendList(b); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 110 || a.Cap() < a.Len() || a.Cap()%GrowStep != 0 {
		t.Fatalf("len=%d cap=%d", a.Len(), a.Cap())
	}
	if a.Value(0, 39) != 39 || a.Value(0, 40) != 1000 || a.Value(0, 109) != 1069 {
		t.Errorf("concatenation order broken")
	}
}

func TestSchemaValidation(t *testing.T) {
	if _, err := NewSchema(); !errors.Is(err, apperrors.ErrUnsupportedSchema) {
		t.Errorf("empty schema err = %v", err)
	}
	if _, err := NewSchema(Field{Name: "doc", Type: "f4"}); !errors.Is(err, apperrors.ErrUnsupportedSchema) {
		t.Errorf("unknown type err = %v", err)
	}
	if _, err := ParseFieldType("u2"); err != nil {
		t.Errorf("ParseFieldType(u2): %v", err)
	}
}

func BenchmarkListAppend(b *testing.B) {
	schema, _ := NewSchema(Field{Name: "doc", Type: Int64}, Field{Name: "freq", Type: Uint16})
	b.ReportAllocs()
	l := NewList(schema)
	for i := 0; i < b.N; i++ {
		l.Append(int64(i), int64(i%100))
	}
}
