package barrel

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/posting"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
)

func setup(t *testing.T) (*kvstore.Bucket, posting.Schema) {
	t.Helper()
	db, err := kvstore.Open(config.StoreConfig{
		Path:        filepath.Join(t.TempDir(), "store.db"),
		NoSync:      true,
		OpenTimeout: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	b, err := db.Bucket("barrels")
	if err != nil {
		t.Fatal(err)
	}
	schema, err := posting.NewSchema(
		posting.Field{Name: "doc", Type: posting.Int64},
		posting.Field{Name: "position", Type: posting.Uint8},
	)
	if err != nil {
		t.Fatal(err)
	}
	return b, schema
}

func listOf(t *testing.T, schema posting.Schema, rows ...[]int64) *posting.List {
	t.Helper()
	l := posting.NewList(schema)
	for _, r := range rows {
		if err := l.Append(r...); err != nil {
			t.Fatal(err)
		}
	}
	return l
}

func rows(l *posting.List) [][]int64 {
	out := make([][]int64, l.Len())
	for i := range out {
		out[i] = l.Row(i)
	}
	return out
}

func TestMergeConcatenatesAcrossFlushes(t *testing.T) {
	kv, schema := setup(t)
	b := New(kv, schema)

	first := [][]int64{{10, 0}, {11, 1}}
	second := [][]int64{{5, 2}, {12, 0}}
	if _, err := b.Merge(map[int64]*posting.List{7: listOf(t, schema, first...)}); err != nil {
		t.Fatal(err)
	}
	n, err := b.Merge(map[int64]*posting.List{7: listOf(t, schema, second...)})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("written = %d", n)
	}

	got, err := b.Read(7)
	if err != nil {
		t.Fatal(err)
	}
	want := append(append([][]int64{}, first...), second...)
	if !reflect.DeepEqual(rows(got), want) {
		t.Errorf("rows = %v, want %v", rows(got), want)
	}
}

func TestReadMissingTermIsEmpty(t *testing.T) {
	kv, schema := setup(t)
	l, err := New(kv, schema).Read(42)
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 0 {
		t.Errorf("len = %d", l.Len())
	}
}

func TestReadCorruptColumn(t *testing.T) {
	kv, schema := setup(t)
	b := New(kv, schema)
	if _, err := b.Merge(map[int64]*posting.List{1: listOf(t, schema, []int64{1, 1})}); err != nil {
		t.Fatal(err)
	}
	kv.Put(Key(1, 0), []byte{1, 2, 3})
	if _, err := b.Read(1); !errors.Is(err, apperrors.ErrDecode) {
		t.Errorf("wrong width err = %v", err)
	}

	kv.Put(Key(2, 0), make([]byte, 8))
	if _, err := b.Read(2); !errors.Is(err, apperrors.ErrDecode) {
		t.Errorf("missing column err = %v", err)
	}
}

func TestScanVisitsEveryTerm(t *testing.T) {
	kv, schema := setup(t)
	b := New(kv, schema)
	pending := map[int64]*posting.List{}
	for id := int64(0); id < 120; id++ {
		pending[id] = listOf(t, schema, []int64{id * 10, id % 3})
	}
	if _, err := b.Merge(pending); err != nil {
		t.Fatal(err)
	}
	seen := map[int64]int64{}
	err := b.Scan(func(termID int64, l *posting.List) error {
		if l.Len() != 1 {
			t.Errorf("term %d len %d", termID, l.Len())
		}
		seen[termID] = l.Value(0, 0)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 120 {
		t.Fatalf("scanned %d terms", len(seen))
	}
	for id, doc := range seen {
		if doc != id*10 {
			t.Errorf("term %d doc %d", id, doc)
		}
	}
}
