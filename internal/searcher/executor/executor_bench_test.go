package executor

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/posting"
)

func benchSource(b *testing.B, terms, rows int) *fakeSource {
	b.Helper()
	schema, err := posting.NewSchema(
		posting.Field{Name: "doc", Type: posting.Int64},
		posting.Field{Name: "position", Type: posting.Uint8},
		posting.Field{Name: "sent", Type: posting.Int32},
	)
	if err != nil {
		b.Fatal(err)
	}
	src := &fakeSource{schema: schema, lists: map[int64]*posting.List{}}
	for term := range terms {
		l := posting.NewList(schema)
		step := int64(term + 1)
		for i := range rows {
			if err := l.Append(int64(i)*step, int64(i%4), int64(i/16)); err != nil {
				b.Fatal(err)
			}
		}
		src.lists[int64(term)] = l
	}
	return src
}

func BenchmarkFind(b *testing.B) {
	e := New(benchSource(b, 3, 10000))
	q := Query{Terms: []Term{
		{ID: 0, Constraints: []Constraint{Eq("position", 0)}},
		{ID: 1},
		{ID: 2},
	}}
	ctx := context.Background()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := e.Find(ctx, q); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFindOr(b *testing.B) {
	e := New(benchSource(b, 3, 10000))
	q := Query{Terms: []Term{{ID: 0}, {ID: 1}, {ID: 2}}}
	ctx := context.Background()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := e.FindOr(ctx, q); err != nil {
			b.Fatal(err)
		}
	}
}
