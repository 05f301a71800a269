package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/argindex"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/lexicon"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "store.db")
	cfg.Store.NoSync = true
	cfg.Index.DataDir = filepath.Join(dir, "index")
	cfg.Index.FlushThreshold = 1000
	cfg.Index.FlushInterval = 0
	cfg.Blobs.BufferSize = 100
	cfg.Lexicon.DumpEvery = 0
	cfg.Args.Enabled = true
	cfg.Args.FlushThreshold = 100
	return cfg
}

func openDB(t *testing.T, cfg *config.Config) *kvstore.DB {
	t.Helper()
	cfg.Store.OpenTimeout = time.Second
	db, err := kvstore.Open(cfg.Store)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newEngine(t *testing.T, db *kvstore.DB, cfg *config.Config) *Engine {
	t.Helper()
	e, err := NewEngine(db, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func docsOf(t *testing.T, e *Engine, term string) map[int64]int64 {
	t.Helper()
	id := e.Lexicon().ID(term)
	if id == lexicon.NotFound {
		t.Fatalf("term %q not interned", term)
	}
	list, err := e.InvertedIndex().PostingList(id)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[int64]int64, list.Len())
	for i := 0; i < list.Len(); i++ {
		row := list.Row(i)
		out[row[0]] = row[1]
	}
	return out
}

func TestEngineIndexesTextRecords(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, openDB(t, cfg), cfg)

	first, err := e.Index(&TextRecord{Title: "Storage engine", Body: "an engine with another engine"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Index(&TextRecord{Title: "Query planning", Body: "the planner picks an engine"})
	if err != nil {
		t.Fatal(err)
	}
	if first != 0 || second != 1 {
		t.Fatalf("ids = %d, %d; want 0, 1", first, second)
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}

	got := docsOf(t, e, "engine")
	want := map[int64]int64{0: 3, 1: 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("engine postings = %v, want %v", got, want)
	}
	if freq := e.Lexicon().Frequency(e.Lexicon().ID("engine")); freq != 4 {
		t.Errorf("engine frequency = %d, want 4", freq)
	}

	data, err := e.Blobs().Get(second)
	if err != nil {
		t.Fatal(err)
	}
	var rec TextRecord
	if err := rec.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if rec.Title != "Query planning" {
		t.Errorf("stored title = %q", rec.Title)
	}
	if e.InvertedIndex().Documents() != 2 {
		t.Errorf("documents = %d, want 2", e.InvertedIndex().Documents())
	}
}

func TestEngineUnflushedPostingsInvisible(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, openDB(t, cfg), cfg)
	if _, err := e.Index(&TextRecord{Body: "pending words"}); err != nil {
		t.Fatal(err)
	}
	list, err := e.InvertedIndex().PostingList(e.Lexicon().ID("pend"))
	if err != nil {
		t.Fatal(err)
	}
	if list.Len() != 0 {
		t.Errorf("unflushed postings visible: %d rows", list.Len())
	}
	if _, err := e.Blobs().Get(0); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unflushed record: err = %v, want ErrNotFound", err)
	}
}

func TestEngineIndexesRelationArguments(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, openDB(t, cfg), cfg)

	records := []*RelationRecord{
		{Relation: "founded", Arguments: []string{"alice", "acme", argindex.NoneToken}, Freq: 3},
		{Relation: "acquired", Arguments: []string{"acme", "widgets"}, Freq: 1},
		{Relation: "founded", Arguments: []string{"bob", argindex.EmptyToken, "widgets"}, Freq: 2},
	}
	for _, r := range records {
		if _, err := e.Index(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}

	lex := e.Lexicon()
	if freq := lex.Frequency(lex.ID("acme")); freq != 2 {
		t.Errorf("acme frequency = %d, want 2", freq)
	}
	if lex.ID(argindex.NoneToken) != lexicon.NotFound {
		t.Error("sentinel token was interned")
	}

	cases := []struct {
		name string
		args []argindex.Arg
		want []int64
	}{
		{"acme anywhere", []argindex.Arg{{Term: lex.ID("acme")}}, []int64{0, 1}},
		{"acme first", []argindex.Arg{{Term: lex.ID("acme"), Position: 1}}, []int64{1}},
		{"widgets third", []argindex.Arg{{Term: lex.ID("widgets"), Position: 3}}, []int64{2}},
		{"conjunction", []argindex.Arg{{Term: lex.ID("acme")}, {Term: lex.ID("widgets")}}, []int64{1}},
		{"unknown dropped", []argindex.Arg{{Term: lexicon.NotFound}, {Term: lex.ID("bob")}}, []int64{2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Args().Search(tc.args)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}

	if got := docsOf(t, e, "founded"); len(got) != 2 {
		t.Errorf("founded postings = %v, want records 0 and 2", got)
	}
}

func TestEngineClampsFrequency(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Fields = []config.FieldConfig{{Name: "doc", Type: "i8"}, {Name: "freq", Type: "u1"}}
	e := newEngine(t, openDB(t, cfg), cfg)

	body := ""
	for i := 0; i < 300; i++ {
		body += "echo "
	}
	if _, err := e.Index(&TextRecord{Body: body}); err != nil {
		t.Fatal(err)
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := docsOf(t, e, "echo")[0]; got != 255 {
		t.Errorf("freq = %d, want 255", got)
	}
}

func TestEngineCloseAndReopen(t *testing.T) {
	cfg := testConfig(t)
	db := openDB(t, cfg)
	e := newEngine(t, db, cfg)
	for _, body := range []string{"alpha beta", "beta gamma"} {
		if _, err := e.Index(&TextRecord{Body: body}); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Index(&TextRecord{Body: "late"}); !errors.Is(err, apperrors.ErrState) {
		t.Errorf("Index after Close: err = %v, want ErrState", err)
	}
	if err := e.Close(); !errors.Is(err, apperrors.ErrState) {
		t.Errorf("second Close: err = %v, want ErrState", err)
	}

	reopened := newEngine(t, db, cfg)
	id, err := reopened.Index(&TextRecord{Body: "beta delta"})
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Errorf("resumed id = %d, want 2", id)
	}
	if err := reopened.Flush(); err != nil {
		t.Fatal(err)
	}
	got := docsOf(t, reopened, "beta")
	if !reflect.DeepEqual(got, map[int64]int64{0: 1, 1: 1, 2: 1}) {
		t.Errorf("beta postings = %v", got)
	}
	if reopened.Lexicon().Len() != 4 {
		t.Errorf("terms = %d, want 4", reopened.Lexicon().Len())
	}
}

func TestEngineRejectsBadVectors(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, openDB(t, cfg), cfg)
	_, err := e.Index(vectorRecord{{Term: "x", Aux: []int64{1, 2}}})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestEngineEmptyArgumentIsNotInterned(t *testing.T) {
	cfg := testConfig(t)
	db := openDB(t, cfg)
	e := newEngine(t, db, cfg)

	id, err := e.Index(&RelationRecord{Relation: "rel", Arguments: []string{"", "x"}})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := e.Flush(); err != nil {
			t.Fatalf("flush %d: %v", i, err)
		}
	}
	if e.Lexicon().ID("") != lexicon.NotFound {
		t.Error("empty argument was interned")
	}
	got, err := e.Args().Search([]argindex.Arg{{Term: e.Lexicon().ID("x"), Position: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int64{id}) {
		t.Errorf("x at position 2 = %v, want [%d]", got, id)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := newEngine(t, db, cfg)
	if reopened.Lexicon().Len() != 2 || reopened.Lexicon().ID("x") != e.Lexicon().ID("x") {
		t.Errorf("reloaded lexicon has %d terms, x = %d", reopened.Lexicon().Len(), reopened.Lexicon().ID("x"))
	}
}

func TestEngineRejectedRecordChangesNothing(t *testing.T) {
	cfg := testConfig(t)
	e := newEngine(t, openDB(t, cfg), cfg)

	long := strings.Repeat("a", kvstore.MaxKeySize+1)
	rejected := []Record{
		vectorRecord{{Term: "ok", Aux: []int64{1}}, {Term: "bad", Aux: []int64{100000}}},
		vectorRecord{{Term: "ok", Aux: []int64{1}}, {Term: "", Aux: []int64{1}}},
		&RelationRecord{Relation: "rel", Arguments: []string{"fine", long}},
	}
	for i, rec := range rejected {
		if _, err := e.Index(rec); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Fatalf("record %d: err = %v, want ErrInvalidInput", i, err)
		}
	}
	records, terms, pending := e.Stats()
	if records != 0 || terms != 0 || pending != 0 {
		t.Fatalf("after rejections: records=%d terms=%d pending=%d, want all 0", records, terms, pending)
	}
	if e.InvertedIndex().Documents() != 0 || e.Args().Pending() != 0 {
		t.Errorf("documents=%d pending triples=%d", e.InvertedIndex().Documents(), e.Args().Pending())
	}

	id, err := e.Index(vectorRecord{{Term: "ok", Aux: []int64{7}}})
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Errorf("id = %d, want 0", id)
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Blobs().Get(0); err != nil {
		t.Errorf("record 0: %v", err)
	}
	if got := docsOf(t, e, "ok"); !reflect.DeepEqual(got, map[int64]int64{0: 7}) {
		t.Errorf("ok postings = %v", got)
	}
	if freq := e.Lexicon().Frequency(e.Lexicon().ID("ok")); freq != 1 {
		t.Errorf("ok frequency = %d, want 1", freq)
	}
}

func TestEngineFlushFailureKeepsRecordID(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.FlushThreshold = 1
	db := openDB(t, cfg)
	e := newEngine(t, db, cfg)
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	id, err := e.Index(&TextRecord{Body: "buffered words"})
	var flushErr *FlushError
	if !errors.As(err, &flushErr) {
		t.Fatalf("err = %v, want *FlushError", err)
	}
	if id != 0 || flushErr.RecordID != 0 {
		t.Errorf("id = %d, flush error record = %d; want 0", id, flushErr.RecordID)
	}
	if h := e.Health(context.Background()); h.Status != health.StatusDegraded {
		t.Errorf("health = %+v, want degraded", h)
	}
	if records, _, pending := e.Stats(); records != 1 || pending == 0 {
		t.Errorf("records=%d pending=%d; record should stay buffered", records, pending)
	}
}

type vectorRecord []Vector

func (v vectorRecord) Terms() []string { return nil }

func (v vectorRecord) Vectors() []Vector { return v }

func (v vectorRecord) MarshalBinary() ([]byte, error) { return []byte("v"), nil }
