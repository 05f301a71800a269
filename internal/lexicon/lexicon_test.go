package lexicon

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
)

func openBucket(t *testing.T) *kvstore.Bucket {
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
	b, err := db.Bucket("lexicon")
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestInternAssignsIDsInFirstSeenOrder(t *testing.T) {
	l := New(openBucket(t))
	for i, term := range []string{"cat", "sat", "mat", "on"} {
		if id := l.Intern(term); id != int64(i) {
			t.Errorf("Intern(%q) = %d, want %d", term, id, i)
		}
	}
	if id := l.Intern("sat"); id != 1 {
		t.Errorf("re-intern sat = %d", id)
	}
	if l.Len() != 4 {
		t.Errorf("Len = %d", l.Len())
	}
	if f := l.Frequency(1); f != 2 {
		t.Errorf("Frequency(sat) = %d, want 2", f)
	}
}

func TestIDIsReadOnly(t *testing.T) {
	l := New(openBucket(t))
	l.Intern("known")
	if id := l.ID("unknown"); id != NotFound {
		t.Errorf("ID(unknown) = %d", id)
	}
	if l.Len() != 1 {
		t.Errorf("ID created a term")
	}
	if term, ok := l.Term(0); !ok || term != "known" {
		t.Errorf("Term(0) = %q, %v", term, ok)
	}
	if _, ok := l.Term(5); ok {
		t.Errorf("Term(5) found")
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	store := openBucket(t)
	l := New(store)
	l.CountTerms([]string{"a", "b", "a", "c", "a", "b"})
	if err := l.Dump(); err != nil {
		t.Fatal(err)
	}
	// Incremental dump only rewrites changed terms.
	l.CountTerms([]string{"d", "a"})
	if err := l.Dump(); err != nil {
		t.Fatal(err)
	}

	fresh := New(store)
	if err := fresh.Load(); err != nil {
		t.Fatal(err)
	}
	if fresh.Len() != l.Len() {
		t.Fatalf("Len = %d, want %d", fresh.Len(), l.Len())
	}
	for id := int64(0); id < int64(l.Len()); id++ {
		want, _ := l.Term(id)
		got, _ := fresh.Term(id)
		if got != want || fresh.ID(want) != id || fresh.Frequency(id) != l.Frequency(id) {
			t.Errorf("id %d: got (%q, %d), want (%q, %d)", id, got, fresh.Frequency(id), want, l.Frequency(id))
		}
	}
	if fresh.Frequency(fresh.ID("a")) != 4 {
		t.Errorf("frequency of a = %d", fresh.Frequency(fresh.ID("a")))
	}
	if id := fresh.Intern("e"); id != 4 {
		t.Errorf("next id after load = %d", id)
	}
}

func TestLoadIntoNonEmptyLexicon(t *testing.T) {
	l := New(openBucket(t))
	l.Intern("x")
	if err := l.Load(); !errors.Is(err, apperrors.ErrState) {
		t.Fatalf("err = %v, want ErrState", err)
	}
}

func TestLoadRejectsCorruptEntry(t *testing.T) {
	store := openBucket(t)
	if err := store.Put([]byte("bad"), []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	l := New(store)
	if err := l.Load(); !errors.Is(err, apperrors.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if l.Len() != 0 {
		t.Errorf("partial load left %d terms", l.Len())
	}
}

func TestCheckTerm(t *testing.T) {
	cases := map[string]bool{
		"cat":                                     true,
		"":                                        false,
		strings.Repeat("k", kvstore.MaxKeySize):   true,
		strings.Repeat("k", kvstore.MaxKeySize+1): false,
	}
	for term, ok := range cases {
		err := CheckTerm(term)
		if ok && err != nil {
			t.Errorf("term of %d bytes: %v", len(term), err)
		}
		if !ok && !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("term of %d bytes: err = %v, want ErrInvalidInput", len(term), err)
		}
	}
}

func TestDumpRefusesUnstorableTerm(t *testing.T) {
	store := openBucket(t)
	l := New(store)
	l.Intern("cat")
	l.Intern("")
	if err := l.Dump(); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("Dump = %v, want ErrInvalidInput", err)
	}
	loaded := New(store)
	if err := loaded.Load(); err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 0 {
		t.Errorf("partial dump persisted %d terms", loaded.Len())
	}
}
