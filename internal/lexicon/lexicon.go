// Package lexicon maps terms to dense integer ids and counts how often each
// term was interned. The table lives in memory and is dumped to, or loaded
// from, a kvstore bucket in bulk.
//
// A Lexicon has no internal locking: mutation must come from one writer, and
// concurrent readers are only safe once writing has stopped.
package lexicon

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
)

// NotFound is returned by ID for unknown terms.
const NotFound int64 = -1

const entrySize = 16

type Lexicon struct {
	store  kvstore.Store
	ids    map[string]int64
	terms  []string
	freqs  []int64
	dirty  map[int64]struct{}
	logger *slog.Logger
}

func New(store kvstore.Store) *Lexicon {
	return &Lexicon{
		store:  store,
		ids:    make(map[string]int64),
		dirty:  make(map[int64]struct{}),
		logger: slog.Default().With("component", "lexicon"),
	}
}

// CheckTerm reports whether term can be persisted as a lexicon key.
func CheckTerm(term string) error {
	switch {
	case term == "":
		return apperrors.Invalidf("empty term")
	case len(term) > kvstore.MaxKeySize:
		return apperrors.Invalidf("term of %d bytes exceeds %d", len(term), kvstore.MaxKeySize)
	}
	return nil
}

// Intern returns the id of term, assigning the next id if the term is new.
// Every call increments the term's frequency. Callers validate terms with
// CheckTerm first; Dump refuses to persist a table holding an invalid one.
func (l *Lexicon) Intern(term string) int64 {
	id, ok := l.ids[term]
	if !ok {
		id = int64(len(l.terms))
		l.ids[term] = id
		l.terms = append(l.terms, term)
		l.freqs = append(l.freqs, 0)
	}
	l.freqs[id]++
	l.dirty[id] = struct{}{}
	return id
}

// CountTerms interns every term in order and returns their ids.
func (l *Lexicon) CountTerms(terms []string) []int64 {
	ids := make([]int64, len(terms))
	for i, t := range terms {
		ids[i] = l.Intern(t)
	}
	return ids
}

// ID looks term up without modifying the table.
func (l *Lexicon) ID(term string) int64 {
	if id, ok := l.ids[term]; ok {
		return id
	}
	return NotFound
}

// Term is the reverse lookup of ID.
func (l *Lexicon) Term(id int64) (string, bool) {
	if id < 0 || id >= int64(len(l.terms)) {
		return "", false
	}
	return l.terms[id], true
}

// Frequency returns how many times the term with this id was interned, or 0
// for an unknown id.
func (l *Lexicon) Frequency(id int64) int64 {
	if id < 0 || id >= int64(len(l.freqs)) {
		return 0
	}
	return l.freqs[id]
}

func (l *Lexicon) Len() int {
	return len(l.terms)
}

// Dump writes every term changed since the previous Dump or Load as
// term -> (id, frequency) in one atomic batch.
func (l *Lexicon) Dump() error {
	if len(l.dirty) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(l.dirty))
	for id := range l.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	batch := l.store.NewBatch()
	for _, id := range ids {
		if err := CheckTerm(l.terms[id]); err != nil {
			return fmt.Errorf("dumping lexicon: term %d: %w", id, err)
		}
		batch.Put([]byte(l.terms[id]), encodeEntry(id, l.freqs[id]))
	}
	if err := l.store.Write(batch); err != nil {
		return fmt.Errorf("dumping lexicon: %w", err)
	}
	l.dirty = make(map[int64]struct{})
	l.logger.Info("lexicon dumped", "written", len(ids), "terms", len(l.terms))
	return nil
}

// Load reads the whole persisted table. It refuses to merge into a lexicon
// that already holds terms.
func (l *Lexicon) Load() error {
	if len(l.terms) > 0 {
		return apperrors.Statef("loading into a lexicon holding %d terms", len(l.terms))
	}
	type entry struct {
		term string
		freq int64
	}
	byID := make(map[int64]entry)
	err := l.store.Iterate(nil, func(key, value []byte) error {
		if len(value) != entrySize {
			return apperrors.Decodef("lexicon entry %q has %d bytes", key, len(value))
		}
		id, freq := decodeEntry(value)
		if id < 0 {
			return apperrors.Decodef("lexicon entry %q has id %d", key, id)
		}
		if _, dup := byID[id]; dup {
			return apperrors.Decodef("lexicon id %d assigned twice", id)
		}
		byID[id] = entry{term: string(key), freq: freq}
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading lexicon: %w", err)
	}

	terms := make([]string, len(byID))
	freqs := make([]int64, len(byID))
	for id, e := range byID {
		if id >= int64(len(byID)) {
			return apperrors.Decodef("lexicon ids are not dense: id %d of %d terms", id, len(byID))
		}
		terms[id] = e.term
		freqs[id] = e.freq
	}
	for id, t := range terms {
		l.ids[t] = int64(id)
	}
	l.terms = terms
	l.freqs = freqs
	l.logger.Info("lexicon loaded", "terms", len(terms))
	return nil
}

func encodeEntry(id, freq int64) []byte {
	buf := make([]byte, entrySize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(id))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(freq))
	return buf
}

func decodeEntry(buf []byte) (id, freq int64) {
	return int64(binary.LittleEndian.Uint64(buf[0:8])), int64(binary.LittleEndian.Uint64(buf[8:16]))
}
