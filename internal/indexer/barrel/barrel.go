// Package barrel stores posting lists in a kvstore bucket, one entry per
// (term, field) column. Keys are "<term>:<field>" with both parts in the
// key alphabet, so all columns of a term are adjacent in key order.
package barrel

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/keycodec"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/posting"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
)

const sep = ':'

// Barrel reads and merges the persisted posting lists of one index.
type Barrel struct {
	kv     kvstore.Store
	schema posting.Schema
	logger *slog.Logger
}

func New(kv kvstore.Store, schema posting.Schema) *Barrel {
	return &Barrel{
		kv:     kv,
		schema: schema,
		logger: slog.Default().With("component", "barrel"),
	}
}

// Key returns the storage key of one column of a term's posting list.
func Key(termID int64, field int) []byte {
	key := keycodec.AppendEncode(nil, uint64(termID))
	key = append(key, sep)
	return keycodec.AppendEncode(key, uint64(field))
}

// Read loads the posting list of termID. A term with nothing stored yields an
// empty list; a term with only some of its columns stored is corrupt.
func (b *Barrel) Read(termID int64) (*posting.List, error) {
	if termID < 0 {
		return posting.NewList(b.schema), nil
	}
	columns := make([][]byte, len(b.schema))
	present := 0
	for i := range b.schema {
		v, err := b.kv.Get(Key(termID, i))
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading term %d field %d: %w", termID, i, err)
		}
		columns[i] = v
		present++
	}
	if present == 0 {
		return posting.NewList(b.schema), nil
	}
	if present != len(b.schema) {
		return nil, apperrors.Decodef("term %d has %d of %d columns", termID, present, len(b.schema))
	}
	l, err := posting.DecodeList(b.schema, columns)
	if err != nil {
		return nil, fmt.Errorf("term %d: %w", termID, err)
	}
	return l, nil
}

// Merge appends each pending list after the stored list of the same term and
// writes every touched column in one atomic batch. Stored order is write
// order; nothing is sorted. It returns the number of postings written.
func (b *Barrel) Merge(pending map[int64]*posting.List) (int, error) {
	if len(pending) == 0 {
		return 0, nil
	}
	termIDs := make([]int64, 0, len(pending))
	for id := range pending {
		termIDs = append(termIDs, id)
	}
	sort.Slice(termIDs, func(i, j int) bool { return termIDs[i] < termIDs[j] })

	batch := b.kv.NewBatch()
	written := 0
	for _, id := range termIDs {
		add := pending[id]
		if add.Len() == 0 {
			continue
		}
		merged, err := b.Read(id)
		if err != nil {
			return 0, fmt.Errorf("merging term %d: %w", id, err)
		}
		if err := merged.AppendList(add); err != nil {
			return 0, fmt.Errorf("merging term %d: %w", id, err)
		}
		for f := range b.schema {
			batch.Put(Key(id, f), merged.EncodeField(f))
		}
		written += add.Len()
	}
	if err := b.kv.Write(batch); err != nil {
		return 0, fmt.Errorf("writing barrel batch: %w", err)
	}
	b.logger.Debug("barrel merged", "terms", len(termIDs), "postings", written)
	return written, nil
}

// Scan decodes every stored posting list in key order.
func (b *Barrel) Scan(fn func(termID int64, l *posting.List) error) error {
	var (
		current []byte
		columns [][]byte
	)
	emit := func() error {
		if current == nil {
			return nil
		}
		id, err := keycodec.Decode(string(current))
		if err != nil {
			return fmt.Errorf("barrel key %q: %w", current, err)
		}
		for f, c := range columns {
			if c == nil {
				return apperrors.Decodef("term %d is missing field %d", id, f)
			}
		}
		l, err := posting.DecodeList(b.schema, columns)
		if err != nil {
			return fmt.Errorf("term %d: %w", id, err)
		}
		return fn(int64(id), l)
	}

	err := b.kv.Iterate(nil, func(key, value []byte) error {
		i := bytes.IndexByte(key, sep)
		if i <= 0 {
			return apperrors.Decodef("barrel key %q has no field part", key)
		}
		term, fieldPart := key[:i], key[i+1:]
		field, err := keycodec.Decode(string(fieldPart))
		if err != nil {
			return fmt.Errorf("barrel key %q: %w", key, err)
		}
		if field >= uint64(len(b.schema)) {
			return apperrors.Decodef("barrel key %q names field %d of %d", key, field, len(b.schema))
		}
		if !bytes.Equal(term, current) {
			if err := emit(); err != nil {
				return err
			}
			current = term
			columns = make([][]byte, len(b.schema))
		}
		columns[field] = value
		return nil
	})
	if err != nil {
		return err
	}
	return emit()
}
