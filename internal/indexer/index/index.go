// Package index is the inverted index: postings are buffered per term in
// memory and periodically dump-and-merged into the barrel, where each term's
// stored list grows by concatenation. Schema and counters live in
// index.json under the data directory.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer/barrel"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/posting"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
)

// MetaFile is the metadata file name inside the data directory.
const MetaFile = "index.json"

// Meta is the persisted description of an index.
type Meta struct {
	Fields    []posting.Field `json:"fields"`
	Documents int64           `json:"documents"`
	Postings  int64           `json:"postings"`
}

// Row is one posting of a record: the term it belongs to and the values of
// every non-primary field, in schema order.
type Row struct {
	Term int64
	Aux  []int64
}

// Index is single-writer. PostingList may be called concurrently by readers
// once writing has stopped.
type Index struct {
	dataDir string
	schema  posting.Schema
	barrel  *barrel.Barrel

	pending         map[int64]*posting.List
	pendingPostings int
	documents       int64
	postings        int64

	memMu  sync.RWMutex
	memory map[int64]*posting.List

	readOnly bool
	closed   bool
	logger   *slog.Logger
}

// SchemaFromConfig converts configured fields into a validated schema.
func SchemaFromConfig(fields []config.FieldConfig) (posting.Schema, error) {
	out := make([]posting.Field, len(fields))
	for i, f := range fields {
		t, err := posting.ParseFieldType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out[i] = posting.Field{Name: f.Name, Type: t}
	}
	return posting.NewSchema(out...)
}

// Open resumes the index in dataDir or initialises it with schema. A stored
// schema always wins; a differing argument is logged and ignored.
func Open(dataDir string, kv kvstore.Store, schema posting.Schema) (*Index, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	idx := &Index{
		dataDir: dataDir,
		pending: make(map[int64]*posting.List),
		memory:  make(map[int64]*posting.List),
		logger:  slog.Default().With("component", "index"),
	}

	meta, err := readMeta(filepath.Join(dataDir, MetaFile))
	switch {
	case err == nil:
		stored, err := posting.NewSchema(meta.Fields...)
		if err != nil {
			return nil, fmt.Errorf("loading index schema: %w", err)
		}
		if schema != nil && !schema.Equal(stored) {
			idx.logger.Warn("configured schema differs from stored schema, using stored",
				"configured", schema,
				"stored", stored,
			)
		}
		idx.schema = stored
		idx.documents = meta.Documents
		idx.postings = meta.Postings
	case errors.Is(err, os.ErrNotExist):
		if len(schema) == 0 {
			return nil, fmt.Errorf("new index needs a schema: %w", apperrors.ErrUnsupportedSchema)
		}
		idx.schema = schema
		if err := idx.writeMeta(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}

	idx.barrel = barrel.New(kv, idx.schema)
	idx.logOpened()
	return idx, nil
}

// OpenReadOnly opens an existing index for queries. It never touches the
// data directory: a missing index.json is ErrNotFound, and Add, Flush, and
// Close leave the metadata as they found it.
func OpenReadOnly(dataDir string, kv kvstore.Store) (*Index, error) {
	meta, err := readMeta(filepath.Join(dataDir, MetaFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("index metadata in %s: %w", dataDir, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}
	schema, err := posting.NewSchema(meta.Fields...)
	if err != nil {
		return nil, fmt.Errorf("loading index schema: %w", err)
	}
	idx := &Index{
		dataDir:   dataDir,
		schema:    schema,
		barrel:    barrel.New(kv, schema),
		pending:   make(map[int64]*posting.List),
		memory:    make(map[int64]*posting.List),
		documents: meta.Documents,
		postings:  meta.Postings,
		readOnly:  true,
		logger:    slog.Default().With("component", "index"),
	}
	idx.logOpened()
	return idx, nil
}

func (idx *Index) logOpened() {
	idx.logger.Info("index opened",
		"data_dir", idx.dataDir,
		"fields", len(idx.schema),
		"documents", idx.documents,
		"postings", idx.postings,
		"read_only", idx.readOnly,
	)
}

func (idx *Index) Schema() posting.Schema { return idx.schema }

// FieldIndex returns the column position of a named field.
func (idx *Index) FieldIndex(name string) (int, bool) {
	return idx.schema.Index(name)
}

// Documents is the number of records added through AddRecord.
func (idx *Index) Documents() int64 { return idx.documents }

// Postings is the number of postings ever added.
func (idx *Index) Postings() int64 { return idx.postings }

// Pending is the number of buffered postings not yet flushed.
func (idx *Index) Pending() int { return idx.pendingPostings }

func (idx *Index) writable() error {
	switch {
	case idx.closed:
		return apperrors.Statef("index is closed")
	case idx.readOnly:
		return apperrors.Statef("index is read-only")
	}
	return nil
}

// CheckAux reports whether aux holds a valid value for every non-primary
// field.
func (idx *Index) CheckAux(aux []int64) error {
	if len(aux) != len(idx.schema)-1 {
		return apperrors.Invalidf("%d aux values for %d fields", len(aux), len(idx.schema))
	}
	return idx.schema[1:].Check(aux)
}

// Add buffers one posting for termID. values holds one value per field.
func (idx *Index) Add(termID int64, values ...int64) error {
	if err := idx.writable(); err != nil {
		return err
	}
	if termID < 0 {
		return apperrors.Invalidf("term id %d", termID)
	}
	l, ok := idx.pending[termID]
	if !ok {
		l = posting.NewList(idx.schema)
		idx.pending[termID] = l
	}
	if err := l.Append(values...); err != nil {
		return fmt.Errorf("term %d: %w", termID, err)
	}
	idx.pendingPostings++
	idx.postings++
	return nil
}

// AddRecord buffers one posting per row with recordID as the primary value
// and counts the record. Every row is checked before any is buffered, so a
// rejected record leaves the index unchanged.
func (idx *Index) AddRecord(recordID int64, rows []Row) error {
	if err := idx.writable(); err != nil {
		return err
	}
	if !idx.schema[0].Type.Fits(recordID) {
		return apperrors.Invalidf("record id %d overflows field %q (%s)", recordID, idx.schema[0].Name, idx.schema[0].Type)
	}
	for i, r := range rows {
		if r.Term < 0 {
			return apperrors.Invalidf("record %d row %d: term id %d", recordID, i, r.Term)
		}
		if err := idx.CheckAux(r.Aux); err != nil {
			return fmt.Errorf("record %d row %d: %w", recordID, i, err)
		}
	}
	values := make([]int64, len(idx.schema))
	values[0] = recordID
	for _, r := range rows {
		copy(values[1:], r.Aux)
		if err := idx.Add(r.Term, values...); err != nil {
			return fmt.Errorf("record %d: %w", recordID, err)
		}
	}
	idx.documents++
	return nil
}

// Flush dump-and-merges every buffered list into the barrel in one batch,
// then drops in-memory copies of the touched terms so later reads see the
// merged lists.
func (idx *Index) Flush() error {
	if err := idx.writable(); err != nil {
		return err
	}
	if len(idx.pending) > 0 {
		written, err := idx.barrel.Merge(idx.pending)
		if err != nil {
			return fmt.Errorf("flushing index: %w", err)
		}
		idx.memMu.Lock()
		for id := range idx.pending {
			delete(idx.memory, id)
		}
		idx.memMu.Unlock()
		idx.logger.Info("index flushed", "terms", len(idx.pending), "postings", written)
		idx.pending = make(map[int64]*posting.List)
		idx.pendingPostings = 0
	}
	return idx.writeMeta()
}

// LoadToMemory reads the whole barrel once so PostingList never touches the
// store. It is meant for query sessions, not for an index being written.
func (idx *Index) LoadToMemory() error {
	loaded := make(map[int64]*posting.List)
	err := idx.barrel.Scan(func(termID int64, l *posting.List) error {
		loaded[termID] = l
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading barrel: %w", err)
	}
	idx.memMu.Lock()
	idx.memory = loaded
	idx.memMu.Unlock()
	idx.logger.Info("barrel loaded to memory", "terms", len(loaded))
	return nil
}

// LoadPostingList reads one term's stored list, bypassing memory.
func (idx *Index) LoadPostingList(termID int64) (*posting.List, error) {
	return idx.barrel.Read(termID)
}

// PostingList returns the stored list of termID, from memory when loaded.
// Unflushed postings are not visible. Unknown terms yield an empty list.
func (idx *Index) PostingList(termID int64) (*posting.List, error) {
	idx.memMu.RLock()
	l, ok := idx.memory[termID]
	idx.memMu.RUnlock()
	if ok {
		return l, nil
	}
	return idx.barrel.Read(termID)
}

// Close persists counters. Buffered postings are not flushed.
func (idx *Index) Close() error {
	if idx.closed {
		return apperrors.Statef("index already closed")
	}
	if idx.pendingPostings > 0 {
		idx.logger.Warn("closing with unflushed postings", "pending", idx.pendingPostings)
	}
	if !idx.readOnly {
		if err := idx.writeMeta(); err != nil {
			return err
		}
	}
	idx.closed = true
	idx.memMu.Lock()
	idx.memory = nil
	idx.memMu.Unlock()
	return nil
}

func (idx *Index) writeMeta() error {
	data, err := json.MarshalIndent(Meta{
		Fields:    idx.schema,
		Documents: idx.documents,
		Postings:  idx.postings,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index metadata: %w", err)
	}
	finalPath := filepath.Join(idx.dataDir, MetaFile)
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming index metadata: %w", err)
	}
	return nil
}

func readMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Decodef("index metadata %s: %v", path, err)
	}
	return &m, nil
}
