package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/argindex"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/blobstore"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/lexicon"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/metrics"
)

// Bucket names inside the shared store.
const (
	LexiconBucket = "lexicon"
	BlobBucket    = "blobs"
	BarrelBucket  = "barrels"
	ArgBucket     = "args"
)

// Engine is the single writer over the lexicon, blob store, inverted index,
// and (optionally) argument index. Its mutex serialises Index calls with the
// flush loop.
type Engine struct {
	mu        sync.Mutex
	lex       *lexicon.Lexicon
	blobs     *blobstore.Store
	idx       *index.Index
	args      *argindex.Index
	cfg       config.IndexConfig
	dumpEvery int
	freqField int
	sinceDump int
	flushErr  error
	closed    bool
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewEngine opens every component inside db, resuming persisted state.
func NewEngine(db *kvstore.DB, cfg *config.Config, m *metrics.Metrics) (*Engine, error) {
	buckets := make(map[string]*kvstore.Bucket, 4)
	for _, name := range []string{LexiconBucket, BlobBucket, BarrelBucket, ArgBucket} {
		b, err := db.Bucket(name)
		if err != nil {
			return nil, err
		}
		buckets[name] = b
	}

	lex := lexicon.New(buckets[LexiconBucket])
	if err := lex.Load(); err != nil {
		return nil, fmt.Errorf("loading lexicon: %w", err)
	}
	blobs, err := blobstore.Open(buckets[BlobBucket], cfg.Blobs, blobstore.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	schema, err := index.SchemaFromConfig(cfg.Index.Fields)
	if err != nil {
		return nil, fmt.Errorf("index schema: %w", err)
	}
	idx, err := index.Open(cfg.Index.DataDir, buckets[BarrelBucket], schema)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	e := &Engine{
		lex:       lex,
		blobs:     blobs,
		idx:       idx,
		cfg:       cfg.Index,
		dumpEvery: cfg.Lexicon.DumpEvery,
		freqField: -1,
		metrics:   m,
		logger:    slog.Default().With("component", "indexer"),
	}
	if f, ok := idx.FieldIndex("freq"); ok && f > 0 {
		e.freqField = f
	}
	if cfg.Args.Enabled {
		e.args, err = argindex.Open(buckets[ArgBucket], blobs.Codec(), cfg.Args.FlushThreshold)
		if err != nil {
			return nil, fmt.Errorf("opening argument index: %w", err)
		}
	}
	if m != nil {
		m.LexiconTerms.Set(float64(lex.Len()))
	}
	e.logger.Info("indexer engine ready",
		"terms", lex.Len(),
		"records", blobs.RecordCount(),
		"documents", idx.Documents(),
		"args_enabled", e.args != nil,
	)
	return e, nil
}

// FlushError reports that a record was indexed but a flush it triggered
// failed. The record stays buffered and a later flush retries the write.
type FlushError struct {
	RecordID int64
	Err      error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("record %d indexed, flush failed: %v", e.RecordID, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

// Index assigns rec the next record id, adds its postings, and stores its
// bytes. The record is checked in full before anything is buffered, so a
// rejected record changes no component. Buffers that reach their thresholds
// are flushed afterwards; a failure there is returned as a *FlushError
// together with the record's id.
func (e *Engine) Index(rec Record) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, apperrors.Statef("indexer engine is closed")
	}

	data, err := rec.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("encoding record: %w", err)
	}
	planned, err := e.plan(rec)
	if err != nil {
		return 0, err
	}
	var args []string
	if t, ok := rec.(Triple); ok && e.args != nil {
		if args, err = checkArgs(t.Args()); err != nil {
			return 0, err
		}
	}

	id, blobsFull, err := e.blobs.Append(data)
	if err != nil {
		return 0, fmt.Errorf("storing record: %w", err)
	}
	rows := make([]index.Row, len(planned))
	for i, p := range planned {
		rows[i] = index.Row{Term: e.lex.Intern(p.term), Aux: p.aux}
	}
	if err := e.idx.AddRecord(id, rows); err != nil {
		return 0, fmt.Errorf("indexing record %d: %w", id, err)
	}
	argsFull := false
	if args != nil {
		if argsFull, err = e.args.Buffer(id, argindex.Stamp(args, e.argID)); err != nil {
			return 0, fmt.Errorf("indexing arguments of record %d: %w", id, err)
		}
	}
	if e.metrics != nil {
		e.metrics.PostingsAddedTotal.Add(float64(len(rows)))
	}
	e.logger.Debug("record indexed", "record_id", id, "postings", len(rows))

	if err := e.afterIndex(blobsFull, argsFull); err != nil {
		e.flushErr = err
		return id, &FlushError{RecordID: id, Err: err}
	}
	return id, nil
}

// afterIndex flushes whatever the last record filled up.
func (e *Engine) afterIndex(blobsFull, argsFull bool) error {
	e.sinceDump++
	if e.idx.Pending() >= e.cfg.FlushThreshold {
		e.logger.Info("posting buffer full, flushing",
			"pending", e.idx.Pending(),
			"threshold", e.cfg.FlushThreshold,
		)
		return e.flushLocked()
	}
	if blobsFull {
		if err := e.observe("blobs", e.blobs.Flush); err != nil {
			return fmt.Errorf("flushing blob store: %w", err)
		}
	}
	if argsFull {
		if err := e.observe("args", e.args.Flush); err != nil {
			return err
		}
	}
	if e.dumpEvery > 0 && e.sinceDump >= e.dumpEvery {
		return e.dumpLexicon()
	}
	return nil
}

// checkArgs rejects arguments the lexicon cannot hold. Sentinels and empty
// strings are not interned.
func checkArgs(args []string) ([]string, error) {
	if len(args) > argindex.MaxArgs {
		return nil, apperrors.Invalidf("%d arguments, at most %d allowed", len(args), argindex.MaxArgs)
	}
	for i, a := range args {
		if a == "" || a == argindex.NoneToken || a == argindex.EmptyToken {
			continue
		}
		if err := lexicon.CheckTerm(a); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
	}
	return args, nil
}

// argID resolves an argument without counting it again if it was already
// interned as one of the record's terms.
func (e *Engine) argID(term string) int64 {
	if id := e.lex.ID(term); id != lexicon.NotFound {
		return id
	}
	return e.lex.Intern(term)
}

type plannedRow struct {
	term string
	aux  []int64
}

// plan builds and checks the posting rows of rec without touching any
// component: its own vectors if it is a Vectorizer, otherwise one row per
// distinct term with the freq field set.
func (e *Engine) plan(rec Record) ([]plannedRow, error) {
	width := len(e.idx.Schema()) - 1
	var rows []plannedRow
	if v, ok := rec.(Vectorizer); ok {
		vectors := v.Vectors()
		rows = make([]plannedRow, len(vectors))
		for i, vec := range vectors {
			if len(vec.Aux) != width {
				return nil, apperrors.Invalidf("vector %d has %d values, schema needs %d", i, len(vec.Aux), width)
			}
			rows[i] = plannedRow{term: vec.Term, aux: vec.Aux}
		}
	} else {
		counts := make(map[string]int64)
		var order []string
		for _, t := range rec.Terms() {
			if counts[t] == 0 {
				order = append(order, t)
			}
			counts[t]++
		}
		rows = make([]plannedRow, len(order))
		for i, t := range order {
			aux := make([]int64, width)
			if e.freqField > 0 {
				c := counts[t]
				if ft := e.idx.Schema()[e.freqField].Type; !ft.Fits(c) {
					c = ft.Max()
				}
				aux[e.freqField-1] = c
			}
			rows[i] = plannedRow{term: t, aux: aux}
		}
	}
	for i, r := range rows {
		if err := lexicon.CheckTerm(r.term); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := e.idx.CheckAux(r.aux); err != nil {
			return nil, fmt.Errorf("row %d term %q: %w", i, r.term, err)
		}
	}
	return rows, nil
}

// Flush writes every buffered component.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.Statef("indexer engine is closed")
	}
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	err := e.flushAll()
	e.flushErr = err
	return err
}

func (e *Engine) flushAll() error {
	start := time.Now()
	if err := e.observe("blobs", e.blobs.Flush); err != nil {
		return fmt.Errorf("flushing blob store: %w", err)
	}
	if err := e.observe("index", e.idx.Flush); err != nil {
		return err
	}
	if e.args != nil {
		if err := e.observe("args", e.args.Flush); err != nil {
			return err
		}
	}
	if err := e.dumpLexicon(); err != nil {
		return err
	}
	e.logger.Info("engine flushed",
		"records", e.blobs.RecordCount(),
		"terms", e.lex.Len(),
		"duration", time.Since(start),
	)
	return nil
}

func (e *Engine) dumpLexicon() error {
	e.sinceDump = 0
	if err := e.observe("lexicon", e.lex.Dump); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.LexiconTerms.Set(float64(e.lex.Len()))
	}
	return nil
}

func (e *Engine) observe(component string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.ObserveFlush(component, status, time.Since(start).Seconds())
	return err
}

// StartFlushLoop flushes every FlushInterval until ctx is cancelled.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping")
				return
			case <-ticker.C:
				e.mu.Lock()
				if !e.closed && (e.idx.Pending() > 0 || e.blobs.Pending() > 0) {
					if err := e.flushLocked(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
				e.mu.Unlock()
			}
		}
	}()
}

// Close performs a final flush and persists counters.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.Statef("indexer engine already closed")
	}
	if err := e.flushLocked(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
		return err
	}
	e.closed = true
	if err := e.blobs.Close(); err != nil {
		return err
	}
	return e.idx.Close()
}

// Health reports degraded while the most recent flush attempt has failed.
func (e *Engine) Health(context.Context) health.ComponentHealth {
	records, terms, pending := e.Stats()
	e.mu.Lock()
	flushErr := e.flushErr
	e.mu.Unlock()
	h := health.ComponentHealth{
		Status:  health.StatusUp,
		Message: fmt.Sprintf("%d records, %d terms, %d pending postings", records, terms, pending),
	}
	if flushErr != nil {
		h.Status = health.StatusDegraded
		h.Message += "; last flush failed: " + flushErr.Error()
	}
	return h
}

// Stats reports stored records, distinct terms, and postings waiting for
// the next flush.
func (e *Engine) Stats() (records int64, terms int, pending int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blobs.RecordCount(), e.lex.Len(), e.idx.Pending()
}

func (e *Engine) Lexicon() *lexicon.Lexicon { return e.lex }

func (e *Engine) Blobs() *blobstore.Store { return e.blobs }

func (e *Engine) InvertedIndex() *index.Index { return e.idx }

// Args is nil unless the argument index is enabled.
func (e *Engine) Args() *argindex.Index { return e.args }
