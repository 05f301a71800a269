// Package blobstore keeps compressed record bytes keyed by record id. Writes
// are buffered and land in the kvstore as one atomic batch per flush. The
// store owns the record-id allocator; its running count is persisted in a
// metadata entry together with the codec the records were written with.
package blobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/compression"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/keycodec"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/metrics"
)

// metaKey cannot collide with a record key: '_' is outside the key alphabet.
var metaKey = []byte("_meta")

type meta struct {
	Records int64             `json:"records"`
	Codec   compression.Codec `json:"codec"`
}

type Store struct {
	kv         kvstore.Store
	comp       compression.Compressor
	batch      *kvstore.Batch
	pending    int
	bufferSize int
	count      int64
	closed     bool
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics records stored records and raw/compressed byte counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open reads the metadata entry of kv, if any. A codec recorded there takes
// precedence over cfg.Compression so records are always read with the codec
// that wrote them.
func Open(kv kvstore.Store, cfg config.BlobConfig, opts ...Option) (*Store, error) {
	if cfg.BufferSize <= 0 {
		return nil, apperrors.Invalidf("blob buffer size %d", cfg.BufferSize)
	}
	codec, err := compression.Parse(cfg.Compression)
	if err != nil {
		return nil, err
	}
	s := &Store{
		kv:         kv,
		batch:      kv.NewBatch(),
		bufferSize: cfg.BufferSize,
		logger:     slog.Default().With("component", "blobstore"),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := kv.Get(metaKey)
	switch {
	case err == nil:
		var m meta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, apperrors.Decodef("blob store metadata: %v", err)
		}
		stored, err := compression.Parse(string(m.Codec))
		if err != nil {
			return nil, fmt.Errorf("blob store metadata: %w", err)
		}
		if stored != codec {
			s.logger.Warn("configured codec differs from stored codec, using stored",
				"configured", codec,
				"stored", stored,
			)
		}
		codec = stored
		s.count = m.Records
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		return nil, fmt.Errorf("reading blob store metadata: %w", err)
	}

	if s.comp, err = compression.New(codec); err != nil {
		return nil, err
	}
	s.logger.Info("blob store opened", "records", s.count, "codec", codec)
	return s, nil
}

// NextID allocates the next record id. Every writer must take ids from here.
func (s *Store) NextID() int64 {
	id := s.count
	s.count++
	return id
}

// RecordCount is the number of ids allocated so far.
func (s *Store) RecordCount() int64 {
	return s.count
}

// Codec reports the codec records are written with.
func (s *Store) Codec() compression.Codec {
	return s.comp.Codec()
}

// Put buffers a record. It is not visible to Get until flushed; a full buffer
// flushes automatically. An id beyond the allocator advances it.
func (s *Store) Put(id int64, data []byte) error {
	if err := s.buffer(id, data); err != nil {
		return err
	}
	if s.pending >= s.bufferSize {
		return s.Flush()
	}
	return nil
}

// Append buffers data under the next free id without flushing, and reports
// whether the buffer has reached its size. A failed Append allocates no id.
func (s *Store) Append(data []byte) (id int64, full bool, err error) {
	id = s.count
	if err := s.buffer(id, data); err != nil {
		return -1, false, err
	}
	return id, s.pending >= s.bufferSize, nil
}

func (s *Store) buffer(id int64, data []byte) error {
	if s.closed {
		return apperrors.Statef("blob store is closed")
	}
	if id < 0 {
		return apperrors.Invalidf("record id %d", id)
	}
	packed, err := s.comp.Compress(data)
	if err != nil {
		return fmt.Errorf("compressing record %d: %w", id, err)
	}
	s.batch.Put(recordKey(id), packed)
	s.pending++
	if id >= s.count {
		s.count = id + 1
	}
	if s.metrics != nil {
		s.metrics.RecordsStoredTotal.Inc()
		s.metrics.BlobBytesTotal.WithLabelValues("raw").Add(float64(len(data)))
		s.metrics.BlobBytesTotal.WithLabelValues("compressed").Add(float64(len(packed)))
	}
	return nil
}

// Pending is the number of buffered, unflushed records.
func (s *Store) Pending() int {
	return s.pending
}

// Flush writes the buffered records and the metadata entry in one batch.
func (s *Store) Flush() error {
	if s.closed {
		return apperrors.Statef("blob store is closed")
	}
	if err := s.writeMeta(s.batch); err != nil {
		return err
	}
	if err := s.kv.Write(s.batch); err != nil {
		return fmt.Errorf("flushing %d records: %w", s.pending, err)
	}
	s.logger.Debug("blob buffer flushed", "records", s.pending, "total", s.count)
	s.batch.Reset()
	s.pending = 0
	return nil
}

// Get returns the decompressed bytes of a flushed record.
func (s *Store) Get(id int64) ([]byte, error) {
	if id < 0 {
		return nil, fmt.Errorf("record %d: %w", id, apperrors.ErrNotFound)
	}
	packed, err := s.kv.Get(recordKey(id))
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", id, err)
	}
	data, err := s.comp.Decompress(packed)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", id, err)
	}
	return data, nil
}

// Close persists the allocator. Buffered records are not flushed: callers
// must Flush before Close or lose them.
func (s *Store) Close() error {
	if s.closed {
		return apperrors.Statef("blob store already closed")
	}
	if s.pending > 0 {
		s.logger.Warn("closing with unflushed records", "pending", s.pending)
	}
	b := s.kv.NewBatch()
	if err := s.writeMeta(b); err != nil {
		return err
	}
	if err := s.kv.Write(b); err != nil {
		return fmt.Errorf("writing blob store metadata: %w", err)
	}
	s.closed = true
	return nil
}

func (s *Store) writeMeta(b *kvstore.Batch) error {
	raw, err := json.Marshal(meta{Records: s.count, Codec: s.comp.Codec()})
	if err != nil {
		return fmt.Errorf("encoding blob store metadata: %w", err)
	}
	b.Put(metaKey, raw)
	return nil
}

func recordKey(id int64) []byte {
	return []byte(keycodec.Encode(uint64(id)))
}
