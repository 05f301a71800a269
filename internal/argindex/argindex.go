// Package argindex indexes relation triples by their argument terms. Each
// argument term maps to a compressed pair list of (triple id, argument
// position); positions are 1-based.
package argindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/compression"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/keycodec"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/posting"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
)

// Argument sentinels. Neither is indexed.
const (
	ArgNone  int64 = -1
	ArgEmpty int64 = -2
)

// Textual forms of the sentinels in triple records.
const (
	NoneToken  = "<NONE>"
	EmptyToken = "<->"
)

// AnyPosition matches an argument at any position.
const AnyPosition = 0

// MaxArgs is the most arguments a triple may carry.
const MaxArgs = 255

var metaKey = []byte("_meta")

type meta struct {
	Codec compression.Codec `json:"codec"`
}

// Arg is one search condition: the argument term and, unless AnyPosition,
// the position it must occupy.
type Arg struct {
	Term     int64
	Position int
}

// Stamp converts textual arguments to ids, interning real terms and mapping
// sentinel tokens to their negative values. An empty string counts as
// EmptyToken.
func Stamp(args []string, intern func(string) int64) []int64 {
	out := make([]int64, len(args))
	for i, a := range args {
		switch a {
		case NoneToken:
			out[i] = ArgNone
		case EmptyToken, "":
			out[i] = ArgEmpty
		default:
			out[i] = intern(a)
		}
	}
	return out
}

// Index is single-writer; Postings and Search are safe for concurrent readers
// once writing has stopped.
type Index struct {
	kv             kvstore.Store
	comp           compression.Compressor
	pending        map[int64][]posting.Pair
	cached         int
	flushThreshold int
	logger         *slog.Logger
}

// Open binds the index to kv. The codec stored with an existing index wins
// over codec; a new index records codec on its first flush.
func Open(kv kvstore.Store, codec compression.Codec, flushThreshold int) (*Index, error) {
	if flushThreshold <= 0 {
		return nil, apperrors.Invalidf("argument index flush threshold %d", flushThreshold)
	}
	logger := slog.Default().With("component", "argindex")
	raw, err := kv.Get(metaKey)
	switch {
	case err == nil:
		var m meta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, apperrors.Decodef("argument index metadata: %v", err)
		}
		if codec, err = compression.Parse(string(m.Codec)); err != nil {
			return nil, fmt.Errorf("argument index metadata: %w", err)
		}
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		return nil, fmt.Errorf("reading argument index metadata: %w", err)
	}
	comp, err := compression.New(codec)
	if err != nil {
		return nil, err
	}
	logger.Info("argument index opened", "codec", codec, "flush_threshold", flushThreshold)
	return &Index{
		kv:             kv,
		comp:           comp,
		pending:        make(map[int64][]posting.Pair),
		flushThreshold: flushThreshold,
		logger:         logger,
	}, nil
}

// AddTriple buffers the triple and flushes once the buffer holds
// flushThreshold triples.
func (x *Index) AddTriple(tripleID int64, args []int64) error {
	full, err := x.Buffer(tripleID, args)
	if err != nil || !full {
		return err
	}
	return x.Flush()
}

// Buffer adds one pair per real argument of the triple without flushing and
// reports whether the buffer has reached its threshold. A rejected triple
// leaves the buffer untouched.
func (x *Index) Buffer(tripleID int64, args []int64) (full bool, err error) {
	if tripleID < 0 {
		return false, apperrors.Invalidf("triple id %d", tripleID)
	}
	if len(args) > MaxArgs {
		return false, apperrors.Invalidf("triple %d has %d arguments", tripleID, len(args))
	}
	for i, a := range args {
		if a < 0 {
			continue
		}
		x.pending[a] = append(x.pending[a], posting.Pair{ID: tripleID, Aux: uint8(i + 1)})
	}
	x.cached++
	return x.cached >= x.flushThreshold, nil
}

// Pending is the number of buffered triples.
func (x *Index) Pending() int {
	return x.cached
}

// Flush appends every buffered pair list to its stored list in one batch.
func (x *Index) Flush() error {
	if len(x.pending) == 0 {
		x.cached = 0
		return nil
	}
	termIDs := make([]int64, 0, len(x.pending))
	for id := range x.pending {
		termIDs = append(termIDs, id)
	}
	sort.Slice(termIDs, func(i, j int) bool { return termIDs[i] < termIDs[j] })

	batch := x.kv.NewBatch()
	data, err := json.Marshal(meta{Codec: x.comp.Codec()})
	if err != nil {
		return fmt.Errorf("encoding argument index metadata: %w", err)
	}
	batch.Put(metaKey, data)
	for _, id := range termIDs {
		old, err := x.stored(id)
		if err != nil {
			return err
		}
		updated, err := posting.UpdatePairs(old, x.pending[id])
		if err != nil {
			return fmt.Errorf("argument term %d: %w", id, err)
		}
		packed, err := x.comp.Compress(updated)
		if err != nil {
			return fmt.Errorf("compressing argument term %d: %w", id, err)
		}
		batch.Put(termKey(id), packed)
	}
	if err := x.kv.Write(batch); err != nil {
		return fmt.Errorf("flushing argument index: %w", err)
	}
	x.logger.Info("argument index flushed", "terms", len(termIDs), "triples", x.cached)
	x.pending = make(map[int64][]posting.Pair)
	x.cached = 0
	return nil
}

// Postings returns the stored pairs of an argument term, empty if unknown.
func (x *Index) Postings(termID int64) ([]posting.Pair, error) {
	data, err := x.stored(termID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	pairs, err := posting.DecodePairs(data)
	if err != nil {
		return nil, fmt.Errorf("argument term %d: %w", termID, err)
	}
	return pairs, nil
}

// Search returns the sorted ids of triples matching every argument
// condition. Conditions on negative (unknown) terms are dropped; with no
// usable condition the result is empty.
func (x *Index) Search(args []Arg) ([]int64, error) {
	return x.SearchWithin(args, nil)
}

// SearchWithin is Search restricted to the triple ids in within, such as the
// records of one relation. A nil within means no restriction.
func (x *Index) SearchWithin(args []Arg, within map[int64]struct{}) ([]int64, error) {
	result := within
	used := false
	for _, a := range args {
		if a.Term < 0 {
			continue
		}
		used = true
		pairs, err := x.Postings(a.Term)
		if err != nil {
			return nil, err
		}
		matched := make(map[int64]struct{}, len(pairs))
		for _, p := range pairs {
			if a.Position != AnyPosition && int(p.Aux) != a.Position {
				continue
			}
			if result == nil {
				matched[p.ID] = struct{}{}
			} else if _, ok := result[p.ID]; ok {
				matched[p.ID] = struct{}{}
			}
		}
		result = matched
		if len(result) == 0 {
			break
		}
	}
	if !used {
		return []int64{}, nil
	}
	ids := make([]int64, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// stored returns the decompressed pair list of a term, or nil if absent.
func (x *Index) stored(termID int64) ([]byte, error) {
	if termID < 0 {
		return nil, nil
	}
	packed, err := x.kv.Get(termKey(termID))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading argument term %d: %w", termID, err)
	}
	data, err := x.comp.Decompress(packed)
	if err != nil {
		return nil, fmt.Errorf("argument term %d: %w", termID, err)
	}
	return data, nil
}

func termKey(termID int64) []byte {
	return []byte(keycodec.Encode(uint64(termID)))
}
