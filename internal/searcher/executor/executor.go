// Package executor evaluates boolean queries against posting lists: Find
// intersects per-term candidate sets (AND); FindOr reports, per id, which
// terms matched (OR).
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/posting"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/metrics"
)

// Source supplies stored posting lists. An unknown term yields an empty list.
type Source interface {
	PostingList(termID int64) (*posting.List, error)
	Schema() posting.Schema
}

type Executor struct {
	src           Source
	maxConcurrent int
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxConcurrentLoads bounds parallel posting-list loads per query.
func WithMaxConcurrentLoads(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func New(src Source, opts ...Option) *Executor {
	e := &Executor{
		src:           src,
		maxConcurrent: 4,
		logger:        slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// compiled is a query term with field names resolved to columns.
type compiled struct {
	id      int64
	fields  []int
	matches []func(int64) bool
}

// Find returns the ids present in every term's candidate set. A term's
// candidates are the return-field values of the rows passing all of its
// constraints. An unknown term makes the result empty.
func (e *Executor) Find(ctx context.Context, q Query) (map[int64]struct{}, error) {
	start := time.Now()
	retField, terms, err := e.compile(q)
	if err != nil {
		return nil, err
	}
	result := make(map[int64]struct{})
	if len(terms) == 0 {
		return result, nil
	}
	for _, t := range terms {
		if t.id < 0 {
			e.observe("and", start, 0)
			return result, nil
		}
	}
	lists, err := e.load(ctx, terms)
	if err != nil {
		return nil, err
	}

	for i, t := range terms {
		if i == 0 {
			eachCandidate(lists[i], t, retField, func(v int64) { result[v] = struct{}{} })
		} else {
			next := make(map[int64]struct{}, len(result))
			eachCandidate(lists[i], t, retField, func(v int64) {
				if _, ok := result[v]; ok {
					next[v] = struct{}{}
				}
			})
			result = next
		}
		if len(result) == 0 {
			break
		}
	}
	e.observe("and", start, len(result))
	e.logger.Debug("and query executed", "terms", len(terms), "results", len(result))
	return result, nil
}

// FindOr maps every id matched by at least one term to the ids of the terms
// that matched it, in query order. Unknown terms are skipped.
func (e *Executor) FindOr(ctx context.Context, q Query) (map[int64][]int64, error) {
	start := time.Now()
	retField, terms, err := e.compile(q)
	if err != nil {
		return nil, err
	}
	known := make([]compiled, 0, len(terms))
	for _, t := range terms {
		if t.id >= 0 {
			known = append(known, t)
		}
	}
	result := make(map[int64][]int64)
	if len(known) == 0 {
		e.observe("or", start, 0)
		return result, nil
	}
	lists, err := e.load(ctx, known)
	if err != nil {
		return nil, err
	}
	for i, t := range known {
		seen := make(map[int64]struct{})
		eachCandidate(lists[i], t, retField, func(v int64) {
			if _, dup := seen[v]; dup {
				return
			}
			seen[v] = struct{}{}
			result[v] = append(result[v], t.id)
		})
	}
	e.observe("or", start, len(result))
	e.logger.Debug("or query executed", "terms", len(known), "results", len(result))
	return result, nil
}

// Joined is an id found by two FindOr passes with the terms each matched.
type Joined struct {
	Left  []int64 `json:"left"`
	Right []int64 `json:"right"`
}

// Join keeps the ids present in both FindOr results.
func Join(left, right map[int64][]int64) map[int64]Joined {
	out := make(map[int64]Joined)
	for id, l := range left {
		if r, ok := right[id]; ok {
			out[id] = Joined{Left: l, Right: r}
		}
	}
	return out
}

func (e *Executor) compile(q Query) (int, []compiled, error) {
	schema := e.src.Schema()
	retField := 0
	if q.ReturnField != "" {
		i, ok := schema.Index(q.ReturnField)
		if !ok {
			return 0, nil, apperrors.Invalidf("unknown return field %q", q.ReturnField)
		}
		retField = i
	}
	terms := make([]compiled, len(q.Terms))
	for i, t := range q.Terms {
		c := compiled{id: t.ID}
		for _, con := range t.Constraints {
			f, ok := schema.Index(con.Field)
			if !ok {
				return 0, nil, apperrors.Invalidf("unknown constraint field %q", con.Field)
			}
			match, err := con.Predicate()
			if err != nil {
				return 0, nil, err
			}
			c.fields = append(c.fields, f)
			c.matches = append(c.matches, match)
		}
		terms[i] = c
	}
	return retField, terms, nil
}

// load fetches every term's list concurrently. A NotFound from the source is
// an empty list; any other error aborts the query.
func (e *Executor) load(ctx context.Context, terms []compiled) ([]*posting.List, error) {
	lists := make([]*posting.List, len(terms))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	for i, t := range terms {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			l, err := e.src.PostingList(t.id)
			if errors.Is(err, apperrors.ErrNotFound) {
				l, err = posting.NewList(e.src.Schema()), nil
			}
			if err != nil {
				return fmt.Errorf("loading term %d: %w", t.id, err)
			}
			lists[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

func eachCandidate(l *posting.List, t compiled, retField int, fn func(int64)) {
	n := l.Len()
	if len(t.matches) == 0 {
		for row := 0; row < n; row++ {
			fn(l.Value(retField, row))
		}
		return
	}
rows:
	for row := 0; row < n; row++ {
		for j, f := range t.fields {
			if !t.matches[j](l.Value(f, row)) {
				continue rows
			}
		}
		fn(l.Value(retField, row))
	}
}

func (e *Executor) observe(mode string, start time.Time, results int) {
	resultType := "hit"
	if results == 0 {
		resultType = "empty"
	}
	e.metrics.ObserveQuery(mode, resultType, time.Since(start).Seconds(), results)
}
