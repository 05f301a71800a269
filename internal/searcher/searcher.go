// Package searcher serves queries over a store written by the indexer: it
// resolves query text through the lexicon, runs it with the executor, and
// fetches stored records and argument matches.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/argindex"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/blobstore"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/lexicon"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/kvstore"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/metrics"
)

// TermRef is a query term and the id it resolved to (-1 if unknown).
type TermRef struct {
	Text string `json:"text"`
	ID   int64  `json:"id"`
}

// Result is the answer to one query. IDs are ascending and cut at the
// configured maximum; Total counts every match.
type Result struct {
	Query     string            `json:"query,omitempty"`
	Mode      string            `json:"mode"`
	Terms     []TermRef         `json:"terms"`
	Total     int               `json:"total"`
	IDs       []int64           `json:"ids"`
	Matched   map[int64][]int64 `json:"matched,omitempty"`
	Truncated bool              `json:"truncated"`
	TookMs    int64             `json:"took_ms"`
}

// TermInfo describes one lexicon entry.
type TermInfo struct {
	Term      string `json:"term"`
	ID        int64  `json:"id"`
	Frequency int64  `json:"frequency"`
	Postings  int    `json:"postings"`
}

// Service is safe for concurrent use. It never writes to the store.
type Service struct {
	lex        *lexicon.Lexicon
	idx        *index.Index
	blobs      *blobstore.Store
	args       *argindex.Index
	plists     *executor.CachedSource
	exec       *executor.Executor
	analyzer   *tokenizer.Analyzer
	maxResults int
	logger     *slog.Logger
}

// Open loads the lexicon and binds the index, blob store, and (if enabled)
// argument index in db.
func Open(db *kvstore.DB, cfg *config.Config, m *metrics.Metrics) (*Service, error) {
	lb, err := db.Bucket(indexer.LexiconBucket)
	if err != nil {
		return nil, err
	}
	lex := lexicon.New(lb)
	if err := lex.Load(); err != nil {
		return nil, fmt.Errorf("loading lexicon: %w", err)
	}

	bb, err := db.Bucket(indexer.BlobBucket)
	if err != nil {
		return nil, err
	}
	blobs, err := blobstore.Open(bb, cfg.Blobs)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	ib, err := db.Bucket(indexer.BarrelBucket)
	if err != nil {
		return nil, err
	}
	idx, err := index.OpenReadOnly(cfg.Index.DataDir, ib)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if cfg.Index.LoadToMemory {
		if err := idx.LoadToMemory(); err != nil {
			return nil, err
		}
	}

	s := &Service{
		lex:        lex,
		idx:        idx,
		blobs:      blobs,
		analyzer:   tokenizer.Default,
		maxResults: cfg.Search.MaxResults,
		logger:     slog.Default().With("component", "searcher"),
	}
	if cfg.Args.Enabled {
		ab, err := db.Bucket(indexer.ArgBucket)
		if err != nil {
			return nil, err
		}
		if s.args, err = argindex.Open(ab, blobs.Codec(), cfg.Args.FlushThreshold); err != nil {
			return nil, fmt.Errorf("opening argument index: %w", err)
		}
	}

	var src executor.Source = idx
	if cfg.Search.PostingCacheSize > 0 && !cfg.Index.LoadToMemory {
		s.plists = executor.NewCachedSource(idx, cfg.Search.PostingCacheSize, m)
		src = s.plists
	}
	s.exec = executor.New(src,
		executor.WithMaxConcurrentLoads(cfg.Search.MaxConcurrentLoads),
		executor.WithMetrics(m),
	)
	if m != nil {
		m.LexiconTerms.Set(float64(lex.Len()))
	}
	s.logger.Info("searcher ready",
		"terms", lex.Len(),
		"records", blobs.RecordCount(),
		"documents", idx.Documents(),
		"in_memory", cfg.Index.LoadToMemory,
		"args_enabled", s.args != nil,
	)
	return s, nil
}

// Parse reads query text. A non-empty mode overrides any AND/OR keyword in
// the text.
func (s *Service) Parse(query, mode string) (*parser.QueryPlan, error) {
	plan, err := parser.Parse(query, s.Normalize)
	if err != nil {
		return nil, err
	}
	if mode != "" {
		if plan.Type, err = parser.ParseQueryType(mode); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// Resolve maps a plan to an executor query and the term references reported
// back to callers.
func (s *Service) Resolve(plan *parser.QueryPlan, returnField string) (executor.Query, []TermRef) {
	q := plan.Resolve(s.lex.ID, returnField)
	refs := make([]TermRef, len(plan.Terms))
	for i, t := range plan.Terms {
		refs[i] = TermRef{Text: t.Text, ID: q.Terms[i].ID}
	}
	return q, refs
}

// Execute runs q in the given mode.
func (s *Service) Execute(ctx context.Context, q executor.Query, mode parser.QueryType) (*Result, error) {
	start := time.Now()
	res := &Result{Mode: mode.String()}
	var ids []int64
	if mode == parser.QueryOR {
		found, err := s.exec.FindOr(ctx, q)
		if err != nil {
			return nil, err
		}
		ids = make([]int64, 0, len(found))
		for id := range found {
			ids = append(ids, id)
		}
		res.Matched = found
	} else {
		found, err := s.exec.Find(ctx, q)
		if err != nil {
			return nil, err
		}
		ids = make([]int64, 0, len(found))
		for id := range found {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	res.Total = len(ids)
	if s.maxResults > 0 && len(ids) > s.maxResults {
		ids = ids[:s.maxResults]
		res.Truncated = true
	}
	res.IDs = ids
	if res.Matched != nil && res.Truncated {
		kept := make(map[int64][]int64, len(ids))
		for _, id := range ids {
			kept[id] = res.Matched[id]
		}
		res.Matched = kept
	}
	res.TookMs = time.Since(start).Milliseconds()
	return res, nil
}

// Normalize returns word unchanged if it is already a term (relation names
// and arguments are stored verbatim), otherwise its analysed form.
func (s *Service) Normalize(word string) string {
	if s.lex.ID(word) != lexicon.NotFound {
		return word
	}
	return s.analyzer.Normalize(word)
}

// Term looks up one term.
func (s *Service) Term(text string) (*TermInfo, error) {
	text = s.Normalize(text)
	id := s.lex.ID(text)
	if id == lexicon.NotFound {
		return nil, fmt.Errorf("term %q: %w", text, apperrors.ErrNotFound)
	}
	list, err := s.idx.PostingList(id)
	if err != nil {
		return nil, err
	}
	return &TermInfo{
		Term:      text,
		ID:        id,
		Frequency: s.lex.Frequency(id),
		Postings:  list.Len(),
	}, nil
}

// Record returns the stored bytes of a record.
func (s *Service) Record(id int64) ([]byte, error) {
	if id < 0 {
		return nil, apperrors.Invalidf("record id %d", id)
	}
	return s.blobs.Get(id)
}

// TripleArg is an argument condition by term text.
type TripleArg struct {
	Term     string `json:"term"`
	Position int    `json:"position"`
}

// Triples returns the ids of relation records matching every argument
// condition and, when relation is not empty, carrying that relation term.
// It fails with ErrState when the argument index is disabled.
func (s *Service) Triples(ctx context.Context, relation string, args []TripleArg) ([]int64, error) {
	if s.args == nil {
		return nil, apperrors.Statef("argument index is disabled")
	}
	conds := make([]argindex.Arg, len(args))
	for i, a := range args {
		if a.Position < 0 || a.Position > argindex.MaxArgs {
			return nil, apperrors.Invalidf("argument position %d", a.Position)
		}
		conds[i] = argindex.Arg{Term: s.lex.ID(a.Term), Position: a.Position}
	}
	if relation == "" {
		return s.args.Search(conds)
	}
	relID := s.lex.ID(s.Normalize(relation))
	if relID == lexicon.NotFound {
		return []int64{}, nil
	}
	within, err := s.exec.Find(ctx, executor.Query{Terms: []executor.Term{{ID: relID}}})
	if err != nil {
		return nil, fmt.Errorf("relation %q: %w", relation, err)
	}
	return s.args.SearchWithin(conds, within)
}

// InvalidatePostings drops the decoded posting-list cache.
func (s *Service) InvalidatePostings() {
	if s.plists != nil {
		s.plists.Invalidate()
	}
}

// Stats reports corpus sizes for the health endpoint.
func (s *Service) Stats() map[string]int64 {
	return map[string]int64{
		"terms":     int64(s.lex.Len()),
		"records":   s.blobs.RecordCount(),
		"documents": s.idx.Documents(),
		"postings":  s.idx.Postings(),
	}
}
