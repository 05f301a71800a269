// Package handler exposes the searcher over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/logger"
)

// Searcher is the query surface the handler serves.
type Searcher interface {
	Parse(query, mode string) (*parser.QueryPlan, error)
	Normalize(word string) string
	Resolve(plan *parser.QueryPlan, returnField string) (executor.Query, []searcher.TermRef)
	Execute(ctx context.Context, q executor.Query, mode parser.QueryType) (*searcher.Result, error)
	Term(text string) (*searcher.TermInfo, error)
	Record(id int64) ([]byte, error)
	Triples(ctx context.Context, relation string, args []searcher.TripleArg) ([]int64, error)
	InvalidatePostings()
}

type Handler struct {
	searcher Searcher
	cache    *cache.QueryCache
	logger   *slog.Logger
}

// New builds a Handler. queryCache may be nil.
func New(s Searcher, queryCache *cache.QueryCache) *Handler {
	return &Handler{
		searcher: s,
		cache:    queryCache,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes mounts the API under r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", h.Search)
		r.Post("/find", h.Find)
		r.Get("/terms/{term}", h.Term)
		r.Get("/records/{id}", h.Record)
		r.Get("/triples", h.Triples)
		r.Get("/cache/stats", h.CacheStats)
		r.Post("/cache/invalidate", h.CacheInvalidate)
	})
}

// Search answers GET /api/v1/search?q=...&mode=and|or&return=field.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := params.Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	plan, err := h.searcher.Parse(query, params.Get("mode"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.run(w, r, query, plan, params.Get("return"))
}

// MaxFindBody caps the size of a find request body.
const MaxFindBody = 1 << 20

// FindRequest is the body of POST /api/v1/find.
type FindRequest struct {
	Terms []struct {
		Term        string                `json:"term"`
		Constraints []executor.Constraint `json:"constraints"`
	} `json:"terms"`
	Mode        string `json:"mode"`
	ReturnField string `json:"return_field"`
}

// Find answers a structured query with explicit per-term constraints.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	var req FindRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxFindBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Terms) == 0 {
		h.writeError(w, http.StatusBadRequest, "at least one term is required")
		return
	}
	mode, err := parser.ParseQueryType(req.Mode)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	plan := &parser.QueryPlan{Type: mode}
	for _, t := range req.Terms {
		text := h.searcher.Normalize(t.Term)
		if text == "" {
			continue
		}
		plan.Terms = append(plan.Terms, parser.TermPlan{Text: text, Constraints: t.Constraints})
	}
	h.run(w, r, "", plan, req.ReturnField)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, raw string, plan *parser.QueryPlan, returnField string) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	q, refs := h.searcher.Resolve(plan, returnField)
	compute := func() (*searcher.Result, error) {
		return h.searcher.Execute(ctx, q, plan.Type)
	}

	var (
		res      *searcher.Result
		cacheHit bool
		err      error
	)
	key, cacheable := cache.Key(plan.Type.String(), q)
	if h.cache != nil && cacheable {
		res, cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
	} else {
		res, err = compute()
	}
	if err != nil {
		log.Error("query failed", "query", raw, "error", err)
		h.writeErr(w, r, err)
		return
	}

	out := *res
	out.Query = raw
	out.Terms = refs
	log.Info("query completed",
		"query", raw,
		"mode", out.Mode,
		"total", out.Total,
		"cache_hit", cacheHit,
		"took_ms", out.TookMs,
	)
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	info, err := h.searcher.Term(chi.URLParam(r, "term"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// Record returns a stored record. JSON records are embedded as-is; other
// bytes are base64-encoded.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "record id must be an integer")
		return
	}
	data, err := h.searcher.Record(id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var body any = data
	if json.Valid(data) {
		body = json.RawMessage(data)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "record": body})
}

// Triples answers GET /api/v1/triples?arg=term[:position]&arg=...&relation=name
func (h *Handler) Triples(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	raw := params["arg"]
	if len(raw) == 0 {
		h.writeError(w, http.StatusBadRequest, "at least one 'arg' parameter is required")
		return
	}
	args := make([]searcher.TripleArg, len(raw))
	for i, a := range raw {
		arg, err := parseTripleArg(a)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		args[i] = arg
	}
	relation := params.Get("relation")
	ids, err := h.searcher.Triples(r.Context(), relation, args)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"relation": relation,
		"args":     args,
		"total":    len(ids),
		"ids":      ids,
	})
}

// parseTripleArg reads "term" or "term:position". Terms may contain colons;
// only a numeric suffix is taken as the position.
func parseTripleArg(s string) (searcher.TripleArg, error) {
	if i := strings.LastIndexByte(s, ':'); i > 0 {
		if pos, err := strconv.Atoi(s[i+1:]); err == nil {
			return searcher.TripleArg{Term: s[:i], Position: pos}, nil
		}
	}
	if s == "" {
		return searcher.TripleArg{}, apperrors.Invalidf("empty argument")
	}
	return searcher.TripleArg{Term: s}, nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": hitRate,
	})
}

// CacheInvalidate drops cached results and decoded posting lists.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	h.searcher.InvalidatePostings()
	var deleted int64
	if h.cache != nil {
		var err error
		if deleted, err = h.cache.Invalidate(r.Context()); err != nil {
			h.logger.Error("cache invalidation failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "results_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps err to a status with apperrors.HTTPStatusCode. Internal
// details are logged, not returned.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, status, "internal error")
		return
	}
	h.writeError(w, status, err.Error())
}
