// Package parser turns query text into executor queries.
//
// Syntax: whitespace-separated terms, each optionally followed by bracketed,
// comma-separated constraints on posting fields. A bare AND or OR word sets
// the query mode (AND is the default):
//
//	cat[position=0] mat[position in 1|2, freq>=2] OR
package parser

import (
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "or"
	}
	return "and"
}

// ParseQueryType accepts "and", "or", or "" (AND).
func ParseQueryType(s string) (QueryType, error) {
	switch strings.ToLower(s) {
	case "", "and":
		return QueryAND, nil
	case "or":
		return QueryOR, nil
	default:
		return QueryAND, apperrors.Invalidf("unknown query mode %q", s)
	}
}

// TermPlan is a query term before lexicon lookup.
type TermPlan struct {
	Text        string
	Constraints []executor.Constraint
}

type QueryPlan struct {
	Terms    []TermPlan
	Type     QueryType
	RawQuery string
}

// Parse reads query. normalize, if non-nil, maps each term to its indexed
// form; a term it maps to "" is dropped.
func Parse(query string, normalize func(string) string) (*QueryPlan, error) {
	plan := &QueryPlan{
		Terms:    make([]TermPlan, 0),
		Type:     QueryAND,
		RawQuery: query,
	}
	words, err := split(query)
	if err != nil {
		return nil, err
	}
	for _, w := range words {
		switch strings.ToUpper(w) {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		}
		tp, err := parseTerm(w)
		if err != nil {
			return nil, err
		}
		if normalize != nil {
			tp.Text = normalize(tp.Text)
		}
		if tp.Text == "" {
			continue
		}
		plan.Terms = append(plan.Terms, tp)
	}
	return plan, nil
}

// Resolve maps plan terms to ids with lookup, which returns a negative id for
// unknown terms.
func (p *QueryPlan) Resolve(lookup func(string) int64, returnField string) executor.Query {
	q := executor.Query{Terms: make([]executor.Term, len(p.Terms)), ReturnField: returnField}
	for i, t := range p.Terms {
		q.Terms[i] = executor.Term{ID: lookup(t.Text), Constraints: t.Constraints}
	}
	return q
}

// split breaks query on whitespace outside brackets.
func split(query string) ([]string, error) {
	var (
		words []string
		cur   strings.Builder
		depth int
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range query {
		switch {
		case r == '[':
			if depth > 0 {
				return nil, apperrors.Invalidf("nested '[' in query %q", query)
			}
			depth++
			cur.WriteRune(r)
		case r == ']':
			if depth == 0 {
				return nil, apperrors.Invalidf("unbalanced ']' in query %q", query)
			}
			depth--
			cur.WriteRune(r)
		case depth == 0 && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if depth != 0 {
		return nil, apperrors.Invalidf("unclosed '[' in query %q", query)
	}
	flush()
	return words, nil
}

func parseTerm(word string) (TermPlan, error) {
	open := strings.IndexByte(word, '[')
	if open < 0 {
		return TermPlan{Text: word}, nil
	}
	if !strings.HasSuffix(word, "]") {
		return TermPlan{}, apperrors.Invalidf("text after constraints in %q", word)
	}
	tp := TermPlan{Text: word[:open]}
	if tp.Text == "" {
		return TermPlan{}, apperrors.Invalidf("constraints without a term in %q", word)
	}
	body := word[open+1 : len(word)-1]
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := parseConstraint(part)
		if err != nil {
			return TermPlan{}, err
		}
		tp.Constraints = append(tp.Constraints, c)
	}
	return tp, nil
}

// Two-character operators first so "<=" is not read as "<".
var comparisons = []executor.Op{
	executor.OpNe, executor.OpLe, executor.OpGe,
	executor.OpEq, executor.OpLt, executor.OpGt,
}

func parseConstraint(s string) (executor.Constraint, error) {
	if i := strings.Index(s, " in "); i > 0 {
		field := strings.TrimSpace(s[:i])
		var values []int64
		for _, v := range strings.Split(s[i+4:], "|") {
			n, err := parseValue(v)
			if err != nil {
				return executor.Constraint{}, err
			}
			values = append(values, n)
		}
		return executor.Constraint{Field: field, Op: executor.OpIn, Values: values}, nil
	}
	for _, op := range comparisons {
		i := strings.Index(s, string(op))
		if i <= 0 {
			continue
		}
		n, err := parseValue(s[i+len(op):])
		if err != nil {
			return executor.Constraint{}, err
		}
		return executor.Constraint{
			Field:  strings.TrimSpace(s[:i]),
			Op:     op,
			Values: []int64{n},
		}, nil
	}
	return executor.Constraint{}, apperrors.Invalidf("constraint %q has no operator", s)
}

func parseValue(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, apperrors.Invalidf("constraint value %q is not an integer", strings.TrimSpace(s))
	}
	return n, nil
}
