package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

func TestParseSimpleTerms(t *testing.T) {
	plan, err := Parse("cat  mat", nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Type != QueryAND || len(plan.Terms) != 2 || plan.Terms[1].Text != "mat" {
		t.Errorf("plan = %+v", plan)
	}
}

func TestParseOrKeyword(t *testing.T) {
	plan, err := Parse("cat or mat", nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Type != QueryOR || len(plan.Terms) != 2 {
		t.Errorf("plan = %+v", plan)
	}
}

func TestParseConstraints(t *testing.T) {
	plan, err := Parse("cat[position=0] mat[position in 1|2, freq >= 3, sent!=-4]", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []TermPlan{
		{Text: "cat", Constraints: []executor.Constraint{{Field: "position", Op: executor.OpEq, Values: []int64{0}}}},
		{Text: "mat", Constraints: []executor.Constraint{
			{Field: "position", Op: executor.OpIn, Values: []int64{1, 2}},
			{Field: "freq", Op: executor.OpGe, Values: []int64{3}},
			{Field: "sent", Op: executor.OpNe, Values: []int64{-4}},
		}},
	}
	if !reflect.DeepEqual(plan.Terms, want) {
		t.Errorf("terms = %+v\nwant %+v", plan.Terms, want)
	}
}

func TestParseErrors(t *testing.T) {
	for _, q := range []string{
		"cat[position=0",
		"cat]",
		"cat[[a=1]]",
		"[a=1]",
		"cat[position]",
		"cat[position=x]",
		"cat[a=1]tail",
	} {
		if _, err := Parse(q, nil); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("Parse(%q) err = %v", q, err)
		}
	}
}

func TestNormalizeAndResolve(t *testing.T) {
	plan, err := Parse("Cats THE Mats", func(s string) string {
		s = strings.ToLower(s)
		if s == "the" {
			return ""
		}
		return strings.TrimSuffix(s, "s")
	})
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]int64{"cat": 4}
	q := plan.Resolve(func(s string) int64 {
		if id, ok := ids[s]; ok {
			return id
		}
		return -1
	}, "doc")
	want := executor.Query{Terms: []executor.Term{{ID: 4}, {ID: -1}}, ReturnField: "doc"}
	if !reflect.DeepEqual(q, want) {
		t.Errorf("query = %+v, want %+v", q, want)
	}
}

func TestParseQueryType(t *testing.T) {
	if qt, err := ParseQueryType("OR"); err != nil || qt != QueryOR {
		t.Errorf("OR = %v, %v", qt, err)
	}
	if qt, err := ParseQueryType(""); err != nil || qt != QueryAND {
		t.Errorf("empty = %v, %v", qt, err)
	}
	if _, err := ParseQueryType("xor"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("xor err = %v", err)
	}
}
