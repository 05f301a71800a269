package indexer

import (
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/argindex"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer/tokenizer"
)

// Record is an indexable unit. The engine only reads its terms and stores
// its binary form. Terms may repeat; each distinct term gets one posting
// whose freq field, if the schema declares one, counts the repeats.
type Record interface {
	Terms() []string
	MarshalBinary() ([]byte, error)
}

// Vector is one posting row contributed by a record: the term and the
// values of every non-primary index field, in schema order.
type Vector struct {
	Term string
	Aux  []int64
}

// Vectorizer is implemented by records that supply their own posting rows
// instead of one row per distinct term.
type Vectorizer interface {
	Vectors() []Vector
}

// Triple is implemented by records that also go into the argument index.
type Triple interface {
	Args() []string
}

// TextRecord is free text split into terms by an analyzer.
type TextRecord struct {
	Key   string `json:"key,omitempty"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Terms returns every kept token, repeats included.
func (r *TextRecord) Terms() []string {
	tokens := tokenizer.Tokenize(r.Title + " " + r.Body)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

func (r *TextRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

func (r *TextRecord) UnmarshalBinary(data []byte) error {
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("decoding text record: %w", err)
	}
	return nil
}

// RelationRecord is a relation triple: a relation name, its positional
// arguments, and how often it was observed. Arguments may be the
// argindex.NoneToken or argindex.EmptyToken sentinels.
type RelationRecord struct {
	Key       string   `json:"key,omitempty"`
	Relation  string   `json:"relation"`
	Arguments []string `json:"args"`
	Freq      int64    `json:"freq"`
}

// Terms are the relation name and every real argument, deduplicated.
func (r *RelationRecord) Terms() []string {
	seen := make(map[string]struct{}, len(r.Arguments)+1)
	terms := make([]string, 0, len(r.Arguments)+1)
	for _, t := range append([]string{r.Relation}, r.Arguments...) {
		if t == "" || t == argindex.NoneToken || t == argindex.EmptyToken {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

func (r *RelationRecord) Args() []string {
	return r.Arguments
}

func (r *RelationRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

func (r *RelationRecord) UnmarshalBinary(data []byte) error {
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("decoding relation record: %w", err)
	}
	return nil
}
