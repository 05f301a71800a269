package consumer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/argindex"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

// Event kinds.
const (
	KindText     = "text"
	KindRelation = "relation"
)

const maxLineBytes = 16 << 20

// RecordEvent is the wire form of one record. Kind defaults to relation when
// Relation is set and to text otherwise.
type RecordEvent struct {
	Key      string   `json:"key"`
	Kind     string   `json:"kind,omitempty"`
	Title    string   `json:"title,omitempty"`
	Body     string   `json:"body,omitempty"`
	Relation string   `json:"relation,omitempty"`
	Args     []string `json:"args,omitempty"`
	Freq     int64    `json:"freq,omitempty"`
}

// Record converts the event into an indexable record.
func (ev RecordEvent) Record() (indexer.Record, error) {
	kind := ev.Kind
	if kind == "" {
		kind = KindText
		if ev.Relation != "" {
			kind = KindRelation
		}
	}
	switch kind {
	case KindText:
		if ev.Title == "" && ev.Body == "" {
			return nil, apperrors.Invalidf("text event %q has no content", ev.Key)
		}
		return &indexer.TextRecord{Key: ev.Key, Title: ev.Title, Body: ev.Body}, nil
	case KindRelation:
		if ev.Relation == "" {
			return nil, apperrors.Invalidf("relation event %q has no relation", ev.Key)
		}
		if len(ev.Args) > argindex.MaxArgs {
			return nil, apperrors.Invalidf("relation event %q has %d arguments", ev.Key, len(ev.Args))
		}
		return &indexer.RelationRecord{
			Key:       ev.Key,
			Relation:  ev.Relation,
			Arguments: ev.Args,
			Freq:      ev.Freq,
		}, nil
	default:
		return nil, apperrors.Invalidf("event %q has unknown kind %q", ev.Key, ev.Kind)
	}
}

// ReadEvents decodes one RecordEvent per non-blank line of r and calls fn
// for each, stopping at the first error. Line numbers in errors are 1-based.
func ReadEvents(r io.Reader, fn func(RecordEvent) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev RecordEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return apperrors.Decodef("line %d: %v", line, err)
		}
		if err := fn(ev); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading events: %w", err)
	}
	return nil
}
