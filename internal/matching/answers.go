package matching

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spigell/mutual-match/internal/catalog"
)

// ErrInvalidValue is returned for answers outside the five-point scale.
var ErrInvalidValue = errors.New("answer value out of range")

// Value is a response on the five-point scale. The zero value means the
// question was not answered.
type Value int

const (
	Unanswered Value = iota
	Never
	RatherNot
	Maybe
	Yes
	Enthusiastic
)

func ParseValue(v int) (Value, error) {
	value := Value(v)
	if !value.Valid() {
		return Unanswered, fmt.Errorf("%w: %d", ErrInvalidValue, v)
	}
	return value, nil
}

// Valid reports whether v is an actual answer, not Unanswered.
func (v Value) Valid() bool {
	return v >= Never && v <= Enthusiastic
}

// Positive reports whether v counts towards a match.
func (v Value) Positive() bool {
	return v >= Yes && v <= Enthusiastic
}

// Answers maps question ids to one partner's responses. A missing key is an
// unanswered question.
type Answers map[string]Value

// NewAnswers validates raw answers. Any value outside 1..5 rejects the whole
// map.
func NewAnswers(raw map[string]int) (Answers, error) {
	answers := make(Answers, len(raw))
	for id, v := range raw {
		value, err := ParseValue(v)
		if err != nil {
			return nil, fmt.Errorf("question %q: %w", id, err)
		}
		answers[id] = value
	}
	return answers, nil
}

// Get returns the answer for id or Unanswered.
func (a Answers) Get(id string) Value {
	if a == nil {
		return Unanswered
	}
	return a[id]
}

func (a Answers) Has(id string) bool {
	v, ok := a[id]
	return ok && v.Valid()
}

// Only returns the answers to questions present in c.
func (a Answers) Only(c *catalog.Catalog) Answers {
	out := make(Answers, len(a))
	for id, v := range a {
		if _, ok := c.Lookup(id); ok {
			out[id] = v
		}
	}
	return out
}

func (a Answers) Raw() map[string]int {
	out := make(map[string]int, len(a))
	for id, v := range a {
		out[id] = int(v)
	}
	return out
}

func (a *Answers) UnmarshalJSON(data []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*a = nil
		return nil
	}
	answers, err := NewAnswers(raw)
	if err != nil {
		return err
	}
	*a = answers
	return nil
}
