package matching

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/spigell/mutual-match/internal/catalog"
)

func singleCategory(t *testing.T, ids ...string) *catalog.Catalog {
	t.Helper()

	questions := make([]catalog.Question, 0, len(ids))
	for _, id := range ids {
		questions = append(questions, catalog.Question{ID: id})
	}
	c, err := catalog.New([]catalog.Category{{ID: "basics", Emoji: "💕", Questions: questions}})
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	return c
}

func mustAnswers(t *testing.T, raw map[string]int) Answers {
	t.Helper()

	a, err := NewAnswers(raw)
	if err != nil {
		t.Fatalf("building answers: %v", err)
	}
	return a
}

func ids(matches []Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Question.ID)
	}
	return out
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		a, b   Value
		expect Strength
	}{
		{name: "both enthusiastic", a: 5, b: 5, expect: Perfect},
		{name: "enthusiastic and yes", a: 5, b: 4, expect: Good},
		{name: "yes and enthusiastic", a: 4, b: 5, expect: Good},
		{name: "both yes", a: 4, b: 4, expect: Good},
		{name: "maybe and enthusiastic", a: 3, b: 5, expect: None},
		{name: "unanswered and enthusiastic", a: Unanswered, b: 5, expect: None},
		{name: "both unanswered", a: Unanswered, b: Unanswered, expect: None},
		{name: "never and never", a: 1, b: 1, expect: None},
		{name: "out of scale", a: 6, b: 6, expect: None},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Evaluate(tt.a, tt.b); got != tt.expect {
				t.Fatalf("Evaluate(%d, %d) = %s, expected %s", tt.a, tt.b, got, tt.expect)
			}
		})
	}
}

func TestEvaluateIsSymmetric(t *testing.T) {
	t.Parallel()

	for x := Unanswered; x <= Enthusiastic; x++ {
		for y := Unanswered; y <= Enthusiastic; y++ {
			if Evaluate(x, y) != Evaluate(y, x) {
				t.Fatalf("Evaluate(%d, %d) != Evaluate(%d, %d)", x, y, y, x)
			}
		}
	}
}

func TestNewAnswersRejectsOutOfScale(t *testing.T) {
	t.Parallel()

	for _, v := range []int{0, -1, 6, 100} {
		if _, err := NewAnswers(map[string]int{"q1": 4, "q2": v}); !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("expected ErrInvalidValue for %d, got %v", v, err)
		}
	}

	var a Answers
	if err := json.Unmarshal([]byte(`{"q1": 7}`), &a); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected json decoding to validate values, got %v", err)
	}
	if err := json.Unmarshal([]byte(`{"q1": 5, "q2": 1}`), &a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Get("q1") != Enthusiastic || a.Get("missing") != Unanswered {
		t.Fatalf("unexpected decoded answers: %v", a)
	}
}

func TestAggregateScenario(t *testing.T) {
	t.Parallel()

	c := singleCategory(t, "q1", "q2", "q3")
	a := mustAnswers(t, map[string]int{"q1": 5, "q2": 5, "q3": 2})
	b := mustAnswers(t, map[string]int{"q1": 5, "q2": 4, "q3": 5})

	s := Aggregate(c, a, b)

	if got := ids(s.Matches); !reflect.DeepEqual(got, []string{"q1", "q2"}) {
		t.Fatalf("unexpected matches: %v", got)
	}
	if s.Matches[0].Strength != Perfect || s.Matches[1].Strength != Good {
		t.Fatalf("unexpected strengths: %s, %s", s.Matches[0].Strength, s.Matches[1].Strength)
	}
	if s.TotalMatches != 2 || s.PerfectMatches != 1 || s.GoodMatches != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.AnsweredBoth != 3 {
		t.Fatalf("expected 3 answered by both, got %d", s.AnsweredBoth)
	}
	if s.CompatibilityScore != 67 {
		t.Fatalf("expected score 67, got %d", s.CompatibilityScore)
	}
}

func TestAggregateEmptyPartner(t *testing.T) {
	t.Parallel()

	c := singleCategory(t, "q1", "q2", "q3")
	s := Aggregate(c, Answers{}, mustAnswers(t, map[string]int{"q1": 5}))

	if len(s.Matches) != 0 || s.TotalMatches != 0 {
		t.Fatalf("expected no matches, got %v", ids(s.Matches))
	}
	if s.AnsweredBoth != 0 || s.CompatibilityScore != 0 {
		t.Fatalf("expected zero score, got answered=%d score=%d", s.AnsweredBoth, s.CompatibilityScore)
	}

	if nilSummary := Aggregate(c, nil, nil); nilSummary.CompatibilityScore != 0 || len(nilSummary.ByCategory["basics"]) != 0 {
		t.Fatalf("unexpected summary for nil answers: %+v", nilSummary)
	}
}

func TestAggregateOrdersPerfectFirstAndKeepsCatalogOrder(t *testing.T) {
	t.Parallel()

	c, err := catalog.New([]catalog.Category{
		{ID: "first", Questions: []catalog.Question{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}}},
		{ID: "second", Questions: []catalog.Question{{ID: "b1"}, {ID: "b2"}}},
		{ID: "empty", Questions: []catalog.Question{{ID: "c1"}}},
	})
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}

	a := mustAnswers(t, map[string]int{"a1": 4, "a2": 5, "a3": 5, "b1": 5, "b2": 4, "c1": 1})
	b := mustAnswers(t, map[string]int{"a1": 4, "a2": 5, "a3": 4, "b1": 5, "b2": 5, "c1": 5})

	s := Aggregate(c, a, b)

	if got := ids(s.Matches); !reflect.DeepEqual(got, []string{"a2", "b1", "a1", "a3", "b2"}) {
		t.Fatalf("unexpected order: %v", got)
	}

	if len(s.ByCategory) != 3 {
		t.Fatalf("expected an entry per category, got %d", len(s.ByCategory))
	}
	empty, ok := s.ByCategory["empty"]
	if !ok || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice for category without matches, got %v (present %v)", empty, ok)
	}

	union := 0
	seen := map[string]bool{}
	for cat, matches := range s.ByCategory {
		for _, m := range matches {
			if m.Question.Category != cat {
				t.Fatalf("match %q grouped under %q", m.Question.ID, cat)
			}
			if seen[m.Question.ID] {
				t.Fatalf("match %q grouped twice", m.Question.ID)
			}
			seen[m.Question.ID] = true
			union++
		}
	}
	if union != len(s.Matches) {
		t.Fatalf("category union has %d matches, list has %d", union, len(s.Matches))
	}
}

func TestAggregateNeverMatchesPartialAnswers(t *testing.T) {
	t.Parallel()

	c := catalog.Default()
	a := Answers{}
	b := Answers{}
	for i, q := range c.Questions() {
		// A skips every third question, B every fifth
		if i%3 != 0 {
			a[q.ID] = Enthusiastic
		}
		if i%5 != 0 {
			b[q.ID] = Enthusiastic
		}
	}

	s := Aggregate(c, a, b)
	for _, m := range s.Matches {
		if !a.Has(m.Question.ID) || !b.Has(m.Question.ID) {
			t.Fatalf("question %q matched without both answers", m.Question.ID)
		}
	}
	if s.AnsweredBoth != s.TotalMatches {
		t.Fatalf("every mutually answered question is a perfect match here, got answered=%d matches=%d", s.AnsweredBoth, s.TotalMatches)
	}
	if s.CompatibilityScore != 100 {
		t.Fatalf("expected 100, got %d", s.CompatibilityScore)
	}
}

func TestAggregateIgnoresForeignIDs(t *testing.T) {
	t.Parallel()

	c := singleCategory(t, "q1")
	a := mustAnswers(t, map[string]int{"q1": 2, "zz": 5})
	b := mustAnswers(t, map[string]int{"q1": 3, "zz": 5})

	s := Aggregate(c, a, b)
	if s.TotalMatches != 0 {
		t.Fatalf("foreign id must not match, got %v", ids(s.Matches))
	}
	if s.AnsweredBoth != 1 {
		t.Fatalf("foreign id must not count as answered, got %d", s.AnsweredBoth)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	t.Parallel()

	c := catalog.Default()
	a, b := Answers{}, Answers{}
	for i, q := range c.Questions() {
		a[q.ID] = Value(i%5 + 1)
		b[q.ID] = Value((i*7)%5 + 1)
	}

	first, err := json.Marshal(Aggregate(c, a, b))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := json.Marshal(Aggregate(c, a, b))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(again) != string(first) {
			t.Fatalf("run %d produced different output", i)
		}
	}
}

func TestCompatibilityBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		matches, answered, expect int
	}{
		{0, 0, 0},
		{0, 10, 0},
		{2, 3, 67},
		{1, 3, 33},
		{1, 8, 13},
		{1, 200, 1},
		{1, 201, 0},
		{5, 5, 100},
	}

	for _, tt := range tests {
		tt := tt
		if got := compatibility(tt.matches, tt.answered); got != tt.expect {
			t.Fatalf("compatibility(%d, %d) = %d, expected %d", tt.matches, tt.answered, got, tt.expect)
		}
	}
}

func TestStrengthJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Match{Question: catalog.Question{ID: "q1", Category: "c"}, AnswerA: 5, AnswerB: 5, Strength: Perfect})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	expected := `{"question":{"id":"q1","category":"c"},"answerA":5,"answerB":5,"strength":"perfect"}`
	if string(data) != expected {
		t.Fatalf("unexpected json: %s", data)
	}

	var s Strength
	if err := s.UnmarshalText([]byte("bogus")); err == nil {
		t.Fatalf("expected error for unknown strength")
	}
}
