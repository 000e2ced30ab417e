package matching

import (
	"github.com/spigell/mutual-match/internal/catalog"
)

// Match is a question both partners answered positively.
type Match struct {
	Question catalog.Question `json:"question"`
	AnswerA  Value            `json:"answerA"`
	AnswerB  Value            `json:"answerB"`
	Strength Strength         `json:"strength"`
}

// Summary is derived from two answer maps and never stored.
type Summary struct {
	TotalMatches       int `json:"totalMatches"`
	PerfectMatches     int `json:"perfectMatches"`
	GoodMatches        int `json:"goodMatches"`
	AnsweredBoth       int `json:"answeredBoth"`
	CompatibilityScore int `json:"compatibilityScore"`

	// Matches holds perfect matches first, then good ones, each tier in
	// catalog order.
	Matches []Match `json:"allMatches"`
	// ByCategory has an entry for every catalog category.
	ByCategory map[string][]Match `json:"matchesByCategory"`
}

// Aggregate evaluates every catalog question against both answer maps.
// Answers to ids outside the catalog are ignored.
func Aggregate(c *catalog.Catalog, a, b Answers) *Summary {
	var perfect, good []Match
	answeredBoth := 0

	for _, q := range c.Questions() {
		va, vb := a.Get(q.ID), b.Get(q.ID)
		if va.Valid() && vb.Valid() {
			answeredBoth++
		}

		switch Evaluate(va, vb) {
		case Perfect:
			perfect = append(perfect, Match{Question: q, AnswerA: va, AnswerB: vb, Strength: Perfect})
		case Good:
			good = append(good, Match{Question: q, AnswerA: va, AnswerB: vb, Strength: Good})
		}
	}

	matches := make([]Match, 0, len(perfect)+len(good))
	matches = append(matches, perfect...)
	matches = append(matches, good...)

	byCategory := make(map[string][]Match)
	for _, cat := range c.Categories() {
		byCategory[cat.ID] = []Match{}
	}
	for _, m := range matches {
		byCategory[m.Question.Category] = append(byCategory[m.Question.Category], m)
	}

	return &Summary{
		TotalMatches:       len(matches),
		PerfectMatches:     len(perfect),
		GoodMatches:        len(good),
		AnsweredBoth:       answeredBoth,
		CompatibilityScore: compatibility(len(matches), answeredBoth),
		Matches:            matches,
		ByCategory:         byCategory,
	}
}

// compatibility is round-half-up(100 * matches / answered) in integer math.
func compatibility(matches, answered int) int {
	if answered <= 0 {
		return 0
	}
	return (200*matches + answered) / (2 * answered)
}
