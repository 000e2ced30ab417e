package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalid is returned when a catalog definition breaks the one question, one category rule.
var ErrInvalid = errors.New("invalid catalog")

type Question struct {
	ID       string `json:"id" yaml:"id"`
	Category string `json:"category" yaml:"category"`
}

type Category struct {
	ID        string     `json:"id" yaml:"id"`
	Emoji     string     `json:"emoji" yaml:"emoji"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Catalog is an ordered, read-only set of categories and their questions.
// It is safe for concurrent use once built.
type Catalog struct {
	categories []Category
	questions  []Question
	index      map[string]Question
	positions  map[string]int
}

// New validates the categories and builds a catalog. A question without a
// category id inherits the id of the category listing it.
func New(categories []Category) (*Catalog, error) {
	c := &Catalog{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]Question),
		positions:  make(map[string]int, len(categories)),
	}

	for _, cat := range categories {
		id := strings.TrimSpace(cat.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: category id is empty", ErrInvalid)
		}
		if _, ok := c.positions[id]; ok {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalid, id)
		}

		questions := make([]Question, 0, len(cat.Questions))
		for _, q := range cat.Questions {
			qid := strings.TrimSpace(q.ID)
			if qid == "" {
				return nil, fmt.Errorf("%w: empty question id in category %q", ErrInvalid, id)
			}
			q.Category = strings.TrimSpace(q.Category)
			if q.Category == "" {
				q.Category = id
			}
			if q.Category != id {
				return nil, fmt.Errorf("%w: question %q declares category %q but is listed under %q", ErrInvalid, qid, q.Category, id)
			}
			if existing, ok := c.index[qid]; ok {
				return nil, fmt.Errorf("%w: question %q listed in %q and %q", ErrInvalid, qid, existing.Category, id)
			}

			q.ID = qid
			c.index[qid] = q
			questions = append(questions, q)
			c.questions = append(c.questions, q)
		}

		c.positions[id] = len(c.categories)
		c.categories = append(c.categories, Category{ID: id, Emoji: cat.Emoji, Questions: questions})
	}

	return c, nil
}

// Len returns the number of questions in the catalog.
func (c *Catalog) Len() int {
	return len(c.questions)
}

// Categories returns the categories in display order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = Category{ID: cat.ID, Emoji: cat.Emoji, Questions: slices.Clone(cat.Questions)}
	}
	return out
}

// Questions returns every question in catalog order.
func (c *Catalog) Questions() []Question {
	return slices.Clone(c.questions)
}

func (c *Catalog) Lookup(id string) (Question, bool) {
	q, ok := c.index[id]
	return q, ok
}

func (c *Catalog) Category(id string) (Category, bool) {
	pos, ok := c.positions[id]
	if !ok {
		return Category{}, false
	}
	cat := c.categories[pos]
	return Category{ID: cat.ID, Emoji: cat.Emoji, Questions: slices.Clone(cat.Questions)}, true
}

// Subset returns a catalog with only the given question ids, keeping the
// original order and dropping categories left without questions.
func (c *Catalog) Subset(ids []string) *Catalog {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	categories := make([]Category, 0, len(c.categories))
	for _, cat := range c.categories {
		var questions []Question
		for _, q := range cat.Questions {
			if _, ok := keep[q.ID]; ok {
				questions = append(questions, q)
			}
		}
		if len(questions) == 0 {
			continue
		}
		categories = append(categories, Category{ID: cat.ID, Emoji: cat.Emoji, Questions: questions})
	}

	// a subset of a valid catalog is always valid
	sub, _ := New(categories)
	return sub
}
