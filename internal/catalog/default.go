package catalog

import "fmt"

// Question texts live in the translation files of the frontend; only ids and
// categories are part of the catalog.
var defaultLayout = []struct {
	id     string
	emoji  string
	prefix string
	count  int
}{
	{"basics", "💕", "b", 16},
	{"roleplay", "🎭", "r", 10},
	{"anal", "🍑", "a", 7},
	{"positions", "🔄", "p", 9},
	{"bdsm", "⛓️", "d", 20},
	{"frequency", "📍", "f", 14},
	{"toys", "🎮", "t", 7},
	{"body", "👅", "o", 6},
	{"group", "👥", "g", 8},
	{"bonus", "🔥", "x", 13},
}

// quickIDs are the 30 most popular, less extreme questions.
var quickIDs = []string{
	"b1", "b2", "b3", "b4", "b5", "b7", "b11", "b14",
	"r1", "r6", "r7", "r10",
	"a1", "a2",
	"p1", "p2", "p3", "p9",
	"d1", "d2", "d4", "d5", "d7",
	"f4", "f7", "f9",
	"t1", "t7",
	"o4", "o6",
}

var (
	defaultCatalog = mustBuildDefault()
	quickCatalog   = defaultCatalog.Subset(quickIDs)
)

// Default returns the built-in catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Quick returns the short version of the built-in catalog.
func Quick() *Catalog {
	return quickCatalog
}

func mustBuildDefault() *Catalog {
	categories := make([]Category, 0, len(defaultLayout))
	for _, l := range defaultLayout {
		questions := make([]Question, 0, l.count)
		for i := 1; i <= l.count; i++ {
			questions = append(questions, Question{ID: fmt.Sprintf("%s%d", l.prefix, i), Category: l.id})
		}
		categories = append(categories, Category{ID: l.id, Emoji: l.emoji, Questions: questions})
	}

	c, err := New(categories)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}
