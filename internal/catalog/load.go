package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileCatalog struct {
	Categories []struct {
		ID        string   `yaml:"id"`
		Emoji     string   `yaml:"emoji"`
		Questions []string `yaml:"questions"`
	} `yaml:"categories"`
}

// Load reads a catalog definition from a YAML file:
//
//	categories:
//	  - id: basics
//	    emoji: "💕"
//	    questions: [b1, b2]
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %q: %w", path, err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var raw fileCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	categories := make([]Category, 0, len(raw.Categories))
	for _, cat := range raw.Categories {
		questions := make([]Question, 0, len(cat.Questions))
		for _, id := range cat.Questions {
			questions = append(questions, Question{ID: id, Category: cat.ID})
		}
		categories = append(categories, Category{ID: cat.ID, Emoji: cat.Emoji, Questions: questions})
	}

	return New(categories)
}
