// Package glossary holds the terminology and story-bible material injected
// into translation prompts.
package glossary

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one source term and its fixed translation.
type Entry struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
	Note   string `yaml:"note,omitempty" json:"note,omitempty"`
}

// Character is a named person in the story bible. Aliases are alternative
// surface forms that also trigger inclusion.
type Character struct {
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Description string   `yaml:"description" json:"description"`
}

// WorldEntry is setting background. Active entries are always included.
type WorldEntry struct {
	Title   string `yaml:"title" json:"title"`
	Content string `yaml:"content" json:"content"`
	Active  bool   `yaml:"active" json:"active"`
}

type StoryBible struct {
	Characters []Character  `yaml:"characters,omitempty" json:"characters,omitempty"`
	World      []WorldEntry `yaml:"world,omitempty" json:"world,omitempty"`
}

// File is the on-disk YAML layout.
type File struct {
	Glossary []Entry    `yaml:"glossary"`
	Story    StoryBible `yaml:"story_bible"`
}

// Load reads a YAML glossary file.
func Load(filename string) (*File, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read glossary: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML glossary data, dropping entries without a source or
// target.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse glossary: %w", err)
	}

	entries := f.Glossary[:0]
	for _, e := range f.Glossary {
		e.Source = strings.TrimSpace(e.Source)
		e.Target = strings.TrimSpace(e.Target)
		if e.Source == "" || e.Target == "" {
			continue
		}
		entries = append(entries, e)
	}
	f.Glossary = entries
	return &f, nil
}
