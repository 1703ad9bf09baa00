package ingest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// synonymFile is the on-disk layout:
//
//	categories:
//	  - name: Groceries
//	    keywords: [supermarket, grocery, bakery]
type synonymFile struct {
	Categories []struct {
		Name     string   `yaml:"name"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"categories"`
}

// SynonymTable maps a category name (case-insensitive) to extra keywords.
// A nil table has no synonyms.
type SynonymTable struct {
	entries map[string][]string
}

func NewSynonymTable(entries map[string][]string) *SynonymTable {
	t := &SynonymTable{entries: make(map[string][]string, len(entries))}
	for name, kws := range entries {
		t.add(name, kws)
	}
	return t
}

// LoadSynonyms reads a YAML synonym table. An empty path yields an empty table.
func LoadSynonyms(path string) (*SynonymTable, error) {
	if path == "" {
		return NewSynonymTable(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonym file: %w", err)
	}
	return ParseSynonyms(data)
}

func ParseSynonyms(data []byte) (*SynonymTable, error) {
	var f synonymFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse synonym file: %w", err)
	}
	t := NewSynonymTable(nil)
	for _, c := range f.Categories {
		t.add(c.Name, c.Keywords)
	}
	return t, nil
}

func (t *SynonymTable) add(name string, keywords []string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			t.entries[key] = append(t.entries[key], kw)
		}
	}
}

// Keywords returns the synonyms configured for a category name.
func (t *SynonymTable) Keywords(category string) []string {
	if t == nil {
		return nil
	}
	return t.entries[strings.ToLower(strings.TrimSpace(category))]
}

// Len reports how many category names carry synonyms.
func (t *SynonymTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
