package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownModel is returned when an identifier is not in the catalog.
var ErrUnknownModel = errors.New("model not in catalog")

// Entry is one selectable model.
type Entry struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Default is substituted when the supplied catalog is empty.
var Default = Entry{ID: "qwen2.5:1.5b", Name: "Qwen 2.5 (1.5B) - Fast"}

// Seed returns the built-in catalog.
func Seed() []Entry {
	return []Entry{
		Default,
		{ID: "llama3.2:3b", Name: "Llama 3.2 (3B) - Smarter"},
		{ID: "qwen2.5:3b", Name: "Qwen 2.5 (3B)"},
	}
}

// Catalog is an immutable, ordered list of models.
type Catalog struct {
	entries []Entry
}

// New builds a catalog, dropping entries without an id and falling back to
// Default when nothing is left.
func New(entries []Entry) *Catalog {
	cleaned := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = id
		}
		cleaned = append(cleaned, Entry{ID: id, Name: name})
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, Default)
	}
	return &Catalog{entries: cleaned}
}

type fileFormat struct {
	Models []Entry `yaml:"models"`
}

// Load reads a YAML catalog file of the form `models: [{id, name}]`.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(doc.Models), nil
}

// List returns the entries in order.
func (c *Catalog) List() []Entry {
	return append([]Entry(nil), c.entries...)
}

// First returns the entry selected on startup.
func (c *Catalog) First() Entry {
	return c.entries[0]
}

// Find looks up an entry by id.
func (c *Catalog) Find(id string) (Entry, bool) {
	for _, entry := range c.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

// Resolve returns the entry for id, or ErrUnknownModel.
func (c *Catalog) Resolve(id string) (Entry, error) {
	entry, ok := c.Find(strings.TrimSpace(id))
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return entry, nil
}
