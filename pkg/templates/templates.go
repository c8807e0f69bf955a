// Package templates holds the catalog of predefined block skeletons used to
// seed new documents.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kittclouds/kittpages/pkg/blocks"
)

const defaultCatalogPath = "defaults/templates.yaml"

//go:embed defaults/templates.yaml
var defaultFS embed.FS

// Template is a named document skeleton.
type Template struct {
	ID          string
	Name        string
	Title       string
	Icon        string
	Description string
	blocks      []blocks.Block
}

// Blocks returns a deep copy of the template's blocks with fresh ids from
// newID, including blocks nested in columns.
func (t Template) Blocks(newID func() string) []blocks.Block {
	out := make([]blocks.Block, len(t.blocks))
	for i, b := range t.blocks {
		out[i] = blocks.CloneWithNewIDs(b, newID)
	}
	return out
}

// Len returns the number of top-level blocks.
func (t Template) Len() int {
	return len(t.blocks)
}

// Catalog is an immutable set of templates keyed by id.
type Catalog struct {
	byID  map[string]Template
	order []string
}

type catalogFile struct {
	Templates []templateEntry `yaml:"templates"`
}

type templateEntry struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Title       string       `yaml:"title"`
	Icon        string       `yaml:"icon"`
	Description string       `yaml:"description"`
	Blocks      []blockEntry `yaml:"blocks"`
}

type blockEntry struct {
	Type    string         `yaml:"type"`
	Content string         `yaml:"content"`
	Props   map[string]any `yaml:"props"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. It panics if the embedded file is
// malformed.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := loadFromFS(defaultFS, defaultCatalogPath)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func loadFromFS(fsys fs.FS, name string) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	c := &Catalog{byID: make(map[string]Template, len(file.Templates))}
	for i, entry := range file.Templates {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("template %d is missing id", i)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("duplicate template id: %q", id)
		}

		list := make([]blocks.Block, 0, len(entry.Blocks))
		for j, be := range entry.Blocks {
			t := blocks.Type(be.Type)
			if !t.Valid() {
				return nil, fmt.Errorf("template %q block %d: unknown type %q", id, j, be.Type)
			}
			b := blocks.Block{Type: t, Content: be.Content}
			if len(be.Props) > 0 {
				b.Props = blocks.Props(be.Props)
			}
			list = append(list, b)
		}

		c.byID[id] = Template{
			ID:          id,
			Name:        entry.Name,
			Title:       entry.Title,
			Icon:        entry.Icon,
			Description: entry.Description,
			blocks:      list,
		}
		c.order = append(c.order, id)
	}
	return c, nil
}

// Get looks up a template by id.
func (c *Catalog) Get(id string) (Template, bool) {
	if c == nil {
		return Template{}, false
	}
	t, ok := c.byID[id]
	return t, ok
}

// List returns templates in catalog order.
func (c *Catalog) List() []Template {
	if c == nil {
		return nil
	}
	out := make([]Template, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the sorted template ids.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}
