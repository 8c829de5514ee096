package tasks

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Catalog is an ordered, immutable set of task templates.
// Order is significant: strategies index templates by catalog position.
type Catalog struct {
	defs []TaskDefinition
	byID map[string]int
}

type catalogFile struct {
	Templates []TaskDefinition `yaml:"templates"`
}

var builtinDefinitions = []TaskDefinition{
	{ID: "inbox-triage", Title: "Inbox triage", Description: "Sort and route the shared inbox", Category: CategoryDaily, EstimatedMinutes: 20},
	{ID: "standup-notes", Title: "Stand-up notes", Description: "Publish notes from the morning stand-up", Category: CategoryDaily, EstimatedMinutes: 15},
	{ID: "backup-check", Title: "Backup check", Description: "Confirm last night's backups completed", Category: CategoryDaily, EstimatedMinutes: 10},
	{ID: "eod-report", Title: "End-of-day report", Description: "Summarize open items before close", Category: CategoryDaily, EstimatedMinutes: 30},
	{ID: "inventory-review", Title: "Inventory review", Description: "Reconcile stock against the ledger", Category: CategoryWeekly, EstimatedMinutes: 60},
	{ID: "team-sync-summary", Title: "Team sync summary", Description: "Write up decisions from the weekly sync", Category: CategoryWeekly, EstimatedMinutes: 45},
	{ID: "access-review", Title: "Access review", Description: "Audit accounts and revoke stale access", Category: CategoryMonthly, EstimatedMinutes: 90},
	{ID: "expense-reconciliation", Title: "Expense reconciliation", Description: "Match receipts to card statements", Category: CategoryMonthly, EstimatedMinutes: 120},
}

// NewCatalog validates defs and builds a catalog preserving their order.
// Missing IDs are derived from the title.
func NewCatalog(defs []TaskDefinition) (*Catalog, error) {
	c := &Catalog{
		defs: make([]TaskDefinition, 0, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	for i, def := range defs {
		def.Title = strings.TrimSpace(def.Title)
		if def.Title == "" {
			return nil, fmt.Errorf("template %d: title is required", i)
		}
		if def.ID == "" {
			def.ID = slugify(def.Title)
		}
		cat, err := ParseCategory(string(def.Category))
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", def.ID, err)
		}
		def.Category = cat
		if def.EstimatedMinutes < 0 {
			return nil, fmt.Errorf("template %q: estimated_minutes must not be negative", def.ID)
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("template %q: duplicate id", def.ID)
		}
		c.byID[def.ID] = len(c.defs)
		c.defs = append(c.defs, def)
	}
	return c, nil
}

// DefaultCatalog returns the built-in templates.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(builtinDefinitions)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads templates from a YAML file. An empty path yields the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return NewCatalog(file.Templates)
}

// ByCategory returns the templates of one category in catalog order.
func (c *Catalog) ByCategory(category Category) []TaskDefinition {
	var out []TaskDefinition
	for _, def := range c.defs {
		if def.Category == category {
			out = append(out, def)
		}
	}
	return out
}

// All returns every template in catalog order.
func (c *Catalog) All() []TaskDefinition {
	out := make([]TaskDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Get looks up a template by ID.
func (c *Catalog) Get(id string) (TaskDefinition, error) {
	i, ok := c.byID[id]
	if !ok {
		return TaskDefinition{}, fmt.Errorf("%w: template %q", ErrNotFound, id)
	}
	return c.defs[i], nil
}

// Len returns the number of templates.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// CatalogRef holds a catalog that can be swapped while readers use it,
// e.g. when the daemon reloads the catalog file.
type CatalogRef struct {
	p atomic.Pointer[Catalog]
}

// NewCatalogRef wraps c.
func NewCatalogRef(c *Catalog) *CatalogRef {
	r := &CatalogRef{}
	r.p.Store(c)
	return r
}

// Load returns the current catalog.
func (r *CatalogRef) Load() *Catalog {
	return r.p.Load()
}

// Swap installs c and returns the previous catalog.
func (r *CatalogRef) Swap(c *Catalog) *Catalog {
	return r.p.Swap(c)
}

// ByCategory reads from the current catalog.
func (r *CatalogRef) ByCategory(category Category) []TaskDefinition {
	return r.Load().ByCategory(category)
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
