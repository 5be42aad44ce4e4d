package resource

import (
	"context"
	"strings"

	"muse-backend/internal/schema"
	"muse-backend/internal/store"
)

// Enricher augments rows after the engine's own FK enrichment has run.
// List enrichers receive the whole page; detail enrichers a single-row slice.
type Enricher func(ctx context.Context, q store.Querier, d store.Dialect, rows []map[string]any) error

// Filter declares one extra list-query parameter mapped to a column.
// A filter whose query value is absent or empty contributes no predicate.
type Filter struct {
	Param   string
	Column  string
	Partial bool                       // partial match instead of equality
	Coerce  func(string) (any, error)  // nil means pass the raw string through
}

// Join declares an FK enrichment: the source column's value is expanded
// into an {id, name} sub-object looked up from Table. Label names the
// display column and defaults to "name".
type Join struct {
	Column string
	Table  string
	Label  string
}

// Key returns the response key the sub-object is attached under,
// derived by stripping the column's "_id" suffix.
func (j Join) Key() string {
	key := strings.TrimSuffix(j.Column, "_id")
	if key == "" || key == j.Column {
		return j.Column
	}
	return key
}

// LabelColumn returns the display column, defaulting to "name".
func (j Join) LabelColumn() string {
	if j.Label != "" {
		return j.Label
	}
	return "name"
}

// Relationship declares one associative edge from the owning entity.
type Relationship struct {
	Slug          string
	PivotTable    string
	RelatedTable  string
	ParentKey     string // pivot column holding the owning entity's id
	RelatedKey    string // pivot column holding the related entity's id
	BodyField     string // request-body field carrying the related id on assign
	PayloadCols   []string
	PayloadSchema *schema.Schema
}

// HasPayload reports whether the edge carries payload columns.
func (r *Relationship) HasPayload() bool {
	return len(r.PayloadCols) > 0
}

// Config is the static descriptor for one exposed resource. All engine
// behavior is dispatched over this struct; entities add no code of their
// own beyond optional enrichers.
type Config struct {
	Base string // URL base, "{scope}/{slug}"
	Name string // human-readable entity name

	Table         string
	NameColumn    string // defaults to "name"
	Context       string // context-scope value; empty means unpartitioned
	ContextColumn string // defaults to "context" when Context is set

	CreateSchema *schema.Schema
	UpdateSchema *schema.Schema // nil: derived from CreateSchema (partial + archived)

	DefaultSort  string
	DefaultOrder string // "asc" or "desc"
	SortColumns  map[string]string

	SearchColumns  []string // nil: equality on the name column
	SearchDisabled bool

	Filters       []Filter
	Joins         []Join
	Relationships []Relationship

	ListEnricher   Enricher
	DetailEnricher Enricher
}

func (c *Config) nameColumn() string {
	if c.NameColumn != "" {
		return c.NameColumn
	}
	return "name"
}

func (c *Config) contextColumn() string {
	if c.ContextColumn != "" {
		return c.ContextColumn
	}
	return "context"
}

func (c *Config) defaultOrder() string {
	if c.DefaultOrder == "desc" {
		return "DESC"
	}
	return "ASC"
}

// EffectiveUpdateSchema returns the configured update schema, or one
// synthesized from the create schema with every field optional plus an
// optional archived flag.
func (c *Config) EffectiveUpdateSchema() *schema.Schema {
	if c.UpdateSchema != nil {
		return c.UpdateSchema
	}
	return c.CreateSchema.Partial().WithArchived()
}

// BoolColumns lists the boolean columns of the resource's rows, for
// SQLite read normalization. "archived" is server-managed and always present.
func (c *Config) BoolColumns() []string {
	cols := []string{"archived"}
	cols = append(cols, c.CreateSchema.BoolColumns()...)
	return cols
}

// Relationship resolves an edge by slug, or nil.
func (c *Config) Relationship(slug string) *Relationship {
	for i := range c.Relationships {
		if c.Relationships[i].Slug == slug {
			return &c.Relationships[i]
		}
	}
	return nil
}

// Registry holds the static table of resource configurations, keyed by
// their URL base. Pure configuration; no behavior beyond lookup.
type Registry struct {
	configs map[string]*Config
	order   []string
}

func NewRegistry(configs ...*Config) *Registry {
	r := &Registry{configs: make(map[string]*Config, len(configs))}
	for _, c := range configs {
		r.configs[c.Base] = c
		r.order = append(r.order, c.Base)
	}
	return r
}

// Get returns the config mounted at "{scope}/{slug}", or nil.
func (r *Registry) Get(scope, slug string) *Config {
	return r.configs[scope+"/"+slug]
}

// All returns all configs in registration order.
func (r *Registry) All() []*Config {
	out := make([]*Config, 0, len(r.order))
	for _, base := range r.order {
		out = append(out, r.configs[base])
	}
	return out
}
