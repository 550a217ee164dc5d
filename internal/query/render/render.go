// Package render turns GraphIR into backend-native queries.
package render

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/starford/kiln/internal/query/ir"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendGraph  = "graph"
)

// Renderer generates a query for one backend dialect.
type Renderer interface {
	Name() string
	// Backend names the store dialect the rendered text targets.
	Backend() string
	// Supports is a capability predicate over the IR shape.
	Supports(g *ir.GraphIR) bool
	Render(g *ir.GraphIR) (*RenderedQuery, error)
}

// Param is a named query parameter. External parameters come from $name in
// the query text and are bound at execution time.
type Param struct {
	Name     string `json:"name"`
	Value    any    `json:"value,omitempty"`
	External bool   `json:"external,omitempty"`
}

// Column is one output column: a property of a pattern variable.
type Column struct {
	Name     string `json:"name"`
	Alias    string `json:"alias"`
	Property string `json:"property"`
}

// RenderedQuery is backend-native query text plus everything needed to run it.
type RenderedQuery struct {
	Backend string      `json:"backend"`
	Text    string      `json:"text"`
	Params  []Param     `json:"params,omitempty"`
	Columns []Column    `json:"columns"`
	Plan    *ir.GraphIR `json:"-"`
}

// Bind returns a copy with external parameters set from values. Every
// external parameter must be present.
func (q *RenderedQuery) Bind(values map[string]any) (*RenderedQuery, error) {
	out := *q
	out.Params = make([]Param, len(q.Params))
	for i, p := range q.Params {
		if p.External {
			v, ok := values[p.Name]
			if !ok {
				return nil, fmt.Errorf("render: parameter $%s is not bound", p.Name)
			}
			p.Value = normalizeParam(v)
		}
		out.Params[i] = p
	}
	return &out, nil
}

// normalizeParam binds integral floats (as decoded from JSON) as integers so
// they compare like the equivalent literal.
func normalizeParam(v any) any {
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return v
}

// Unbound lists external parameters that still lack a value.
func (q *RenderedQuery) Unbound() []string {
	var out []string
	for _, p := range q.Params {
		if p.External && p.Value == nil {
			out = append(out, p.Name)
		}
	}
	return out
}

// Args returns the parameters as database/sql named arguments.
func (q *RenderedQuery) Args() []any {
	out := make([]any, len(q.Params))
	for i, p := range q.Params {
		out[i] = sql.Named(p.Name, p.Value)
	}
	return out
}

// ParamValue returns the value bound to name.
func (q *RenderedQuery) ParamValue(name string) (any, bool) {
	for _, p := range q.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// ErrorKind classifies a RenderError.
type ErrorKind int

const (
	UnsupportedPattern ErrorKind = iota
	MissingField
	UnsupportedFilter
)

func (k ErrorKind) String() string {
	switch k {
	case UnsupportedPattern:
		return "unsupported_pattern"
	case MissingField:
		return "missing_field"
	case UnsupportedFilter:
		return "unsupported_filter"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the Render phase failure.
type Error struct {
	Kind     ErrorKind
	Renderer string
	Field    string
	Message  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case MissingField:
		return fmt.Sprintf("%s: missing field %s", e.Renderer, e.Field)
	case UnsupportedFilter:
		return fmt.Sprintf("%s: unsupported filter on %s: %s", e.Renderer, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: unsupported pattern: %s", e.Renderer, e.Message)
}
