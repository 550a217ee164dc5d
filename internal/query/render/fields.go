package render

import (
	"github.com/starford/kiln/internal/query/ir"
)

// NodeColumns maps node properties stored as entity columns. Any other node
// property is looked up in the frontmatter namespace.
var NodeColumns = map[string]bool{
	"id":           true,
	"type":         true,
	"path":         true,
	"title":        true,
	"content_hash": true,
	"version":      true,
	"created_at":   true,
	"updated_at":   true,
}

// TagField filters nodes by tag (exact or descendant).
const TagField = "tag"

// EdgeFields lists properties of an unquantified edge variable.
var EdgeFields = map[string]bool{"type": true, "target": true, "position": true}

// DepthField is the only property of a quantified edge variable.
const DepthField = "depth"

// nodeSummary is what projecting a whole node returns.
var nodeSummary = []string{"id", "type", "path", "title"}

// Columns derives output columns from the projections of g. A whole-node
// projection expands to id, type, path and title; those columns are named
// plainly when it is the only projection and prefixed otherwise.
func Columns(g *ir.GraphIR, renderer string) ([]Column, error) {
	if len(g.Projections) == 0 {
		return nil, &Error{Kind: MissingField, Renderer: renderer, Field: "projections"}
	}
	sole := len(g.Projections) == 1
	var out []Column
	for _, p := range g.Projections {
		node := g.Node(p.Alias)
		edge := g.Edge(p.Alias)
		if node == nil && edge == nil {
			return nil, &Error{Kind: MissingField, Renderer: renderer, Field: p.Alias,
				Message: "projection references an unbound variable"}
		}

		prefix := p.Alias
		if p.As != "" {
			prefix = p.As
		}

		if p.Property != "" {
			if err := checkProjectable(renderer, edge, p); err != nil {
				return nil, err
			}
			name := p.Field()
			if p.As != "" {
				name = p.As
			}
			out = append(out, Column{Name: name, Alias: p.Alias, Property: p.Property})
			continue
		}

		var props []string
		switch {
		case node != nil:
			props = nodeSummary
		case edge.Quantifier != nil:
			props = []string{DepthField}
		default:
			props = []string{"type", "target"}
		}
		for _, prop := range props {
			name := prefix + "." + prop
			if sole && p.As == "" {
				name = prop
			}
			out = append(out, Column{Name: name, Alias: p.Alias, Property: prop})
		}
	}

	seen := make(map[string]struct{}, len(out))
	for _, c := range out {
		if _, dup := seen[c.Name]; dup {
			return nil, &Error{Kind: UnsupportedPattern, Renderer: renderer, Message: "duplicate output column " + c.Name}
		}
		seen[c.Name] = struct{}{}
	}
	return out, nil
}

func checkProjectable(renderer string, edge *ir.Edge, p ir.Projection) error {
	if edge == nil {
		if p.Property == TagField {
			return &Error{Kind: UnsupportedPattern, Renderer: renderer, Message: "tag cannot be projected"}
		}
		return nil
	}
	if edge.Quantifier != nil {
		if p.Property != DepthField {
			return &Error{Kind: MissingField, Renderer: renderer, Field: p.Field(),
				Message: "variable-length edges only expose depth"}
		}
		return nil
	}
	if !EdgeFields[p.Property] {
		return &Error{Kind: MissingField, Renderer: renderer, Field: p.Field()}
	}
	return nil
}

// checkFilters validates filter targets shared by every renderer.
func checkFilters(g *ir.GraphIR, renderer string) error {
	for _, f := range g.Filters {
		if g.Node(f.Alias) != nil {
			if f.Property == TagField && f.Op != ir.Eq && f.Op != ir.Ne {
				return &Error{Kind: UnsupportedFilter, Renderer: renderer, Field: f.Field(), Message: "tag supports = and <> only"}
			}
			continue
		}
		e := g.Edge(f.Alias)
		if e == nil {
			return &Error{Kind: MissingField, Renderer: renderer, Field: f.Alias,
				Message: "filter references an unbound variable"}
		}
		if e.Quantifier != nil {
			return &Error{Kind: UnsupportedFilter, Renderer: renderer, Field: f.Field(), Message: "variable-length edges cannot be filtered"}
		}
		if !EdgeFields[f.Property] {
			return &Error{Kind: UnsupportedFilter, Renderer: renderer, Field: f.Field(), Message: "unknown edge property"}
		}
	}
	return nil
}

// quantifiedEdges counts variable-length edges.
func quantifiedEdges(g *ir.GraphIR) int {
	n := 0
	for _, e := range g.Edges() {
		if e.Quantifier != nil {
			n++
		}
	}
	return n
}
