package render

import (
	"fmt"
	"strings"

	"github.com/starford/kiln/internal/query/ir"
)

// Cypher renders GraphIR to Cypher for the graph-native backend. The text is
// what an external graph engine would run; the in-process graph store executes
// the attached Plan with the same semantics.
type Cypher struct{}

func NewCypher() *Cypher { return &Cypher{} }

func (*Cypher) Name() string    { return "cypher" }
func (*Cypher) Backend() string { return BackendGraph }

// Supports accepts any non-empty path pattern.
func (*Cypher) Supports(g *ir.GraphIR) bool {
	return g != nil && len(g.Pattern) > 0
}

func (r *Cypher) Render(g *ir.GraphIR) (*RenderedQuery, error) {
	if g == nil || len(g.Pattern) == 0 {
		return nil, &Error{Kind: MissingField, Renderer: r.Name(), Field: "pattern"}
	}
	if err := checkFilters(g, r.Name()); err != nil {
		return nil, err
	}
	cols, err := Columns(g, r.Name())
	if err != nil {
		return nil, err
	}

	var (
		params []Param
		seen   = make(map[string]bool)
	)
	val := func(v ir.Value) string {
		if v.Kind == ir.Param && !seen[v.Str] {
			seen[v.Str] = true
			params = append(params, Param{Name: v.Str, External: true})
		}
		return v.String()
	}

	var sb strings.Builder
	sb.WriteString("MATCH ")
	for i, el := range g.Pattern {
		if n := el.Node; n != nil {
			if n.Alias == "" {
				return nil, &Error{Kind: MissingField, Renderer: r.Name(), Field: fmt.Sprintf("pattern[%d].alias", i)}
			}
			sb.WriteString("(" + n.Alias)
			if n.Label != "" {
				sb.WriteString(":" + n.Label)
			}
			if len(n.Properties) > 0 {
				props := make([]string, len(n.Properties))
				for j, p := range n.Properties {
					props[j] = p.Key + ": " + val(p.Value)
				}
				sb.WriteString(" {" + strings.Join(props, ", ") + "}")
			}
			sb.WriteString(")")
			continue
		}
		e := el.Edge
		left, right := "-", "->"
		switch e.Direction {
		case ir.In:
			left, right = "<-", "-"
		case ir.Both, ir.Undirected:
			left, right = "-", "-"
		}
		sb.WriteString(left + "[" + e.Alias)
		if e.Type != "" {
			sb.WriteString(":" + e.Type)
		}
		if e.Quantifier != nil {
			lo, hi := e.Quantifier.Bounds()
			fmt.Fprintf(&sb, "*%d..%d", lo, hi)
		}
		sb.WriteString("]" + right)
	}

	for i, f := range g.Filters {
		if i == 0 {
			sb.WriteString("\nWHERE ")
		} else {
			sb.WriteString("\n  AND ")
		}
		if f.Property == TagField && g.Node(f.Alias) != nil {
			v := val(f.Value)
			cond := fmt.Sprintf("ANY(t IN %s.tags WHERE t = %s OR t STARTS WITH %s + '/')", f.Alias, v, v)
			if f.Op == ir.Ne {
				cond = "NOT " + cond
			}
			sb.WriteString(cond)
			continue
		}
		if f.Value.Kind == ir.Null {
			switch f.Op {
			case ir.Eq:
				fmt.Fprintf(&sb, "%s IS NULL", f.Field())
			case ir.Ne:
				fmt.Fprintf(&sb, "%s IS NOT NULL", f.Field())
			default:
				return nil, &Error{Kind: UnsupportedFilter, Renderer: r.Name(), Field: f.Field(), Message: f.Op.String() + " null"}
			}
			continue
		}
		if f.Op != ir.Eq && f.Op != ir.Ne && f.Value.Kind != ir.String && f.Value.Kind != ir.Param {
			return nil, &Error{Kind: UnsupportedFilter, Renderer: r.Name(), Field: f.Field(), Message: f.Op.String() + " needs a string value"}
		}
		fmt.Fprintf(&sb, "%s %s %s", f.Field(), f.Op, val(f.Value))
	}

	returns := make([]string, len(cols))
	order := make([]string, len(cols))
	for i, c := range cols {
		returns[i] = fmt.Sprintf("%s.%s AS `%s`", c.Alias, c.Property, c.Name)
		order[i] = "`" + c.Name + "`"
	}
	sb.WriteString("\nRETURN DISTINCT " + strings.Join(returns, ", "))
	sb.WriteString("\nORDER BY " + strings.Join(order, ", "))
	if g.Limit > 0 {
		fmt.Fprintf(&sb, "\nLIMIT %d", g.Limit)
	}

	return &RenderedQuery{
		Backend: r.Backend(),
		Text:    sb.String(),
		Params:  params,
		Columns: cols,
		Plan:    g.Clone(),
	}, nil
}
