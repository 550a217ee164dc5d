package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/kiln/internal/query/ir"
)

// SQLite renders GraphIR to SQL over the EAV schema: entities joined through
// relations, frontmatter properties through correlated subqueries, and one
// variable-length edge through a recursive CTE with cycle prevention.
type SQLite struct{}

func NewSQLite() *SQLite { return &SQLite{} }

func (*SQLite) Name() string    { return "sqlite" }
func (*SQLite) Backend() string { return BackendSQLite }

// Supports accepts patterns with at most one variable-length edge.
func (*SQLite) Supports(g *ir.GraphIR) bool {
	return g != nil && len(g.Pattern) > 0 && quantifiedEdges(g) <= 1
}

func (r *SQLite) Render(g *ir.GraphIR) (*RenderedQuery, error) {
	if g == nil || len(g.Pattern) == 0 {
		return nil, &Error{Kind: MissingField, Renderer: r.Name(), Field: "pattern"}
	}
	if quantifiedEdges(g) > 1 {
		return nil, &Error{Kind: UnsupportedPattern, Renderer: r.Name(), Message: "more than one variable-length edge"}
	}
	if err := checkFilters(g, r.Name()); err != nil {
		return nil, err
	}
	cols, err := Columns(g, r.Name())
	if err != nil {
		return nil, err
	}

	b := &sqlBuilder{renderer: r.Name(), quantified: make(map[string]bool)}
	var (
		ctes  []string
		joins []string
		where []string
		prev  string
	)

	for i, el := range g.Pattern {
		if el.Node != nil {
			n := el.Node
			if n.Alias == "" {
				return nil, &Error{Kind: MissingField, Renderer: r.Name(), Field: fmt.Sprintf("pattern[%d].alias", i)}
			}
			if i == 0 {
				joins = append(joins, "FROM entities "+n.Alias)
			}
			if n.Label != "" {
				where = append(where, fmt.Sprintf("%s.type = %s", n.Alias, b.lit(n.Label)))
			}
			for _, p := range n.Properties {
				cond, err := b.nodePredicate(n.Alias, p.Key, ir.Eq, p.Value)
				if err != nil {
					return nil, err
				}
				where = append(where, cond)
			}
			prev = n.Alias
			continue
		}

		e := el.Edge
		if e.Alias == "" || i+1 >= len(g.Pattern) || g.Pattern[i+1].Node == nil {
			return nil, &Error{Kind: MissingField, Renderer: r.Name(), Field: fmt.Sprintf("pattern[%d].alias", i)}
		}
		next := g.Pattern[i+1].Node.Alias
		if e.Quantifier != nil {
			ctes = append(ctes, b.pathCTE(e)...)
			minHops, _ := e.Quantifier.Bounds()
			b.quantified[e.Alias] = true
			joins = append(joins,
				fmt.Sprintf("JOIN path_%s %s ON %s.start_id = %s.id AND %s.depth >= %d", e.Alias, e.Alias, e.Alias, prev, e.Alias, minHops),
				fmt.Sprintf("JOIN entities %s ON %s.id = %s.end_id", next, next, e.Alias),
			)
			continue
		}

		switch e.Direction {
		case ir.Out:
			joins = append(joins,
				fmt.Sprintf("JOIN relations %s ON %s.from_entity_id = %s.id", e.Alias, e.Alias, prev),
				fmt.Sprintf("JOIN entities %s ON %s.id = %s.to_entity_id", next, next, e.Alias))
		case ir.In:
			joins = append(joins,
				fmt.Sprintf("JOIN relations %s ON %s.to_entity_id = %s.id", e.Alias, e.Alias, prev),
				fmt.Sprintf("JOIN entities %s ON %s.id = %s.from_entity_id", next, next, e.Alias))
		default:
			joins = append(joins,
				fmt.Sprintf("JOIN relations %s ON (%s.from_entity_id = %s.id OR %s.to_entity_id = %s.id)", e.Alias, e.Alias, prev, e.Alias, prev),
				fmt.Sprintf("JOIN entities %s ON %s.id = CASE WHEN %s.from_entity_id = %s.id THEN %s.to_entity_id ELSE %s.from_entity_id END",
					next, next, e.Alias, prev, e.Alias, e.Alias))
		}
		if e.Type != "" {
			where = append(where, fmt.Sprintf("%s.relation_type = %s", e.Alias, b.lit(e.Type)))
		}
	}

	for _, f := range g.Filters {
		var (
			cond string
			err  error
		)
		if g.Node(f.Alias) != nil {
			cond, err = b.nodePredicate(f.Alias, f.Property, f.Op, f.Value)
		} else {
			cond, err = b.predicate(f.Field(), edgeColumn(f.Alias, f.Property), f.Op, f.Value, f.Property == "position")
		}
		if err != nil {
			return nil, err
		}
		where = append(where, cond)
	}

	selects := make([]string, len(cols))
	order := make([]string, len(cols))
	for i, c := range cols {
		selects[i] = fmt.Sprintf("%s AS %s", b.columnExpr(g, c), quoteIdent(c.Name))
		order[i] = strconv.Itoa(i + 1)
	}

	var sb strings.Builder
	if len(ctes) > 0 {
		sb.WriteString("WITH RECURSIVE ")
		sb.WriteString(strings.Join(ctes, ",\n"))
		sb.WriteString("\n")
	}
	sb.WriteString("SELECT DISTINCT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString("\n")
	sb.WriteString(strings.Join(joins, "\n"))
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, "\n  AND "))
	}
	sb.WriteString("\nORDER BY ")
	sb.WriteString(strings.Join(order, ", "))
	if g.Limit > 0 {
		fmt.Fprintf(&sb, "\nLIMIT %d", g.Limit)
	}

	return &RenderedQuery{
		Backend: r.Backend(),
		Text:    sb.String(),
		Params:  b.params,
		Columns: cols,
		Plan:    g.Clone(),
	}, nil
}

type sqlBuilder struct {
	renderer   string
	params     []Param
	lits       int
	external   map[string]bool
	quantified map[string]bool
}

// lit binds a literal and returns its placeholder.
func (b *sqlBuilder) lit(v any) string {
	b.lits++
	name := "lit" + strconv.Itoa(b.lits)
	b.params = append(b.params, Param{Name: name, Value: v})
	return ":" + name
}

// value returns the placeholder for v. Literals compare as text unless numeric.
func (b *sqlBuilder) value(v ir.Value, numeric bool) (string, error) {
	switch v.Kind {
	case ir.Param:
		if strings.HasPrefix(v.Str, "lit") {
			return "", &Error{Kind: UnsupportedPattern, Renderer: b.renderer, Message: "parameter name $" + v.Str + " is reserved"}
		}
		if b.external == nil {
			b.external = make(map[string]bool)
		}
		if !b.external[v.Str] {
			b.external[v.Str] = true
			b.params = append(b.params, Param{Name: v.Str, External: true})
		}
		return ":" + v.Str, nil
	case ir.Number:
		if numeric {
			return b.lit(v.Num), nil
		}
	}
	return b.lit(v.Text()), nil
}

func (b *sqlBuilder) nodeExpr(alias, prop string) string {
	if NodeColumns[prop] {
		return alias + "." + prop
	}
	return fmt.Sprintf("(SELECT value FROM properties WHERE entity_id = %s.id AND namespace = 'frontmatter' AND key = %s)", alias, b.lit(prop))
}

func (b *sqlBuilder) nodePredicate(alias, prop string, op ir.Op, v ir.Value) (string, error) {
	field := alias + "." + prop
	if prop == TagField {
		if v.Kind == ir.Null {
			return "", &Error{Kind: UnsupportedFilter, Renderer: b.renderer, Field: field, Message: "tag cannot be null"}
		}
		ph, err := b.value(v, false)
		if err != nil {
			return "", err
		}
		exists := fmt.Sprintf("EXISTS (SELECT 1 FROM entity_tags t WHERE t.entity_id = %s.id AND (t.tag = %s OR substr(t.tag, 1, length(%s) + 1) = %s || '/'))",
			alias, ph, ph, ph)
		switch op {
		case ir.Eq:
			return exists, nil
		case ir.Ne:
			return "NOT " + exists, nil
		}
		return "", &Error{Kind: UnsupportedFilter, Renderer: b.renderer, Field: field, Message: "tag supports = and <> only"}
	}
	return b.predicate(field, b.nodeExpr(alias, prop), op, v, prop == "version")
}

func (b *sqlBuilder) predicate(field, expr string, op ir.Op, v ir.Value, numeric bool) (string, error) {
	if v.Kind == ir.Null {
		switch op {
		case ir.Eq:
			return expr + " IS NULL", nil
		case ir.Ne:
			return expr + " IS NOT NULL", nil
		}
		return "", &Error{Kind: UnsupportedFilter, Renderer: b.renderer, Field: field, Message: op.String() + " null"}
	}

	switch op {
	case ir.Eq, ir.Ne:
		ph, err := b.value(v, numeric)
		if err != nil {
			return "", err
		}
		if op == ir.Eq {
			return fmt.Sprintf("%s = %s", expr, ph), nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s <> %s)", expr, expr, ph), nil
	}

	switch v.Kind {
	case ir.String:
		var pattern string
		esc := escapeLike(v.Str)
		switch op {
		case ir.Contains:
			pattern = "%" + esc + "%"
		case ir.StartsWith:
			pattern = esc + "%"
		case ir.EndsWith:
			pattern = "%" + esc
		}
		return fmt.Sprintf("%s LIKE %s ESCAPE '\\'", expr, b.lit(pattern)), nil
	case ir.Param:
		ph, err := b.value(v, false)
		if err != nil {
			return "", err
		}
		switch op {
		case ir.Contains:
			return fmt.Sprintf("instr(lower(%s), lower(%s)) > 0", expr, ph), nil
		case ir.StartsWith:
			return fmt.Sprintf("lower(substr(%s, 1, length(%s))) = lower(%s)", expr, ph, ph), nil
		case ir.EndsWith:
			return fmt.Sprintf("lower(substr(%s, -length(%s))) = lower(%s)", expr, ph, ph), nil
		}
	}
	return "", &Error{Kind: UnsupportedFilter, Renderer: b.renderer, Field: field, Message: op.String() + " needs a string value"}
}

func (b *sqlBuilder) columnExpr(g *ir.GraphIR, c Column) string {
	if g.Node(c.Alias) != nil {
		return b.nodeExpr(c.Alias, c.Property)
	}
	if b.quantified[c.Alias] {
		return c.Alias + ".depth"
	}
	return edgeColumn(c.Alias, c.Property)
}

// pathCTE returns the CTEs enumerating simple paths along edge e. Paths never
// revisit a node, which bounds recursion on cyclic link graphs.
func (b *sqlBuilder) pathCTE(e *ir.Edge) []string {
	typeCond := ""
	if e.Type != "" {
		typeCond = " AND relation_type = " + b.lit(e.Type)
	}
	out := fmt.Sprintf("SELECT from_entity_id AS src, to_entity_id AS dst FROM relations WHERE to_entity_id IS NOT NULL%s", typeCond)
	in := fmt.Sprintf("SELECT to_entity_id AS src, from_entity_id AS dst FROM relations WHERE to_entity_id IS NOT NULL%s", typeCond)
	var edges string
	switch e.Direction {
	case ir.Out:
		edges = out
	case ir.In:
		edges = in
	default:
		edges = out + "\n  UNION\n  " + in
	}

	minHops, maxHops := e.Quantifier.Bounds()
	base := fmt.Sprintf("SELECT src, dst, 1, ',' || src || ',' || dst || ',' FROM edges_%s WHERE src <> dst", e.Alias)
	if minHops == 0 {
		base = "SELECT id, id, 0, ',' || id || ',' FROM entities"
	}

	return []string{
		fmt.Sprintf("edges_%s(src, dst) AS (\n  %s\n)", e.Alias, edges),
		fmt.Sprintf(`path_%[1]s(start_id, end_id, depth, visited) AS (
  %[2]s
  UNION ALL
  SELECT p.start_id, x.dst, p.depth + 1, p.visited || x.dst || ','
  FROM path_%[1]s p JOIN edges_%[1]s x ON x.src = p.end_id
  WHERE p.depth < %[3]d AND instr(p.visited, ',' || x.dst || ',') = 0
)`, e.Alias, base, maxHops),
	}
}

func edgeColumn(alias, prop string) string {
	switch prop {
	case "type":
		return alias + ".relation_type"
	case "target":
		return alias + ".target"
	case "position":
		return alias + ".position"
	}
	return alias + "." + prop
}

// escapeLike escapes LIKE wildcards with a backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
