package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/query/ir"
	"github.com/starford/kiln/internal/query/render"
)

// Execute evaluates the plan attached to a graph rendering. Rows carry the
// same values and order the SQLite backend returns for the same IR: distinct
// rows sorted by every column, strings for text and int64 for integers.
func (s *Store) Execute(ctx context.Context, q *render.RenderedQuery) ([]eav.Row, error) {
	if q.Backend != render.BackendGraph {
		return nil, apperr.Errorf(apperr.KindInvalid, "memstore: execute", "query rendered for %s", q.Backend)
	}
	if q.Plan == nil {
		return nil, apperr.Errorf(apperr.KindInvalid, "memstore: execute", "query has no plan")
	}
	if unbound := q.Unbound(); len(unbound) > 0 {
		return nil, apperr.Errorf(apperr.KindInvalid, "memstore: execute", "unbound parameters: $%s", strings.Join(unbound, ", $"))
	}

	ex := newExecutor(s.snapshot(), q)
	matches, err := ex.match(ctx, q.Plan)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(matches))
	rows := make([][]any, 0, len(matches))
	for _, m := range matches {
		vals := make([]any, len(q.Columns))
		for i, c := range q.Columns {
			vals[i] = ex.column(m, c)
		}
		key := rowKey(vals)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, vals)
	}
	slices.SortFunc(rows, func(a, b []any) int {
		for i := range a {
			if c := compareValues(a[i], b[i]); c != 0 {
				return c
			}
		}
		return 0
	})
	if q.Plan.Limit > 0 && len(rows) > q.Plan.Limit {
		rows = rows[:q.Plan.Limit]
	}

	out := make([]eav.Row, len(rows))
	for i, vals := range rows {
		row := make(eav.Row, len(vals))
		for j, c := range q.Columns {
			row[c.Name] = vals[j]
		}
		out[i] = row
	}
	return out, nil
}

// binding maps pattern variables to what they matched: node aliases to entity
// IDs, plain edges to relations, quantified edges to path lengths.
type binding struct {
	nodes  map[string]string
	edges  map[string]eav.Relation
	depths map[string]int64
}

func (b binding) with(nodeAlias, id string) binding {
	out := binding{nodes: make(map[string]string, len(b.nodes)+1), edges: b.edges, depths: b.depths}
	for k, v := range b.nodes {
		out.nodes[k] = v
	}
	out.nodes[nodeAlias] = id
	return out
}

func (b binding) withEdge(alias string, r eav.Relation) binding {
	out := binding{nodes: b.nodes, edges: make(map[string]eav.Relation, len(b.edges)+1), depths: b.depths}
	for k, v := range b.edges {
		out.edges[k] = v
	}
	out.edges[alias] = r
	return out
}

func (b binding) withDepth(alias string, d int64) binding {
	out := binding{nodes: b.nodes, edges: b.edges, depths: make(map[string]int64, len(b.depths)+1)}
	for k, v := range b.depths {
		out.depths[k] = v
	}
	out.depths[alias] = d
	return out
}

type executor struct {
	st     *state
	params map[string]any
	out    map[string][]eav.Relation
	in     map[string][]eav.Relation
}

func newExecutor(st *state, q *render.RenderedQuery) *executor {
	ex := &executor{
		st:     st,
		params: make(map[string]any),
		out:    make(map[string][]eav.Relation),
		in:     make(map[string][]eav.Relation),
	}
	for _, p := range q.Params {
		if p.External {
			ex.params[p.Name] = p.Value
		}
	}
	for _, r := range st.relations {
		if r.To == "" {
			continue
		}
		ex.out[r.From] = append(ex.out[r.From], r)
		ex.in[r.To] = append(ex.in[r.To], r)
	}
	return ex
}

func (ex *executor) match(ctx context.Context, g *ir.GraphIR) ([]binding, error) {
	first := g.Pattern[0].Node
	if first == nil {
		return nil, apperr.Errorf(apperr.KindInvalid, "memstore: execute", "pattern must start with a node")
	}
	var current []binding
	for id := range ex.st.entities {
		if ex.nodeMatches(first, id) {
			current = append(current, binding{}.with(first.Alias, id))
		}
	}

	prev := first.Alias
	for i := 1; i+1 < len(g.Pattern); i += 2 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("memstore: execute: %w", err)
		}
		e, next := g.Pattern[i].Edge, g.Pattern[i+1].Node
		if e == nil || next == nil {
			return nil, apperr.Errorf(apperr.KindInvalid, "memstore: execute", "pattern must alternate nodes and edges")
		}
		var expanded []binding
		for _, b := range current {
			from := b.nodes[prev]
			if e.Quantifier != nil {
				for _, hop := range ex.paths(from, e) {
					if ex.nodeMatches(next, hop.end) {
						expanded = append(expanded, b.withDepth(e.Alias, hop.depth).with(next.Alias, hop.end))
					}
				}
				continue
			}
			for _, r := range ex.step(from, e) {
				to := r.To
				if r.From != from || (e.Direction == ir.In && r.To == from) {
					to = r.From
				}
				if ex.nodeMatches(next, to) {
					expanded = append(expanded, b.withEdge(e.Alias, r).with(next.Alias, to))
				}
			}
		}
		current = expanded
		prev = next.Alias
	}

	filtered := current[:0]
	for _, b := range current {
		if ex.filtersHold(g, b) {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

// step returns the resolved relations an unquantified edge can traverse from id.
func (ex *executor) step(id string, e *ir.Edge) []eav.Relation {
	var cands []eav.Relation
	switch e.Direction {
	case ir.Out:
		cands = ex.out[id]
	case ir.In:
		cands = ex.in[id]
	default:
		cands = append(slices.Clone(ex.out[id]), ex.in[id]...)
	}
	var out []eav.Relation
	seen := make(map[string]struct{})
	for _, r := range cands {
		if e.Type != "" && r.Type != e.Type {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

type hop struct {
	end   string
	depth int64
}

// paths enumerates simple paths from start along e: no node, the start
// included, is visited twice.
func (ex *executor) paths(start string, e *ir.Edge) []hop {
	minHops, maxHops := e.Quantifier.Bounds()
	var out []hop
	if minHops == 0 {
		out = append(out, hop{end: start})
	}
	visited := map[string]bool{start: true}
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if depth >= maxHops {
			return
		}
		for _, next := range ex.neighbors(id, e) {
			if visited[next] {
				continue
			}
			if depth+1 >= minHops {
				out = append(out, hop{end: next, depth: int64(depth + 1)})
			}
			visited[next] = true
			walk(next, depth+1)
			visited[next] = false
		}
	}
	walk(start, 0)
	return out
}

// neighbors returns distinct entity IDs one edge away from id.
func (ex *executor) neighbors(id string, e *ir.Edge) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(n string) {
		if _, dup := seen[n]; !dup {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	if e.Direction != ir.In {
		for _, r := range ex.out[id] {
			if e.Type == "" || r.Type == e.Type {
				add(r.To)
			}
		}
	}
	if e.Direction != ir.Out {
		for _, r := range ex.in[id] {
			if e.Type == "" || r.Type == e.Type {
				add(r.From)
			}
		}
	}
	return out
}

func (ex *executor) nodeMatches(n *ir.Node, id string) bool {
	e, ok := ex.st.entities[id]
	if !ok {
		return false
	}
	if n.Label != "" && string(e.Type) != n.Label {
		return false
	}
	for _, p := range n.Properties {
		if !ex.nodeHolds(id, p.Key, ir.Eq, p.Value) {
			return false
		}
	}
	return true
}

func (ex *executor) filtersHold(g *ir.GraphIR, b binding) bool {
	for _, f := range g.Filters {
		if id, ok := b.nodes[f.Alias]; ok {
			if !ex.nodeHolds(id, f.Property, f.Op, f.Value) {
				return false
			}
			continue
		}
		r, ok := b.edges[f.Alias]
		if !ok {
			return false
		}
		if !ex.compare(edgeValue(r, f.Property), f.Op, f.Value, f.Property == "position") {
			return false
		}
	}
	return true
}

func (ex *executor) nodeHolds(id, prop string, op ir.Op, v ir.Value) bool {
	if prop == render.TagField {
		name, ok := ex.text(v)
		if !ok {
			return false
		}
		has := ex.st.hasTag(id, name)
		if op == ir.Ne {
			return !has
		}
		return has
	}
	return ex.compare(ex.nodeValue(id, prop), op, v, prop == "version")
}

// nodeValue returns a node property as the SQLite backend would: entity
// columns, or the frontmatter property of that name, or nil.
func (ex *executor) nodeValue(id, prop string) any {
	e := ex.st.entities[id]
	switch prop {
	case "id":
		return e.ID
	case "type":
		return string(e.Type)
	case "path":
		if e.Path == "" {
			return nil
		}
		return e.Path
	case "title":
		return e.Title
	case "content_hash":
		if e.ContentHash.IsZero() {
			return ""
		}
		return e.ContentHash.Hex()
	case "version":
		return int64(e.Version)
	case "created_at":
		return eav.FormatTime(e.CreatedAt)
	case "updated_at":
		return eav.FormatTime(e.UpdatedAt)
	}
	if v, ok := ex.st.props[id][propKey{eav.NamespaceFrontmatter, prop}]; ok {
		return v.Raw
	}
	return nil
}

func edgeValue(r eav.Relation, prop string) any {
	switch prop {
	case "type":
		return r.Type
	case "target":
		return r.Target
	case "position":
		return int64(r.Position)
	}
	return nil
}

func (ex *executor) column(b binding, c render.Column) any {
	if id, ok := b.nodes[c.Alias]; ok {
		return ex.nodeValue(id, c.Property)
	}
	if d, ok := b.depths[c.Alias]; ok {
		return d
	}
	return edgeValue(b.edges[c.Alias], c.Property)
}

// compare applies op with SQL semantics: a missing value never equals
// anything, <> also holds for missing values, equality is exact, and the
// substring operators fold ASCII case.
func (ex *executor) compare(got any, op ir.Op, v ir.Value, numeric bool) bool {
	if v.Kind == ir.Null {
		switch op {
		case ir.Eq:
			return got == nil
		case ir.Ne:
			return got != nil
		}
		return false
	}

	switch op {
	case ir.Eq, ir.Ne:
		eq := got != nil && ex.equal(got, v, numeric)
		if op == ir.Eq {
			return eq
		}
		return got == nil || !eq
	}

	if got == nil {
		return false
	}
	needle, ok := ex.text(v)
	if !ok {
		return false
	}
	hay := asciiLower(textOf(got))
	needle = asciiLower(needle)
	switch op {
	case ir.Contains:
		return strings.Contains(hay, needle)
	case ir.StartsWith:
		return strings.HasPrefix(hay, needle)
	case ir.EndsWith:
		return strings.HasSuffix(hay, needle)
	}
	return false
}

func (ex *executor) equal(got any, v ir.Value, numeric bool) bool {
	if numeric {
		want, ok := ex.number(v)
		if !ok {
			return false
		}
		g, ok := toFloat(got)
		return ok && g == want
	}
	want, ok := ex.text(v)
	return ok && textOf(got) == want
}

// text returns v as the string SQLite would compare against a TEXT column.
func (ex *executor) text(v ir.Value) (string, bool) {
	if v.Kind == ir.Param {
		p, ok := ex.params[v.Str]
		if !ok || p == nil {
			return "", false
		}
		return textOf(p), true
	}
	return v.Text(), true
}

func (ex *executor) number(v ir.Value) (float64, bool) {
	switch v.Kind {
	case ir.Number:
		return v.Num, true
	case ir.Param:
		p, ok := ex.params[v.Str]
		if !ok {
			return 0, false
		}
		return toFloat(p)
	case ir.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	}
	return 0, false
}

func textOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// compareValues orders nil before numbers before strings, as SQLite does.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case 1:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return cmp.Compare(fa, fb)
	case 2:
		return strings.Compare(textOf(a), textOf(b))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int, int64, float64:
		return 1
	}
	return 2
}

func rowKey(vals []any) string {
	var sb strings.Builder
	for _, v := range vals {
		fmt.Fprintf(&sb, "%d:%s\x00", rank(v), textOf(v))
	}
	return sb.String()
}
