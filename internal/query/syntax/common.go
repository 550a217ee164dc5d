package syntax

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/kiln/internal/query/ir"
)

// Aliases bound by the function-style syntaxes (jq and SQL-sugar).
const (
	anchorAlias = "a"
	resultAlias = "b"
)

// linkFunctions are the traversal shorthands shared by jq and SQL-sugar.
var linkFunctions = map[string]struct{}{
	"outlinks":  {},
	"inlinks":   {},
	"neighbors": {},
	"note":      {},
}

// anchorKey picks the node property an anchor argument binds: paths end in .md.
func anchorKey(arg string) string {
	if strings.HasSuffix(strings.ToLower(arg), ".md") {
		return "path"
	}
	return "title"
}

// lowerFunction builds the pattern for fn(arg) and returns the alias of the
// node the query yields.
func lowerFunction(fn, arg string) (*ir.GraphIR, string, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, "", fmt.Errorf("%s: empty note reference", fn)
	}
	anchor := &ir.Node{
		Alias:      anchorAlias,
		Properties: []ir.PropertyMatch{{Key: anchorKey(arg), Value: ir.StringValue(arg)}},
	}
	if fn == "note" {
		return &ir.GraphIR{Pattern: []ir.Element{{Node: anchor}}}, anchorAlias, nil
	}

	var dir ir.Direction
	switch fn {
	case "outlinks":
		dir = ir.Out
	case "inlinks":
		dir = ir.In
	case "neighbors":
		dir = ir.Undirected
	default:
		return nil, "", fmt.Errorf("unknown function %q", fn)
	}
	return &ir.GraphIR{
		Pattern: []ir.Element{
			{Node: anchor},
			{Edge: &ir.Edge{Type: "wikilink", Direction: dir}},
			{Node: &ir.Node{Alias: resultAlias}},
		},
	}, resultAlias, nil
}

// parseValue reads a literal or $parameter.
func parseValue(c *cursor) (ir.Value, error) {
	t := c.peek()
	switch t.kind {
	case tokString:
		c.next()
		return ir.StringValue(t.text), nil
	case tokNumber:
		c.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return ir.Value{}, fmt.Errorf("bad number %s at offset %d", t.text, t.pos)
		}
		return ir.NumberValue(f), nil
	case tokParam:
		c.next()
		return ir.ParamValue(t.text), nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			c.next()
			return ir.BoolValue(true), nil
		case "false":
			c.next()
			return ir.BoolValue(false), nil
		case "null":
			c.next()
			return ir.NullValue(), nil
		}
	case tokPunct:
		if t.text == "-" && c.peekAt(1).kind == tokNumber {
			c.next()
			n := c.next()
			f, err := strconv.ParseFloat(n.text, 64)
			if err != nil {
				return ir.Value{}, fmt.Errorf("bad number %s at offset %d", n.text, n.pos)
			}
			return ir.NumberValue(-f), nil
		}
	}
	return ir.Value{}, fmt.Errorf("expected value at offset %d, got %s", t.pos, t)
}

// parseComparison reads a comparison operator shared by pgq and SQL-sugar.
func parseComparison(c *cursor) (ir.Op, error) {
	switch {
	case c.acceptPunct("="), c.acceptPunct("=="):
		return ir.Eq, nil
	case c.acceptPunct("!="), c.acceptPunct("<>"):
		return ir.Ne, nil
	case c.acceptKeyword("CONTAINS"):
		return ir.Contains, nil
	case c.isKeyword("STARTS"):
		c.next()
		if err := c.expectKeyword("WITH"); err != nil {
			return 0, err
		}
		return ir.StartsWith, nil
	case c.isKeyword("ENDS"):
		c.next()
		if err := c.expectKeyword("WITH"); err != nil {
			return 0, err
		}
		return ir.EndsWith, nil
	}
	t := c.peek()
	return 0, fmt.Errorf("expected comparison operator at offset %d, got %s", t.pos, t)
}

// likeFilter maps a SQL LIKE pattern onto the nearest string operator.
func likeFilter(pattern string) (ir.Op, string, error) {
	lead := strings.HasPrefix(pattern, "%")
	trail := strings.HasSuffix(pattern, "%") && len(pattern) > 1
	inner := strings.TrimSuffix(strings.TrimPrefix(pattern, "%"), "%")
	if strings.ContainsAny(inner, "%_") {
		return 0, "", fmt.Errorf("LIKE pattern %q: only leading or trailing %% is supported", pattern)
	}
	switch {
	case lead && trail:
		return ir.Contains, inner, nil
	case lead:
		return ir.EndsWith, inner, nil
	case trail:
		return ir.StartsWith, inner, nil
	}
	return ir.Eq, inner, nil
}
