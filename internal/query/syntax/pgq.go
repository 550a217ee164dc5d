package syntax

import (
	"fmt"
	"regexp"

	"github.com/starford/kiln/internal/query/ir"
)

var pgqPrefix = regexp.MustCompile(`(?i)^\s*MATCH[\s(]`)

// PGQ parses SQL/PGQ-style graph patterns:
//
//	MATCH (a:note {title: 'Index'})-[e:wikilink*1..3]->(b)
//	WHERE b.path STARTS WITH 'daily/' AND a.status = $s
//	RETURN b.title AS title LIMIT 10
type PGQ struct{}

func NewPGQ() *PGQ { return &PGQ{} }

func (*PGQ) Name() string  { return "pgq" }
func (*PGQ) Priority() int { return 50 }

func (*PGQ) Recognizes(input string) bool { return pgqPrefix.MatchString(input) }

func (p *PGQ) Parse(input string) (*ir.GraphIR, error) {
	if !p.Recognizes(input) {
		return nil, ErrNotRecognized
	}
	toks, err := lex(input)
	if err != nil {
		return nil, pgqError(input, err)
	}
	c := &cursor{toks: toks}
	g, err := parsePGQ(c)
	if err != nil {
		return nil, pgqError(input, err)
	}
	return g, nil
}

func parsePGQ(c *cursor) (*ir.GraphIR, error) {
	if err := c.expectKeyword("MATCH"); err != nil {
		return nil, err
	}
	g := &ir.GraphIR{}

	n, err := parseNodePattern(c)
	if err != nil {
		return nil, err
	}
	g.Pattern = append(g.Pattern, ir.Element{Node: n})
	for c.isPunct("-") || c.isPunct("<") {
		e, err := parseEdgePattern(c)
		if err != nil {
			return nil, err
		}
		n, err := parseNodePattern(c)
		if err != nil {
			return nil, err
		}
		g.Pattern = append(g.Pattern, ir.Element{Edge: e}, ir.Element{Node: n})
	}

	if c.acceptKeyword("WHERE") {
		for {
			f, err := parsePGQCondition(c)
			if err != nil {
				return nil, err
			}
			g.Filters = append(g.Filters, f)
			if !c.acceptKeyword("AND") {
				break
			}
		}
	}

	if c.acceptKeyword("RETURN") {
		for {
			p, err := parseProjection(c)
			if err != nil {
				return nil, err
			}
			g.Projections = append(g.Projections, p)
			if !c.acceptPunct(",") {
				break
			}
		}
	}

	if c.acceptKeyword("LIMIT") {
		n, err := c.expectInt("limit")
		if err != nil {
			return nil, err
		}
		g.Limit = n
	}

	if !c.atEOF() {
		return nil, c.unexpected()
	}
	return g, nil
}

// parseNodePattern reads ( [alias] [:label] [{k: v, ...}] ).
func parseNodePattern(c *cursor) (*ir.Node, error) {
	if err := c.expectPunct("("); err != nil {
		return nil, err
	}
	n := &ir.Node{}
	if c.peek().kind == tokIdent {
		n.Alias = c.next().text
	}
	if c.acceptPunct(":") {
		label, err := c.expectIdent("node label")
		if err != nil {
			return nil, err
		}
		n.Label = label
	}
	if c.acceptPunct("{") {
		for !c.isPunct("}") {
			key, err := c.expectIdent("property name")
			if err != nil {
				return nil, err
			}
			if err := c.expectPunct(":"); err != nil {
				return nil, err
			}
			v, err := parseValue(c)
			if err != nil {
				return nil, err
			}
			n.Properties = append(n.Properties, ir.PropertyMatch{Key: key, Value: v})
			if !c.acceptPunct(",") {
				break
			}
		}
		if err := c.expectPunct("}"); err != nil {
			return nil, err
		}
	}
	if err := c.expectPunct(")"); err != nil {
		return nil, err
	}
	return n, nil
}

// parseEdgePattern reads -[...]->, <-[...]-, -[...]-, <-[...]-> and the
// bracketless forms -->, <--, --.
func parseEdgePattern(c *cursor) (*ir.Edge, error) {
	left := c.acceptPunct("<")
	if err := c.expectPunct("-"); err != nil {
		return nil, err
	}
	e := &ir.Edge{}
	if c.acceptPunct("[") {
		if c.peek().kind == tokIdent {
			e.Alias = c.next().text
		}
		if c.acceptPunct(":") {
			typ, err := c.expectIdent("relation type")
			if err != nil {
				return nil, err
			}
			e.Type = typ
		}
		if c.isPunct("*") || c.isPunct("+") {
			q, err := parseQuantifier(c)
			if err != nil {
				return nil, err
			}
			e.Quantifier = q
		}
		if err := c.expectPunct("]"); err != nil {
			return nil, err
		}
	}
	if err := c.expectPunct("-"); err != nil {
		return nil, err
	}
	right := c.acceptPunct(">")

	switch {
	case left && right:
		e.Direction = ir.Both
	case left:
		e.Direction = ir.In
	case right:
		e.Direction = ir.Out
	default:
		e.Direction = ir.Undirected
	}
	return e, nil
}

// parseQuantifier reads *, +, *n, *a..b, *..b and *a..
func parseQuantifier(c *cursor) (*ir.Quantifier, error) {
	if c.acceptPunct("+") {
		return &ir.Quantifier{Min: 1, Max: ir.Unbounded}, nil
	}
	if err := c.expectPunct("*"); err != nil {
		return nil, err
	}
	q := &ir.Quantifier{Min: 1, Max: ir.Unbounded}
	if c.peek().kind == tokNumber {
		n, err := c.expectInt("hop count")
		if err != nil {
			return nil, err
		}
		q.Min = n
		if !c.isPunct("..") {
			q.Max = n
			return q, nil
		}
	}
	if c.acceptPunct("..") {
		if c.peek().kind == tokNumber {
			n, err := c.expectInt("maximum hops")
			if err != nil {
				return nil, err
			}
			q.Max = n
		}
	}
	return q, nil
}

// parsePGQCondition reads alias.property op value.
func parsePGQCondition(c *cursor) (ir.Filter, error) {
	alias, err := c.expectIdent("variable")
	if err != nil {
		return ir.Filter{}, err
	}
	if err := c.expectPunct("."); err != nil {
		return ir.Filter{}, err
	}
	prop, err := c.expectIdent("property name")
	if err != nil {
		return ir.Filter{}, err
	}
	op, err := parseComparison(c)
	if err != nil {
		return ir.Filter{}, err
	}
	v, err := parseValue(c)
	if err != nil {
		return ir.Filter{}, err
	}
	return ir.Filter{Alias: alias, Property: prop, Op: op, Value: v}, nil
}

// parseProjection reads alias[.property] [AS name].
func parseProjection(c *cursor) (ir.Projection, error) {
	alias, err := c.expectIdent("variable")
	if err != nil {
		return ir.Projection{}, err
	}
	p := ir.Projection{Alias: alias}
	if c.acceptPunct(".") {
		prop, err := c.expectIdent("property name")
		if err != nil {
			return ir.Projection{}, err
		}
		p.Property = prop
	}
	if c.acceptKeyword("AS") {
		name, err := c.expectIdent("column alias")
		if err != nil {
			return ir.Projection{}, fmt.Errorf("RETURN %s: %w", p.Field(), err)
		}
		p.As = name
	}
	return p, nil
}
