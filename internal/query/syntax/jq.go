package syntax

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/kiln/internal/query/ir"
)

var jqPrefix = regexp.MustCompile(`^\s*(?:[A-Za-z_][A-Za-z0-9_]*\s*\(|\.)`)

// JQ parses a jq-like pipeline rooted at a traversal function:
//
//	outlinks("Index") | select(.path | startswith("daily/")) | .title | limit(5)
//
// Supported stages are select(.f == v), select(.f != v),
// select(.f | contains|startswith|endswith("v")), .field, {a, b} and limit(n).
type JQ struct{}

func NewJQ() *JQ { return &JQ{} }

func (*JQ) Name() string  { return "jq" }
func (*JQ) Priority() int { return 40 }

func (*JQ) Recognizes(input string) bool { return jqPrefix.MatchString(input) }

func (j *JQ) Parse(input string) (*ir.GraphIR, error) {
	if !j.Recognizes(input) {
		return nil, ErrNotRecognized
	}
	toks, err := lex(input)
	if err != nil {
		return nil, jaqError(input, err)
	}
	g, err := parseJQ(&cursor{toks: toks})
	if err != nil {
		return nil, jaqError(input, err)
	}
	return g, nil
}

func parseJQ(c *cursor) (*ir.GraphIR, error) {
	if c.isPunct(".") {
		return nil, fmt.Errorf("query must start with outlinks, inlinks, neighbors or note")
	}
	fnTok := c.next()
	fn := fnTok.text
	if _, ok := linkFunctions[fn]; !ok {
		return nil, fmt.Errorf("unknown function %q at offset %d", fn, fnTok.pos)
	}
	if err := c.expectPunct("("); err != nil {
		return nil, err
	}
	argTok := c.peek()
	if argTok.kind != tokString {
		return nil, fmt.Errorf("%s expects a string argument at offset %d, got %s", fn, argTok.pos, argTok)
	}
	c.next()
	if err := c.expectPunct(")"); err != nil {
		return nil, err
	}

	g, target, err := lowerFunction(fn, argTok.text)
	if err != nil {
		return nil, err
	}

	projected := false
	for c.acceptPunct("|") {
		switch {
		case c.isKeyword("select"):
			if projected {
				return nil, fmt.Errorf("select after projection at offset %d", c.peek().pos)
			}
			c.next()
			f, err := parseJQSelect(c, target)
			if err != nil {
				return nil, err
			}
			g.Filters = append(g.Filters, f)

		case c.isKeyword("limit"):
			c.next()
			if err := c.expectPunct("("); err != nil {
				return nil, err
			}
			n, err := c.expectInt("limit")
			if err != nil {
				return nil, err
			}
			if err := c.expectPunct(")"); err != nil {
				return nil, err
			}
			g.Limit = n

		case c.isPunct("."):
			if projected {
				return nil, fmt.Errorf("second projection at offset %d", c.peek().pos)
			}
			c.next()
			field, err := c.expectIdent("field")
			if err != nil {
				return nil, err
			}
			g.Projections = append(g.Projections, ir.Projection{Alias: target, Property: field, As: field})
			projected = true

		case c.isPunct("{"):
			if projected {
				return nil, fmt.Errorf("second projection at offset %d", c.peek().pos)
			}
			c.next()
			for {
				field, err := c.expectIdent("field")
				if err != nil {
					return nil, err
				}
				g.Projections = append(g.Projections, ir.Projection{Alias: target, Property: field, As: field})
				if !c.acceptPunct(",") {
					break
				}
			}
			if err := c.expectPunct("}"); err != nil {
				return nil, err
			}
			projected = true

		default:
			return nil, c.unexpected()
		}
	}

	if !c.atEOF() {
		return nil, c.unexpected()
	}
	return g, nil
}

// parseJQSelect reads (.f == v), (.f != v) or (.f | fn("v")) after "select".
func parseJQSelect(c *cursor, target string) (ir.Filter, error) {
	if err := c.expectPunct("("); err != nil {
		return ir.Filter{}, err
	}
	if err := c.expectPunct("."); err != nil {
		return ir.Filter{}, err
	}
	field, err := c.expectIdent("field")
	if err != nil {
		return ir.Filter{}, err
	}
	f := ir.Filter{Alias: target, Property: field}

	switch {
	case c.acceptPunct("=="):
		f.Op = ir.Eq
	case c.acceptPunct("!="):
		f.Op = ir.Ne
	case c.acceptPunct("|"):
		fnTok := c.peek()
		fn, err := c.expectIdent("string function")
		if err != nil {
			return ir.Filter{}, err
		}
		switch strings.ToLower(fn) {
		case "contains":
			f.Op = ir.Contains
		case "startswith":
			f.Op = ir.StartsWith
		case "endswith":
			f.Op = ir.EndsWith
		default:
			return ir.Filter{}, fmt.Errorf("unsupported function %q at offset %d", fn, fnTok.pos)
		}
		if err := c.expectPunct("("); err != nil {
			return ir.Filter{}, err
		}
		t := c.peek()
		if t.kind != tokString {
			return ir.Filter{}, fmt.Errorf("%s expects a string at offset %d, got %s", fn, t.pos, t)
		}
		c.next()
		f.Value = ir.StringValue(t.text)
		if err := c.expectPunct(")"); err != nil {
			return ir.Filter{}, err
		}
		if err := c.expectPunct(")"); err != nil {
			return ir.Filter{}, err
		}
		return f, nil
	default:
		t := c.peek()
		return ir.Filter{}, fmt.Errorf("expected ==, != or | at offset %d, got %s", t.pos, t)
	}

	v, err := parseValue(c)
	if err != nil {
		return ir.Filter{}, err
	}
	f.Value = v
	if err := c.expectPunct(")"); err != nil {
		return ir.Filter{}, err
	}
	return f, nil
}
