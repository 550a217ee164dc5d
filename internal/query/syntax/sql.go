package syntax

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/kiln/internal/query/ir"
)

var sqlPrefix = regexp.MustCompile(`(?i)^\s*SELECT\s`)

// SQL parses the SQL-sugar form:
//
//	SELECT outlinks FROM 'Index' WHERE title LIKE 'Go%' AND status = 'draft' LIMIT 5
//
// The selected name is one of outlinks, inlinks, neighbors or note; WHERE
// columns refer to the yielded note.
type SQL struct{}

func NewSQL() *SQL { return &SQL{} }

func (*SQL) Name() string  { return "sql" }
func (*SQL) Priority() int { return 45 }

func (*SQL) Recognizes(input string) bool { return sqlPrefix.MatchString(input) }

func (s *SQL) Parse(input string) (*ir.GraphIR, error) {
	if !s.Recognizes(input) {
		return nil, ErrNotRecognized
	}
	toks, err := lex(input)
	if err != nil {
		return nil, sqlError(input, err)
	}
	g, err := parseSQL(&cursor{toks: toks})
	if err != nil {
		return nil, sqlError(input, err)
	}
	return g, nil
}

func parseSQL(c *cursor) (*ir.GraphIR, error) {
	if err := c.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	fnTok := c.peek()
	fn, err := c.expectIdent("outlinks, inlinks, neighbors or note")
	if err != nil {
		return nil, err
	}
	fn = strings.ToLower(fn)
	if _, ok := linkFunctions[fn]; !ok {
		return nil, fmt.Errorf("unknown relation %q at offset %d (want outlinks, inlinks, neighbors or note)", fnTok.text, fnTok.pos)
	}

	var columns []string
	if c.acceptPunct(".") {
		for {
			col, err := c.expectIdent("column")
			if err != nil {
				return nil, err
			}
			columns = append(columns, col)
			if !c.acceptPunct(",") {
				break
			}
		}
	}

	if err := c.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	src := c.peek()
	var arg string
	switch src.kind {
	case tokString, tokIdent:
		arg = src.text
		c.next()
	default:
		return nil, fmt.Errorf("expected note reference at offset %d, got %s", src.pos, src)
	}

	g, target, err := lowerFunction(fn, arg)
	if err != nil {
		return nil, err
	}
	for _, col := range columns {
		g.Projections = append(g.Projections, ir.Projection{Alias: target, Property: col, As: col})
	}

	if c.acceptKeyword("WHERE") {
		for {
			f, err := parseSQLCondition(c, target)
			if err != nil {
				return nil, err
			}
			g.Filters = append(g.Filters, f)
			if !c.acceptKeyword("AND") {
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

// parseSQLCondition reads column op value, where column may be qualified as
// target.column and op may be LIKE.
func parseSQLCondition(c *cursor, target string) (ir.Filter, error) {
	col, err := c.expectIdent("column")
	if err != nil {
		return ir.Filter{}, err
	}
	if c.acceptPunct(".") {
		// Qualified form: only the yielded note can be filtered.
		if col != target {
			return ir.Filter{}, fmt.Errorf("unknown table %q", col)
		}
		if col, err = c.expectIdent("column"); err != nil {
			return ir.Filter{}, err
		}
	}

	f := ir.Filter{Alias: target, Property: col}
	if c.acceptKeyword("LIKE") {
		t := c.peek()
		if t.kind != tokString {
			return ir.Filter{}, fmt.Errorf("LIKE needs a string pattern at offset %d, got %s", t.pos, t)
		}
		c.next()
		op, val, err := likeFilter(t.text)
		if err != nil {
			return ir.Filter{}, err
		}
		f.Op, f.Value = op, ir.StringValue(val)
		return f, nil
	}

	if f.Op, err = parseComparison(c); err != nil {
		return ir.Filter{}, err
	}
	if f.Value, err = parseValue(c); err != nil {
		return ir.Filter{}, err
	}
	return f, nil
}
