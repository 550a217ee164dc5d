package syntax

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokParam
	tokPunct
)

type token struct {
	kind tokenKind
	text string // identifier, decoded string, number text, param name, or punctuation
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return strconv.Quote(t.text)
	case tokParam:
		return "$" + t.text
	}
	return "'" + t.text + "'"
}

// multi-character punctuation, longest first.
var puncts = []string{"..", "==", "!=", "<>", "(", ")", "[", "]", "{", "}", ":", ",", ".", "|", "*", "+", "-", "<", ">", "=", "!"}

// lex splits input into tokens shared by every shipped syntax.
func lex(input string) ([]token, error) {
	var out []token
	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		switch {
		case unicode.IsSpace(r):
			i += size

		case r == '\'' || r == '"':
			s, n, err := lexString(input[i:])
			if err != nil {
				return nil, fmt.Errorf("%w at offset %d", err, i)
			}
			out = append(out, token{kind: tokString, text: s, pos: i})
			i += n

		case r == '$':
			j := i + 1
			for j < len(input) && isIdentByte(input[j]) {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("empty parameter name at offset %d", i)
			}
			out = append(out, token{kind: tokParam, text: input[i+1 : j], pos: i})
			i = j

		case r >= '0' && r <= '9':
			j := i
			for j < len(input) && input[j] >= '0' && input[j] <= '9' {
				j++
			}
			// A fraction needs a digit after the dot so "1..3" lexes as 1 .. 3.
			if j+1 < len(input) && input[j] == '.' && input[j+1] >= '0' && input[j+1] <= '9' {
				j++
				for j < len(input) && input[j] >= '0' && input[j] <= '9' {
					j++
				}
			}
			out = append(out, token{kind: tokNumber, text: input[i:j], pos: i})
			i = j

		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(input) {
				r2, s2 := utf8.DecodeRuneInString(input[j:])
				if r2 != '_' && !unicode.IsLetter(r2) && !unicode.IsDigit(r2) {
					break
				}
				j += s2
			}
			out = append(out, token{kind: tokIdent, text: input[i:j], pos: i})
			i = j

		default:
			matched := false
			for _, p := range puncts {
				if strings.HasPrefix(input[i:], p) {
					out = append(out, token{kind: tokPunct, text: p, pos: i})
					i += len(p)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
			}
		}
	}
	out = append(out, token{kind: tokEOF, pos: len(input)})
	return out, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// lexString decodes a quoted string starting at s[0] and returns the value and
// the number of bytes consumed.
func lexString(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

// cursor walks a token slice.
type cursor struct {
	toks []token
	i    int
}

func (c *cursor) peek() token { return c.toks[c.i] }

func (c *cursor) peekAt(n int) token {
	if c.i+n < len(c.toks) {
		return c.toks[c.i+n]
	}
	return c.toks[len(c.toks)-1]
}

func (c *cursor) next() token {
	t := c.toks[c.i]
	if t.kind != tokEOF {
		c.i++
	}
	return t
}

func (c *cursor) atEOF() bool { return c.peek().kind == tokEOF }

// isPunct reports whether the next token is punctuation p.
func (c *cursor) isPunct(p string) bool {
	t := c.peek()
	return t.kind == tokPunct && t.text == p
}

// acceptPunct consumes p when it is next.
func (c *cursor) acceptPunct(p string) bool {
	if c.isPunct(p) {
		c.i++
		return true
	}
	return false
}

func (c *cursor) expectPunct(p string) error {
	if c.acceptPunct(p) {
		return nil
	}
	t := c.peek()
	return fmt.Errorf("expected '%s' at offset %d, got %s", p, t.pos, t)
}

// isKeyword reports whether the next token is the case-insensitive keyword kw.
func (c *cursor) isKeyword(kw string) bool {
	t := c.peek()
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (c *cursor) acceptKeyword(kw string) bool {
	if c.isKeyword(kw) {
		c.i++
		return true
	}
	return false
}

func (c *cursor) expectKeyword(kw string) error {
	if c.acceptKeyword(kw) {
		return nil
	}
	t := c.peek()
	return fmt.Errorf("expected %s at offset %d, got %s", kw, t.pos, t)
}

func (c *cursor) expectIdent(what string) (string, error) {
	t := c.peek()
	if t.kind != tokIdent {
		return "", fmt.Errorf("expected %s at offset %d, got %s", what, t.pos, t)
	}
	c.i++
	return t.text, nil
}

func (c *cursor) expectInt(what string) (int, error) {
	t := c.peek()
	if t.kind != tokNumber {
		return 0, fmt.Errorf("expected %s at offset %d, got %s", what, t.pos, t)
	}
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, fmt.Errorf("expected integer %s at offset %d, got %s", what, t.pos, t)
	}
	c.i++
	return n, nil
}

func (c *cursor) unexpected() error {
	t := c.peek()
	return fmt.Errorf("unexpected %s at offset %d", t, t.pos)
}
