// Package syntax turns query text into GraphIR through a priority-ordered set
// of pluggable surface syntaxes.
package syntax

import (
	"errors"
	"sort"

	"github.com/starford/kiln/internal/query/ir"
)

// Syntax is one surface query language.
type Syntax interface {
	Name() string
	// Priority orders syntaxes; higher is tried first.
	Priority() int
	// Parse returns ErrNotRecognized when input is not written in this syntax,
	// and a *ParseError when it is but is malformed.
	Parse(input string) (*ir.GraphIR, error)
}

// Builder collects syntaxes before freezing them into a Registry.
type Builder struct {
	syntaxes []Syntax
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Register adds syntaxes. Order only matters between equal priorities.
func (b *Builder) Register(s ...Syntax) *Builder {
	b.syntaxes = append(b.syntaxes, s...)
	return b
}

// Build freezes the registered syntaxes in descending priority, keeping
// registration order for ties.
func (b *Builder) Build() *Registry {
	list := append([]Syntax(nil), b.syntaxes...)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority() > list[j].Priority()
	})
	return &Registry{syntaxes: list}
}

// Registry is an immutable, priority-ordered list of syntaxes. It is safe for
// concurrent use.
type Registry struct {
	syntaxes []Syntax
}

// Default returns the shipped registry: pgq, SQL-sugar and jq.
func Default() *Registry {
	return NewBuilder().Register(NewJQ(), NewSQL(), NewPGQ()).Build()
}

// Names returns syntax names in priority order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.syntaxes))
	for i, s := range r.syntaxes {
		out[i] = s.Name()
	}
	return out
}

// Len returns the number of registered syntaxes.
func (r *Registry) Len() int { return len(r.syntaxes) }

// Parse returns the IR from the highest-priority syntax that recognizes input.
// That syntax owns the result: its parse failure is returned, not skipped.
func (r *Registry) Parse(input string) (*ir.GraphIR, error) {
	tried := make([]string, 0, len(r.syntaxes))
	for _, s := range r.syntaxes {
		tried = append(tried, s.Name())
		g, err := s.Parse(input)
		if errors.Is(err, ErrNotRecognized) {
			continue
		}
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				return nil, pe
			}
			return nil, &ParseError{Kind: Invalid, Input: input, Message: s.Name() + ": " + err.Error()}
		}
		if g == nil || len(g.Pattern) == 0 {
			return nil, &ParseError{Kind: Invalid, Input: input, Message: s.Name() + ": empty pattern"}
		}
		return g, nil
	}
	return nil, &ParseError{Kind: NoMatchingSyntax, Input: input, Tried: tried}
}

// Recognizer reports which syntax would own input without building IR, or ""
// when none would.
func (r *Registry) Recognizer(input string) string {
	for _, s := range r.syntaxes {
		if rec, ok := s.(interface{ Recognizes(string) bool }); ok {
			if rec.Recognizes(input) {
				return s.Name()
			}
			continue
		}
		if _, err := s.Parse(input); !errors.Is(err, ErrNotRecognized) {
			return s.Name()
		}
	}
	return ""
}
