// Package transform applies ordered IR-to-IR passes between parsing and rendering.
package transform

import (
	"fmt"

	"github.com/starford/kiln/internal/query/ir"
)

// ErrorKind classifies a transform failure.
type ErrorKind int

const (
	Validation ErrorKind = iota
	UnsupportedFilter
)

func (k ErrorKind) String() string {
	switch k {
	case Validation:
		return "validation"
	case UnsupportedFilter:
		return "unsupported_filter"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the Transform phase failure.
type Error struct {
	Kind    ErrorKind
	Pass    string
	Message string
	// Pattern is the rejected filter, rendered as "alias.property op value".
	Pattern string
}

func (e *Error) Error() string {
	if e.Kind == UnsupportedFilter {
		return fmt.Sprintf("%s: unsupported filter %s", e.Pass, e.Pattern)
	}
	return fmt.Sprintf("%s: %s", e.Pass, e.Message)
}

// Pass is one IR rewrite or check. Passes must not touch state outside the IR
// they return; a chain may run concurrently for unrelated queries.
type Pass interface {
	Name() string
	Apply(g *ir.GraphIR) (*ir.GraphIR, error)
}

// Chain runs passes in registration order. The zero Chain passes IR through.
type Chain struct {
	passes []Pass
}

// NewChain returns a chain over passes.
func NewChain(passes ...Pass) *Chain {
	return &Chain{passes: append([]Pass(nil), passes...)}
}

// Default is Normalize followed by Validate.
func Default() *Chain {
	return NewChain(Normalize(), Validate())
}

// With returns a new chain with extra passes appended.
func (c *Chain) With(passes ...Pass) *Chain {
	var base []Pass
	if c != nil {
		base = c.passes
	}
	return NewChain(append(append([]Pass(nil), base...), passes...)...)
}

// Names lists pass names in order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.passes))
	for i, p := range c.passes {
		out[i] = p.Name()
	}
	return out
}

// Apply runs every pass on a clone of g and stops at the first error.
func (c *Chain) Apply(g *ir.GraphIR) (*ir.GraphIR, error) {
	out := g.Clone()
	if c == nil {
		return out, nil
	}
	for _, p := range c.passes {
		next, err := p.Apply(out)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

// PassFunc adapts a function to Pass.
type PassFunc struct {
	PassName string
	Fn       func(*ir.GraphIR) (*ir.GraphIR, error)
}

func (p PassFunc) Name() string                             { return p.PassName }
func (p PassFunc) Apply(g *ir.GraphIR) (*ir.GraphIR, error) { return p.Fn(g) }
