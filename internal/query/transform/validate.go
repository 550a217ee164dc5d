package transform

import (
	"errors"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kiln/internal/query/ir"
)

// MaxHops caps explicit quantifier bounds.
const MaxHops = 32

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type validate struct{}

// Validate checks structure: the pattern alternates node/edge starting and
// ending with a node, variables are unique identifiers, quantifiers are
// well-formed, and filters and projections reference bound variables.
func Validate() Pass { return validate{} }

func (validate) Name() string { return "validate" }

func (v validate) Apply(g *ir.GraphIR) (*ir.GraphIR, error) {
	if err := v.check(g); err != nil {
		return nil, &Error{Kind: Validation, Pass: v.Name(), Message: err.Error()}
	}
	return g, nil
}

func (validate) check(g *ir.GraphIR) error {
	if len(g.Pattern) == 0 {
		return errors.New("empty pattern")
	}
	if len(g.Pattern)%2 == 0 {
		return errors.New("pattern must start and end with a node")
	}

	var aliases []any
	seen := make(map[string]struct{})
	bind := func(alias string) error {
		if alias == "" {
			return nil
		}
		if _, dup := seen[alias]; dup {
			return fmt.Errorf("variable %q bound twice", alias)
		}
		seen[alias] = struct{}{}
		aliases = append(aliases, alias)
		return nil
	}

	for i, e := range g.Pattern {
		wantNode := i%2 == 0
		switch {
		case e.Node != nil && e.Edge != nil:
			return fmt.Errorf("pattern[%d]: element is both node and edge", i)
		case wantNode && e.Node == nil:
			return fmt.Errorf("pattern[%d]: expected node", i)
		case !wantNode && e.Edge == nil:
			return fmt.Errorf("pattern[%d]: expected edge", i)
		}

		if n := e.Node; n != nil {
			if err := validation.ValidateStruct(n,
				validation.Field(&n.Alias, validation.Match(identRe)),
				validation.Field(&n.Label, validation.Match(identRe)),
			); err != nil {
				return fmt.Errorf("pattern[%d]: %w", i, err)
			}
			for _, p := range n.Properties {
				if err := validation.Validate(p.Key, validation.Required, validation.Match(identRe)); err != nil {
					return fmt.Errorf("pattern[%d]: property key %q: %w", i, p.Key, err)
				}
			}
			if err := bind(n.Alias); err != nil {
				return err
			}
			continue
		}

		ed := e.Edge
		if err := validation.ValidateStruct(ed,
			validation.Field(&ed.Alias, validation.Match(identRe)),
			validation.Field(&ed.Type, validation.Match(identRe)),
			validation.Field(&ed.Direction, validation.In(ir.Out, ir.In, ir.Both, ir.Undirected)),
		); err != nil {
			return fmt.Errorf("pattern[%d]: %w", i, err)
		}
		if q := ed.Quantifier; q != nil {
			if err := validation.ValidateStruct(q,
				validation.Field(&q.Min, validation.Min(0), validation.Max(MaxHops)),
				validation.Field(&q.Max, validation.By(func(any) error {
					if q.Max == ir.Unbounded {
						return nil
					}
					if q.Max < q.Min || q.Max < 1 || q.Max > MaxHops {
						return fmt.Errorf("must be between max(1, min) and %d", MaxHops)
					}
					return nil
				})),
			); err != nil {
				return fmt.Errorf("pattern[%d] quantifier: %w", i, err)
			}
		}
		if err := bind(ed.Alias); err != nil {
			return err
		}
	}

	for i := range g.Filters {
		f := &g.Filters[i]
		if err := validation.ValidateStruct(f,
			validation.Field(&f.Alias, validation.Required, validation.In(aliases...)),
			validation.Field(&f.Property, validation.Required, validation.Match(identRe)),
			validation.Field(&f.Op, validation.In(ir.Eq, ir.Ne, ir.Contains, ir.StartsWith, ir.EndsWith)),
		); err != nil {
			return fmt.Errorf("filter %s: %w", f.Field(), err)
		}
	}

	for i := range g.Projections {
		p := &g.Projections[i]
		if err := validation.ValidateStruct(p,
			validation.Field(&p.Alias, validation.Required, validation.In(aliases...)),
			validation.Field(&p.Property, validation.Match(identRe)),
			validation.Field(&p.As, validation.Match(identRe)),
		); err != nil {
			return fmt.Errorf("projection %s: %w", p.Field(), err)
		}
	}

	return validation.Validate(g.Limit, validation.Min(0))
}
