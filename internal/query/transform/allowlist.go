package transform

import (
	"fmt"

	"github.com/starford/kiln/internal/query/ir"
)

type allowlist struct {
	fields map[string]struct{}
	ops    map[ir.Op]struct{}
}

// FilterAllowlist rejects filters on properties outside fields with
// UnsupportedFilter. Text operators (CONTAINS, STARTS WITH, ENDS WITH) are only
// accepted with string values.
func FilterAllowlist(fields ...string) Pass {
	a := allowlist{fields: make(map[string]struct{}, len(fields))}
	for _, f := range fields {
		a.fields[f] = struct{}{}
	}
	return a
}

func (allowlist) Name() string { return "filter_allowlist" }

func (a allowlist) Apply(g *ir.GraphIR) (*ir.GraphIR, error) {
	for _, f := range g.Filters {
		if _, ok := a.fields[f.Property]; !ok {
			return nil, &Error{Kind: UnsupportedFilter, Pass: a.Name(), Pattern: describe(f),
				Message: fmt.Sprintf("property %q is not filterable", f.Property)}
		}
		if f.Op != ir.Eq && f.Op != ir.Ne && f.Value.Kind != ir.String && f.Value.Kind != ir.Param {
			return nil, &Error{Kind: UnsupportedFilter, Pass: a.Name(), Pattern: describe(f),
				Message: fmt.Sprintf("%s needs a string value", f.Op)}
		}
	}
	return g, nil
}

func describe(f ir.Filter) string {
	return fmt.Sprintf("%s %s %s", f.Field(), f.Op, f.Value)
}
