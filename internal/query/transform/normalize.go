package transform

import (
	"strconv"
	"strings"

	"github.com/starford/kiln/internal/query/ir"
)

type normalize struct{}

// Normalize assigns aliases to anonymous variables, lowercases relation types
// and labels, drops duplicate filters, and projects the last node when the
// query has no projection.
func Normalize() Pass { return normalize{} }

func (normalize) Name() string { return "normalize" }

func (normalize) Apply(g *ir.GraphIR) (*ir.GraphIR, error) {
	used := make(map[string]struct{})
	for _, e := range g.Pattern {
		switch {
		case e.Node != nil && e.Node.Alias != "":
			used[e.Node.Alias] = struct{}{}
		case e.Edge != nil && e.Edge.Alias != "":
			used[e.Edge.Alias] = struct{}{}
		}
	}
	fresh := func(prefix string) string {
		for i := 0; ; i++ {
			name := prefix + strconv.Itoa(i)
			if _, ok := used[name]; !ok {
				used[name] = struct{}{}
				return name
			}
		}
	}

	var last *ir.Node
	for _, e := range g.Pattern {
		switch {
		case e.Node != nil:
			if e.Node.Alias == "" {
				e.Node.Alias = fresh("n")
			}
			e.Node.Label = strings.ToLower(e.Node.Label)
			last = e.Node
		case e.Edge != nil:
			if e.Edge.Alias == "" {
				e.Edge.Alias = fresh("e")
			}
			e.Edge.Type = strings.ToLower(e.Edge.Type)
		}
	}

	seen := make(map[ir.Filter]struct{}, len(g.Filters))
	filters := g.Filters[:0]
	for _, f := range g.Filters {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		filters = append(filters, f)
	}
	g.Filters = filters

	if len(g.Projections) == 0 && last != nil {
		g.Projections = []ir.Projection{{Alias: last.Alias}}
	}
	return g, nil
}
