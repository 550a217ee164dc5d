package ir

import (
	"reflect"
	"sort"
	"strconv"
)

// Canonical returns a copy of g with variables renamed by position (nodes n0,
// n1, ...; edges e0, e1, ...), inline properties sorted by key, and filters
// sorted. Queries that differ only in variable naming or predicate order have
// equal canonical forms.
func Canonical(g *GraphIR) *GraphIR {
	out := g.Clone()
	rename := make(map[string]string)
	ni, ei := 0, 0
	for _, e := range out.Pattern {
		switch {
		case e.Node != nil:
			name := "n" + strconv.Itoa(ni)
			ni++
			if e.Node.Alias != "" {
				rename[e.Node.Alias] = name
			}
			e.Node.Alias = name
			sort.SliceStable(e.Node.Properties, func(i, j int) bool {
				return e.Node.Properties[i].Key < e.Node.Properties[j].Key
			})
			if len(e.Node.Properties) == 0 {
				e.Node.Properties = nil
			}
		case e.Edge != nil:
			name := "e" + strconv.Itoa(ei)
			ei++
			if e.Edge.Alias != "" {
				rename[e.Edge.Alias] = name
			}
			e.Edge.Alias = name
		}
	}
	for i := range out.Filters {
		if to, ok := rename[out.Filters[i].Alias]; ok {
			out.Filters[i].Alias = to
		}
	}
	sort.SliceStable(out.Filters, func(i, j int) bool {
		a, b := out.Filters[i], out.Filters[j]
		if a.Alias != b.Alias {
			return a.Alias < b.Alias
		}
		if a.Property != b.Property {
			return a.Property < b.Property
		}
		return a.Op < b.Op
	})
	for i := range out.Projections {
		if to, ok := rename[out.Projections[i].Alias]; ok {
			out.Projections[i].Alias = to
		}
	}
	if len(out.Filters) == 0 {
		out.Filters = nil
	}
	if len(out.Projections) == 0 {
		out.Projections = nil
	}
	return out
}

// Equivalent reports whether a and b are the same query modulo variable naming.
func Equivalent(a, b *GraphIR) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(Canonical(a), Canonical(b))
}
