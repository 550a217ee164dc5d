// Package ir defines GraphIR, the syntax-independent form of a graph query.
//
// A pattern is a path: node, edge, node, edge, node ... Every surface syntax
// lowers to this shape and every renderer consumes it, so two queries that mean
// the same thing must produce structurally equal IR.
package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction of an edge relative to the node on its left.
type Direction int

const (
	Out        Direction = iota // (a)-[]->(b)
	In                          // (a)<-[]-(b)
	Both                        // (a)<-[]->(b)
	Undirected                  // (a)-[]-(b)
)

func (d Direction) String() string {
	switch d {
	case Out:
		return "out"
	case In:
		return "in"
	case Both:
		return "both"
	case Undirected:
		return "undirected"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Unbounded marks an open upper bound on a Quantifier.
const Unbounded = -1

// DefaultMaxHops bounds traversal of an Unbounded quantifier at execution time.
const DefaultMaxHops = 10

// Bounds returns min and max hops with Unbounded replaced by DefaultMaxHops.
func (q Quantifier) Bounds() (int, int) {
	if q.Max == Unbounded {
		return q.Min, max(q.Min, DefaultMaxHops)
	}
	return q.Min, q.Max
}

// Quantifier bounds a variable-length edge in hops.
type Quantifier struct {
	Min int `json:"min"`
	Max int `json:"max"` // Unbounded for no limit
}

func (q Quantifier) String() string {
	if q.Max == Unbounded {
		return fmt.Sprintf("*%d..", q.Min)
	}
	if q.Min == q.Max {
		return fmt.Sprintf("*%d", q.Min)
	}
	return fmt.Sprintf("*%d..%d", q.Min, q.Max)
}

// ValueKind tags a Value.
type ValueKind int

const (
	String ValueKind = iota
	Number
	Bool
	Null
	Param
)

// Value is a literal or a named parameter.
type Value struct {
	Kind ValueKind `json:"kind"`
	Str  string    `json:"str,omitempty"`  // String, or parameter name for Param
	Num  float64   `json:"num,omitempty"`  // Number
	Bool bool      `json:"bool,omitempty"` // Bool
}

func StringValue(s string) Value  { return Value{Kind: String, Str: s} }
func NumberValue(f float64) Value { return Value{Kind: Number, Num: f} }
func BoolValue(b bool) Value      { return Value{Kind: Bool, Bool: b} }
func NullValue() Value            { return Value{Kind: Null} }
func ParamValue(name string) Value {
	return Value{Kind: Param, Str: name}
}

// Any returns the Go value of a literal. Parameters return nil.
func (v Value) Any() any {
	switch v.Kind {
	case String:
		return v.Str
	case Number:
		return v.Num
	case Bool:
		return v.Bool
	}
	return nil
}

// Text returns the value as the string it is compared against.
func (v Value) Text() string {
	switch v.Kind {
	case String:
		return v.Str
	case Number:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

func (v Value) String() string {
	switch v.Kind {
	case String:
		return "'" + strings.ReplaceAll(v.Str, "'", "\\'") + "'"
	case Null:
		return "null"
	case Param:
		return "$" + v.Str
	}
	return v.Text()
}

// PropertyMatch is an inline equality constraint on a node: (a {title: 'x'}).
type PropertyMatch struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Node is a pattern node. Label constrains the entity type.
type Node struct {
	Alias      string          `json:"alias,omitempty"`
	Label      string          `json:"label,omitempty"`
	Properties []PropertyMatch `json:"properties,omitempty"`
}

// Edge is a pattern edge. Empty Type matches every relation type.
type Edge struct {
	Alias      string      `json:"alias,omitempty"`
	Type       string      `json:"type,omitempty"`
	Direction  Direction   `json:"direction"`
	Quantifier *Quantifier `json:"quantifier,omitempty"`
}

// Element is exactly one of Node or Edge.
type Element struct {
	Node *Node `json:"node,omitempty"`
	Edge *Edge `json:"edge,omitempty"`
}

// Op is a filter comparison.
type Op int

const (
	Eq Op = iota
	Ne
	Contains
	StartsWith
	EndsWith
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Ne:
		return "<>"
	case Contains:
		return "CONTAINS"
	case StartsWith:
		return "STARTS WITH"
	case EndsWith:
		return "ENDS WITH"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Filter is a property predicate on a pattern variable: alias.property op value.
type Filter struct {
	Alias    string `json:"alias"`
	Property string `json:"property"`
	Op       Op     `json:"op"`
	Value    Value  `json:"value"`
}

// Field returns "alias.property".
func (f Filter) Field() string { return f.Alias + "." + f.Property }

// Projection selects a whole node (Property == "") or one property of a variable.
type Projection struct {
	Alias    string `json:"alias"`
	Property string `json:"property,omitempty"`
	As       string `json:"as,omitempty"`
}

// Field returns "alias" or "alias.property".
func (p Projection) Field() string {
	if p.Property == "" {
		return p.Alias
	}
	return p.Alias + "." + p.Property
}

// GraphIR is one graph query.
type GraphIR struct {
	Pattern     []Element    `json:"pattern"`
	Filters     []Filter     `json:"filters,omitempty"`
	Projections []Projection `json:"projections,omitempty"`
	Limit       int          `json:"limit,omitempty"` // 0 = no limit
}

// Nodes returns the pattern's nodes in order.
func (g *GraphIR) Nodes() []*Node {
	var out []*Node
	for _, e := range g.Pattern {
		if e.Node != nil {
			out = append(out, e.Node)
		}
	}
	return out
}

// Edges returns the pattern's edges in order.
func (g *GraphIR) Edges() []*Edge {
	var out []*Edge
	for _, e := range g.Pattern {
		if e.Edge != nil {
			out = append(out, e.Edge)
		}
	}
	return out
}

// Node returns the node bound to alias, or nil.
func (g *GraphIR) Node(alias string) *Node {
	for _, n := range g.Nodes() {
		if n.Alias == alias {
			return n
		}
	}
	return nil
}

// Edge returns the edge bound to alias, or nil.
func (g *GraphIR) Edge(alias string) *Edge {
	for _, e := range g.Edges() {
		if e.Alias == alias {
			return e
		}
	}
	return nil
}

// Params returns the distinct parameter names referenced by the query, in order.
func (g *GraphIR) Params() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(v Value) {
		if v.Kind != Param {
			return
		}
		if _, ok := seen[v.Str]; ok {
			return
		}
		seen[v.Str] = struct{}{}
		out = append(out, v.Str)
	}
	for _, n := range g.Nodes() {
		for _, p := range n.Properties {
			add(p.Value)
		}
	}
	for _, f := range g.Filters {
		add(f.Value)
	}
	return out
}

// Clone returns a deep copy.
func (g *GraphIR) Clone() *GraphIR {
	if g == nil {
		return nil
	}
	out := &GraphIR{Limit: g.Limit}
	out.Pattern = make([]Element, len(g.Pattern))
	for i, e := range g.Pattern {
		if e.Node != nil {
			n := *e.Node
			n.Properties = append([]PropertyMatch(nil), e.Node.Properties...)
			out.Pattern[i].Node = &n
		}
		if e.Edge != nil {
			ed := *e.Edge
			if e.Edge.Quantifier != nil {
				q := *e.Edge.Quantifier
				ed.Quantifier = &q
			}
			out.Pattern[i].Edge = &ed
		}
	}
	out.Filters = append([]Filter(nil), g.Filters...)
	out.Projections = append([]Projection(nil), g.Projections...)
	return out
}

// String renders a compact, syntax-neutral description used by explain output.
func (g *GraphIR) String() string {
	var b strings.Builder
	for _, e := range g.Pattern {
		switch {
		case e.Node != nil:
			b.WriteString("(" + e.Node.Alias)
			if e.Node.Label != "" {
				b.WriteString(":" + e.Node.Label)
			}
			for i, p := range e.Node.Properties {
				if i == 0 {
					b.WriteString(" {")
				} else {
					b.WriteString(", ")
				}
				b.WriteString(p.Key + ": " + p.Value.String())
				if i == len(e.Node.Properties)-1 {
					b.WriteString("}")
				}
			}
			b.WriteString(")")
		case e.Edge != nil:
			left, right := "-", "->"
			switch e.Edge.Direction {
			case In:
				left, right = "<-", "-"
			case Both:
				left, right = "<-", "->"
			case Undirected:
				left, right = "-", "-"
			}
			b.WriteString(left + "[" + e.Edge.Alias)
			if e.Edge.Type != "" {
				b.WriteString(":" + e.Edge.Type)
			}
			if e.Edge.Quantifier != nil {
				b.WriteString(e.Edge.Quantifier.String())
			}
			b.WriteString("]" + right)
		}
	}
	for i, f := range g.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s %s %s", f.Field(), f.Op, f.Value)
	}
	for i, p := range g.Projections {
		if i == 0 {
			b.WriteString(" RETURN ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(p.Field())
		if p.As != "" {
			b.WriteString(" AS " + p.As)
		}
	}
	if g.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", g.Limit)
	}
	return b.String()
}
