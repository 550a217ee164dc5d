package eav

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ValueType tags a PropertyValue.
type ValueType string

const (
	ValueText   ValueType = "text"
	ValueNumber ValueType = "number"
	ValueBool   ValueType = "bool"
	ValueDate   ValueType = "date"
	ValueJSON   ValueType = "json"
)

// PropertyValue is a typed value in canonical string form. Two values are equal
// iff their Type and Raw are equal.
type PropertyValue struct {
	Type ValueType `json:"type"`
	Raw  string    `json:"raw"`
}

func Text(s string) PropertyValue { return PropertyValue{Type: ValueText, Raw: s} }

func Number(f float64) PropertyValue {
	return PropertyValue{Type: ValueNumber, Raw: strconv.FormatFloat(f, 'g', -1, 64)}
}

func Bool(b bool) PropertyValue {
	return PropertyValue{Type: ValueBool, Raw: strconv.FormatBool(b)}
}

func Date(t time.Time) PropertyValue {
	return PropertyValue{Type: ValueDate, Raw: t.UTC().Format(time.RFC3339)}
}

// JSON encodes v as a json-typed value.
func JSON(v any) (PropertyValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return PropertyValue{}, fmt.Errorf("eav: encode json value: %w", err)
	}
	return PropertyValue{Type: ValueJSON, Raw: string(b)}, nil
}

// ValueOf converts a decoded frontmatter value into a PropertyValue.
func ValueOf(v any) PropertyValue {
	switch x := v.(type) {
	case nil:
		return Text("")
	case string:
		return Text(x)
	case bool:
		return Bool(x)
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case float32:
		return Number(float64(x))
	case float64:
		return Number(x)
	case time.Time:
		return Date(x)
	default:
		pv, err := JSON(normalizeYAML(x))
		if err != nil {
			return Text(fmt.Sprint(x))
		}
		return pv
	}
}

// Any decodes the value back into a Go value.
func (v PropertyValue) Any() any {
	switch v.Type {
	case ValueNumber:
		if f, err := strconv.ParseFloat(v.Raw, 64); err == nil {
			return f
		}
	case ValueBool:
		if b, err := strconv.ParseBool(v.Raw); err == nil {
			return b
		}
	case ValueDate:
		if t, err := time.Parse(time.RFC3339, v.Raw); err == nil {
			return t
		}
	case ValueJSON:
		var out any
		if err := json.Unmarshal([]byte(v.Raw), &out); err == nil {
			return out
		}
	}
	return v.Raw
}

func (v PropertyValue) String() string { return v.Raw }

// ParseValueType validates a stored type tag.
func ParseValueType(s string) (ValueType, error) {
	switch t := ValueType(s); t {
	case ValueText, ValueNumber, ValueBool, ValueDate, ValueJSON:
		return t, nil
	}
	return "", fmt.Errorf("eav: unknown value type %q", s)
}

// normalizeYAML turns map[any]any (older yaml decoders) into map[string]any so
// it can be JSON encoded.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = normalizeYAML(val)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeYAML(val)
		}
		return out
	}
	return v
}
