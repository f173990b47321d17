package slowcontrol

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the declared type of a variable.
type Type string

const (
	// TypeNumber holds a float64.
	TypeNumber Type = "number"
	// TypeString holds a string.
	TypeString Type = "string"
	// TypeBool holds a bool.
	TypeBool Type = "bool"
	// TypeButton holds a bool that is set to true when pressed.
	TypeButton Type = "button"
	// TypeInfo holds a string that remote peers may read but not change.
	TypeInfo Type = "info"
)

// ParseType converts a type name to a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeNumber, TypeString, TypeBool, TypeButton, TypeInfo:
		return true
	}
	return false
}

// zero returns the initial value of a variable of type t.
func (t Type) zero() any {
	switch t {
	case TypeNumber:
		return float64(0)
	case TypeBool, TypeButton:
		return false
	default:
		return ""
	}
}

// parse decodes a raw wire value for type t.
func (t Type) parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch t {
	case TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, raw)
		}
		return f, nil
	case TypeBool, TypeButton:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}

// normalize coerces a Go value to the stored representation of type t.
func (t Type) normalize(v any) (any, error) {
	switch t {
	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case uint:
			return float64(n), nil
		}
	case TypeBool, TypeButton:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %T for %s variable", ErrTypeMismatch, v, t)
}

// encode renders a stored value in its wire form.
func encode(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Hook computes a variable's stored (change) or reported (read) value from
// a raw string. A change hook vetoes the change by returning an error.
type Hook func(raw string) (string, error)

// Info is a point-in-time view of one variable.
type Info struct {
	Name  string `json:"name"`
	Type  Type   `json:"type"`
	Value string `json:"value"`
}
