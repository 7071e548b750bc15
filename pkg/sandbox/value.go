package sandbox

import (
	"math"
	"strconv"
	"strings"
)

// Kind classifies a binding captured from executed code.
type Kind string

// Supported value kinds.
const (
	KindNone     Kind = "none"
	KindBool     Kind = "bool"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindString   Kind = "string"
	KindList     Kind = "list"
	KindFunction Kind = "function"
	KindOther    Kind = "other"
)

// Value is a language-neutral snapshot of a binding produced by a submission.
// Integers outside the int64 range are reported as KindOther.
type Value struct {
	Kind  Kind    `json:"kind"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Str   string  `json:"str,omitempty"`
	Bool  bool    `json:"bool,omitempty"`
	Items []Value `json:"items,omitempty"`
	Type  string  `json:"type,omitempty"`
}

// Int builds an integer value.
func Int(v int64) Value { return Value{Kind: KindInt, Int: v} }

// Float builds a float value.
func Float(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// String builds a string value.
func String(v string) Value { return Value{Kind: KindString, Str: v} }

// Bool builds a boolean value.
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// None is the absent value.
func None() Value { return Value{Kind: KindNone} }

func listOf(items ...Value) Value {
	return Value{Kind: KindList, Items: items}
}

// Ints builds a list of integers.
func Ints(values ...int64) Value {
	items := make([]Value, 0, len(values))
	for _, v := range values {
		items = append(items, Int(v))
	}
	return listOf(items...)
}

// IsNumber reports whether the value is an int or a float. Booleans are not numbers here.
func (v Value) IsNumber() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

// IsNumberList reports whether the value is a sequence whose items are all numbers.
func (v Value) IsNumberList() bool {
	if v.Kind != KindList {
		return false
	}
	for _, item := range v.Items {
		if !item.IsNumber() {
			return false
		}
	}
	return true
}

// IsCallable reports whether the value is a function.
func (v Value) IsCallable() bool {
	return v.Kind == KindFunction
}

// Number returns the numeric value as float64.
func (v Value) Number() float64 {
	if v.Kind == KindInt {
		return float64(v.Int)
	}
	return v.Float
}

// Equal compares two values the way Python's == does for the supported kinds:
// ints and floats compare numerically, lists element-wise.
func (v Value) Equal(other Value) bool {
	if v.IsNumber() && other.IsNumber() {
		if v.Kind == KindInt && other.Kind == KindInt {
			return v.Int == other.Int
		}
		return v.Number() == other.Number()
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNone:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindString:
		return v.Str == other.Str
	case KindList:
		if len(v.Items) != len(other.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(other.Items[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Sum adds the items of a number list. Integer sums stay exact until they
// overflow int64, after which the result degrades to a float.
func (v Value) Sum() Value {
	total := Int(0)
	for _, item := range v.Items {
		switch {
		case total.Kind == KindInt && item.Kind == KindInt:
			next := total.Int + item.Int
			if (item.Int > 0 && next < total.Int) || (item.Int < 0 && next > total.Int) {
				total = Float(float64(total.Int) + float64(item.Int))
				continue
			}
			total.Int = next
		default:
			total = Float(total.Number() + item.Number())
		}
	}
	return total
}

// String renders the value using Python repr conventions so feedback reads naturally.
func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return "None"
	case KindBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return formatFloat(v.Float)
	case KindString:
		return quote(v.Str)
	case KindList:
		open, closing := "[", "]"
		if v.Type == "tuple" {
			open, closing = "(", ")"
		}
		parts := make([]string, 0, len(v.Items))
		for _, item := range v.Items {
			parts = append(parts, item.String())
		}
		if v.Type == "tuple" && len(parts) == 1 {
			return open + parts[0] + ",)"
		}
		return open + strings.Join(parts, ", ") + closing
	case KindFunction:
		if v.Type != "" {
			return "<function " + v.Type + ">"
		}
		return "<function>"
	default:
		if v.Type != "" {
			return "<" + v.Type + ">"
		}
		return "<value>"
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\t", `\t`)
	return "'" + replacer.Replace(s) + "'"
}
