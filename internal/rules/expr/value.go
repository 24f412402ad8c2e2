package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the runtime type of an evaluated Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
)

// Value is the result of evaluating an expression. Evaluation never panics;
// operations that cannot be performed on the operand types return an error
// from the evaluator instead.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
}

func Null() Value            { return Value{Kind: KindNull} }
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Boolean(b bool) Value   { return Value{Kind: KindBool, Bool: b} }

// IsTruthy reports whether the value counts as true in a rule condition.
// Numbers are truthy when non-zero, strings when equal to "true".
func (v Value) IsTruthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0
	case KindString:
		return strings.TrimSpace(v.Str) == "true"
	default:
		return false
	}
}

// AsNumber coerces the value to a float64. Numeric strings coerce, booleans
// coerce to 0/1.
func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Text renders the value as a plain, unquoted string.
func (v Value) Text() string {
	switch v.Kind {
	case KindNumber:
		return formatNumber(v.Num)
	case KindString:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Literal renders the value as an expression literal that can be substituted
// back into a larger expression: strings are single-quoted, everything else
// renders bare.
func (v Value) Literal() string {
	if v.Kind == KindString {
		return "'" + strings.ReplaceAll(v.Str, "'", "\\'") + "'"
	}
	return v.Text()
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	default:
		return v.Text()
	}
}
