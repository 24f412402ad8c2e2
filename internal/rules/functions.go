package rules

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/trackercapture/tracker/internal/rules/expr"
)

// FunctionMarker prefixes every domain function call in an expression.
const FunctionMarker = "d2:"

const dateLayout = "2006-01-02"

// funcEnv is what a function implementation may read besides its
// arguments.
type funcEnv struct {
	vars VariableMap
}

type funcDef struct {
	arity    int
	variadic bool
	apply    func(env funcEnv, args []expr.Value) (expr.Value, error)
}

// functions is the closed set of domain functions. Arity is fixed for all
// of them except concatenate.
var functions = map[string]funcDef{
	"daysBetween":   {arity: 2, apply: dateDiff(daysBetween)},
	"weeksBetween":  {arity: 2, apply: dateDiff(weeksBetween)},
	"monthsBetween": {arity: 2, apply: dateDiff(monthsBetween)},
	"yearsBetween":  {arity: 2, apply: dateDiff(yearsBetween)},
	"floor":         {arity: 1, apply: numeric1(math.Floor)},
	"ceil":          {arity: 1, apply: numeric1(math.Ceil)},
	"round":         {arity: 1, apply: numeric1(math.Round)},
	"modulus":       {arity: 2, apply: applyModulus},
	"zing":          {arity: 1, apply: numeric1(func(f float64) float64 { return math.Max(0, f) })},
	"oizp": {arity: 1, apply: numeric1(func(f float64) float64 {
		if f >= 0 {
			return 1
		}
		return 0
	})},
	"concatenate":      {variadic: true, apply: applyConcatenate},
	"addDays":          {arity: 2, apply: applyAddDays},
	"count":            {arity: 1, apply: applyCount},
	"countIfZeroPos":   {arity: 1, apply: applyCountIfZeroPos},
	"countIfValue":     {arity: 2, apply: applyCountIfValue},
	"hasValue":         {arity: 1, apply: applyHasValue},
	"lastEventDate":    {arity: 1, apply: applyLastEventDate},
	"validatePattern":  {arity: 2, apply: applyValidatePattern},
	"addControlDigits": {arity: 1, apply: applyAddControlDigits},
	"left":             {arity: 2, apply: applyLeft},
	"right":            {arity: 2, apply: applyRight},
	"substring":        {arity: 3, apply: applySubstring},
	"split":            {arity: 3, apply: applySplit},
	"length":           {arity: 1, apply: applyLength},
}

func parseDate(v expr.Value) (time.Time, error) {
	s := strings.TrimSpace(v.Text())
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v.Text())
	}
	return t, nil
}

func dateDiff(diff func(a, b time.Time) int) func(funcEnv, []expr.Value) (expr.Value, error) {
	return func(_ funcEnv, args []expr.Value) (expr.Value, error) {
		a, err := parseDate(args[0])
		if err != nil {
			return expr.Null(), err
		}
		b, err := parseDate(args[1])
		if err != nil {
			return expr.Null(), err
		}
		return expr.Number(float64(diff(a, b))), nil
	}
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func weeksBetween(a, b time.Time) int {
	return daysBetween(a, b) / 7
}

// monthsBetween counts whole calendar months, so 2020-01-31..2020-02-01 is
// zero months.
func monthsBetween(a, b time.Time) int {
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	return months
}

func yearsBetween(a, b time.Time) int {
	return monthsBetween(a, b) / 12
}

func numeric1(f func(float64) float64) func(funcEnv, []expr.Value) (expr.Value, error) {
	return func(_ funcEnv, args []expr.Value) (expr.Value, error) {
		n, ok := args[0].AsNumber()
		if !ok {
			return expr.Null(), fmt.Errorf("numeric argument required, got %s", args[0])
		}
		return expr.Number(f(n)), nil
	}
}

func applyModulus(_ funcEnv, args []expr.Value) (expr.Value, error) {
	a, aok := args[0].AsNumber()
	b, bok := args[1].AsNumber()
	if !aok || !bok {
		return expr.Null(), fmt.Errorf("modulus requires numeric arguments")
	}
	if b == 0 {
		return expr.Null(), fmt.Errorf("modulus by zero")
	}
	return expr.Number(math.Mod(a, b)), nil
}

func applyConcatenate(_ funcEnv, args []expr.Value) (expr.Value, error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(a.Text())
	}
	return expr.String(sb.String()), nil
}

func applyAddDays(_ funcEnv, args []expr.Value) (expr.Value, error) {
	d, err := parseDate(args[0])
	if err != nil {
		return expr.Null(), err
	}
	n, ok := args[1].AsNumber()
	if !ok {
		return expr.Null(), fmt.Errorf("addDays requires a numeric day count")
	}
	return expr.String(d.AddDate(0, 0, int(n)).Format(dateLayout)), nil
}

// variableByName finds a declared variable by bare name under any sigil;
// the aggregate functions take the variable name as a quoted argument
// without its prefix.
func variableByName(vars VariableMap, name string) (*Variable, bool) {
	for _, prefix := range []byte{'#', 'A', 'V', 'C'} {
		if v, ok := vars[VariableKey{Prefix: prefix, Name: name}]; ok {
			return v, true
		}
	}
	return nil, false
}

func applyCount(env funcEnv, args []expr.Value) (expr.Value, error) {
	v, ok := variableByName(env.vars, args[0].Text())
	if !ok {
		return expr.Null(), fmt.Errorf("count: unknown variable %q", args[0].Text())
	}
	if !v.HasValue {
		return expr.Number(0), nil
	}
	return expr.Number(float64(len(v.AllValues))), nil
}

func applyCountIfZeroPos(env funcEnv, args []expr.Value) (expr.Value, error) {
	v, ok := variableByName(env.vars, args[0].Text())
	if !ok {
		return expr.Null(), fmt.Errorf("countIfZeroPos: unknown variable %q", args[0].Text())
	}
	n := 0
	for _, raw := range v.AllValues {
		if f, ok := expr.String(raw).AsNumber(); ok && f >= 0 {
			n++
		}
	}
	return expr.Number(float64(n)), nil
}

func applyCountIfValue(env funcEnv, args []expr.Value) (expr.Value, error) {
	v, ok := variableByName(env.vars, args[0].Text())
	if !ok {
		return expr.Null(), fmt.Errorf("countIfValue: unknown variable %q", args[0].Text())
	}
	want := args[1].Text()
	n := 0
	for _, raw := range v.AllValues {
		if raw == want {
			n++
		}
	}
	return expr.Number(float64(n)), nil
}

func applyHasValue(env funcEnv, args []expr.Value) (expr.Value, error) {
	v, ok := variableByName(env.vars, args[0].Text())
	if !ok {
		return expr.Boolean(false), nil
	}
	return expr.Boolean(v.HasValue), nil
}

func applyLastEventDate(env funcEnv, args []expr.Value) (expr.Value, error) {
	v, ok := variableByName(env.vars, args[0].Text())
	if !ok || v.EventDate == "" {
		return expr.String(""), nil
	}
	return expr.String(v.EventDate), nil
}

func applyValidatePattern(_ funcEnv, args []expr.Value) (expr.Value, error) {
	re, err := regexp.Compile("^(?:" + args[1].Text() + ")$")
	if err != nil {
		return expr.Null(), fmt.Errorf("invalid pattern %q: %w", args[1].Text(), err)
	}
	return expr.Boolean(re.MatchString(args[0].Text())), nil
}

// Weight vectors for the two-stage modulo-11 control digit computation.
// The second stage checks the base number plus the first digit.
var (
	firstControlWeights  = []int{3, 7, 6, 1, 8, 9, 4, 5, 2}
	secondControlWeights = []int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}
)

// applyAddControlDigits appends two modulo-11 control digits to a numeric
// base of at most 9 digits. When a stage yields the remainder 10 no valid
// control digit exists for the base and the base is returned unchanged.
func applyAddControlDigits(_ funcEnv, args []expr.Value) (expr.Value, error) {
	base := args[0].Text()
	if len(base) == 0 || len(base) > len(firstControlWeights) {
		return expr.Null(), fmt.Errorf("addControlDigits: base %q must be 1-%d digits", base, len(firstControlWeights))
	}

	digits := make([]int, 0, len(base)+1)
	for _, c := range base {
		if c < '0' || c > '9' {
			return expr.Null(), fmt.Errorf("addControlDigits: base %q is not numeric", base)
		}
		digits = append(digits, int(c-'0'))
	}

	first := weightedMod11(digits, firstControlWeights)
	digits = append(digits, first)
	second := weightedMod11(digits, secondControlWeights)

	if first == 10 || second == 10 {
		return expr.String(base), nil
	}
	return expr.String(fmt.Sprintf("%s%d%d", base, first, second)), nil
}

// weightedMod11 applies the rightmost len(digits) weights to the digits and
// returns the sum modulo 11.
func weightedMod11(digits, weights []int) int {
	offset := len(weights) - len(digits)
	sum := 0
	for i, d := range digits {
		sum += d * weights[offset+i]
	}
	return sum % 11
}

func applyLeft(_ funcEnv, args []expr.Value) (expr.Value, error) {
	s := args[0].Text()
	n, ok := args[1].AsNumber()
	if !ok {
		return expr.Null(), fmt.Errorf("left requires a numeric length")
	}
	return expr.String(clip(s, 0, int(n))), nil
}

func applyRight(_ funcEnv, args []expr.Value) (expr.Value, error) {
	s := args[0].Text()
	n, ok := args[1].AsNumber()
	if !ok {
		return expr.Null(), fmt.Errorf("right requires a numeric length")
	}
	return expr.String(clip(s, len(s)-int(n), len(s))), nil
}

func applySubstring(_ funcEnv, args []expr.Value) (expr.Value, error) {
	s := args[0].Text()
	start, sok := args[1].AsNumber()
	end, eok := args[2].AsNumber()
	if !sok || !eok {
		return expr.Null(), fmt.Errorf("substring requires numeric bounds")
	}
	return expr.String(clip(s, int(start), int(end))), nil
}

func applySplit(_ funcEnv, args []expr.Value) (expr.Value, error) {
	idx, ok := args[2].AsNumber()
	if !ok {
		return expr.Null(), fmt.Errorf("split requires a numeric index")
	}
	parts := strings.Split(args[0].Text(), args[1].Text())
	i := int(idx)
	if i < 0 || i >= len(parts) {
		return expr.String(""), nil
	}
	return expr.String(parts[i]), nil
}

func applyLength(_ funcEnv, args []expr.Value) (expr.Value, error) {
	return expr.Number(float64(len(args[0].Text()))), nil
}

func clip(s string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	if start >= end {
		return ""
	}
	return s[start:end]
}
