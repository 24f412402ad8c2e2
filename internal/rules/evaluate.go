package rules

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/trackercapture/tracker/internal/rules/expr"
)

// maxRewritePasses bounds the function resolution loop. Function results
// can themselves contain further calls; the bound is a safety valve
// against malformed configuration that never converges.
const maxRewritePasses = 10

// Evaluator rewrites and evaluates rule expressions against one resolved
// variable map. Debug only changes logging verbosity: evaluation failures
// are always caught by the caller through the returned error, never
// panicked.
type Evaluator struct {
	vars  VariableMap
	log   zerolog.Logger
	debug bool
}

func NewEvaluator(vars VariableMap, debug bool, log zerolog.Logger) *Evaluator {
	return &Evaluator{vars: vars, log: log, debug: debug}
}

// Evaluate rewrites variable references, resolves domain function calls and
// evaluates the resulting expression to a value.
func (e *Evaluator) Evaluate(expression string) (expr.Value, error) {
	rewritten := RewriteExpression(expression, e.vars, e.log)

	for pass := 0; pass < maxRewritePasses; pass++ {
		if !strings.Contains(rewritten, FunctionMarker) {
			break
		}
		next := e.resolveFunctions(rewritten)
		if next == rewritten {
			break
		}
		rewritten = next
	}

	val, err := expr.Evaluate(rewritten)
	if err != nil {
		if e.debug {
			e.log.Warn().
				Str("expression", expression).
				Str("rewritten", rewritten).
				Err(err).
				Msg("expression evaluation failed")
		}
		return expr.Null(), fmt.Errorf("evaluate %q: %w", expression, err)
	}
	return val, nil
}

// EvaluateCondition evaluates a rule condition to its boolean outcome.
// Failures degrade to false so a malformed condition can never make a rule
// effective.
func (e *Evaluator) EvaluateCondition(ruleID, condition string) bool {
	if strings.TrimSpace(condition) == "" {
		e.log.Warn().Str("rule", ruleID).Msg("rule has no condition, treating as not effective")
		return false
	}
	val, err := e.Evaluate(condition)
	if err != nil {
		e.log.Warn().Str("rule", ruleID).Err(err).Msg("condition failed to evaluate, treating as not effective")
		return false
	}
	return val.IsTruthy()
}

// resolveFunctions replaces every resolvable d2: call in the expression
// with its result literal. Arguments are evaluated recursively before the
// outer function runs, so nested calls resolve innermost first.
func (e *Evaluator) resolveFunctions(expression string) string {
	var sb strings.Builder
	rest := expression

	for {
		idx := strings.Index(rest, FunctionMarker)
		if idx < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		sb.WriteString(rest[:idx])

		call, length, ok := parseCall(rest[idx:])
		if !ok {
			// Not a well-formed call; emit the marker verbatim and move on.
			sb.WriteString(rest[idx : idx+len(FunctionMarker)])
			rest = rest[idx+len(FunctionMarker):]
			continue
		}

		sb.WriteString(e.applyCall(call, rest[idx:idx+length]))
		rest = rest[idx+length:]
	}
}

type functionCall struct {
	name string
	args []string
}

// parseCall parses "d2:name(arg, ...)" at the start of s using a balanced
// parenthesis scan that respects quoted text. It returns the call and the
// number of bytes it spans.
func parseCall(s string) (functionCall, int, bool) {
	body := s[len(FunctionMarker):]
	open := strings.IndexByte(body, '(')
	if open <= 0 {
		return functionCall{}, 0, false
	}
	name := body[:open]
	for _, r := range name {
		if !isIdentByte(r) {
			return functionCall{}, 0, false
		}
	}

	depth := 0
	inQuote := byte(0)
	var args []string
	argStart := open + 1
	for i := open; i < len(body); i++ {
		c := body[i]
		if inQuote != 0 {
			if c == '\\' {
				i++
			} else if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				if arg := strings.TrimSpace(body[argStart:i]); arg != "" || len(args) > 0 {
					args = append(args, arg)
				}
				return functionCall{name: name, args: args}, len(FunctionMarker) + i + 1, true
			}
		case ',':
			if depth == 1 {
				args = append(args, strings.TrimSpace(body[argStart:i]))
				argStart = i + 1
			}
		}
	}
	return functionCall{}, 0, false
}

func isIdentByte(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// applyCall evaluates one function call and returns the literal to splice
// into the parent expression. Unknown functions, wrong arity and argument
// failures all degrade to the safe literal "false".
func (e *Evaluator) applyCall(call functionCall, raw string) string {
	def, ok := functions[call.name]
	if !ok {
		e.log.Warn().Str("function", call.name).Msg("unknown domain function")
		return "false"
	}
	if !def.variadic && len(call.args) != def.arity {
		e.log.Warn().
			Str("function", call.name).
			Int("want", def.arity).
			Int("got", len(call.args)).
			Msg("domain function called with wrong number of arguments")
		return "false"
	}

	args := make([]expr.Value, len(call.args))
	for i, argText := range call.args {
		// Arguments may contain nested calls and arbitrary
		// sub-expressions.
		resolved := argText
		if strings.Contains(resolved, FunctionMarker) {
			resolved = e.resolveFunctions(resolved)
		}
		val, err := expr.Evaluate(resolved)
		if err != nil {
			e.log.Warn().Str("call", raw).Str("argument", argText).Err(err).
				Msg("domain function argument failed to evaluate")
			return "false"
		}
		args[i] = val
	}

	result, err := def.apply(funcEnv{vars: e.vars}, args)
	if err != nil {
		e.log.Warn().Str("call", raw).Err(err).Msg("domain function failed")
		return "false"
	}
	if e.debug {
		e.log.Debug().Str("call", raw).Str("result", result.Literal()).Msg("resolved domain function")
	}
	return result.Literal()
}
