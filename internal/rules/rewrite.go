package rules

import (
	"strings"

	"github.com/rs/zerolog"
)

// sigils are the one-character reference prefixes: # data element,
// A tracked entity attribute, V context variable, C constant.
const sigils = "#AVC"

type reference struct {
	token  string // full token text, e.g. "#{weight}"
	prefix byte
	name   string
}

// findReferences scans the expression once and returns the distinct
// variable references in order of first occurrence.
func findReferences(expression string) []reference {
	if !strings.Contains(expression, "{") {
		return nil
	}

	var refs []reference
	seen := make(map[string]bool)

	for i := 0; i+1 < len(expression); i++ {
		if strings.IndexByte(sigils, expression[i]) < 0 || expression[i+1] != '{' {
			continue
		}
		end := strings.IndexByte(expression[i+2:], '}')
		if end < 0 {
			continue
		}
		token := expression[i : i+2+end+1]
		if !seen[token] {
			seen[token] = true
			refs = append(refs, reference{
				token:  token,
				prefix: expression[i],
				name:   expression[i+2 : i+2+end],
			})
		}
		i += 2 + end
	}
	return refs
}

// RewriteExpression substitutes every variable reference in the expression
// with the variable's literal value. References are resolved by the
// composite (prefix, name) key, so a name declared under a different sigil
// never matches. Every occurrence of a matched token is replaced; unmatched
// references are left untouched and logged, which degrades the expression
// rather than failing the pass.
func RewriteExpression(expression string, vars VariableMap, log zerolog.Logger) string {
	refs := findReferences(expression)
	if len(refs) == 0 {
		return expression
	}

	out := expression
	for _, ref := range refs {
		v, ok := vars[VariableKey{Prefix: ref.prefix, Name: ref.name}]
		if !ok {
			log.Warn().
				Str("reference", ref.token).
				Str("expression", expression).
				Msg("unresolved variable reference left in expression")
			continue
		}
		out = strings.ReplaceAll(out, ref.token, v.Value)
	}
	return out
}

// singleReference returns the variable behind the expression when the
// expression consists of exactly one variable reference and nothing else.
// The engine uses this to substitute action data directly instead of
// running a full evaluation.
func singleReference(expression string, vars VariableMap) (*Variable, bool) {
	trimmed := strings.TrimSpace(expression)
	refs := findReferences(trimmed)
	if len(refs) != 1 || refs[0].token != trimmed {
		return nil, false
	}
	v, ok := vars[VariableKey{Prefix: refs[0].prefix, Name: refs[0].name}]
	return v, ok
}
