package rules

import "strings"

// Indicator is a program indicator definition translated into a synthetic
// display rule: its filter becomes the rule condition and its expression
// the data of a DISPLAYKEYVALUEPAIR action.
type Indicator struct {
	ID          string
	Program     string
	DisplayName string
	Filter      string
	Expression  string
}

// indicatorRewriter applies the textual rewrites indicator definitions
// need once at load time: textual boolean connectives and the legacy
// execution_date context variable.
var indicatorRewriter = strings.NewReplacer(
	" and ", " && ",
	" or ", " || ",
	"V{execution_date}", "V{event_date}",
)

// RulesFromIndicators translates program indicators into synthetic
// program-wide rules. Indicators without a filter are unconditionally in
// effect.
func RulesFromIndicators(indicators []Indicator) []Rule {
	rules := make([]Rule, 0, len(indicators))
	for _, ind := range indicators {
		condition := "true"
		if strings.TrimSpace(ind.Filter) != "" {
			condition = indicatorRewriter.Replace(ind.Filter)
		}
		rules = append(rules, Rule{
			ID:        "indicator-" + ind.ID,
			Program:   ind.Program,
			Condition: condition,
			Actions: []RuleAction{{
				ID:       "indicator-" + ind.ID + "-display",
				Action:   ActionDisplayKeyValuePair,
				Location: "indicators",
				Content:  ind.DisplayName,
				Data:     indicatorRewriter.Replace(ind.Expression),
			}},
		})
	}
	return rules
}
