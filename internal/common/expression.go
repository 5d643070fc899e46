package common

import "regexp"

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// builtins are function names that may appear in an expression without a
// variable binding.
var builtins = map[string]struct{}{
	"sum":   {},
	"avg":   {},
	"count": {},
	"min":   {},
	"max":   {},
	"abs":   {},
	"round": {},
	"if":    {},
}

// ExpressionIdentifiers extracts the variable names referenced by a formula
// expression, excluding builtin function names. Duplicates are collapsed,
// first-occurrence order is preserved.
func ExpressionIdentifiers(expression string) []string {
	seen := make(map[string]struct{})
	var names []string

	for _, id := range identifierRe.FindAllString(expression, -1) {
		if _, ok := builtins[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		names = append(names, id)
	}

	return names
}
