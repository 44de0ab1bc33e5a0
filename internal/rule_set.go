package internal

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/gnolang/symex/internal/lints"
)

// LintRule is a check run while exploring procedures. Severity is the level
// its issues get unless the configuration says otherwise.
type LintRule = lints.Rule

type ruleConstructor func() LintRule

type ruleMap map[string]ruleConstructor

// allRuleConstructors maps rule names to their constructors.
var allRuleConstructors = ruleMap{
	"nil-dereference":                lints.NewNilDereference,
	"division-by-zero":               lints.NewDivisionByZero,
	"condition-always-true-or-false": lints.NewConstantCondition,
	"locks-not-unlocked":             lints.NewLocksNotUnlocked,
	"unclosed-resource":              lints.NewUnclosedResource,
}

// RuleNames returns the names of every known rule, sorted.
func RuleNames() []string {
	names := maps.Keys(allRuleConstructors)
	slices.Sort(names)
	return names
}

// newRule returns the rule registered under name, or nil.
func newRule(name string) LintRule {
	if c, ok := allRuleConstructors[name]; ok {
		return c()
	}
	return nil
}
