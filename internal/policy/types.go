package policy

import (
	"fmt"
	"strings"
)

// Effect is the declared outcome of a rule.
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
	EffectHITL  Effect = "HITL"
)

// ParseEffect accepts ALLOW, DENY or HITL in any case.
func ParseEffect(s string) (Effect, error) {
	switch e := Effect(strings.ToUpper(strings.TrimSpace(s))); e {
	case EffectAllow, EffectDeny, EffectHITL:
		return e, nil
	default:
		return "", fmt.Errorf("unknown effect %q", s)
	}
}

// Valid reports whether e is one of the three known effects.
func (e Effect) Valid() bool {
	switch e {
	case EffectAllow, EffectDeny, EffectHITL:
		return true
	}
	return false
}

// Constraints are optional checks applied once a rule matches.
type Constraints struct {
	MaxLimit          *int  `json:"max_limit,omitempty" yaml:"max_limit,omitempty"`
	RequireTimeFilter *bool `json:"require_time_filter,omitempty" yaml:"require_time_filter,omitempty"`
}

// Rule maps action patterns to an effect.
type Rule struct {
	ID             string      `json:"id" yaml:"id"`
	ActionPatterns []string    `json:"action_patterns" yaml:"action_patterns"`
	Effect         Effect      `json:"effect" yaml:"effect"`
	Constraints    Constraints `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Reason         string      `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Set is one policy document: an ordered list of rules.
type Set struct {
	PolicyID    string `json:"policy_id" yaml:"policy_id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Rules       []Rule `json:"rules" yaml:"rules"`

	Source string `json:"-" yaml:"-"`
}

// Context carries the request facts rule constraints are checked against.
type Context struct {
	Limit         int  `json:"limit"`
	HasTimeFilter bool `json:"has_time_filter"`
}

// Decision is the binding result of an evaluation.
type Decision struct {
	Action   string `json:"action"`
	Outcome  Effect `json:"decision"`
	Reason   string `json:"reason"`
	PolicyID string `json:"policy_id,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`
}

// Allowed reports whether the decision permits execution without approval.
func (d Decision) Allowed() bool {
	return d.Outcome == EffectAllow
}

// Int and Bool help build Constraints literals.
func Int(v int) *int    { return &v }
func Bool(v bool) *bool { return &v }
