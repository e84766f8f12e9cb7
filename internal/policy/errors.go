package policy

import "fmt"

// ConfigurationError reports a policy source that cannot be loaded.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("policy %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// PolicyMalformedError describes a matched rule that cannot be applied.
// It never escapes Evaluate; its message becomes the DENY reason.
type PolicyMalformedError struct {
	PolicyID string
	RuleID   string
	Detail   string
}

func (e *PolicyMalformedError) Error() string {
	return fmt.Sprintf("malformed policy %s rule %s: %s", e.PolicyID, e.RuleID, e.Detail)
}
