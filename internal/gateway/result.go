package gateway

import "github.com/f7las/gatekeeper/internal/policy"

// State is where a call ended in the pipeline.
type State string

const (
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateDenied    State = "DENIED"
	StateRejected  State = "REJECTED"
)

// Result is the outcome of one Execute call. Rows holds at most the
// configured maximum; Rowcount is the backend's uncapped count.
type Result struct {
	RunID    string        `json:"run_id"`
	Tool     string        `json:"tool"`
	Action   string        `json:"action"`
	Decision policy.Effect `json:"decision"`
	Reason   string        `json:"reason"`
	State    State         `json:"state"`
	Approval string        `json:"approval,omitempty"`
	PolicyID string        `json:"policy_id,omitempty"`
	RuleID   string        `json:"rule_id,omitempty"`
	Resource string        `json:"resource"`
	Query    string        `json:"query"`
	Columns  []string      `json:"columns"`
	Rows     [][]any       `json:"rows"`
	Rowcount int           `json:"rowcount"`
	Error    string        `json:"error,omitempty"`
}

// Truncated reports whether rows were dropped by the cap.
func (r Result) Truncated() bool {
	return r.Rowcount > len(r.Rows)
}
