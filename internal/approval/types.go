package approval

import "time"

// RequestStatus is the lifecycle state of a stored approval request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
	StatusExpired  RequestStatus = "expired"
)

// Terminal reports whether no further decision can be made.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// Request is a persisted request for human sign-off on one action.
type Request struct {
	ID            string        `json:"id"`
	RunID         string        `json:"run_id"`
	Action        string        `json:"action"`
	Limit         int           `json:"limit"`
	HasTimeFilter bool          `json:"has_time_filter"`
	Reason        string        `json:"reason,omitempty"`
	DecisionNote  string        `json:"decision_note,omitempty"`
	Status        RequestStatus `json:"status"`
	RequestedAt   time.Time     `json:"requested_at"`
	ExpiresAt     time.Time     `json:"expires_at,omitempty"`
	DecidedAt     time.Time     `json:"decided_at,omitempty"`
	DecidedBy     string        `json:"decided_by,omitempty"`
}

// CreateInput holds the fields of a new request.
type CreateInput struct {
	RunID         string
	Action        string
	Limit         int
	HasTimeFilter bool
	Reason        string
	TTL           time.Duration
}

// DecisionInput records who decided and why.
type DecisionInput struct {
	DecidedBy string
	Note      string
}

// Query filters requests when listing.
type Query struct {
	ID     string
	RunID  string
	Status RequestStatus
	Action string
}
