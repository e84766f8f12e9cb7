package audit

import (
	"context"
	"time"
)

// Pipeline stages written by the gateway and its collaborators.
const (
	StagePDPDecision   = "pdp_decision"
	StageDenied        = "mcp_denied"
	StageExecuted      = "mcp_executed"
	StageExecuteError  = "mcp_execute_error"
	StageHumanApproval = "human_approval"
)

// Record is one immutable audit entry.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Stage     string         `json:"stage"`
	Data      map[string]any `json:"data"`
}

// Sink is an append-only destination for audit records.
// Append must be safe for concurrent use and must write each record as one unit.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}
