package approval

import (
	"context"

	"github.com/f7las/gatekeeper/internal/audit"
	"github.com/f7las/gatekeeper/internal/policy"
)

// Audit statuses recorded under the human_approval stage.
const (
	AuditPending  = "PENDING"
	AuditApproved = "APPROVED"
	AuditRejected = "REJECTED"
	AuditExpired  = "EXPIRED"
	AuditTimeout  = "TIMEOUT"
	AuditError    = "ERROR"
)

// Gate asks a human whether action may run. It blocks until an answer, a
// timeout or ctx ends, and writes at least one human_approval audit record
// before returning. Anything but an explicit approval returns false.
type Gate interface {
	RequestApproval(ctx context.Context, action string, pctx policy.Context, runID string) bool
}

// DenyGate records the request as pending and always refuses.
type DenyGate struct {
	trail *audit.Trail
}

// NewDenyGate creates a gate that never approves.
func NewDenyGate(trail *audit.Trail) *DenyGate {
	return &DenyGate{trail: trail}
}

func (g *DenyGate) RequestApproval(ctx context.Context, action string, pctx policy.Context, runID string) bool {
	writeAudit(ctx, g.trail, runID, action, pctx, AuditPending, nil)
	return false
}

func writeAudit(ctx context.Context, trail *audit.Trail, runID, action string, pctx policy.Context, status string, extra map[string]any) {
	data := map[string]any{
		"action":          action,
		"status":          status,
		"limit":           pctx.Limit,
		"has_time_filter": pctx.HasTimeFilter,
	}
	for k, v := range extra {
		data[k] = v
	}
	trail.Write(ctx, runID, audit.StageHumanApproval, data)
}
