package approval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/f7las/gatekeeper/internal/audit"
	"github.com/f7las/gatekeeper/internal/policy"
)

const (
	defaultGateTimeout  = 5 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

// StoreGateOptions tunes a StoreGate.
type StoreGateOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Notifiers    []Notifier
	Logger       *zap.Logger
}

// StoreGate persists a request, notifies humans and waits for a decision made
// through the Service (CLI, HTTP or chat). No decision before the timeout is a
// denial and closes the request as expired.
type StoreGate struct {
	svc       *Service
	trail     *audit.Trail
	notifiers []Notifier
	timeout   time.Duration
	poll      time.Duration
	logger    *zap.Logger
}

// NewStoreGate creates a gate backed by svc.
func NewStoreGate(svc *Service, trail *audit.Trail, opts StoreGateOptions) *StoreGate {
	g := &StoreGate{
		svc:       svc,
		trail:     trail,
		notifiers: opts.Notifiers,
		timeout:   opts.Timeout,
		poll:      opts.PollInterval,
		logger:    opts.Logger,
	}
	if g.timeout <= 0 {
		g.timeout = defaultGateTimeout
	}
	if g.poll <= 0 {
		g.poll = defaultPollInterval
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

func (g *StoreGate) RequestApproval(ctx context.Context, action string, pctx policy.Context, runID string) bool {
	req, err := g.svc.Create(CreateInput{
		RunID:         runID,
		Action:        action,
		Limit:         pctx.Limit,
		HasTimeFilter: pctx.HasTimeFilter,
		Reason:        "policy requires human approval",
	})
	if err != nil {
		g.logger.Error("create approval request failed", zap.String("run_id", runID), zap.Error(err))
		writeAudit(ctx, g.trail, runID, action, pctx, AuditError, map[string]any{"error": err.Error()})
		return false
	}
	writeAudit(ctx, g.trail, runID, action, pctx, AuditPending, map[string]any{"request_id": req.ID})

	for _, n := range g.notifiers {
		if err := n.Notify(ctx, req); err != nil {
			g.logger.Warn("approval notification failed",
				zap.String("notifier", n.Name()),
				zap.String("request_id", req.ID),
				zap.Error(err),
			)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	status, decided, err := g.wait(waitCtx, req.ID)
	if err != nil {
		writeAudit(ctx, g.trail, runID, action, pctx, AuditError, map[string]any{"request_id": req.ID, "error": err.Error()})
		return false
	}
	if !decided {
		if _, err := g.svc.Expire(req.ID, "no decision before timeout"); err != nil {
			// A decision may have landed between the last poll and now; it is
			// ignored because the caller has already been denied.
			g.logger.Debug("expire approval request", zap.String("request_id", req.ID), zap.Error(err))
		}
		writeAudit(ctx, g.trail, runID, action, pctx, AuditTimeout, map[string]any{"request_id": req.ID})
		return false
	}

	switch status.Status {
	case StatusApproved:
		writeAudit(ctx, g.trail, runID, action, pctx, AuditApproved, map[string]any{
			"request_id": req.ID,
			"decided_by": status.DecidedBy,
		})
		return true
	case StatusRejected:
		writeAudit(ctx, g.trail, runID, action, pctx, AuditRejected, map[string]any{
			"request_id": req.ID,
			"decided_by": status.DecidedBy,
			"note":       status.DecisionNote,
		})
	default:
		writeAudit(ctx, g.trail, runID, action, pctx, AuditExpired, map[string]any{"request_id": req.ID})
	}
	return false
}

// wait polls until the request leaves pending or ctx ends.
func (g *StoreGate) wait(ctx context.Context, id string) (Request, bool, error) {
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		req, err := g.svc.Get(id)
		if err != nil {
			return Request{}, false, err
		}
		if req.Status.Terminal() {
			return req, true, nil
		}
		select {
		case <-ctx.Done():
			return Request{}, false, nil
		case <-ticker.C:
		}
	}
}
