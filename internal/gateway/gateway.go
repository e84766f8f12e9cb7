// Package gateway is the policy enforcement point: it resolves a tool call
// against its contract, asks the evaluator, optionally asks a human, and only
// then runs the query.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/f7las/gatekeeper/internal/approval"
	"github.com/f7las/gatekeeper/internal/audit"
	"github.com/f7las/gatekeeper/internal/contract"
	"github.com/f7las/gatekeeper/internal/executor"
	"github.com/f7las/gatekeeper/internal/metrics"
	"github.com/f7las/gatekeeper/internal/policy"
	"github.com/f7las/gatekeeper/internal/run"
)

const (
	DefaultMaxRows        = 50
	DefaultExecuteTimeout = 5 * time.Second
)

// Resolver turns a tool call into a bounded query.
type Resolver interface {
	Resolve(tool string, params map[string]any) (contract.Resolved, error)
}

// Decider returns a binding decision for an action.
type Decider interface {
	Evaluate(ctx context.Context, action string, pctx policy.Context, runID string) policy.Decision
}

// Options tunes a Gateway.
type Options struct {
	MaxRows        int
	ExecuteTimeout time.Duration
	Workspace      string
	Metrics        *metrics.Recorder
	Logger         *zap.Logger
}

// Gateway wires the pipeline together. It holds no per-request state.
type Gateway struct {
	resolver Resolver
	decider  Decider
	gate     approval.Gate
	exec     executor.Executor
	trail    *audit.Trail

	maxRows   int
	timeout   time.Duration
	workspace string
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// New creates a gateway. A nil gate denies every HITL decision.
func New(resolver Resolver, decider Decider, gate approval.Gate, exec executor.Executor, trail *audit.Trail, opts Options) *Gateway {
	g := &Gateway{
		resolver:  resolver,
		decider:   decider,
		gate:      gate,
		exec:      exec,
		trail:     trail,
		maxRows:   opts.MaxRows,
		timeout:   opts.ExecuteTimeout,
		workspace: opts.Workspace,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if g.gate == nil {
		g.gate = approval.NewDenyGate(trail)
	}
	if g.maxRows <= 0 {
		g.maxRows = DefaultMaxRows
	}
	if g.timeout <= 0 {
		g.timeout = DefaultExecuteTimeout
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Execute runs one tool call through the pipeline. It never returns an
// error: every failure is reported in the Result and in the audit trail.
// An empty runID is replaced with a fresh one.
func (g *Gateway) Execute(ctx context.Context, tool string, params map[string]any, runID string) Result {
	runID = run.Ensure(runID)
	ctx = run.WithContext(ctx, run.Context{ID: runID})
	log := g.logger.With(zap.String("run_id", runID), zap.String("tool", tool))

	resolved, err := g.resolver.Resolve(tool, params)
	if err != nil {
		res := g.rejectMalformed(ctx, runID, tool, err)
		log.Info("tool call rejected before policy", zap.String("reason", res.Reason))
		g.record(metrics.Event{ResolveFailed: true})
		return res
	}

	res := Result{
		RunID:    runID,
		Tool:     resolved.Tool,
		Action:   resolved.Action,
		Resource: resolved.Resource,
		Query:    resolved.Query,
		Columns:  []string{},
		Rows:     [][]any{},
	}
	pctx := policy.Context{Limit: resolved.Limit, HasTimeFilter: resolved.HasTimeFilter}

	decision := g.decider.Evaluate(ctx, resolved.Action, pctx, runID)
	res.Decision = decision.Outcome
	res.Reason = decision.Reason
	res.PolicyID = decision.PolicyID
	res.RuleID = decision.RuleID

	ev := metrics.Event{Decision: string(decision.Outcome)}

	switch decision.Outcome {
	case policy.EffectAllow:
	case policy.EffectHITL:
		approved := g.gate.RequestApproval(ctx, resolved.Action, pctx, runID)
		ev.Approved = &approved
		if !approved {
			res.Decision = policy.EffectDeny
			res.State = StateRejected
			res.Approval = "rejected"
			res.Reason = "human approval not granted: " + decision.Reason
			g.writeDenied(ctx, res)
			log.Info("tool call rejected by approval gate", zap.String("action", res.Action))
			g.record(ev)
			return res
		}
		res.Decision = policy.EffectAllow
		res.Approval = "approved"
		res.Reason = "approved by human: " + decision.Reason
	default:
		res.Decision = policy.EffectDeny
		res.State = StateDenied
		g.writeDenied(ctx, res)
		log.Info("tool call denied", zap.String("action", res.Action), zap.String("reason", res.Reason))
		g.record(ev)
		return res
	}

	start := time.Now()
	table, err := g.run(ctx, resolved)
	ev.Executed = true
	ev.Latency = time.Since(start)

	if err != nil {
		ev.Err = err
		res.State = StateFailed
		res.Error = err.Error()
		g.trail.Write(ctx, runID, audit.StageExecuteError, map[string]any{
			"tool":     res.Tool,
			"action":   res.Action,
			"resource": res.Resource,
			"query":    res.Query,
			"error":    res.Error,
		})
		log.Warn("tool execution failed", zap.String("action", res.Action), zap.Error(err))
		g.record(ev)
		return res
	}

	res.State = StateCompleted
	res.Columns = append(res.Columns, table.Columns...)
	res.Rowcount = len(table.Rows)
	res.Rows = NormalizeRows(table.Rows, g.maxRows)
	ev.Rowcount = res.Rowcount

	g.trail.Write(ctx, runID, audit.StageExecuted, map[string]any{
		"tool":     res.Tool,
		"action":   res.Action,
		"resource": res.Resource,
		"query":    res.Query,
		"rowcount": res.Rowcount,
		"returned": len(res.Rows),
	})
	log.Info("tool executed",
		zap.String("action", res.Action),
		zap.Int("rowcount", res.Rowcount),
		zap.Duration("latency", ev.Latency),
	)
	g.record(ev)
	return res
}

// run calls the executor under the gateway timeout. The call runs on its own
// goroutine so a backend that ignores ctx still cannot hold the caller past
// the deadline; its late result is discarded.
func (g *Gateway) run(ctx context.Context, resolved contract.Resolved) (executor.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type outcome struct {
		table executor.Table
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("executor panic: %v", r)}
			}
		}()
		table, err := g.exec.Execute(ctx, executor.Request{
			Resource:  resolved.Resource,
			Query:     resolved.Query,
			Workspace: g.workspace,
		})
		done <- outcome{table: table, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	if out.err != nil {
		return executor.Table{}, &executor.BackendExecutionError{
			Backend:  g.exec.Name(),
			Resource: resolved.Resource,
			Err:      out.err,
		}
	}
	return out.table, nil
}

func (g *Gateway) rejectMalformed(ctx context.Context, runID, tool string, err error) Result {
	kind := "resolve_error"
	switch {
	case errors.Is(err, contract.ErrUnknownTool):
		kind = "unknown_tool"
	case errors.Is(err, contract.ErrConstraintViolation):
		kind = "constraint_violation"
	}

	res := Result{
		RunID:    runID,
		Tool:     strings.TrimSpace(tool),
		Decision: policy.EffectDeny,
		Reason:   err.Error(),
		State:    StateDenied,
		Columns:  []string{},
		Rows:     [][]any{},
	}
	g.trail.Write(ctx, runID, audit.StageDenied, map[string]any{
		"tool":   res.Tool,
		"reason": res.Reason,
		"error":  kind,
	})
	return res
}

func (g *Gateway) writeDenied(ctx context.Context, res Result) {
	g.trail.Write(ctx, res.RunID, audit.StageDenied, map[string]any{
		"tool":      res.Tool,
		"action":    res.Action,
		"resource":  res.Resource,
		"query":     res.Query,
		"reason":    res.Reason,
		"policy_id": res.PolicyID,
		"rule_id":   res.RuleID,
	})
}

func (g *Gateway) record(ev metrics.Event) {
	if _, err := g.metrics.Record(ev); err != nil {
		g.logger.Warn("persist gateway metrics failed", zap.Error(err))
	}
}
