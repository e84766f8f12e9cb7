package policy

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/f7las/gatekeeper/internal/audit"
)

// NoMatchReason is the reason attached to the fail-closed default.
const NoMatchReason = "no matching policy rule"

// Evaluator is the policy decision point. It holds an immutable bundle
// snapshot; Reload swaps in a new one without disturbing in-flight calls.
type Evaluator struct {
	dir    string
	bundle atomic.Pointer[Bundle]
	trail  *audit.Trail
	logger *zap.Logger
	loaded atomic.Int64
}

// NewEvaluator builds an evaluator over in-memory sets.
func NewEvaluator(sets []Set, trail *audit.Trail, logger *zap.Logger) *Evaluator {
	e := newEvaluator("", trail, logger)
	e.store(&Bundle{Sets: sets})
	return e
}

// LoadEvaluator builds an evaluator over the policy documents in dir.
func LoadEvaluator(dir string, trail *audit.Trail, logger *zap.Logger) (*Evaluator, error) {
	bundle, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	e := newEvaluator(dir, trail, logger)
	e.store(&bundle)
	e.logger.Info("policies loaded",
		zap.String("dir", dir),
		zap.Int("sets", len(bundle.Sets)),
		zap.String("digest", bundle.Digest),
	)
	return e, nil
}

func newEvaluator(dir string, trail *audit.Trail, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{dir: dir, trail: trail, logger: logger}
}

func (e *Evaluator) store(b *Bundle) {
	e.bundle.Store(b)
	e.loaded.Store(time.Now().UnixNano())
}

// Reload re-reads the policy directory. On failure the current bundle stays.
func (e *Evaluator) Reload() error {
	if e.dir == "" {
		return fmt.Errorf("evaluator was not loaded from a directory")
	}
	bundle, err := LoadDir(e.dir)
	if err != nil {
		e.logger.Error("policy reload failed", zap.String("dir", e.dir), zap.Error(err))
		return err
	}
	e.store(&bundle)
	e.logger.Info("policies reloaded",
		zap.String("dir", e.dir),
		zap.Int("sets", len(bundle.Sets)),
		zap.String("digest", bundle.Digest),
	)
	return nil
}

// LoadedAt reports when the current bundle was installed.
func (e *Evaluator) LoadedAt() time.Time {
	return time.Unix(0, e.loaded.Load()).UTC()
}

// Bundle returns the current snapshot.
func (e *Evaluator) Bundle() Bundle {
	return *e.bundle.Load()
}

// Evaluate decides action under pctx and writes exactly one pdp_decision
// audit record for runID.
func (e *Evaluator) Evaluate(ctx context.Context, action string, pctx Context, runID string) Decision {
	bundle := e.bundle.Load()
	d := Decide(bundle.Sets, action, pctx)

	e.logger.Debug("policy decision",
		zap.String("run_id", runID),
		zap.String("action", d.Action),
		zap.String("decision", string(d.Outcome)),
		zap.String("policy_id", d.PolicyID),
		zap.String("rule_id", d.RuleID),
	)

	e.trail.Write(ctx, runID, audit.StagePDPDecision, map[string]any{
		"action":          d.Action,
		"decision":        string(d.Outcome),
		"reason":          d.Reason,
		"policy_id":       d.PolicyID,
		"rule_id":         d.RuleID,
		"limit":           pctx.Limit,
		"has_time_filter": pctx.HasTimeFilter,
		"policy_digest":   bundle.Digest,
	})
	return d
}

// Decide is the pure decision function: the first rule, across all sets in
// order, whose patterns match action decides. Constraints on that rule can
// only turn its effect into DENY. No match denies.
func Decide(sets []Set, action string, pctx Context) Decision {
	action = strings.TrimSpace(action)
	for _, set := range sets {
		for _, rule := range set.Rules {
			if !matchAny(rule.ActionPatterns, action) {
				continue
			}
			return applyRule(set, rule, action, pctx)
		}
	}
	return Decision{Action: action, Outcome: EffectDeny, Reason: NoMatchReason}
}

func applyRule(set Set, rule Rule, action string, pctx Context) Decision {
	d := Decision{Action: action, PolicyID: set.PolicyID, RuleID: rule.ID}

	if !rule.Effect.Valid() {
		d.Outcome = EffectDeny
		d.Reason = (&PolicyMalformedError{
			PolicyID: set.PolicyID,
			RuleID:   rule.ID,
			Detail:   fmt.Sprintf("unknown effect %q", rule.Effect),
		}).Error()
		return d
	}

	if maxLimit := rule.Constraints.MaxLimit; maxLimit != nil && pctx.Limit > *maxLimit {
		d.Outcome = EffectDeny
		d.Reason = fmt.Sprintf("limit %d exceeds max_limit %d (rule %s)", pctx.Limit, *maxLimit, rule.ID)
		return d
	}
	if req := rule.Constraints.RequireTimeFilter; req != nil && *req && !pctx.HasTimeFilter {
		d.Outcome = EffectDeny
		d.Reason = fmt.Sprintf("time filter required (rule %s)", rule.ID)
		return d
	}

	d.Outcome = rule.Effect
	d.Reason = strings.TrimSpace(rule.Reason)
	if d.Reason == "" {
		d.Reason = fmt.Sprintf("matched rule %s in policy %s", rule.ID, set.PolicyID)
	}
	return d
}
