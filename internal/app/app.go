// Package app assembles the gateway from configuration: audit sinks,
// contract registry, policy evaluator, approval gate, executor backend.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/f7las/gatekeeper/internal/approval"
	"github.com/f7las/gatekeeper/internal/audit"
	"github.com/f7las/gatekeeper/internal/config"
	"github.com/f7las/gatekeeper/internal/contract"
	"github.com/f7las/gatekeeper/internal/executor"
	"github.com/f7las/gatekeeper/internal/gateway"
	"github.com/f7las/gatekeeper/internal/metrics"
	"github.com/f7las/gatekeeper/internal/policy"
	"github.com/f7las/gatekeeper/internal/tools"
)

// Options adjusts how Build wires the approval gate.
type Options struct {
	// Interactive forces the console gate regardless of approval.mode.
	Interactive bool
	In          io.Reader
	Out         io.Writer
}

// App is a fully wired gateway and the pieces commands need directly.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Trail     *audit.Trail
	Contracts *contract.Registry
	Policies  *policy.Evaluator
	Approvals *approval.Service
	Telegram  *approval.TelegramNotifier
	Executor  executor.Executor
	Metrics   *metrics.Recorder
	Gateway   *gateway.Gateway
	Tools     *tools.Registry

	closers []func() error
}

// Build wires everything described by cfg. A contract or policy document
// that cannot be loaded is a configuration error and nothing is returned.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	sink, err := OpenSinks(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Trail = audit.NewTrail(sink, logger.Named("audit"))
	a.closers = append(a.closers, a.Trail.Close)

	a.Contracts, err = contract.LoadRegistry(cfg.ContractsPath())
	if err != nil {
		return nil, err
	}

	a.Policies, err = policy.LoadEvaluator(cfg.PoliciesDir(), a.Trail, logger.Named("pdp"))
	if err != nil {
		return nil, err
	}

	a.Executor, err = a.openExecutor(ctx)
	if err != nil {
		return nil, err
	}

	workspace := cfg.WorkspacePath()
	a.Approvals = approval.NewService(approval.NewStore(approval.DefaultStorePath(workspace)), cfg.Approval.TTL)
	gate, err := a.buildGate(opts)
	if err != nil {
		return nil, err
	}

	a.Metrics = metrics.NewRecorder(workspace)
	a.Gateway = gateway.New(a.Contracts, a.Policies, gate, a.Executor, a.Trail, gateway.Options{
		MaxRows:        cfg.Gateway.MaxRows,
		ExecuteTimeout: cfg.Gateway.ExecuteTimeout,
		Workspace:      cfg.Executor.Workspace,
		Metrics:        a.Metrics,
		Logger:         logger.Named("pep"),
	})

	a.Tools = tools.NewRegistry()
	if err := tools.SyncContracts(a.Tools, a.Contracts.List(), a.Gateway); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// OpenSinks opens every configured audit sink behind one MultiSink.
func OpenSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) (audit.Sink, error) {
	var sinks []audit.Sink
	fail := func(err error) (audit.Sink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	for _, name := range cfg.Audit.Sinks {
		switch name {
		case config.SinkFile:
			sinks = append(sinks, audit.NewFileSink(cfg.AuditFilePath()))
		case config.SinkPostgres:
			s, err := audit.OpenPostgresSink(ctx, cfg.Audit.PostgresDSN)
			if err != nil {
				return fail(fmt.Errorf("postgres audit sink: %w", err))
			}
			sinks = append(sinks, s)
		case config.SinkClickHouse:
			s, err := audit.OpenClickHouseSink(ctx, cfg.Audit.ClickHouseDSN, logger.Named("audit.clickhouse"))
			if err != nil {
				return fail(fmt.Errorf("clickhouse audit sink: %w", err))
			}
			sinks = append(sinks, s)
		case config.SinkPubSub:
			s, err := audit.OpenPubSubSink(ctx, audit.PubSubConfig{
				ProjectID:       cfg.Audit.PubSub.Project,
				TopicID:         cfg.Audit.PubSub.Topic,
				CredentialsFile: cfg.Audit.PubSub.CredentialsFile,
				Endpoint:        cfg.Audit.PubSub.Endpoint,
			})
			if err != nil {
				return fail(fmt.Errorf("pubsub audit sink: %w", err))
			}
			sinks = append(sinks, s)
		default:
			return fail(fmt.Errorf("unknown audit sink %q", name))
		}
	}
	if len(sinks) == 0 {
		logger.Warn("no audit sinks configured, records are only logged")
	}
	return audit.NewMultiSink(sinks...), nil
}

func (a *App) openExecutor(ctx context.Context) (executor.Executor, error) {
	cfg := a.Config.Executor
	switch cfg.Backend {
	case config.BackendClickHouse:
		ch, err := executor.OpenClickHouse(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ch.Close)
		return ch, nil
	case config.BackendPostgres:
		db, err := executor.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	default:
		return executor.LoadStub(a.Config.FixturesPath())
	}
}

func (a *App) buildGate(opts Options) (approval.Gate, error) {
	cfg := a.Config.Approval
	mode := cfg.Mode
	if opts.Interactive {
		mode = config.ApprovalConsole
	}

	switch mode {
	case config.ApprovalConsole:
		in, out := opts.In, opts.Out
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stderr
		}
		return approval.NewConsoleGate(a.Trail, in, out, cfg.Timeout, a.Logger.Named("approval")), nil
	case config.ApprovalStore:
		notifiers := []approval.Notifier{approval.NewLogNotifier(a.Logger.Named("approval"))}
		if cfg.Telegram.Enabled {
			tg, err := approval.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, a.Approvals, a.Logger.Named("telegram"))
			if err != nil {
				return nil, fmt.Errorf("telegram approvals: %w", err)
			}
			a.Telegram = tg
			notifiers = append(notifiers, tg)
		}
		return approval.NewStoreGate(a.Approvals, a.Trail, approval.StoreGateOptions{
			Timeout:      cfg.Timeout,
			PollInterval: cfg.PollInterval,
			Notifiers:    notifiers,
			Logger:       a.Logger.Named("approval"),
		}), nil
	default:
		return approval.NewDenyGate(a.Trail), nil
	}
}

// Reload re-reads contracts and policies and rebuilds the agent tool set
// from the contracts now in effect. Each cache keeps its previous snapshot
// when its reload fails.
func (a *App) Reload() error {
	var errs []error
	if err := a.Contracts.Reload(); err != nil {
		errs = append(errs, fmt.Errorf("reload contracts: %w", err))
	} else if err := tools.SyncContracts(a.Tools, a.Contracts.List(), a.Gateway); err != nil {
		errs = append(errs, fmt.Errorf("reload tools: %w", err))
	}
	if err := a.Policies.Reload(); err != nil {
		errs = append(errs, fmt.Errorf("reload policies: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases backends and sinks in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
