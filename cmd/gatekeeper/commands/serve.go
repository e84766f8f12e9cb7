package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/f7las/gatekeeper/internal/app"
	"github.com/f7las/gatekeeper/internal/server"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the gateway over HTTP",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Telegram != nil {
		go func() {
			if err := a.Telegram.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("telegram approvals stopped", zap.Error(err))
			}
		}()
	}

	go expireApprovals(ctx, a)
	go reloadOnHangup(ctx, a)

	srv := server.New(cfg.Addr(), server.Deps{
		Auth:      server.Auth{Token: cfg.Server.Token, TokenHash: cfg.Server.TokenBcrypt},
		Gateway:   a.Gateway,
		Evaluator: a.Policies,
		Catalog:   a.Contracts,
		Tools:     a.Tools,
		Logger:    logger.Named("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Printf("gatekeeper serving on http://%s\n", srv.Addr())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func reloadOnHangup(ctx context.Context, a *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := a.Reload(); err != nil {
				logger.Error("reload failed, keeping previous contracts and policies", zap.Error(err))
				continue
			}
			logger.Info("contracts and policies reloaded")
		}
	}
}

func expireApprovals(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := a.Approvals.ExpirePending()
			if err != nil {
				logger.Warn("expire approvals failed", zap.Error(err))
				continue
			}
			if len(expired) > 0 {
				logger.Info("approvals expired", zap.Int("count", len(expired)))
			}
		}
	}
}
