package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/f7las/gatekeeper/internal/config"
	"github.com/f7las/gatekeeper/internal/logging"
)

var (
	configPathFlag   string
	logLevelOverride string

	logger      = zap.NewNop()
	closeLogger = func() error { return nil }
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gatekeeper",
		Short:        "Policy-enforced execution gateway for agent tool calls",
		Long:         `gatekeeper resolves agent tool calls against registered contracts, checks them against policy, asks a human when policy says so, and only then runs the bounded query.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "init", "version":
				return configureLogger(config.DefaultConfig(), logLevelOverride, false)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			interactive, _ := cmd.Flags().GetBool("interactive")
			return configureLogger(cfg, logLevelOverride, interactive)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeLogger()
		},
	}

	cmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "Config file (default ~/.gatekeeper/config.json)")
	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewInitCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
		NewExecuteCmd(),
		NewEvaluateCmd(),
		NewContractsCmd(),
		NewPolicyCmd(),
		NewApprovalCmd(),
		NewAuditCmd(),
		NewServeCmd(),
	)

	return cmd
}

func loadConfig() (*config.Config, error) {
	if configPathFlag != "" {
		return config.LoadFrom(configPathFlag)
	}
	return config.Load()
}

func configureLogger(cfg *config.Config, overrideLevel string, quiet bool) error {
	l, closeFn, err := logging.New(logging.Options{
		Level:  logging.Pick(cfg.Log.Level, overrideLevel),
		File:   cfg.Log.File,
		Format: cfg.Log.Format,
		Quiet:  quiet,
	})
	if err != nil {
		return err
	}
	_ = closeLogger()
	logger, closeLogger = l, closeFn
	return nil
}
