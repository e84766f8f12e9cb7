package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/f7las/gatekeeper/internal/config"
	"github.com/f7las/gatekeeper/internal/contract"
	"github.com/f7las/gatekeeper/internal/metrics"
	"github.com/f7las/gatekeeper/internal/policy"
	"github.com/f7las/gatekeeper/internal/render"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and gateway activity",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspace := cfg.WorkspacePath()

	fmt.Println(render.Header("gatekeeper status"))
	fmt.Println()

	configPath := config.ConfigPath()
	if configPathFlag != "" {
		configPath = configPathFlag
	}
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Workspace: %s\n", workspace)
	if _, err := os.Stat(workspace); err != nil {
		fmt.Println("  Status: Not found (run 'gatekeeper init')")
	}

	fmt.Printf("\nContracts: %s\n", cfg.ContractsPath())
	if reg, err := contract.LoadRegistry(cfg.ContractsPath()); err != nil {
		fmt.Printf("  Status: ERROR (%v)\n", err)
	} else {
		fmt.Printf("  Tools: %d\n", len(reg.List()))
	}

	fmt.Printf("\nPolicies: %s\n", cfg.PoliciesDir())
	if bundle, err := policy.LoadDir(cfg.PoliciesDir()); err != nil {
		fmt.Printf("  Status: ERROR (%v)\n", err)
	} else {
		rules := 0
		for _, set := range bundle.Sets {
			rules += len(set.Rules)
		}
		fmt.Printf("  Sets: %d, rules: %d, digest: %s\n", len(bundle.Sets), rules, bundle.Digest)
		if rules == 0 {
			fmt.Println("  Every action is denied until a rule is added.")
		}
	}

	fmt.Printf("\nApproval: %s (timeout %s)\n", cfg.Approval.Mode, cfg.Approval.Timeout)
	if cfg.Approval.Telegram.Enabled {
		fmt.Println("  Telegram: enabled")
	}
	fmt.Printf("Executor: %s\n", cfg.Executor.Backend)
	fmt.Printf("Audit sinks: %s\n", strings.Join(cfg.Audit.Sinks, ", "))
	fmt.Printf("Server: %s (auth %s)\n", cfg.Addr(), authMode(cfg))

	snap, err := metrics.ReadSnapshot(workspace)
	if err != nil {
		fmt.Printf("\nActivity: unavailable (%v)\n", err)
		return nil
	}
	if !snap.HasData() {
		fmt.Println("\nActivity: none recorded yet")
		return nil
	}

	req := snap.Requests
	exec := snap.Execution
	fmt.Printf("\nActivity (updated %s):\n", snap.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Requests: %d total, %d allowed, %d denied (%.0f%%), %d HITL (%d approved, %d rejected)\n",
		req.Total, req.Allowed, req.Denied, req.DenyRatio()*100, req.HITL, req.Approved, req.Rejected)
	fmt.Printf("  Contract rejections: %d\n", req.ResolveFailures)
	fmt.Printf("  Executions: %d, errors %d (%.0f%%), timeouts %d, rows %d\n",
		exec.Total, exec.Errors, exec.ErrorRatio()*100, exec.Timeouts, exec.Rows)
	fmt.Printf("  Latency: avg %.0fms, p95~%dms, max %dms\n",
		exec.AvgLatencyMs(), exec.P95ProxyLatencyMs, exec.MaxLatencyMs)
	return nil
}

func authMode(cfg *config.Config) string {
	switch {
	case strings.TrimSpace(cfg.Server.TokenBcrypt) != "":
		return "bcrypt token"
	case strings.TrimSpace(cfg.Server.Token) != "":
		return "token"
	default:
		return "none"
	}
}
