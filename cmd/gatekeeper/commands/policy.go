package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/f7las/gatekeeper/internal/policy"
	"github.com/f7las/gatekeeper/internal/render"
)

func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate policy documents",
	}
	cmd.AddCommand(newPolicyListCmd(), newPolicyValidateCmd())
	return cmd
}

func newPolicyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE:  runPolicyList,
	}
}

func newPolicyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Load every policy document and report problems",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPolicyValidate,
	}
}

func policyDir(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.PoliciesDir(), nil
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	dir, err := policyDir(nil)
	if err != nil {
		return err
	}
	bundle, err := policy.LoadDir(dir)
	if err != nil {
		return err
	}

	var rows [][]any
	for _, set := range bundle.Sets {
		for _, rule := range set.Rules {
			rows = append(rows, []any{
				set.PolicyID,
				rule.ID,
				rule.Effect,
				strings.Join(rule.ActionPatterns, ", "),
				describeConstraints(rule.Constraints),
			})
		}
	}
	if len(rows) == 0 {
		fmt.Printf("No policy rules in %s; every action is denied.\n", dir)
		return nil
	}

	fmt.Println(render.Header("Policy Rules (first match wins)"))
	fmt.Println(render.Table([]string{"POLICY", "RULE", "EFFECT", "PATTERNS", "CONSTRAINTS"}, rows))
	fmt.Println(render.Dim(fmt.Sprintf("  %s  digest %s", dir, bundle.Digest)))
	return nil
}

func describeConstraints(c policy.Constraints) string {
	var parts []string
	if c.MaxLimit != nil {
		parts = append(parts, fmt.Sprintf("max_limit=%d", *c.MaxLimit))
	}
	if c.RequireTimeFilter != nil {
		parts = append(parts, fmt.Sprintf("require_time_filter=%t", *c.RequireTimeFilter))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	dir, err := policyDir(args)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read policy dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && policy.IsPolicyFile(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		fmt.Printf("No policy documents in %s\n", dir)
		return nil
	}

	seen := map[string]string{}
	failed := 0
	for _, path := range paths {
		set, _, err := policy.LoadFile(path)
		if err != nil {
			failed++
			fmt.Printf("FAIL %s: %v\n", path, err)
			continue
		}
		if prev, dup := seen[set.PolicyID]; dup {
			failed++
			fmt.Printf("FAIL %s: policy_id %q already defined in %s\n", path, set.PolicyID, prev)
			continue
		}
		seen[set.PolicyID] = path
		fmt.Printf("OK   %s (%s, %d rules)\n", path, set.PolicyID, len(set.Rules))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d policy documents invalid", failed, len(paths))
	}
	return nil
}
