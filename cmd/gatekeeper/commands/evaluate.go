package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/f7las/gatekeeper/internal/app"
	"github.com/f7las/gatekeeper/internal/audit"
	"github.com/f7las/gatekeeper/internal/policy"
	"github.com/f7las/gatekeeper/internal/render"
	"github.com/f7las/gatekeeper/internal/run"
)

func NewEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <action>",
		Short: "Ask the policy evaluator about an action without executing anything",
		Args:  cobra.ExactArgs(1),
		RunE:  runEvaluate,
	}
	cmd.Flags().Int("limit", 0, "Requested row limit")
	cmd.Flags().Bool("time-filter", false, "Whether the query carries a time filter")
	cmd.Flags().String("run-id", "", "Correlation id (default: generated)")
	cmd.Flags().Bool("plain", false, "Render without colors")
	return cmd
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	timeFilter, _ := cmd.Flags().GetBool("time-filter")
	runID, _ := cmd.Flags().GetString("run-id")
	plain, _ := cmd.Flags().GetBool("plain")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	sink, err := app.OpenSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	trail := audit.NewTrail(sink, logger.Named("audit"))
	defer trail.Close()

	evaluator, err := policy.LoadEvaluator(cfg.PoliciesDir(), trail, logger.Named("pdp"))
	if err != nil {
		return err
	}

	pctx := policy.Context{Limit: limit, HasTimeFilter: timeFilter}
	decision := evaluator.Evaluate(ctx, args[0], pctx, run.Ensure(runID))

	style := ""
	if plain {
		style = render.PlainStyle
	}
	md := render.DecisionMarkdown(decision, pctx)
	out, err := render.Markdown(md, style, 100)
	if err != nil {
		out = md
	}
	fmt.Print(out)
	return nil
}
