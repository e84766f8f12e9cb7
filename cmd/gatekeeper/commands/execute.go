package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/f7las/gatekeeper/internal/app"
	"github.com/f7las/gatekeeper/internal/gateway"
	"github.com/f7las/gatekeeper/internal/render"
)

func NewExecuteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute <tool>",
		Short: "Run one tool call through the gateway",
		Args:  cobra.ExactArgs(1),
		RunE:  runExecute,
	}
	cmd.Flags().StringArrayP("param", "p", nil, "Tool parameter as key=value (repeatable)")
	cmd.Flags().String("run-id", "", "Correlation id (default: generated)")
	cmd.Flags().Bool("interactive", false, "Ask for HITL approval on this terminal")
	cmd.Flags().Bool("json", false, "Print the raw result as JSON")
	return cmd
}

func runExecute(cmd *cobra.Command, args []string) error {
	rawParams, _ := cmd.Flags().GetStringArray("param")
	runID, _ := cmd.Flags().GetString("run-id")
	interactive, _ := cmd.Flags().GetBool("interactive")
	asJSON, _ := cmd.Flags().GetBool("json")

	params, err := parseParams(rawParams)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger, app.Options{Interactive: interactive, In: os.Stdin, Out: os.Stderr})
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.Gateway.Execute(ctx, args[0], params, runID)
	if asJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	printResult(res)
	return nil
}

func printResult(res gateway.Result) {
	summary, err := render.Markdown(render.ResultMarkdown(res), "", 100)
	if err != nil {
		summary = render.ResultMarkdown(res)
	}
	fmt.Print(summary)
	if len(res.Columns) > 0 {
		fmt.Println(render.Table(res.Columns, res.Rows))
		if res.Truncated() {
			fmt.Println(render.Dim(fmt.Sprintf("  showing %d of %d rows", len(res.Rows), res.Rowcount)))
		}
	}
}

// parseParams turns key=value flags into a parameter map. Values stay
// strings; the contract converts limit and validates the rest.
func parseParams(raw []string) (map[string]any, error) {
	params := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", kv)
		}
		params[key] = strings.TrimSpace(value)
	}
	return params, nil
}
