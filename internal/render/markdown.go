// Package render formats decisions and result tables for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/f7las/gatekeeper/internal/gateway"
	"github.com/f7las/gatekeeper/internal/policy"
)

// PlainStyle renders without ANSI sequences.
const PlainStyle = "notty"

// Markdown renders md for a terminal. An empty style picks one from the
// terminal background.
func Markdown(md, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

// DecisionMarkdown explains a decision as markdown.
func DecisionMarkdown(d policy.Decision, pctx policy.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s `%s`\n\n", d.Outcome, d.Action)
	fmt.Fprintf(&b, "%s\n\n", d.Reason)
	b.WriteString("| field | value |\n|---|---|\n")
	fmt.Fprintf(&b, "| policy | %s |\n", orDash(d.PolicyID))
	fmt.Fprintf(&b, "| rule | %s |\n", orDash(d.RuleID))
	fmt.Fprintf(&b, "| limit | %d |\n", pctx.Limit)
	fmt.Fprintf(&b, "| time filter | %t |\n", pctx.HasTimeFilter)
	if d.RuleID == "" && d.Outcome == policy.EffectDeny {
		b.WriteString("\nNo rule matched this action, so the default applies.\n")
	}
	return b.String()
}

// ResultMarkdown summarizes an execution result without its rows.
func ResultMarkdown(res gateway.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s `%s`\n\n", res.State, res.Tool)
	fmt.Fprintf(&b, "**%s** %s\n\n", res.Decision, res.Reason)
	b.WriteString("| field | value |\n|---|---|\n")
	fmt.Fprintf(&b, "| run | %s |\n", res.RunID)
	fmt.Fprintf(&b, "| action | %s |\n", orDash(res.Action))
	fmt.Fprintf(&b, "| rule | %s |\n", orDash(res.RuleID))
	if res.Approval != "" {
		fmt.Fprintf(&b, "| approval | %s |\n", res.Approval)
	}
	if res.State == gateway.StateCompleted || res.State == gateway.StateFailed {
		fmt.Fprintf(&b, "| rows | %d of %d |\n", len(res.Rows), res.Rowcount)
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "| error | %s |\n", strings.ReplaceAll(res.Error, "|", "\\|"))
	}
	if res.Query != "" {
		fmt.Fprintf(&b, "\n```\n%s\n```\n", strings.TrimSpace(res.Query))
	}
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
