package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/f7las/gatekeeper/internal/approval"
	"github.com/f7las/gatekeeper/internal/render"
)

// NewApprovalCmd groups the commands that decide HITL requests raised by the
// store gate. Requests are addressed by id or by the run that raised them.
func NewApprovalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Decide human-in-the-loop requests",
	}
	cmd.AddCommand(
		newApprovalListCmd(),
		newApprovalDecideCmd("approve", approval.StatusApproved),
		newApprovalDecideCmd("reject", approval.StatusRejected),
	)
	return cmd
}

func newApprovalListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approval requests (pending by default)",
		Args:  cobra.NoArgs,
		RunE:  runApprovalList,
	}
	cmd.Flags().String("status", string(approval.StatusPending), "pending, approved, rejected, expired or all")
	cmd.Flags().String("run-id", "", "Only requests raised by this run")
	cmd.Flags().String("action", "", "Only requests for this action")
	cmd.Flags().Bool("json", false, "Print requests as JSON")
	return cmd
}

func newApprovalDecideCmd(verb string, status approval.RequestStatus) *cobra.Command {
	cmd := &cobra.Command{
		Use:   verb + " [id]",
		Short: fmt.Sprintf("Mark a pending request %s", status),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalDecision(cmd, args, status)
		},
	}
	cmd.Flags().String("run-id", "", "Decide the pending request raised by this run")
	cmd.Flags().String("by", "", "Decision maker (default $USER)")
	cmd.Flags().String("note", "", "Decision note")
	return cmd
}

func runApprovalList(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	runID, _ := cmd.Flags().GetString("run-id")
	action, _ := cmd.Flags().GetString("action")
	asJSON, _ := cmd.Flags().GetBool("json")

	query := approval.Query{RunID: runID, Action: action}
	switch status = strings.ToLower(strings.TrimSpace(status)); status {
	case "all", "":
	case string(approval.StatusPending), string(approval.StatusApproved), string(approval.StatusRejected), string(approval.StatusExpired):
		query.Status = approval.RequestStatus(status)
	default:
		return fmt.Errorf("unknown status %q", status)
	}

	svc, err := loadApprovalService()
	if err != nil {
		return err
	}
	if _, err := svc.ExpirePending(); err != nil {
		return err
	}
	requests, err := svc.List(query)
	if err != nil {
		return err
	}

	if asJSON {
		data, err := json.MarshalIndent(requests, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	if len(requests) == 0 {
		if query.Status == approval.StatusPending {
			fmt.Println("No pending approvals.")
		} else {
			fmt.Println("No approval requests match.")
		}
		return nil
	}

	now := time.Now()
	rows := make([][]any, 0, len(requests))
	for _, req := range requests {
		rows = append(rows, []any{
			req.ID,
			req.RunID,
			req.Action,
			req.Limit,
			req.HasTimeFilter,
			req.Status,
			approvalDeadline(req, now),
			req.Reason,
		})
	}
	fmt.Println(render.Header("Approval Requests"))
	fmt.Println(render.Table([]string{"ID", "RUN", "ACTION", "LIMIT", "TIME FILTER", "STATUS", "DEADLINE", "REASON"}, rows))
	return nil
}

// approvalDeadline shows time left for pending requests and who decided the rest.
func approvalDeadline(req approval.Request, now time.Time) string {
	if req.Status != approval.StatusPending {
		if req.DecidedBy == "" {
			return "-"
		}
		return "by " + req.DecidedBy
	}
	if req.ExpiresAt.IsZero() {
		return "-"
	}
	left := req.ExpiresAt.Sub(now).Round(time.Second)
	if left <= 0 {
		return "overdue"
	}
	return left.String()
}

func runApprovalDecision(cmd *cobra.Command, args []string, status approval.RequestStatus) error {
	runID, _ := cmd.Flags().GetString("run-id")
	by, _ := cmd.Flags().GetString("by")
	note, _ := cmd.Flags().GetString("note")

	svc, err := loadApprovalService()
	if err != nil {
		return err
	}
	id, err := resolveApprovalID(svc, args, runID)
	if err != nil {
		return err
	}

	by = strings.TrimSpace(by)
	if by == "" {
		by = os.Getenv("USER")
	}
	decision := approval.DecisionInput{DecidedBy: by, Note: note}

	var req approval.Request
	if status == approval.StatusApproved {
		req, err = svc.Approve(id, decision)
	} else {
		req, err = svc.Reject(id, decision)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Request %s %s: %s (run %s, limit %d)\n", req.ID, req.Status, req.Action, req.RunID, req.Limit)
	return nil
}

// resolveApprovalID picks the request named by id or, failing that, the one
// pending request raised by runID.
func resolveApprovalID(svc *approval.Service, args []string, runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	switch {
	case len(args) == 1 && runID != "":
		return "", errors.New("give either a request id or --run-id, not both")
	case len(args) == 1:
		return args[0], nil
	case runID == "":
		return "", errors.New("a request id or --run-id is required")
	}

	if _, err := svc.ExpirePending(); err != nil {
		return "", err
	}
	pending, err := svc.List(approval.Query{RunID: runID, Status: approval.StatusPending})
	if err != nil {
		return "", err
	}
	switch len(pending) {
	case 0:
		return "", fmt.Errorf("%w: no pending request for run %s", approval.ErrNotFound, runID)
	case 1:
		return pending[0].ID, nil
	default:
		ids := make([]string, 0, len(pending))
		for _, req := range pending {
			ids = append(ids, req.ID)
		}
		return "", fmt.Errorf("run %s has %d pending requests (%s); pass an id", runID, len(pending), strings.Join(ids, ", "))
	}
}

func loadApprovalService() (*approval.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	store := approval.NewStore(approval.DefaultStorePath(cfg.WorkspacePath()))
	return approval.NewService(store, cfg.Approval.TTL), nil
}
