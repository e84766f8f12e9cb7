package commands

import (
	"errors"
	"strings"
	"testing"

	"github.com/f7las/gatekeeper/internal/approval"
)

func TestApprovalList_ShowsPendingOnly(t *testing.T) {
	prepareWorkspace(t)

	svc, err := loadApprovalService()
	if err != nil {
		t.Fatalf("loadApprovalService: %v", err)
	}
	pending, err := svc.Create(approval.CreateInput{RunID: "run-000000000001", Action: "k8s_delete_pod", Limit: 1})
	if err != nil {
		t.Fatalf("Create pending approval: %v", err)
	}
	approved, err := svc.Create(approval.CreateInput{RunID: "run-000000000002", Action: "k8s_scale_deployment", Limit: 1})
	if err != nil {
		t.Fatalf("Create approval to approve: %v", err)
	}
	if _, err := svc.Approve(approved.ID, approval.DecisionInput{DecidedBy: "owner", Note: "safe"}); err != nil {
		t.Fatalf("Approve approval: %v", err)
	}

	cmd := newApprovalListCmd()
	output := captureOutput(t, func() {
		if err := runApprovalList(cmd, nil); err != nil {
			t.Fatalf("runApprovalList: %v", err)
		}
	})

	if !strings.Contains(output, pending.RunID) || !strings.Contains(output, "k8s_delete_pod") {
		t.Fatalf("expected pending request in output, got: %s", output)
	}
	if strings.Contains(output, "k8s_scale_deployment") {
		t.Fatalf("did not expect approved request in output, got: %s", output)
	}

	cmd = newApprovalListCmd()
	_ = cmd.Flags().Set("status", "all")
	_ = cmd.Flags().Set("run-id", "run-000000000002")
	output = captureOutput(t, func() {
		if err := runApprovalList(cmd, nil); err != nil {
			t.Fatalf("runApprovalList: %v", err)
		}
	})
	if !strings.Contains(output, "k8s_scale_deployment") || strings.Contains(output, "k8s_delete_pod") {
		t.Fatalf("expected only the run's request, got: %s", output)
	}
}

func TestApprovalList_NoPending(t *testing.T) {
	prepareWorkspace(t)
	output := captureOutput(t, func() {
		if err := runApprovalList(newApprovalListCmd(), nil); err != nil {
			t.Fatalf("runApprovalList: %v", err)
		}
	})
	if !strings.Contains(output, "No pending approvals.") {
		t.Fatalf("expected no-pending message, got: %s", output)
	}
}

func TestApprovalList_RejectsUnknownStatus(t *testing.T) {
	prepareWorkspace(t)
	cmd := newApprovalListCmd()
	_ = cmd.Flags().Set("status", "maybe")
	if err := runApprovalList(cmd, nil); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestApprovalReject_ByID(t *testing.T) {
	prepareWorkspace(t)

	svc, _ := loadApprovalService()
	req, err := svc.Create(approval.CreateInput{RunID: "run-000000000003", Action: "k8s_delete_pod", Limit: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cmd := newApprovalDecideCmd("reject", approval.StatusRejected)
	_ = cmd.Flags().Set("by", "oncall")
	_ = cmd.Flags().Set("note", "not during business hours")
	output := captureOutput(t, func() {
		if err := runApprovalDecision(cmd, []string{req.ID}, approval.StatusRejected); err != nil {
			t.Fatalf("runApprovalDecision: %v", err)
		}
	})
	if !strings.Contains(output, "rejected") || !strings.Contains(output, "run-000000000003") {
		t.Fatalf("unexpected output: %s", output)
	}

	got, err := svc.Get(req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != approval.StatusRejected || got.DecidedBy != "oncall" {
		t.Fatalf("unexpected request state %+v", got)
	}
}

func TestApprovalApprove_ByRunID(t *testing.T) {
	prepareWorkspace(t)
	t.Setenv("USER", "alice")

	svc, _ := loadApprovalService()
	req, err := svc.Create(approval.CreateInput{RunID: "run-000000000004", Action: "k8s_delete_pod", Limit: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cmd := newApprovalDecideCmd("approve", approval.StatusApproved)
	_ = cmd.Flags().Set("run-id", "run-000000000004")
	captureOutput(t, func() {
		if err := runApprovalDecision(cmd, nil, approval.StatusApproved); err != nil {
			t.Fatalf("runApprovalDecision: %v", err)
		}
	})

	got, err := svc.Get(req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != approval.StatusApproved || got.DecidedBy != "alice" {
		t.Fatalf("unexpected request state %+v", got)
	}
}

func TestApprovalDecision_RunIDErrors(t *testing.T) {
	prepareWorkspace(t)

	cmd := newApprovalDecideCmd("approve", approval.StatusApproved)
	if err := runApprovalDecision(cmd, nil, approval.StatusApproved); err == nil {
		t.Fatal("expected error without id or run id")
	}

	_ = cmd.Flags().Set("run-id", "run-00000000000f")
	err := runApprovalDecision(cmd, nil, approval.StatusApproved)
	if !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for run without requests, got %v", err)
	}

	if err := runApprovalDecision(cmd, []string{"1"}, approval.StatusApproved); err == nil {
		t.Fatal("expected error when both id and run id are given")
	}
}
