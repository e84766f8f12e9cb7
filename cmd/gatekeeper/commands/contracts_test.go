package commands

import (
	"errors"
	"strings"
	"testing"

	"github.com/f7las/gatekeeper/internal/contract"
)

func TestContractsList(t *testing.T) {
	prepareWorkspace(t)

	output := captureOutput(t, func() {
		if err := runContractsList(nil, nil); err != nil {
			t.Fatalf("runContractsList: %v", err)
		}
	})
	for _, want := range []string{"signin_logs", "describe_instance", "k8s_delete_pod"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestContractsShow_Dump(t *testing.T) {
	prepareWorkspace(t)

	cmd := newContractsShowCmd()
	_ = cmd.Flags().Set("dump", "true")
	output := captureOutput(t, func() {
		if err := runContractsShow(cmd, []string{"describe_instance"}); err != nil {
			t.Fatalf("runContractsShow: %v", err)
		}
	})
	if !strings.Contains(output, "contract.ToolSpec") {
		t.Fatalf("expected spew dump, got: %s", output)
	}
	if !strings.Contains(output, "describe-instances --region us-east-1 --max-results 10") {
		t.Fatalf("expected rendered default query, got: %s", output)
	}
}

func TestContractsShow_Unknown(t *testing.T) {
	prepareWorkspace(t)

	var err error
	captureOutput(t, func() {
		err = runContractsShow(nil, []string{"drop_tables"})
	})
	if !errors.Is(err, contract.ErrUnknownTool) {
		t.Fatalf("expected unknown tool error, got %v", err)
	}
}
