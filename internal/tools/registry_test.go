package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/f7las/gatekeeper/internal/contract"
	"github.com/f7las/gatekeeper/internal/gateway"
	"github.com/f7las/gatekeeper/internal/policy"
	"github.com/f7las/gatekeeper/internal/run"
)

type mockTool struct{ name string }

func (m *mockTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: m.name, Desc: "A mock tool for testing"}, nil
}

func (m *mockTool) InvokableRun(ctx context.Context, args string, opts ...tool.Option) (string, error) {
	return "mock result", nil
}

type recordingGateway struct {
	tool   string
	params map[string]any
	runID  string
}

func (g *recordingGateway) Execute(_ context.Context, tool string, params map[string]any, runID string) gateway.Result {
	g.tool, g.params, g.runID = tool, params, runID
	return gateway.Result{
		RunID:    runID,
		Tool:     tool,
		Decision: policy.EffectDeny,
		Reason:   "no matching policy rule",
		State:    gateway.StateDenied,
		Columns:  []string{},
		Rows:     [][]any{},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(&mockTool{name: "mock_tool"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, ok := reg.Get("mock_tool"); !ok {
		t.Fatal("expected to find mock_tool")
	}
	if err := reg.Register(&mockTool{name: "mock_tool"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := reg.Register(&mockTool{}); err == nil {
		t.Fatal("expected missing name error")
	}
}

func TestRegistry_ExecuteUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Execute(context.Background(), "nope", "{}")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestGatewayTool_InfoDescribesParameters(t *testing.T) {
	spec := contract.ToolSpec{
		Name:          "delete_pod",
		Action:        "k8s_delete_pod",
		Resource:      "pods",
		QueryTemplate: "delete pod {{pod}} -n {{namespace}}",
		Defaults:      map[string]any{"namespace": "default", "limit": 1},
		Constraints:   contract.Constraints{MaxLimit: 1},
	}

	info, err := NewGatewayTool(spec, &recordingGateway{}).Info(context.Background())
	if err != nil {
		t.Fatalf("Info error: %v", err)
	}
	if info.Name != "delete_pod" {
		t.Fatalf("expected name delete_pod, got %q", info.Name)
	}
	if info.Extra["action"] != "k8s_delete_pod" {
		t.Fatalf("expected action in extra, got %v", info.Extra)
	}
	js, err := info.ParamsOneOf.ToJSONSchema()
	if err != nil {
		t.Fatalf("ToJSONSchema error: %v", err)
	}
	raw, _ := json.Marshal(js)
	for _, want := range []string{`"pod"`, `"namespace"`, `"limit"`, `"required":["pod"]`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("expected %s in schema %s", want, raw)
		}
	}
}

func TestGatewayTool_InvokableRunGoesThroughGateway(t *testing.T) {
	gw := &recordingGateway{}
	reg := NewRegistry()
	specs := []contract.ToolSpec{{Name: "signin_logs", Action: "sentinel_read_only_signin", Resource: "SigninLogs"}}
	if err := RegisterContracts(reg, specs, gw); err != nil {
		t.Fatalf("RegisterContracts error: %v", err)
	}

	ctx := run.WithContext(context.Background(), run.Context{ID: "run-0123456789ab"})
	out, err := reg.Execute(ctx, "signin_logs", `{"limit": 10, "lookback": "1h"}`)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	if gw.tool != "signin_logs" || gw.runID != "run-0123456789ab" {
		t.Fatalf("unexpected call %q/%q", gw.tool, gw.runID)
	}
	if gw.params["limit"] != json.Number("10") || gw.params["lookback"] != "1h" {
		t.Fatalf("unexpected params %#v", gw.params)
	}

	var res gateway.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Decision != policy.EffectDeny || res.Reason != "no matching policy rule" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGatewayTool_RejectsInvalidArguments(t *testing.T) {
	gw := &recordingGateway{}
	tl := NewGatewayTool(contract.ToolSpec{Name: "x", Action: "a", Resource: "r"}, gw)

	if _, err := tl.InvokableRun(context.Background(), `{"limit":`); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if gw.tool != "" {
		t.Fatal("expected gateway not to be called")
	}
}

func TestSyncContracts_ReplacesToolSet(t *testing.T) {
	gw := &recordingGateway{}
	reg := NewRegistry()
	first := []contract.ToolSpec{
		{Name: "signin_logs", Action: "a", Resource: "r"},
		{Name: "delete_pod", Action: "b", Resource: "pods"},
	}
	if err := SyncContracts(reg, first, gw); err != nil {
		t.Fatalf("SyncContracts error: %v", err)
	}

	second := []contract.ToolSpec{
		{Name: "signin_logs", Action: "a", Resource: "r"},
		{Name: "security_alerts", Action: "c", Resource: "SecurityAlert"},
	}
	if err := SyncContracts(reg, second, gw); err != nil {
		t.Fatalf("SyncContracts error: %v", err)
	}
	names := reg.Names()
	if len(names) != 2 || names[0] != "security_alerts" || names[1] != "signin_logs" {
		t.Fatalf("unexpected tool set %v", names)
	}
}

func TestReplace_KeepsOldSetOnError(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&mockTool{name: "keep"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	err := reg.Replace([]tool.InvokableTool{&mockTool{name: "dup"}, &mockTool{name: "dup"}})
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "keep" {
		t.Fatalf("expected old set to survive, got %v", names)
	}
}
