package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/f7las/gatekeeper/internal/approval"
	"github.com/f7las/gatekeeper/internal/audit"
	"github.com/f7las/gatekeeper/internal/contract"
	"github.com/f7las/gatekeeper/internal/executor"
	"github.com/f7las/gatekeeper/internal/gateway"
	"github.com/f7las/gatekeeper/internal/policy"
	"github.com/f7las/gatekeeper/internal/tools"
	"github.com/f7las/gatekeeper/internal/version"
)

type mockGateway struct {
	gotTool   string
	gotParams map[string]any
	gotRunID  string
}

func (m *mockGateway) Execute(_ context.Context, tool string, params map[string]any, runID string) gateway.Result {
	m.gotTool, m.gotParams, m.gotRunID = tool, params, runID
	return gateway.Result{
		RunID:    "run-000000000001",
		Tool:     tool,
		Decision: policy.EffectAllow,
		State:    gateway.StateCompleted,
		Columns:  []string{"n"},
		Rows:     [][]any{{1}},
		Rowcount: 1,
	}
}

type mockEvaluator struct {
	gotAction string
	gotCtx    policy.Context
}

func (m *mockEvaluator) Evaluate(_ context.Context, action string, pctx policy.Context, _ string) policy.Decision {
	m.gotAction, m.gotCtx = action, pctx
	return policy.Decision{Action: action, Outcome: policy.EffectDeny, Reason: "no matching policy rule"}
}

type mockCatalog []contract.ToolSpec

func (m mockCatalog) List() []contract.ToolSpec { return m }

func decodeJSON(t *testing.T, body *bytes.Buffer) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return out
}

func serve(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	rr := serve(NewHandler(Deps{}), http.MethodGet, "/health", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeJSON(t, rr.Body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %v", body["status"])
	}
	if body["request_id"] == "" {
		t.Fatal("expected non-empty request_id")
	}
}

func TestVersionEndpoint(t *testing.T) {
	rr := serve(NewHandler(Deps{}), http.MethodGet, "/version", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeJSON(t, rr.Body)
	if body["version"] != version.Version {
		t.Fatalf("expected version=%s, got %v", version.Version, body["version"])
	}
}

func TestExecuteEndpoint(t *testing.T) {
	gw := &mockGateway{}
	h := NewHandler(Deps{Gateway: gw})

	rr := serve(h, http.MethodPost, "/v1/execute", `{"tool":"signin_logs","params":{"limit":10},"run_id":"run-abcdefabcdef"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gw.gotTool != "signin_logs" || gw.gotRunID != "run-abcdefabcdef" {
		t.Fatalf("unexpected call %q/%q", gw.gotTool, gw.gotRunID)
	}
	if gw.gotParams["limit"] != json.Number("10") {
		t.Fatalf("expected limit passed as number, got %#v", gw.gotParams["limit"])
	}
	result, _ := decodeJSON(t, rr.Body)["result"].(map[string]any)
	if result["decision"] != "ALLOW" || result["rowcount"] != float64(1) {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestExecuteEndpoint_Validation(t *testing.T) {
	h := NewHandler(Deps{Gateway: &mockGateway{}})

	if rr := serve(h, http.MethodGet, "/v1/execute", "", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr := serve(h, http.MethodPost, "/v1/execute", `{`, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rr.Code)
	}
	if rr := serve(h, http.MethodPost, "/v1/execute", `{"params":{}}`, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing tool, got %d", rr.Code)
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	ev := &mockEvaluator{}
	h := NewHandler(Deps{Evaluator: ev})

	rr := serve(h, http.MethodPost, "/v1/evaluate", `{"action":"aws_ec2_describe_instance","limit":5,"has_time_filter":true}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ev.gotAction != "aws_ec2_describe_instance" || ev.gotCtx.Limit != 5 || !ev.gotCtx.HasTimeFilter {
		t.Fatalf("unexpected evaluator call %q %+v", ev.gotAction, ev.gotCtx)
	}
	body := decodeJSON(t, rr.Body)
	decision, _ := body["decision"].(map[string]any)
	if decision["decision"] != "DENY" {
		t.Fatalf("expected DENY, got %v", decision)
	}
	if runID, _ := body["run_id"].(string); len(runID) != len("run-")+12 {
		t.Fatalf("expected generated run id, got %v", body["run_id"])
	}
}

func TestToolsEndpoint(t *testing.T) {
	h := NewHandler(Deps{Catalog: mockCatalog{{Name: "signin_logs", Action: "a", Resource: "r", Constraints: contract.Constraints{MaxLimit: 50}}}})

	rr := serve(h, http.MethodGet, "/v1/tools", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	tools, _ := decodeJSON(t, rr.Body)["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected one tool, got %v", tools)
	}
}

func TestExecuteUnauthorized(t *testing.T) {
	gw := &mockGateway{}
	h := NewHandler(Deps{Auth: Auth{Token: "secret-token"}, Gateway: gw})

	if rr := serve(h, http.MethodPost, "/v1/execute", `{"tool":"x"}`, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := serve(h, http.MethodPost, "/v1/execute", `{"tool":"x"}`, "wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rr.Code)
	}
	if gw.gotTool != "" {
		t.Fatal("expected gateway not to be called")
	}
	if rr := serve(h, http.MethodPost, "/v1/execute", `{"tool":"x"}`, "secret-token"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
}

func TestExecuteAuthorizedByBcryptHash(t *testing.T) {
	hash, err := HashToken("s3cret")
	if err != nil {
		t.Fatalf("HashToken error: %v", err)
	}
	h := NewHandler(Deps{Auth: Auth{TokenHash: hash}, Gateway: &mockGateway{}})

	if rr := serve(h, http.MethodPost, "/v1/execute", `{"tool":"x"}`, "s3cret"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := serve(h, http.MethodPost, "/v1/execute", `{"tool":"x"}`, "nope"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

type toolStack struct {
	deps Deps
	sink *audit.MemorySink
	rows int
}

// newToolStack wires a real registry, evaluator, gateway and tool set over
// an in-memory audit sink and a fixed backend.
func newToolStack(t *testing.T) *toolStack {
	t.Helper()
	specs := []contract.ToolSpec{
		{
			Name:        "signin_logs",
			Description: "Recent sign-ins",
			Action:      "sentinel_read_only_signin",
			Resource:    "SigninLogs",
			Defaults:    map[string]any{"limit": 50},
			Constraints: contract.Constraints{MaxLimit: 50},
		},
		{
			Name:          "describe_instance",
			Action:        "aws_ec2_describe_instance",
			Resource:      "ec2_instances",
			QueryTemplate: "describe-instances --region {{region}} --max-results {{limit}}",
			Defaults:      map[string]any{"limit": 10},
			Constraints:   contract.Constraints{MaxLimit: 10},
		},
	}
	reg, err := contract.NewRegistry(specs)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}
	sink := audit.NewMemorySink()
	trail := audit.NewTrail(sink, zap.NewNop())
	ev := policy.NewEvaluator([]policy.Set{{
		PolicyID: "baseline",
		Rules: []policy.Rule{
			{ID: "sentinel_reads", ActionPatterns: []string{"sentinel_read_only_*"}, Effect: policy.EffectAllow, Constraints: policy.Constraints{MaxLimit: policy.Int(50)}},
			{ID: "catch_all", ActionPatterns: []string{"*"}, Effect: policy.EffectDeny, Reason: "not allowlisted"},
		},
	}}, trail, zap.NewNop())

	st := &toolStack{sink: sink}
	backend := executor.Func(func(context.Context, executor.Request) (executor.Table, error) {
		st.rows++
		return executor.Table{Columns: []string{"user"}, Rows: []executor.Row{executor.Values{"alice"}}}, nil
	})
	gw := gateway.New(reg, ev, approval.NewDenyGate(trail), backend, trail, gateway.Options{})

	ts := tools.NewRegistry()
	if err := tools.SyncContracts(ts, reg.List(), gw); err != nil {
		t.Fatalf("SyncContracts error: %v", err)
	}
	st.deps = Deps{Gateway: gw, Evaluator: ev, Catalog: reg, Tools: ts}
	return st
}

func TestInvokeToolEndpoint_AllowedCallIsAudited(t *testing.T) {
	st := newToolStack(t)
	h := NewHandler(st.deps)

	rr := serve(h, http.MethodPost, "/v1/tools/signin_logs/invoke", `{"arguments":{"limit":5},"run_id":"run-0123456789ab"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr.Body)
	if body["run_id"] != "run-0123456789ab" {
		t.Fatalf("expected run id echoed, got %v", body["run_id"])
	}
	result, _ := body["result"].(map[string]any)
	if result["decision"] != "ALLOW" || result["rowcount"] != float64(1) {
		t.Fatalf("unexpected result %v", result)
	}
	if st.rows != 1 {
		t.Fatalf("expected one backend call, got %d", st.rows)
	}

	decisions := st.sink.ByStage(audit.StagePDPDecision)
	if len(decisions) != 1 || decisions[0].RunID != "run-0123456789ab" {
		t.Fatalf("expected one pdp_decision for the run, got %+v", decisions)
	}
	executed := st.sink.ByStage(audit.StageExecuted)
	if len(executed) != 1 || executed[0].RunID != "run-0123456789ab" {
		t.Fatalf("expected one mcp_executed for the run, got %+v", executed)
	}
}

func TestInvokeToolEndpoint_DeniedCallSkipsBackend(t *testing.T) {
	st := newToolStack(t)
	h := NewHandler(st.deps)

	rr := serve(h, http.MethodPost, "/v1/tools/describe_instance/invoke", `{"arguments":{"region":"us-east-1"}}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr.Body)
	runID, _ := body["run_id"].(string)
	if len(runID) != len("run-")+12 {
		t.Fatalf("expected generated run id, got %v", body["run_id"])
	}
	result, _ := body["result"].(map[string]any)
	if result["decision"] != "DENY" {
		t.Fatalf("expected DENY, got %v", result)
	}
	if st.rows != 0 {
		t.Fatalf("expected no backend call, got %d", st.rows)
	}
	if n := len(st.sink.ByStage(audit.StagePDPDecision)); n != 1 {
		t.Fatalf("expected one pdp_decision, got %d", n)
	}
	denied := st.sink.ByStage(audit.StageDenied)
	if len(denied) != 1 || denied[0].RunID != runID {
		t.Fatalf("expected one mcp_denied for %s, got %+v", runID, denied)
	}
}

func TestInvokeToolEndpoint_Errors(t *testing.T) {
	st := newToolStack(t)
	h := NewHandler(st.deps)

	if rr := serve(h, http.MethodGet, "/v1/tools/signin_logs/invoke", "", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr := serve(h, http.MethodPost, "/v1/tools/nope/invoke", `{}`, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := serve(h, http.MethodPost, "/v1/tools/signin_logs/invoke", `{"arguments":[1]}`, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-object arguments, got %d", rr.Code)
	}
	if len(st.sink.Records()) != 0 {
		t.Fatalf("expected no audit records for rejected requests, got %d", len(st.sink.Records()))
	}
}

func TestToolsEndpoint_IncludesParameterSchemas(t *testing.T) {
	st := newToolStack(t)
	h := NewHandler(st.deps)

	rr := serve(h, http.MethodGet, "/v1/tools", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	raw := rr.Body.String()
	for _, want := range []string{`"describe_instance"`, `"region"`, `"max_limit":10`, `"parameters"`} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected %s in %s", want, raw)
		}
	}
	var body struct {
		Tools []toolView `json:"tools"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tools) != 2 {
		t.Fatalf("expected two tools, got %+v", body.Tools)
	}
}
