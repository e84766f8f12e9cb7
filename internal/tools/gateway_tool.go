package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/f7las/gatekeeper/internal/contract"
	"github.com/f7las/gatekeeper/internal/gateway"
	"github.com/f7las/gatekeeper/internal/run"
)

// Executor is the part of the gateway a tool needs.
type Executor interface {
	Execute(ctx context.Context, tool string, params map[string]any, runID string) gateway.Result
}

// GatewayTool is one tool contract surfaced as an eino InvokableTool. Every
// invocation goes through the gateway; the tool never reaches a backend on
// its own.
type GatewayTool struct {
	spec contract.ToolSpec
	gw   Executor
}

var _ tool.InvokableTool = (*GatewayTool)(nil)

// NewGatewayTool wraps spec.
func NewGatewayTool(spec contract.ToolSpec, gw Executor) *GatewayTool {
	return &GatewayTool{spec: spec, gw: gw}
}

func (t *GatewayTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	desc := strings.TrimSpace(t.spec.Description)
	if desc == "" {
		desc = fmt.Sprintf("%s on %s", t.spec.Action, t.spec.Resource)
	}

	params := map[string]*schema.ParameterInfo{
		"limit": {
			Type: schema.Integer,
			Desc: fmt.Sprintf("Maximum rows to return (default %d, at most %d)", defaultLimit(t.spec), t.spec.Constraints.MaxLimit),
		},
	}
	for _, name := range contract.Parameters(t.spec) {
		_, hasDefault := t.spec.Defaults[name]
		if name == "lookback" {
			hasDefault = true
		}
		params[name] = &schema.ParameterInfo{
			Type:     schema.String,
			Desc:     paramDesc(name),
			Required: !hasDefault,
		}
	}

	return &schema.ToolInfo{
		Name:        t.spec.Name,
		Desc:        desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
		Extra: map[string]any{
			"action":   t.spec.Action,
			"resource": t.spec.Resource,
		},
	}, nil
}

// InvokableRun executes the call through the gateway and returns the result
// as JSON. Denials are results, not errors, so the agent sees the reason.
func (t *GatewayTool) InvokableRun(ctx context.Context, argsJSON string, opts ...tool.Option) (string, error) {
	params, err := decodeArgs(argsJSON)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", t.spec.Name, err)
	}

	res := t.gw.Execute(ctx, t.spec.Name, params, run.IDFromContext(ctx))
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("tool %s: encode result: %w", t.spec.Name, err)
	}
	return string(out), nil
}

// RegisterContracts adds one GatewayTool per contract.
func RegisterContracts(reg *Registry, specs []contract.ToolSpec, gw Executor) error {
	for _, spec := range specs {
		if err := reg.Register(NewGatewayTool(spec, gw)); err != nil {
			return err
		}
	}
	return nil
}

// SyncContracts replaces the registry contents with one GatewayTool per
// contract, dropping tools whose contract is gone.
func SyncContracts(reg *Registry, specs []contract.ToolSpec, gw Executor) error {
	ts := make([]tool.InvokableTool, 0, len(specs))
	for _, spec := range specs {
		ts = append(ts, NewGatewayTool(spec, gw))
	}
	return reg.Replace(ts)
}

func decodeArgs(argsJSON string) (map[string]any, error) {
	argsJSON = strings.TrimSpace(argsJSON)
	if argsJSON == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(argsJSON)))
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}

func defaultLimit(spec contract.ToolSpec) any {
	if v, ok := spec.Defaults["limit"]; ok {
		return v
	}
	return contract.DefaultLimit
}

func paramDesc(name string) string {
	if name == "lookback" {
		return "Relative time window such as 1h or 7d"
	}
	return strings.ReplaceAll(name, "_", " ")
}
