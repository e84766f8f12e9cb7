// Package server is the HTTP front of the gateway.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/f7las/gatekeeper/internal/contract"
	"github.com/f7las/gatekeeper/internal/gateway"
	"github.com/f7las/gatekeeper/internal/policy"
	"github.com/f7las/gatekeeper/internal/run"
	"github.com/f7las/gatekeeper/internal/tools"
	"github.com/f7las/gatekeeper/internal/version"
)

const maxBodyBytes = 1 << 20

// Executor runs a tool call through the enforcement point.
type Executor interface {
	Execute(ctx context.Context, tool string, params map[string]any, runID string) gateway.Result
}

// Evaluator answers policy questions without executing anything.
type Evaluator interface {
	Evaluate(ctx context.Context, action string, pctx policy.Context, runID string) policy.Decision
}

// Catalog lists the registered tool contracts.
type Catalog interface {
	List() []contract.ToolSpec
}

// ToolSet is the agent-facing tool registry: descriptions with parameter
// schemas, and invocation with JSON arguments.
type ToolSet interface {
	Infos(ctx context.Context) ([]*schema.ToolInfo, error)
	Execute(ctx context.Context, name, argsJSON string) (string, error)
}

// Auth holds the bearer credential. When TokenHash is set it is a bcrypt
// hash and takes precedence over Token. Both empty disables auth.
type Auth struct {
	Token     string
	TokenHash string
}

func (a Auth) enabled() bool {
	return strings.TrimSpace(a.Token) != "" || strings.TrimSpace(a.TokenHash) != ""
}

// Deps are the handler's collaborators.
type Deps struct {
	Auth      Auth
	Gateway   Executor
	Evaluator Evaluator
	Catalog   Catalog
	Tools     ToolSet
	Logger    *zap.Logger
}

type Server struct {
	addr       string
	handler    http.Handler
	logger     *zap.Logger
	httpServer *http.Server
}

func New(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{
		addr:    addr,
		handler: NewHandler(deps),
		logger:  deps.Logger,
	}
}

func (s *Server) Addr() string {
	return s.addr
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("gateway listening", zap.String("addr", s.addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type executeRequest struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
	RunID  string         `json:"run_id"`
}

type invokeRequest struct {
	Arguments json.RawMessage `json:"arguments"`
	RunID     string          `json:"run_id"`
}

type toolView struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Action      string `json:"action,omitempty"`
	Resource    string `json:"resource,omitempty"`
	MaxLimit    int    `json:"max_limit,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type evaluateRequest struct {
	Action        string `json:"action"`
	Limit         int    `json:"limit"`
	HasTimeFilter bool   `json:"has_time_filter"`
	RunID         string `json:"run_id"`
}

func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"commit":     version.Commit,
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/v1/tools", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !guard(w, r, requestID, http.MethodGet, deps.Auth) {
			return
		}
		if deps.Catalog == nil && deps.Tools == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "contract registry is not configured")
			return
		}
		out, err := listTools(r.Context(), deps)
		if err != nil {
			logger.Error("list tools failed", zap.String("request_id", requestID), zap.Error(err))
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to describe tools")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tools":      out,
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/v1/tools/{name}/invoke", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !guard(w, r, requestID, http.MethodPost, deps.Auth) {
			return
		}
		if deps.Tools == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "tool registry is not configured")
			return
		}
		var req invokeRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		args := strings.TrimSpace(string(req.Arguments))
		if args == "" || args == "null" {
			args = "{}"
		}

		name := r.PathValue("name")
		runID := run.Ensure(req.RunID)
		ctx := run.WithContext(r.Context(), run.Context{ID: runID})
		out, err := deps.Tools.Execute(ctx, name, args)
		switch {
		case errors.Is(err, tools.ErrToolNotFound):
			writeError(w, requestID, http.StatusNotFound, "not_found", fmt.Sprintf("tool not registered: %s", name))
			return
		case err != nil:
			writeError(w, requestID, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		logger.Info("tool invocation served",
			zap.String("request_id", requestID),
			zap.String("run_id", runID),
			zap.String("tool", name),
		)
		writeJSON(w, http.StatusOK, map[string]any{
			"tool":       name,
			"run_id":     runID,
			"result":     json.RawMessage(out),
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/v1/execute", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !guard(w, r, requestID, http.MethodPost, deps.Auth) {
			return
		}
		var req executeRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		if strings.TrimSpace(req.Tool) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "tool is required")
			return
		}
		if deps.Gateway == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "gateway is not configured")
			return
		}

		res := deps.Gateway.Execute(r.Context(), req.Tool, req.Params, req.RunID)
		logger.Info("execute request served",
			zap.String("request_id", requestID),
			zap.String("run_id", res.RunID),
			zap.String("tool", res.Tool),
			zap.String("decision", string(res.Decision)),
			zap.String("state", string(res.State)),
		)
		writeJSON(w, http.StatusOK, map[string]any{
			"result":     res,
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/v1/evaluate", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !guard(w, r, requestID, http.MethodPost, deps.Auth) {
			return
		}
		var req evaluateRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		if strings.TrimSpace(req.Action) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "action is required")
			return
		}
		if deps.Evaluator == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "policy evaluator is not configured")
			return
		}

		runID := run.Ensure(req.RunID)
		decision := deps.Evaluator.Evaluate(r.Context(), req.Action, policy.Context{
			Limit:         req.Limit,
			HasTimeFilter: req.HasTimeFilter,
		}, runID)
		writeJSON(w, http.StatusOK, map[string]any{
			"decision":   decision,
			"run_id":     runID,
			"request_id": requestID,
		})
	})
	return mux
}

// listTools merges the contract catalog with the agent tool descriptions.
// Parameter schemas come from the tool registry when one is wired.
func listTools(ctx context.Context, deps Deps) ([]toolView, error) {
	var out []toolView
	index := map[string]int{}
	if deps.Catalog != nil {
		for _, spec := range deps.Catalog.List() {
			index[spec.Name] = len(out)
			out = append(out, toolView{
				Name:        spec.Name,
				Description: spec.Description,
				Action:      spec.Action,
				Resource:    spec.Resource,
				MaxLimit:    spec.Constraints.MaxLimit,
			})
		}
	}
	if deps.Tools == nil {
		return out, nil
	}

	infos, err := deps.Tools.Infos(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		var params any
		if info.ParamsOneOf != nil {
			js, err := info.ParamsOneOf.ToJSONSchema()
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", info.Name, err)
			}
			params = js
		}
		i, ok := index[info.Name]
		if !ok {
			view := toolView{Name: info.Name, Description: info.Desc}
			view.Action, _ = info.Extra["action"].(string)
			view.Resource, _ = info.Extra["resource"].(string)
			index[info.Name] = len(out)
			out = append(out, view)
			i = len(out) - 1
		}
		out[i].Parameters = params
	}
	if out == nil {
		out = []toolView{}
	}
	return out, nil
}

func guard(w http.ResponseWriter, r *http.Request, requestID, method string, auth Auth) bool {
	if r.Method != method {
		writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return false
	}
	if auth.enabled() && !isAuthorized(r, auth) {
		writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func isAuthorized(r *http.Request, auth Auth) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	if token == "" {
		return false
	}
	if hash := strings.TrimSpace(auth.TokenHash); hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(auth.Token)) == 1
}

// HashToken returns the bcrypt hash to store in server.token_bcrypt.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
