package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	Workspace string          `mapstructure:"workspace" json:"workspace"`
	Contracts ContractsConfig `mapstructure:"contracts" json:"contracts"`
	Policies  PoliciesConfig  `mapstructure:"policies" json:"policies"`
	Gateway   GatewayConfig   `mapstructure:"gateway" json:"gateway"`
	Approval  ApprovalConfig  `mapstructure:"approval" json:"approval"`
	Executor  ExecutorConfig  `mapstructure:"executor" json:"executor"`
	Audit     AuditConfig     `mapstructure:"audit" json:"audit"`
	Server    ServerConfig    `mapstructure:"server" json:"server"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
}

// ContractsConfig tool contract document location
type ContractsConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// PoliciesConfig policy directory location
type PoliciesConfig struct {
	Dir string `mapstructure:"dir" json:"dir"`
}

// GatewayConfig enforcement point settings
type GatewayConfig struct {
	MaxRows        int           `mapstructure:"max_rows" json:"max_rows"`
	ExecuteTimeout time.Duration `mapstructure:"execute_timeout" json:"execute_timeout"`
}

// ApprovalConfig human approval settings
type ApprovalConfig struct {
	Mode         string         `mapstructure:"mode" json:"mode"`
	Timeout      time.Duration  `mapstructure:"timeout" json:"timeout"`
	PollInterval time.Duration  `mapstructure:"poll_interval" json:"poll_interval"`
	TTL          time.Duration  `mapstructure:"ttl" json:"ttl"`
	Telegram     TelegramConfig `mapstructure:"telegram" json:"telegram"`
}

// TelegramConfig approval bot settings
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Token   string `mapstructure:"token" json:"token"`
	ChatID  int64  `mapstructure:"chat_id" json:"chat_id"`
}

// ExecutorConfig backend settings
type ExecutorConfig struct {
	Backend   string `mapstructure:"backend" json:"backend"`
	DSN       string `mapstructure:"dsn" json:"dsn"`
	Fixtures  string `mapstructure:"fixtures" json:"fixtures"`
	Workspace string `mapstructure:"workspace" json:"workspace"`
}

// AuditConfig audit sink settings
type AuditConfig struct {
	Sinks         []string     `mapstructure:"sinks" json:"sinks"`
	File          string       `mapstructure:"file" json:"file"`
	PostgresDSN   string       `mapstructure:"postgres_dsn" json:"postgres_dsn"`
	ClickHouseDSN string       `mapstructure:"clickhouse_dsn" json:"clickhouse_dsn"`
	PubSub        PubSubConfig `mapstructure:"pubsub" json:"pubsub"`
}

// PubSubConfig Google Cloud Pub/Sub audit topic
type PubSubConfig struct {
	Project         string `mapstructure:"project" json:"project"`
	Topic           string `mapstructure:"topic" json:"topic"`
	CredentialsFile string `mapstructure:"credentials_file" json:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint" json:"endpoint"`
}

// ServerConfig HTTP front settings
type ServerConfig struct {
	Host        string `mapstructure:"host" json:"host"`
	Port        int    `mapstructure:"port" json:"port"`
	Token       string `mapstructure:"token" json:"token"`
	TokenBcrypt string `mapstructure:"token_bcrypt" json:"token_bcrypt"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	File   string `mapstructure:"file" json:"file"`
	Format string `mapstructure:"format" json:"format"`
}

const (
	ApprovalDeny    = "deny"
	ApprovalStore   = "store"
	ApprovalConsole = "console"

	BackendStub       = "stub"
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"

	SinkFile       = "file"
	SinkPostgres   = "postgres"
	SinkClickHouse = "clickhouse"
	SinkPubSub     = "pubsub"
)

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Workspace: filepath.Join(ConfigDir(), "workspace"),
		Contracts: ContractsConfig{Path: "contracts.yaml"},
		Policies:  PoliciesConfig{Dir: "policies"},
		Gateway: GatewayConfig{
			MaxRows:        50,
			ExecuteTimeout: 5 * time.Second,
		},
		Approval: ApprovalConfig{
			Mode:         ApprovalDeny,
			Timeout:      5 * time.Second,
			PollInterval: time.Second,
			TTL:          15 * time.Minute,
		},
		Executor: ExecutorConfig{
			Backend:   BackendStub,
			Fixtures:  "fixtures.yaml",
			Workspace: "default",
		},
		Audit: AuditConfig{
			Sinks: []string{SinkFile},
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 18791,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ConfigDir returns the gatekeeper config directory
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".gatekeeper")
}

// ConfigPath returns the default config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads the default config file, creating it with defaults when absent.
func Load() (*Config, error) {
	path := ConfigPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveTo(path, cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path over the defaults. GATEKEEPER_* env vars
// override file values.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("json")
	}
	v.SetEnvPrefix("GATEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes cfg as indented JSON.
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges
// and fills zero values with defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.Gateway.MaxRows < 0 {
		return fmt.Errorf("gateway.max_rows must not be negative, got %d", c.Gateway.MaxRows)
	}
	if c.Gateway.MaxRows == 0 {
		c.Gateway.MaxRows = def.Gateway.MaxRows
	}
	if c.Gateway.ExecuteTimeout < 0 {
		return fmt.Errorf("gateway.execute_timeout must not be negative, got %s", c.Gateway.ExecuteTimeout)
	}
	if c.Gateway.ExecuteTimeout == 0 {
		c.Gateway.ExecuteTimeout = def.Gateway.ExecuteTimeout
	}

	mode := strings.ToLower(strings.TrimSpace(c.Approval.Mode))
	switch mode {
	case "":
		mode = ApprovalDeny
	case ApprovalDeny, ApprovalStore, ApprovalConsole:
	default:
		return fmt.Errorf("approval.mode must be one of deny, store, console; got %q", c.Approval.Mode)
	}
	c.Approval.Mode = mode
	if c.Approval.Timeout <= 0 {
		c.Approval.Timeout = def.Approval.Timeout
	}
	if c.Approval.PollInterval <= 0 {
		c.Approval.PollInterval = def.Approval.PollInterval
	}
	if c.Approval.TTL <= 0 {
		c.Approval.TTL = def.Approval.TTL
	}
	if c.Approval.Telegram.Enabled {
		if strings.TrimSpace(c.Approval.Telegram.Token) == "" {
			return fmt.Errorf("approval.telegram.token is required when telegram is enabled")
		}
		if c.Approval.Telegram.ChatID == 0 {
			return fmt.Errorf("approval.telegram.chat_id is required when telegram is enabled")
		}
	}

	backend := strings.ToLower(strings.TrimSpace(c.Executor.Backend))
	switch backend {
	case "":
		backend = BackendStub
	case BackendStub:
	case BackendClickHouse, BackendPostgres:
		if strings.TrimSpace(c.Executor.DSN) == "" {
			return fmt.Errorf("executor.dsn is required for backend %q", backend)
		}
	default:
		return fmt.Errorf("executor.backend must be one of stub, clickhouse, postgres; got %q", c.Executor.Backend)
	}
	c.Executor.Backend = backend

	sinks := make([]string, 0, len(c.Audit.Sinks))
	for _, raw := range c.Audit.Sinks {
		sink := strings.ToLower(strings.TrimSpace(raw))
		switch sink {
		case "":
			continue
		case SinkFile:
		case SinkPostgres:
			if c.Audit.PostgresDSN == "" {
				return fmt.Errorf("audit.postgres_dsn is required for the postgres sink")
			}
		case SinkClickHouse:
			if c.Audit.ClickHouseDSN == "" {
				return fmt.Errorf("audit.clickhouse_dsn is required for the clickhouse sink")
			}
		case SinkPubSub:
			if c.Audit.PubSub.Project == "" || c.Audit.PubSub.Topic == "" {
				return fmt.Errorf("audit.pubsub.project and audit.pubsub.topic are required for the pubsub sink")
			}
		default:
			return fmt.Errorf("audit.sinks: unknown sink %q", raw)
		}
		sinks = append(sinks, sink)
	}
	c.Audit.Sinks = sinks

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "":
		level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	c.Log.Level = level

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "":
		format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be json or console; got %q", c.Log.Format)
	}
	c.Log.Format = format

	return nil
}

// WorkspacePath returns the expanded workspace directory.
func (c *Config) WorkspacePath() string {
	ws := expandHome(strings.TrimSpace(c.Workspace))
	if ws == "" {
		return filepath.Join(ConfigDir(), "workspace")
	}
	return ws
}

// ContractsPath resolves contracts.path against the workspace.
func (c *Config) ContractsPath() string {
	return c.resolve(c.Contracts.Path)
}

// PoliciesDir resolves policies.dir against the workspace.
func (c *Config) PoliciesDir() string {
	return c.resolve(c.Policies.Dir)
}

// FixturesPath resolves executor.fixtures against the workspace. Empty stays
// empty.
func (c *Config) FixturesPath() string {
	if strings.TrimSpace(c.Executor.Fixtures) == "" {
		return ""
	}
	return c.resolve(c.Executor.Fixtures)
}

// AuditFilePath resolves audit.file; empty means the workspace default.
func (c *Config) AuditFilePath() string {
	if strings.TrimSpace(c.Audit.File) == "" {
		return filepath.Join(c.WorkspacePath(), "state", "audit.jsonl")
	}
	return c.resolve(c.Audit.File)
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) resolve(path string) string {
	path = expandHome(strings.TrimSpace(path))
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.WorkspacePath(), path)
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	rest := strings.TrimPrefix(path[1:], string(filepath.Separator))
	rest = strings.TrimPrefix(rest, "/")
	return filepath.Join(homeDir, rest)
}
