// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage and collaborator drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverStatic   = "static"
	DriverLog      = "log"
	DriverWebhook  = "webhook"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Database      DatabaseConfig      `yaml:"database"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Directory     DirectoryConfig     `yaml:"directory"`
	Documents     DocumentsConfig     `yaml:"documents"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// IdentityConfig describes caller authentication. When disabled, the acting
// user is taken from the request body.
type IdentityConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	Algorithms    []string `yaml:"algorithms"`
	SecretEnv     string   `yaml:"secret_env"`
	PublicKeyFile string   `yaml:"public_key_file"`
	RolesClaim    string   `yaml:"roles_claim"`
}

// DatabaseConfig describes the shared PostgreSQL pool.
type DatabaseConfig struct {
	DSNEnv          string        `yaml:"dsn_env"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

// DefinitionsConfig describes where to find workflow definition files.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories"`
	HotReload   bool     `yaml:"hot_reload"`
}

// DirectoryConfig describes the user directory used for assignee
// resolution.
type DirectoryConfig struct {
	Driver   string        `yaml:"driver"`
	File     string        `yaml:"file"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DocumentsConfig describes the document store.
type DocumentsConfig struct {
	Driver string `yaml:"driver"`
}

// WorkflowConfig describes workflow engine settings.
type WorkflowConfig struct {
	Store                 WorkflowStoreConfig `yaml:"store"`
	Lock                  LockConfig          `yaml:"lock"`
	SLACheckInterval      time.Duration       `yaml:"sla_check_interval"`
	EnforceStepConditions bool                `yaml:"enforce_step_conditions"`
	ResolveTimeout        time.Duration       `yaml:"resolve_timeout"`
}

// WorkflowStoreConfig selects instance and audit persistence.
type WorkflowStoreConfig struct {
	Driver string `yaml:"driver"`
}

// LockConfig describes the per-instance lock.
type LockConfig struct {
	Driver        string        `yaml:"driver"`
	AddrEnv       string        `yaml:"addr_env"`
	DB            int           `yaml:"db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	WaitTimeout   time.Duration `yaml:"wait_timeout"`
}

// NotificationsConfig selects the notification sink.
type NotificationsConfig struct {
	Driver  string        `yaml:"driver"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig describes the outbound notification webhook.
type WebhookConfig struct {
	URL            string               `yaml:"url"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig describes circuit breaker settings.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Identity: IdentityConfig{
			Algorithms: []string{"HS256"},
			SecretEnv:  "SIGNOFF_JWT_SECRET",
			RolesClaim: "roles",
		},
		Database: DatabaseConfig{
			DSNEnv:          "SIGNOFF_DATABASE_DSN",
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: 30 * time.Minute,
			MigrateOnStart:  true,
		},
		Definitions: DefinitionsConfig{
			Directories: []string{"/definitions"},
		},
		Directory: DirectoryConfig{
			Driver:   DriverStatic,
			File:     "/etc/signoff/users.yaml",
			CacheTTL: time.Minute,
		},
		Documents: DocumentsConfig{
			Driver: DriverMemory,
		},
		Workflow: WorkflowConfig{
			Store: WorkflowStoreConfig{Driver: DriverMemory},
			Lock: LockConfig{
				Driver:        DriverMemory,
				AddrEnv:       "SIGNOFF_REDIS_ADDR",
				Prefix:        "signoff",
				TTL:           30 * time.Second,
				RetryInterval: 50 * time.Millisecond,
				WaitTimeout:   10 * time.Second,
			},
			SLACheckInterval:      5 * time.Minute,
			EnforceStepConditions: true,
			ResolveTimeout:        5 * time.Second,
		},
		Notifications: NotificationsConfig{
			Driver: DriverLog,
			Webhook: WebhookConfig{
				Timeout: 5 * time.Second,
				CircuitBreaker: CircuitBreakerConfig{
					FailureThreshold: 5,
					SuccessThreshold: 2,
					Timeout:          30 * time.Second,
				},
			},
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// UsesPostgres reports whether any component is backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.Workflow.Store.Driver == DriverPostgres ||
		c.Documents.Driver == DriverPostgres ||
		c.Directory.Driver == DriverPostgres
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if c.Identity.Enabled {
		if c.Identity.SecretEnv == "" && c.Identity.PublicKeyFile == "" {
			errs = append(errs, "identity.secret_env or identity.public_key_file is required when identity is enabled")
		}
		if len(c.Identity.Algorithms) == 0 {
			errs = append(errs, "identity.algorithms must not be empty")
		}
	}

	if len(c.Definitions.Directories) == 0 {
		errs = append(errs, "definitions.directories must not be empty")
	}

	errs = append(errs, checkDriver("workflow.store.driver", c.Workflow.Store.Driver, DriverMemory, DriverPostgres)...)
	errs = append(errs, checkDriver("workflow.lock.driver", c.Workflow.Lock.Driver, DriverMemory, DriverRedis)...)
	errs = append(errs, checkDriver("documents.driver", c.Documents.Driver, DriverMemory, DriverPostgres)...)
	errs = append(errs, checkDriver("directory.driver", c.Directory.Driver, DriverStatic, DriverPostgres)...)
	errs = append(errs, checkDriver("notifications.driver", c.Notifications.Driver, DriverLog, DriverWebhook)...)

	if c.UsesPostgres() && c.Database.DSNEnv == "" {
		errs = append(errs, "database.dsn_env is required when a postgres driver is selected")
	}
	if c.Workflow.Lock.Driver == DriverRedis {
		if c.Workflow.Lock.AddrEnv == "" {
			errs = append(errs, "workflow.lock.addr_env is required for the redis lock")
		}
		if c.Workflow.Lock.TTL <= 0 {
			errs = append(errs, "workflow.lock.ttl must be positive")
		}
	}
	if c.Directory.Driver == DriverStatic && c.Directory.File == "" {
		errs = append(errs, "directory.file is required for the static directory")
	}
	if c.Notifications.Driver == DriverWebhook && c.Notifications.Webhook.URL == "" {
		errs = append(errs, "notifications.webhook.url is required for the webhook driver")
	}
	if c.Workflow.SLACheckInterval < 0 {
		errs = append(errs, "workflow.sla_check_interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func checkDriver(field, value string, allowed ...string) []string {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return []string{fmt.Sprintf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)}
}

// applyEnvOverrides reads SIGNOFF_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIGNOFF_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SIGNOFF_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("SIGNOFF_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("SIGNOFF_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("SIGNOFF_WORKFLOW_STORE_DRIVER"); v != "" {
		cfg.Workflow.Store.Driver = v
	}
	if v := os.Getenv("SIGNOFF_WORKFLOW_LOCK_DRIVER"); v != "" {
		cfg.Workflow.Lock.Driver = v
	}
	if v := os.Getenv("SIGNOFF_DEFINITIONS_DIRECTORIES"); v != "" {
		cfg.Definitions.Directories = strings.Split(v, ",")
	}
	if v := os.Getenv("SIGNOFF_NOTIFICATIONS_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
	}
}
