package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Directory sources understood by DirectoryConfig.Source.
const (
	DirectorySourceProtheus = "protheus"
	DirectorySourceRules    = "rules"
	DirectorySourceFile     = "file"
)

// Config is the full service configuration, read from the environment.
type Config struct {
	Service   ServiceConfig   `envPrefix:"SERVICE_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Database  DatabaseConfig  `envPrefix:"DB_"`
	Protheus  ProtheusConfig  `envPrefix:"PROTHEUS_"`
	Directory DirectoryConfig `envPrefix:"DIRECTORY_"`
	NATS      NATSConfig      `envPrefix:"NATS_"`
	LogLevel  string          `env:"LOG_LEVEL" envDefault:"info"`
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string `env:"NAME" envDefault:"be-approvals"`
	Version     string `env:"VERSION" envDefault:"dev"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	GRPCPort        int           `env:"GRPC_PORT" envDefault:"9090"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// DatabaseConfig configures the approvals Postgres database.
type DatabaseConfig struct {
	Host        string        `env:"HOST" envDefault:"localhost"`
	Port        int           `env:"PORT" envDefault:"5432"`
	User        string        `env:"USER" envDefault:"postgres"`
	Password    string        `env:"PASSWORD"`
	Database    string        `env:"NAME" envDefault:"intranet"`
	SSLMode     string        `env:"SSLMODE" envDefault:"disable"`
	MaxConns    int32         `env:"MAX_CONNS" envDefault:"10"`
	MinConns    int32         `env:"MIN_CONNS" envDefault:"1"`
	MaxConnTime time.Duration `env:"MAX_CONN_TIME" envDefault:"1h"`
	MaxIdleTime time.Duration `env:"MAX_IDLE_TIME" envDefault:"30m"`
	HealthCheck time.Duration `env:"HEALTH_CHECK" envDefault:"1m"`
	Migrate     bool          `env:"MIGRATE" envDefault:"false"`
}

// ProtheusConfig configures the ERP SQL Server connection used for approver lookup.
type ProtheusConfig struct {
	DSN string `env:"DSN"`
	// Company is the Protheus table suffix, e.g. "010" for SAL010/SAK010.
	Company string        `env:"COMPANY" envDefault:"010"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// DirectoryConfig selects where approvers are looked up.
type DirectoryConfig struct {
	Source string `env:"SOURCE" envDefault:"protheus"`
	File   string `env:"FILE" envDefault:"approvers.yaml"`
}

// NATSConfig configures approval event publishing. An empty URL disables it.
type NATSConfig struct {
	URL           string `env:"URL"`
	SubjectPrefix string `env:"SUBJECT_PREFIX" envDefault:"approvals"`
}

// Load parses environment variables into Config and validates the result.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	switch c.Directory.Source {
	case DirectorySourceProtheus:
		if c.Protheus.DSN == "" {
			return fmt.Errorf("PROTHEUS_DSN is required when DIRECTORY_SOURCE=%s", DirectorySourceProtheus)
		}
	case DirectorySourceFile:
		if c.Directory.File == "" {
			return fmt.Errorf("DIRECTORY_FILE is required when DIRECTORY_SOURCE=%s", DirectorySourceFile)
		}
	case DirectorySourceRules:
	default:
		return fmt.Errorf("unknown DIRECTORY_SOURCE %q", c.Directory.Source)
	}
	if c.Server.Port <= 0 || c.Server.GRPCPort <= 0 {
		return fmt.Errorf("server ports must be positive")
	}
	return nil
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}
