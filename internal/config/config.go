// Package config holds the server configuration. Values come from the
// defaults, then an optional YAML file, then STREAMS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/PaulBabatuyi/streams/internal/auth"
)

// ErrNilConfig is returned by constructors handed a nil config.
var ErrNilConfig = errors.New("nil config")

// HTTPConfig is the configuration for the JSON API server.
type HTTPConfig struct {
	// ListenAddr is the address on which the HTTP server will listen.
	ListenAddr string `env:"LISTEN_ADDR" yaml:"listen_addr"`

	// TLSKeyPath is the path to the TLS private key.
	TLSKeyPath string `env:"TLS_KEY_PATH" yaml:"tls_key_path"`

	// TLSCertPath is the path to the TLS certificate.
	TLSCertPath string `env:"TLS_CERT_PATH" yaml:"tls_cert_path"`
}

// GRPCConfig is the configuration for the gRPC admin listener. An empty
// ListenAddr disables it.
type GRPCConfig struct {
	ListenAddr  string `env:"LISTEN_ADDR" yaml:"listen_addr"`
	TLSKeyPath  string `env:"TLS_KEY_PATH" yaml:"tls_key_path"`
	TLSCertPath string `env:"TLS_CERT_PATH" yaml:"tls_cert_path"`

	// RequireTLS refuses to start without a certificate.
	RequireTLS bool `env:"REQUIRE_TLS" yaml:"require_tls"`
}

// StatsConfig is the configuration for the stats server.
type StatsConfig struct {
	// ListenAddr is the address on which the stats server will listen.
	ListenAddr string `env:"LISTEN_ADDR" yaml:"listen_addr"`
}

// LogConfig is the logger configuration.
type LogConfig struct {
	// Format is the format of the logs.
	// Valid values are "json", "logfmt", and "text".
	Format string `env:"FORMAT" yaml:"format"`

	// Level is one of "debug", "info", "warn" and "error".
	Level string `env:"LEVEL" yaml:"level"`

	// Time format for the log `ts` field.
	// Format must be described in Golang's time format.
	TimeFormat string `env:"TIME_FORMAT" yaml:"time_format"`

	// Path to a file to write logs to.
	// If not set, logs will be written to stderr.
	Path string `env:"PATH" yaml:"path"`
}

// DBConfig is the snapshot backend configuration. The file driver defaults
// to streams.bson under the data path.
type DBConfig struct {
	// Driver is one of "file", "mongo" and "memory".
	Driver string `env:"DRIVER" yaml:"driver"`

	// DataSource is a file path for the file driver and a connection URI
	// for mongo.
	DataSource string `env:"DATA_SOURCE" yaml:"data_source"`

	// Database is the mongo database name.
	Database string `env:"DATABASE" yaml:"database"`
}

// AuthConfig configures session tokens. Either Secret or Keys must be set.
type AuthConfig struct {
	Secret string `env:"SECRET" yaml:"secret"`

	// Keys is "kid:secret,kid2:secret2". Every key verifies; ActiveKid signs.
	Keys      string `env:"KEYS" yaml:"keys"`
	ActiveKid string `env:"ACTIVE_KID" yaml:"active_kid"`

	// TokenTTL is how long a session token stays valid. Zero never expires.
	TokenTTL time.Duration `env:"TOKEN_TTL" yaml:"token_ttl"`
}

// JobsConfig is the configuration for cron jobs.
type JobsConfig struct {
	// Backup is the cron spec of the snapshot backup. Empty disables it.
	Backup string `env:"BACKUP" yaml:"backup"`
}

// Config is the configuration for the streams server.
type Config struct {
	// HTTP is the configuration for the JSON API server.
	HTTP HTTPConfig `envPrefix:"HTTP_" yaml:"http"`

	// GRPC is the configuration for the gRPC admin listener.
	GRPC GRPCConfig `envPrefix:"GRPC_" yaml:"grpc"`

	// Stats is the configuration for the stats server.
	Stats StatsConfig `envPrefix:"STATS_" yaml:"stats"`

	// Log is the logger configuration.
	Log LogConfig `envPrefix:"LOG_" yaml:"log"`

	// DB is the snapshot backend configuration.
	DB DBConfig `envPrefix:"DB_" yaml:"db"`

	// Auth configures session tokens.
	Auth AuthConfig `envPrefix:"AUTH_" yaml:"auth"`

	// Jobs is the configuration for cron jobs.
	Jobs JobsConfig `envPrefix:"JOBS_" yaml:"jobs"`

	// DataPath is the directory holding snapshots and backups.
	DataPath string `env:"DATA_PATH" yaml:"data_path"`
}

// DefaultDataPath returns STREAMS_DATA_PATH, or "data" when unset.
func DefaultDataPath() string {
	dp := os.Getenv("STREAMS_DATA_PATH")
	if dp == "" {
		dp = "data"
	}
	return dp
}

// DefaultConfig returns the default Config. Relative paths are resolved
// against DataPath by Validate.
func DefaultConfig() *Config {
	return &Config{
		DataPath: DefaultDataPath(),
		HTTP: HTTPConfig{
			ListenAddr: ":8080",
		},
		GRPC: GRPCConfig{
			ListenAddr: ":9090",
		},
		Stats: StatsConfig{
			ListenAddr: "localhost:9091",
		},
		Log: LogConfig{
			Format:     "text",
			Level:      "info",
			TimeFormat: time.DateTime,
		},
		DB: DBConfig{
			Driver:   "file",
			Database: "streams",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Jobs: JobsConfig{
			Backup: "@every 1h",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// when path is not empty, then the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.parseEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFile decodes the YAML file at path over c and validates the result.
func (c *Config) ParseFile(path string) error {
	if err := c.decodeFile(path); err != nil {
		return err
	}
	return c.Validate()
}

func (c *Config) decodeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() // nolint: errcheck

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ParseEnv overrides c with STREAMS_* environment variables and validates
// the result. MONGODB_URI is honoured when the mongo driver has no data
// source of its own.
func (c *Config) ParseEnv() error {
	if err := c.parseEnv(); err != nil {
		return err
	}
	return c.Validate()
}

func (c *Config) parseEnv() error {
	if err := env.ParseWithOptions(c, env.Options{
		Prefix: "STREAMS_",
	}); err != nil {
		return fmt.Errorf("parse environment variables: %w", err)
	}
	if c.DB.Driver == "mongo" && c.DB.DataSource == "" {
		c.DB.DataSource = os.Getenv("MONGODB_URI")
	}
	return nil
}

// WriteConfig writes c as YAML to path.
func (c *Config) WriteConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, out, 0o600)
}

// Validate checks the configuration and makes its paths absolute.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		c.DataPath = DefaultDataPath()
	}
	if !filepath.IsAbs(c.DataPath) {
		dp, err := filepath.Abs(c.DataPath)
		if err != nil {
			return err
		}
		c.DataPath = dp
	}

	switch c.DB.Driver {
	case "file":
		if c.DB.DataSource == "" {
			c.DB.DataSource = "streams.bson"
		}
		if !filepath.IsAbs(c.DB.DataSource) {
			c.DB.DataSource = filepath.Join(c.DataPath, c.DB.DataSource)
		}
	case "mongo":
		if c.DB.DataSource == "" {
			return errors.New("db.data_source (or MONGODB_URI) must be set for the mongo driver")
		}
	case "memory", "":
	default:
		return fmt.Errorf("unknown db.driver %q", c.DB.Driver)
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}

	if c.Auth.Keys == "" && c.Auth.Secret == "" {
		return errors.New("either auth.secret or auth.keys must be set")
	}
	if c.Auth.Keys != "" {
		keys, err := auth.ParseKeys(c.Auth.Keys)
		if err != nil {
			return fmt.Errorf("auth.keys: %w", err)
		}
		if _, ok := keys[c.Auth.ActiveKid]; !ok {
			return fmt.Errorf("auth.active_kid %q is not one of auth.keys", c.Auth.ActiveKid)
		}
	}

	if c.GRPC.RequireTLS && (c.GRPC.TLSCertPath == "" || c.GRPC.TLSKeyPath == "") {
		return errors.New("grpc.require_tls is set but no certificate is configured")
	}
	for _, p := range []*string{&c.HTTP.TLSKeyPath, &c.HTTP.TLSCertPath, &c.GRPC.TLSKeyPath, &c.GRPC.TLSCertPath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.DataPath, *p)
		}
	}
	return nil
}

// BackupPath is where the backup job writes its snapshot copy.
func (c *Config) BackupPath() string {
	return filepath.Join(c.DataPath, "backups", "streams.bson")
}

// Tokens builds the session token manager described by the auth section.
func (c *Config) Tokens() (*auth.JWTManager, error) {
	if c.Auth.Keys == "" {
		return auth.NewJWTManager(c.Auth.Secret, c.Auth.TokenTTL), nil
	}
	keys, err := auth.ParseKeys(c.Auth.Keys)
	if err != nil {
		return nil, err
	}
	return auth.NewJWTManagerFromKeys(keys, c.Auth.ActiveKid, c.Auth.TokenTTL), nil
}
