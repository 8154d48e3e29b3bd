package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/3cpo-dev/gluerun/internal/glue"
)

const envPrefix = "gluerun"

// envOverrides are applied on top of the YAML file, e.g. GLUERUN_REGION.
type envOverrides struct {
	Connection          string `envconfig:"CONNECTION"`
	Region              string `envconfig:"REGION"`
	PollIntervalSeconds int    `envconfig:"POLL_INTERVAL_SECONDS"`
	StorePath           string `envconfig:"STORE_PATH"`
	MonitoringAddr      string `envconfig:"MONITORING_ADDR"`
	LogLevel            string `envconfig:"LOG_LEVEL"`
	FetchRetries        *int   `envconfig:"FETCH_RETRIES"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() glue.Config {
	var cfg glue.Config
	cfg.PollIntervalSeconds = 60
	cfg.LogLevel = "info"
	cfg.Store.Path = defaultStorePath()
	cfg.Connections = map[string]glue.Connection{}
	return cfg
}

// LoadConfig reads YAML configuration from a path. If path is empty, it resolves
// $XDG_CONFIG_HOME/gluerun/config.yaml or ~/.config/gluerun/config.yaml, and a
// missing default file yields DefaultConfig.
func LoadConfig(path string) (glue.Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = filepath.Join(configDir(), "config.yaml")
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("open config: %w", err)
	}
	if cfg.Connections == nil {
		cfg.Connections = map[string]glue.Connection{}
	}
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 60
	}

	// Credentials come from secrets.env or the environment, never the YAML.
	secrets, _ := LoadSecretsEnv("")
	applySecrets(&cfg, secrets)

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.PollIntervalSeconds < 0 {
		return cfg, ValidationError{Field: "poll_interval_seconds", Value: fmt.Sprint(cfg.PollIntervalSeconds), Message: "must not be negative"}
	}
	return cfg, nil
}

func applyEnv(cfg *glue.Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if env.Connection != "" {
		cfg.DefaultConnection = env.Connection
	}
	if env.Region != "" {
		cfg.Region = env.Region
	}
	if env.PollIntervalSeconds != 0 {
		cfg.PollIntervalSeconds = env.PollIntervalSeconds
	}
	if env.StorePath != "" {
		cfg.Store.Path = env.StorePath
	}
	if env.MonitoringAddr != "" {
		cfg.Monitoring.Addr = env.MonitoringAddr
	}
	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
	if env.FetchRetries != nil {
		cfg.Retry.MaxRetries = *env.FetchRetries
	}
	return nil
}

// secretKey builds GLUERUN_<CONNECTION>_<FIELD>.
func secretKey(conn, field string) string {
	conn = strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(conn))
	return "GLUERUN_" + conn + "_" + field
}

func applySecrets(cfg *glue.Config, secrets map[string]string) {
	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return secrets[key]
	}
	for name, conn := range cfg.Connections {
		if v := lookup(secretKey(name, "ACCESS_KEY_ID")); v != "" {
			conn.AccessKeyID = v
		}
		if v := lookup(secretKey(name, "SECRET_ACCESS_KEY")); v != "" {
			conn.SecretAccessKey = v
		}
		if v := lookup(secretKey(name, "SESSION_TOKEN")); v != "" {
			conn.SessionToken = v
		}
		cfg.Connections[name] = conn
	}
}

func configDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "gluerun")
}

func defaultStorePath() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "gluerun", "history.db")
}
