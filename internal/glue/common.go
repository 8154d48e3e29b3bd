package glue

import "sort"

// Connection holds what is needed to reach Glue in one account/region.
type Connection struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

type Config struct {
	DefaultConnection   string                `yaml:"default_connection"`
	Region              string                `yaml:"region"`
	PollIntervalSeconds int                   `yaml:"poll_interval_seconds"`
	Connections         map[string]Connection `yaml:"connections"`
	Retry               struct {
		MaxRetries     int     `yaml:"max_retries"`
		InitialDelayMS int     `yaml:"initial_delay_ms"`
		MaxDelayMS     int     `yaml:"max_delay_ms"`
		BackoffFactor  float64 `yaml:"backoff_factor"`
	} `yaml:"retry"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Monitoring struct {
		Addr string `yaml:"addr"`
	} `yaml:"monitoring"`
	LogLevel string `yaml:"log_level"`
}

// ConnectionNames returns the configured connection ids in sorted order.
func (c Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
