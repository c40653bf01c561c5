// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultCollectionInterval = 300 * time.Second
	DefaultRegisterBackoff    = 30 * time.Second
	DefaultCheckTimeout       = 60 * time.Second
	DefaultListenAddr         = "0.0.0.0:8080"
	DefaultDBPath             = "fleetwatch.db"
	DefaultOfflineThreshold   = 10 * time.Minute
	DefaultSweepInterval      = time.Minute
	DefaultSnapshotRetention  = 7 * 24 * time.Hour
	DefaultMaxPayloadBytes    = 4 << 20
	DefaultMaxConcurrent      = 100
)

// AgentConfig for the endpoint agent
type AgentConfig struct {
	ServerURL          string        `yaml:"server_url"`
	CollectionInterval time.Duration `yaml:"collection_interval"`
	Hostname           string        `yaml:"hostname"` // override; defaults to the OS hostname
	RegisterBackoff    time.Duration `yaml:"register_backoff"`
	CheckTimeout       time.Duration `yaml:"check_timeout"`
	StateFile          string        `yaml:"state_file"` // remembers the endpoint id; empty disables
	TLSSkipVerify      bool          `yaml:"tls_skip_verify"`
	AgentSecret        string        `yaml:"-"` // from env only
}

// ServerConfig for the central server
type ServerConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	DBPath            string        `yaml:"db_path"`
	OfflineThreshold  time.Duration `yaml:"offline_threshold"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	SnapshotRetention time.Duration `yaml:"snapshot_retention"`
	MaxPayloadBytes   int64         `yaml:"max_payload_bytes"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	TLSCert           string        `yaml:"tls_cert"`
	TLSKey            string        `yaml:"tls_key"`
	AMQPURL           string        `yaml:"amqp_url"`
	AMQPExchange      string        `yaml:"amqp_exchange"`
	AgentSecret       string        `yaml:"-"` // from env only
	AdminToken        string        `yaml:"-"` // from env only
}

// LoadEnvFile loads KEY=value pairs from path into the environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadAgentConfig loads agent config from an optional YAML file with env overrides
func LoadAgentConfig(path string) (*AgentConfig, error) {
	var cfg AgentConfig
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}

	// Env overrides
	if secret := os.Getenv("FLEETWATCH_AGENT_SECRET"); secret != "" {
		cfg.AgentSecret = secret
	}
	if u := os.Getenv("FLEETWATCH_SERVER_URL"); u != "" {
		cfg.ServerURL = u
	}
	if hostname := os.Getenv("FLEETWATCH_HOSTNAME"); hostname != "" {
		cfg.Hostname = hostname
	}
	if err := envDuration("FLEETWATCH_COLLECTION_INTERVAL_SECS", time.Second, &cfg.CollectionInterval); err != nil {
		return nil, err
	}

	if cfg.CollectionInterval == 0 {
		cfg.CollectionInterval = DefaultCollectionInterval
	}
	if cfg.RegisterBackoff == 0 {
		cfg.RegisterBackoff = DefaultRegisterBackoff
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or nonsensical settings
func (c *AgentConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url %q must be an http(s) URL", c.ServerURL)
	}
	if c.AgentSecret == "" {
		return errors.New("FLEETWATCH_AGENT_SECRET is required")
	}
	if c.CollectionInterval < 0 || c.RegisterBackoff < 0 || c.CheckTimeout < 0 {
		return errors.New("durations must be positive")
	}
	return nil
}

// LoadServerConfig loads server config from an optional YAML file with env overrides
func LoadServerConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}

	// Env overrides
	if secret := os.Getenv("FLEETWATCH_AGENT_SECRET"); secret != "" {
		cfg.AgentSecret = secret
	}
	if token := os.Getenv("FLEETWATCH_ADMIN_TOKEN"); token != "" {
		cfg.AdminToken = token
	}
	if addr := os.Getenv("FLEETWATCH_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if p := os.Getenv("FLEETWATCH_DB_PATH"); p != "" {
		cfg.DBPath = p
	}
	if u := os.Getenv("FLEETWATCH_AMQP_URL"); u != "" {
		cfg.AMQPURL = u
	}
	if err := envDuration("FLEETWATCH_OFFLINE_THRESHOLD_MINUTES", time.Minute, &cfg.OfflineThreshold); err != nil {
		return nil, err
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	if cfg.OfflineThreshold == 0 {
		cfg.OfflineThreshold = DefaultOfflineThreshold
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.SnapshotRetention == 0 {
		cfg.SnapshotRetention = DefaultSnapshotRetention
	}
	if cfg.MaxPayloadBytes == 0 {
		cfg.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or nonsensical settings
func (c *ServerConfig) Validate() error {
	if c.AgentSecret == "" {
		return errors.New("FLEETWATCH_AGENT_SECRET is required")
	}
	if c.OfflineThreshold < 0 || c.SweepInterval < 0 || c.SnapshotRetention < 0 {
		return errors.New("durations must be positive")
	}
	if c.MaxPayloadBytes < 0 || c.MaxConcurrent < 0 {
		return errors.New("limits must be positive")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls_cert and tls_key must be set together")
	}
	return nil
}

// TLSEnabled reports whether the server should serve HTTPS
func (c *ServerConfig) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

func readYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// envDuration reads an integer count of unit from env into d when the variable is set
func envDuration(name string, unit time.Duration, d *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s must be a positive integer, got %q", name, v)
	}
	*d = time.Duration(n) * unit
	return nil
}
