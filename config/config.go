package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the fundd daemon configuration. TOML is the primary format; files
// ending in .yaml or .yml are decoded as YAML.
type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen_address"`
	DataDir       string `toml:"DataDir" yaml:"data_dir"`
	Environment   string `toml:"Environment" yaml:"environment"`
	// DevMode exposes the ledger mint endpoint.
	DevMode bool `toml:"DevMode" yaml:"dev_mode"`

	Crowdfund Crowdfund `toml:"crowdfund" yaml:"crowdfund"`
	Roles     Roles     `toml:"roles" yaml:"roles"`
	Auth      Auth      `toml:"auth" yaml:"auth"`
	RateLimit RateLimit `toml:"rate_limit" yaml:"rate_limit"`
	Audit     Audit     `toml:"audit" yaml:"audit"`
	Webhook   Webhook   `toml:"webhook" yaml:"webhook"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry"`
}

// Crowdfund holds engine policy.
type Crowdfund struct {
	// MinDonation is a base-unit integer string. Empty keeps the engine default.
	MinDonation string `toml:"MinDonation" yaml:"min_donation"`
	// Paused starts the module paused.
	Paused bool `toml:"Paused" yaml:"paused"`
	// Vault optionally overrides the derived escrow account.
	Vault string `toml:"Vault" yaml:"vault"`
}

// Roles lists accounts granted each role at boot. Entries are fund bech32
// addresses or 0x hex.
type Roles struct {
	DefaultAdmin []string `toml:"DefaultAdmin" yaml:"default_admin"`
	Pauser       []string `toml:"Pauser" yaml:"pauser"`
	Updater      []string `toml:"Updater" yaml:"updater"`
	Withdrawer   []string `toml:"Withdrawer" yaml:"withdrawer"`
}

// Auth configures bearer token verification.
type Auth struct {
	HMACSecret    string `toml:"HMACSecret" yaml:"hmac_secret"`
	HMACSecretEnv string `toml:"HMACSecretEnv" yaml:"hmac_secret_env"`
	Issuer        string `toml:"Issuer" yaml:"issuer"`
	Audience      string `toml:"Audience" yaml:"audience"`
	// ClockSkewSeconds tolerates drift when checking exp/nbf.
	ClockSkewSeconds int `toml:"ClockSkewSeconds" yaml:"clock_skew_seconds"`
}

// RateLimit is a per-client token bucket. Zero RequestsPerSecond disables it.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requests_per_second"`
	Burst             int     `toml:"Burst" yaml:"burst"`
	// MaxConnections caps concurrent HTTP connections. Zero is unlimited.
	MaxConnections int `toml:"MaxConnections" yaml:"max_connections"`
}

// Audit selects the committed event index. DSN is a sqlite file path or a
// postgres:// URL; empty disables the index.
type Audit struct {
	DSN string `toml:"DSN" yaml:"dsn"`
}

// Webhook forwards committed events to an HTTP endpoint. Empty URL disables
// delivery.
type Webhook struct {
	URL    string `toml:"URL" yaml:"url"`
	Secret string `toml:"Secret" yaml:"secret"`
	// Events restricts delivery to these event types. Empty forwards all.
	Events     []string `toml:"Events" yaml:"events"`
	MaxRetries int      `toml:"MaxRetries" yaml:"max_retries"`
}

// Logging configures slog output.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
	Compress   bool   `toml:"Compress" yaml:"compress"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
}

// Load reads the configuration at path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown key %s in %s", undecoded[0].String(), path)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns the configuration written for a fresh install. The HMAC
// secret is random per call.
func Default() (*Config, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("config: generate secret: %w", err)
	}
	cfg := &Config{
		ListenAddress: "127.0.0.1:8545",
		DataDir:       "./fund-data",
		Environment:   "local",
		Auth: Auth{
			HMACSecret: hex.EncodeToString(secret),
			Issuer:     "fundd",
			Audience:   "fundchain",
		},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		Audit:     Audit{DSN: filepath.Join("fund-data", "audit.db")},
		Logging:   Logging{Level: "info"},
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = "127.0.0.1:8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./fund-data"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond) + 1
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// The file carries the HMAC secret.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
