package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	defaultConfigName   = "config.json"
	defaultBaseURL      = "http://localhost:8080"
	defaultPollInterval = 5 * time.Second
)

// Config is resolved in three layers: built-in defaults, then the JSON config
// file under the user config dir, then environment variables.
type Config struct {
	BaseURL      string        `json:"base_url"       env:"VPAINLESS_URL, overwrite"`
	PollInterval time.Duration `json:"-"              env:"VPAINLESS_POLL_INTERVAL, overwrite"`
	LogLevel     string        `json:"log_level"      env:"VPAINLESS_LOG_LEVEL, overwrite"`
	LogFile      string        `json:"log_file"       env:"VPAINLESS_LOG_FILE, overwrite"`

	// Credentials for non-interactive use. Env only, never written to disk.
	Username string `json:"-" env:"VPAINLESS_USER"`
	Password string `json:"-" env:"VPAINLESS_PASSWORD"`

	// PollIntervalRaw is the file-side representation of PollInterval,
	// a duration string like "5s".
	PollIntervalRaw string `json:"poll_interval,omitempty"`
}

// Load resolves the configuration, materialising a default config file on
// first run the way the portal expects to find one later.
func Load(configDir string) (*Config, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, err
	}

	cfg := &Config{
		BaseURL:      defaultBaseURL,
		PollInterval: defaultPollInterval,
		LogLevel:     "info",
		LogFile:      filepath.Join(configDir, "vpainless.log"),
	}

	configPath := filepath.Join(configDir, defaultConfigName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeDefault(configPath, cfg); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.PollIntervalRaw != "" {
		d, err := time.ParseDuration(cfg.PollIntervalRaw)
		if err == nil && d > 0 {
			cfg.PollInterval = d
		}
	}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeDefault(configPath string, cfg *Config) error {
	out := *cfg
	out.PollIntervalRaw = cfg.PollInterval.String()
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0o644)
}
