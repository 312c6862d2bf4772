package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix         = "SNAPSPEND_CLI"
	defaultAPIURL     = "http://localhost:8080"
	defaultTimeout    = 30 * time.Second
	defaultRefineWait = 3 * time.Second
)

type legacyConfig struct {
	URL    string `yaml:"url" envconfig:"SNAPSPEND_CLI_LEGACY_URL"`
	APIKey string `yaml:"api_key" envconfig:"SNAPSPEND_CLI_LEGACY_API_KEY"`
}

// clientConfig is read from YAML first; any SNAPSPEND_CLI_* variable that is
// set overrides the file.
type clientConfig struct {
	APIURL     string        `yaml:"api_url" envconfig:"SNAPSPEND_CLI_API_URL"`
	StorePath  string        `yaml:"store_path" envconfig:"SNAPSPEND_CLI_STORE_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"SNAPSPEND_CLI_TIMEOUT"`
	RefineWait time.Duration `yaml:"refine_wait" envconfig:"SNAPSPEND_CLI_REFINE_WAIT"`
	LogLevel   string        `yaml:"log_level" envconfig:"SNAPSPEND_CLI_LOG_LEVEL"`
	Legacy     legacyConfig  `yaml:"legacy"`
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "snapspend.yaml"
	}
	return filepath.Join(home, ".snapspend", "config.yaml")
}

func loadClientConfig(path string) (clientConfig, error) {
	cfg := clientConfig{
		APIURL:     defaultAPIURL,
		Timeout:    defaultTimeout,
		RefineWait: defaultRefineWait,
		LogLevel:   "warn",
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading %s: %w", path, err)
		default:
			dec := yaml.NewDecoder(bytes.NewReader(raw))
			dec.KnownFields(true)
			if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return cfg, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing env overrides: %w", err)
	}

	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		return cfg, fmt.Errorf("api_url is required")
	}
	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(filepath.Dir(defaultConfigPath()), "device.db")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return cfg, nil
}
