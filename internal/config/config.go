package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "ftops.yml"

// Config models ftops.yml.
type Config struct {
	API struct {
		BaseURL      string `yaml:"base_url"`
		Timeout      string `yaml:"timeout"`
		SessionToken string `yaml:"session_token"`
	} `yaml:"api"`
	Dev   bool `yaml:"dev"`
	State struct {
		Dir string `yaml:"dir"`
	} `yaml:"state"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Serve struct {
		Addr          string `yaml:"addr"`
		SessionSecret string `yaml:"session_secret"`
	} `yaml:"serve"`
}

var (
	logLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats = map[string]bool{"console": true, "json": true}
)

// Load reads and validates config from dir.
func Load(dir string) (*Config, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ftops config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns Default() if the config file does not exist.
func LoadOptional(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config.api.base_url must be an absolute http(s) url, got %q", c.API.BaseURL)
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if !logLevels[c.Log.Level] {
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	if !logFormats[c.Log.Format] {
		return fmt.Errorf("config.log.format must be console or json")
	}
	return nil
}

// TimeoutDuration parses api.timeout.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config.api.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config.api.timeout must be positive")
	}
	return d, nil
}

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing fields keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `api:
  base_url: http://localhost:8787
  timeout: 15s
  session_token: ""

dev: false

state:
  dir: .ftops

log:
  level: warn
  format: console

serve:
  addr: 127.0.0.1:8787
  session_secret: ""
`
