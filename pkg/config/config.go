// Package config provides configuration loading and management for klvviewer.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"klvviewer/pkg/cache"
	"klvviewer/pkg/fetch"
	"klvviewer/pkg/quality"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Where container bytes come from
	Fetch struct {
		// BaseURL is the root of the image API, used when set
		BaseURL string `yaml:"baseURL"`

		// Directory holds containers laid out by the pack command
		Directory string `yaml:"directory"`

		// Timeout bounds each HTTP request; zero means fetch.DefaultTimeout
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"fetch"`

	// Binary cache parameters
	Cache struct {
		// Units is the number of decode units working in parallel
		Units int `yaml:"units"`

		// FailurePolicy is "retry" or "cache"
		FailurePolicy string `yaml:"failurePolicy"`
	} `yaml:"cache"`

	// Viewport parameters
	Viewport struct {
		// Purpose selects the qualities to load: "diagnostic" or "thumbnail"
		Purpose string `yaml:"purpose"`

		CanvasWidth  int `yaml:"canvasWidth"`
		CanvasHeight int `yaml:"canvasHeight"`

		// Annotations is an optional YAML file of annotations to display
		Annotations string `yaml:"annotations"`
	} `yaml:"viewport"`

	// Output parameters
	Output struct {
		// Dir receives snapshots and packed containers
		Dir string `yaml:"dir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// Compress packs containers with zstd
		Compress bool `yaml:"compress"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Fetch.BaseURL = ""
	cfg.Fetch.Directory = "containers"
	cfg.Fetch.Timeout = fetch.DefaultTimeout

	cfg.Cache.Units = cache.DefaultUnits
	cfg.Cache.FailurePolicy = cache.RetryFailures.String()

	cfg.Viewport.Purpose = quality.Diagnostic.String()
	cfg.Viewport.CanvasWidth = 512
	cfg.Viewport.CanvasHeight = 512

	cfg.Output.Dir = "snapshots"
	cfg.Output.Verbose = true
	cfg.Output.Compress = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks that every value can be used
func (c *Config) Validate() error {
	var errs []error
	if c.Fetch.BaseURL == "" && c.Fetch.Directory == "" {
		errs = append(errs, errors.New("fetch: either baseURL or directory is required"))
	}
	if c.Fetch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fetch: negative timeout %s", c.Fetch.Timeout))
	}
	if c.Cache.Units <= 0 {
		errs = append(errs, fmt.Errorf("cache: units must be positive, got %d", c.Cache.Units))
	}
	if _, err := c.FailurePolicy(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if _, err := c.Purpose(); err != nil {
		errs = append(errs, fmt.Errorf("viewport: %w", err))
	}
	if c.Viewport.CanvasWidth <= 0 || c.Viewport.CanvasHeight <= 0 {
		errs = append(errs, fmt.Errorf("viewport: invalid canvas %dx%d", c.Viewport.CanvasWidth, c.Viewport.CanvasHeight))
	}
	return errors.Join(errs...)
}

// FailurePolicy returns the parsed cache failure policy
func (c *Config) FailurePolicy() (cache.FailurePolicy, error) {
	return cache.ParseFailurePolicy(c.Cache.FailurePolicy)
}

// Purpose returns the parsed viewport purpose
func (c *Config) Purpose() (quality.Purpose, error) {
	return quality.ParsePurpose(c.Viewport.Purpose)
}
