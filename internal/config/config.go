package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models taskline.yml. Everything has a default; the file is
// optional. Render options are threaded into format strategies explicitly so
// tests never depend on ambient state.
type Config struct {
	Output struct {
		Color      bool   `yaml:"color"`
		Unicode    bool   `yaml:"unicode"`
		DateFormat string `yaml:"date_format"`
	} `yaml:"output"`
	Score struct {
		PriorityWeight float64 `yaml:"priority_weight"`
		DueWeight      float64 `yaml:"due_weight"`
		HorizonDays    int     `yaml:"horizon_days"`
	} `yaml:"score"`
	Complete struct {
		RequireChildrenDone bool `yaml:"require_children_done"`
	} `yaml:"complete"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Output.Color = true
	cfg.Output.Unicode = true
	cfg.Output.DateFormat = "2006-01-02"
	cfg.Score.PriorityWeight = 1.0
	cfg.Score.DueWeight = 1.0
	cfg.Score.HorizonDays = 14
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Output.DateFormat == "" {
		return fmt.Errorf("config.output.date_format is required")
	}
	probe := time.Date(2006, 1, 2, 0, 0, 0, 0, time.UTC)
	if _, err := time.Parse(c.Output.DateFormat, probe.Format(c.Output.DateFormat)); err != nil {
		return fmt.Errorf("config.output.date_format is not a valid layout: %w", err)
	}
	if c.Score.PriorityWeight < 0 || c.Score.DueWeight < 0 {
		return fmt.Errorf("config.score weights must be non-negative")
	}
	if c.Score.HorizonDays <= 0 {
		return fmt.Errorf("config.score.horizon_days must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskline.yml")
}

// Load reads taskline.yml from the workspace, falling back to defaults when
// the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys
// keep their defaults.
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
