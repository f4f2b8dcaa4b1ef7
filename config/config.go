package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration
type Config struct {
	Correction  CorrectionConfig  `yaml:"correction"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Kernel      KernelConfig      `yaml:"kernel"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CorrectionConfig contains the noise-separation and output settings
type CorrectionConfig struct {
	NoiseModel      string  `yaml:"noise_model"`
	NoiseIterations int     `yaml:"noise_iterations"`
	ReadNoise       float64 `yaml:"read_noise"`
	Diagnostics     bool    `yaml:"diagnostics"`
	WriteMosaics    bool    `yaml:"write_mosaics"`
}

// CalibrationConfig locates the reference databases
type CalibrationConfig struct {
	ReferenceDir string `yaml:"reference_dir"`
}

// KernelConfig contains the external correction kernel settings
type KernelConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// LedgerConfig contains the run-ledger settings
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	Console       bool   `yaml:"console"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.normalize()
	cfg.Logging.Console = true
	return cfg
}

// Load loads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Correction.NoiseModel = strings.ToLower(strings.TrimSpace(c.Correction.NoiseModel))
	if c.Correction.NoiseModel == "" {
		c.Correction.NoiseModel = "vertical-iterative"
	}
	if c.Calibration.ReferenceDir == "" {
		c.Calibration.ReferenceDir = "."
	}
	if c.Ledger.Enabled && c.Ledger.Path == "" {
		c.Ledger.Path = "pixcte-ledger"
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 14
	}
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	switch c.Correction.NoiseModel {
	case "none", "vertical-iterative", "readnoise-threshold":
	default:
		return fmt.Errorf("config: unknown noise_model %q", c.Correction.NoiseModel)
	}
	if c.Correction.NoiseIterations < 0 {
		return fmt.Errorf("config: noise_iterations must not be negative")
	}
	if c.Correction.ReadNoise < 0 {
		return fmt.Errorf("config: read_noise must not be negative")
	}
	if c.Correction.NoiseModel == "readnoise-threshold" && c.Correction.ReadNoise == 0 {
		return fmt.Errorf("config: readnoise-threshold needs read_noise > 0")
	}
	return nil
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Noise model: %s", c.Correction.NoiseModel)
	if c.Correction.NoiseModel == "vertical-iterative" && c.Correction.NoiseIterations > 0 {
		fmt.Printf(" (%d iterations)", c.Correction.NoiseIterations)
	}
	if c.Correction.NoiseModel == "readnoise-threshold" {
		fmt.Printf(" (read noise %.3f e-)", c.Correction.ReadNoise)
	}
	fmt.Println()
	fmt.Printf("Calibration: %s\n", c.Calibration.ReferenceDir)
	if c.Kernel.Command != "" {
		fmt.Printf("Kernel: %s %s\n", c.Kernel.Command, strings.Join(c.Kernel.Args, " "))
	}
	if c.Ledger.Enabled {
		fmt.Printf("Ledger: %s\n", c.Ledger.Path)
	}
}
