package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	StatsAPI StatsAPIConfig `yaml:"stats_api" envconfig:"STATS_API"`
	Augment  AugmentConfig  `yaml:"augment" envconfig:"AUGMENT"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" default:"8388608"`
}

// StatsAPIConfig locates the statistical computation collaborator.
type StatsAPIConfig struct {
	BaseURL string        `yaml:"base_url" envconfig:"BASE_URL" default:"http://localhost:8000"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
	RPS     float64       `yaml:"rps" envconfig:"RPS" default:"0"`
	Burst   int           `yaml:"burst" envconfig:"BURST" default:"10"`
}

// AugmentConfig tunes the feature fan-out.
type AugmentConfig struct {
	// Concurrency caps simultaneous feature requests; 0 means unbounded.
	Concurrency  int           `yaml:"concurrency" envconfig:"CONCURRENCY" default:"0"`
	BatchTimeout time.Duration `yaml:"batch_timeout" envconfig:"BATCH_TIMEOUT" default:"2m"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/matchstage.log"`
}

// Load loads configuration from the optional YAML config file and the
// environment. Environment variables (and their defaults) take precedence
// over file values.
func Load() (*Config, error) {
	cfg, err := loadFile(configFilePath())
	if err != nil {
		return nil, err
	}

	if err := envconfig.Process("MATCHSTAGE", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func configFilePath() string {
	if p := os.Getenv("MATCHSTAGE_CONFIG"); p != "" {
		return p
	}
	return "matchstage.yaml"
}

// loadFile reads the YAML file into a Config; a missing file is not an
// error, env defaults apply.
func loadFile(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.StatsAPI.BaseURL == "" {
		return fmt.Errorf("stats API base URL is required")
	}
	if c.Augment.Concurrency < 0 {
		return fmt.Errorf("augment concurrency must be >= 0")
	}
	return nil
}
