// Package config provides configuration loading and validation for the
// mention pipeline. It handles YAML config files, environment variable
// overrides, and mode-dependent timing defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects the timing profile for polling and completion waits.
type Mode string

const (
	// ModeDevelopment polls fast and bounds completion waits tightly.
	ModeDevelopment Mode = "development"
	// ModeProduction polls slowly and allows multi-hour dubbing waits.
	ModeProduction Mode = "production"
)

// ReplyTransport selects how final replies are posted.
type ReplyTransport string

const (
	// ReplyTransportAgent posts through the interactive browser session.
	ReplyTransportAgent ReplyTransport = "agent"
	// ReplyTransportAPI posts through the platform HTTP API.
	ReplyTransportAPI ReplyTransport = "api"
)

// ScraperConfig configures the interactive content-acquisition agent.
type ScraperConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// SpeechLabConfig configures the dubbing/transcription backend client.
type SpeechLabConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// StorageConfig configures public object storage for dubbed artifacts.
type StorageConfig struct {
	BaseURL   string `yaml:"base_url"`
	Bucket    string `yaml:"bucket"`
	PublicURL string `yaml:"public_url"`
}

// SummarizerConfig configures the summary LLM provider.
type SummarizerConfig struct {
	Provider string `yaml:"provider"` // "anthropic" or "openai"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// Timing holds the mode-derived intervals and bounds. Any field set
// explicitly in the config file overrides the mode default.
type Timing struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	SchedulerTick     time.Duration `yaml:"scheduler_tick"`
	CompletionCheck   time.Duration `yaml:"completion_check"`
	DubbingWait       time.Duration `yaml:"dubbing_wait"`
	TranscriptionWait time.Duration `yaml:"transcription_wait"`
}

// Config is the fully resolved runtime configuration.
type Config struct {
	Mode            Mode             `yaml:"mode"`
	StateFile       string           `yaml:"state_file"`
	ErrorLedgerFile string           `yaml:"error_ledger_file"`
	ArchiveDB       string           `yaml:"archive_db"`
	MetricsAddr     string           `yaml:"metrics_addr"`
	SkipBacklog     bool             `yaml:"skip_backlog"`
	ReplyTransport  ReplyTransport   `yaml:"reply_transport"`
	SourceLang      string           `yaml:"source_lang"`
	TargetLang      string           `yaml:"target_lang"`
	Scraper         ScraperConfig    `yaml:"scraper"`
	SpeechLab       SpeechLabConfig  `yaml:"speechlab"`
	Storage         StorageConfig    `yaml:"storage"`
	Summarizer      SummarizerConfig `yaml:"summarizer"`
	Timing          Timing           `yaml:"timing"`
}

// Load reads the YAML file at path, applies environment overrides and mode
// defaults, and validates the result. An empty path yields a config built
// from env and defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MODE"); v != "" {
		c.Mode = Mode(strings.ToLower(v))
	}
	if v := os.Getenv("SPEECHLAB_API_KEY"); v != "" {
		c.SpeechLab.APIKey = v
	}
	if v := os.Getenv("SCRAPER_API_KEY"); v != "" {
		c.Scraper.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.Summarizer.Provider != "openai" {
		c.Summarizer.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Summarizer.Provider == "openai" {
		c.Summarizer.APIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDevelopment
	}
	if c.StateFile == "" {
		c.StateFile = "data/processed_mentions.json"
	}
	if c.ErrorLedgerFile == "" {
		c.ErrorLedgerFile = "data/mention_errors.json"
	}
	if c.ReplyTransport == "" {
		c.ReplyTransport = ReplyTransportAgent
	}
	if c.SourceLang == "" {
		c.SourceLang = "en"
	}
	if c.TargetLang == "" {
		c.TargetLang = "en"
	}
	if c.Summarizer.Provider == "" {
		c.Summarizer.Provider = "anthropic"
	}

	defaults := productionTiming
	if c.Mode == ModeDevelopment {
		defaults = developmentTiming
	}
	if c.Timing.PollInterval == 0 {
		c.Timing.PollInterval = defaults.PollInterval
	}
	if c.Timing.SchedulerTick == 0 {
		c.Timing.SchedulerTick = defaults.SchedulerTick
	}
	if c.Timing.CompletionCheck == 0 {
		c.Timing.CompletionCheck = defaults.CompletionCheck
	}
	if c.Timing.DubbingWait == 0 {
		c.Timing.DubbingWait = defaults.DubbingWait
	}
	if c.Timing.TranscriptionWait == 0 {
		c.Timing.TranscriptionWait = defaults.TranscriptionWait
	}
}

var developmentTiming = Timing{
	PollInterval:      30 * time.Second,
	SchedulerTick:     2 * time.Second,
	CompletionCheck:   10 * time.Second,
	DubbingWait:       5 * time.Minute,
	TranscriptionWait: 5 * time.Minute,
}

var productionTiming = Timing{
	PollInterval:      5 * time.Minute,
	SchedulerTick:     5 * time.Second,
	CompletionCheck:   time.Minute,
	DubbingWait:       4 * time.Hour,
	TranscriptionWait: 30 * time.Minute,
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		return fmt.Errorf("invalid mode %q (want development or production)", c.Mode)
	}

	switch c.ReplyTransport {
	case ReplyTransportAgent, ReplyTransportAPI:
	default:
		return fmt.Errorf("invalid reply transport %q (want agent or api)", c.ReplyTransport)
	}

	switch c.Summarizer.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("invalid summarizer provider %q (want anthropic or openai)", c.Summarizer.Provider)
	}

	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url is required")
	}
	if c.SpeechLab.BaseURL == "" {
		return fmt.Errorf("speechlab.base_url is required")
	}
	// Storage is optional as a whole (dubbed replies degrade to share
	// links), but a partial block is a misconfiguration.
	if c.Storage != (StorageConfig{}) {
		if c.Storage.BaseURL == "" || c.Storage.Bucket == "" || c.Storage.PublicURL == "" {
			return fmt.Errorf("storage requires base_url, bucket, and public_url together")
		}
	}

	if c.Timing.PollInterval <= 0 || c.Timing.SchedulerTick <= 0 {
		return fmt.Errorf("poll interval and scheduler tick must be positive")
	}
	if c.Timing.DubbingWait <= 0 || c.Timing.TranscriptionWait <= 0 {
		return fmt.Errorf("completion wait bounds must be positive")
	}
	return nil
}

// IsDevelopment reports whether the dev timing profile is active.
func (c *Config) IsDevelopment() bool {
	return c.Mode == ModeDevelopment
}
