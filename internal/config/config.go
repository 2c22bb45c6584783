package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"masterd/internal/models"
)

// Config holds the fully processed application configuration.
type Config struct {
	Listen     string
	LogLevel   string
	LibraryDir string

	// Encoding
	ChunkDuration time.Duration
	BitrateKbps   int
	SampleRate    int
	Channels      int

	// Cache
	HotTierBytes  int
	WarmTierBytes int
	// WarmDiskDir, when set, backs the warm tier with payload files on disk
	// plus a sqlite index. Empty means memory-resident warm tier.
	WarmDiskDir string

	// Streaming
	Workers        int
	WindowSize     int
	RequestTimeout time.Duration
	DefaultPreset  models.Philosophy
}

// rawConfig maps directly onto the JSON file. Durations are plain seconds so
// the file stays editable by hand.
type rawConfig struct {
	Listen                string `json:"Listen"`
	LogLevel              string `json:"LogLevel"`
	LibraryDir            string `json:"LibraryDir"`
	ChunkSeconds          int    `json:"ChunkSeconds"`
	BitrateKbps           int    `json:"BitrateKbps"`
	SampleRate            int    `json:"SampleRate"`
	Channels              int    `json:"Channels"`
	HotTierBytes          int    `json:"HotTierBytes"`
	WarmTierBytes         int    `json:"WarmTierBytes"`
	WarmDiskDir           string `json:"WarmDiskDir"`
	Workers               int    `json:"Workers"`
	WindowSize            int    `json:"WindowSize"`
	RequestTimeoutSeconds int    `json:"RequestTimeoutSeconds"`
	DefaultPreset         string `json:"DefaultPreset"`
}

// Load reads and parses the configuration file from the given path, applying
// defaults for anything left unset and validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config JSON: %w", err)
	}

	cfg := &Config{
		Listen:         valueOr(raw.Listen, ":8080"),
		LogLevel:       valueOr(raw.LogLevel, "info"),
		LibraryDir:     valueOr(raw.LibraryDir, "library"),
		ChunkDuration:  time.Duration(intOr(raw.ChunkSeconds, 15)) * time.Second,
		BitrateKbps:    intOr(raw.BitrateKbps, 128),
		SampleRate:     intOr(raw.SampleRate, 48000),
		Channels:       intOr(raw.Channels, 2),
		HotTierBytes:   intOr(raw.HotTierBytes, 8<<20),
		WarmTierBytes:  intOr(raw.WarmTierBytes, 256<<20),
		WarmDiskDir:    raw.WarmDiskDir,
		Workers:        intOr(raw.Workers, 4),
		WindowSize:     intOr(raw.WindowSize, 6),
		RequestTimeout: time.Duration(intOr(raw.RequestTimeoutSeconds, 30)) * time.Second,
		DefaultPreset:  models.Philosophy(valueOr(raw.DefaultPreset, string(models.PhilosophyNeutral))),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DefaultPreset {
	case models.PhilosophyEnhance, models.PhilosophyPreserve, models.PhilosophyNeutral:
	default:
		return fmt.Errorf("unknown default preset %q", c.DefaultPreset)
	}
	// Opus only supports a fixed set of rates; the pipeline resamples
	// everything to the configured rate up front.
	switch c.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("sample rate %d is not supported by the chunk codec", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channel count %d is not supported, want 1 or 2", c.Channels)
	}
	if c.HotTierBytes <= 0 || c.WarmTierBytes <= 0 {
		return fmt.Errorf("cache tier budgets must be positive")
	}
	if c.HotTierBytes > c.WarmTierBytes {
		return fmt.Errorf("hot tier budget (%d) exceeds warm tier budget (%d)", c.HotTierBytes, c.WarmTierBytes)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("priority window size must be positive")
	}
	return nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
