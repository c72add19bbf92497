package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Output video settings
	Video VideoConfig `yaml:"video"`

	// Narration chunk planning settings
	Plan PlanConfig `yaml:"plan"`

	// Remote render provider settings
	Remote RemoteConfig `yaml:"remote"`
}

type FFmpegConfig struct {
	Threads int `yaml:"threads"`
}

type VideoConfig struct {
	Size             string  `yaml:"size"`
	FPS              int     `yaml:"fps"`
	PanelDurationSec float64 `yaml:"panel_duration_sec"`
	Transition       string  `yaml:"transition"`
	TransitionSec    float64 `yaml:"transition_sec"`
	KenBurns         string  `yaml:"kenburns"`
	ZoomTo           float64 `yaml:"zoom_to"`
	CRF              int     `yaml:"crf"`
	Preset           string  `yaml:"preset"`
	Strict           bool    `yaml:"strict"`
}

type PlanConfig struct {
	MaxClipSec     float64 `yaml:"max_clip_sec"`
	MinClipSec     float64 `yaml:"min_clip_sec"`
	WordsPerSecond float64 `yaml:"words_per_second"`
	AspectRatio    string  `yaml:"aspect_ratio"`
}

type RemoteConfig struct {
	BaseURL         string `yaml:"base_url"`
	Model           string `yaml:"model"`
	Resolution      string `yaml:"resolution"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	TimeoutSec      int    `yaml:"timeout_sec"`

	// APIKey is never read from the config file, only from the
	// environment (optionally seeded by a .env file).
	APIKey string `yaml:"-"`
}

// PollInterval returns the poll interval as a duration.
func (r RemoteConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSec) * time.Second
}

// Timeout returns the poll deadline as a duration.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env overlay for secrets; missing files are fine
	_ = godotenv.Load()
	cfg.Remote.APIKey = os.Getenv("PANELMOTION_API_KEY")
	if cfg.Remote.APIKey == "" {
		cfg.Remote.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects values no component could run with.
func (c *Config) Validate() error {
	if c.Video.FPS <= 0 {
		return fmt.Errorf("video.fps must be positive, got %d", c.Video.FPS)
	}
	if c.Video.PanelDurationSec <= 0 {
		return fmt.Errorf("video.panel_duration_sec must be positive, got %g", c.Video.PanelDurationSec)
	}
	if c.Video.ZoomTo <= 0 {
		return fmt.Errorf("video.zoom_to must be positive, got %g", c.Video.ZoomTo)
	}
	if c.Plan.MaxClipSec < c.Plan.MinClipSec {
		return fmt.Errorf("plan.max_clip_sec %g is below plan.min_clip_sec %g", c.Plan.MaxClipSec, c.Plan.MinClipSec)
	}
	if c.Plan.WordsPerSecond <= 0 {
		return fmt.Errorf("plan.words_per_second must be positive, got %g", c.Plan.WordsPerSecond)
	}
	if c.Remote.PollIntervalSec <= 0 {
		return fmt.Errorf("remote.poll_interval_sec must be positive, got %d", c.Remote.PollIntervalSec)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		FFmpeg: FFmpegConfig{
			Threads: 0,
		},
		Video: VideoConfig{
			Size:             "1080x1920",
			FPS:              30,
			PanelDurationSec: 4.0,
			Transition:       "fade",
			TransitionSec:    0.5,
			KenBurns:         "in",
			ZoomTo:           1.12,
			CRF:              21,
			Preset:           "medium",
		},
		Plan: PlanConfig{
			MaxClipSec:     8.0,
			MinClipSec:     3.0,
			WordsPerSecond: 2.6,
			AspectRatio:    "9:16",
		},
		Remote: RemoteConfig{
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Model:           "veo-3.0-generate-preview",
			Resolution:      "720p",
			PollIntervalSec: 20,
			TimeoutSec:      600,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./panelmotion.yaml",
		"./panelmotion.yml",
		filepath.Join(os.Getenv("HOME"), ".panelmotion", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
