// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Workers  int     `yaml:"workers"` // polling update workers
	AdminIDs []int64 `yaml:"admin_ids"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	// URL is optional; when empty, entries are stored as markdown only.
	URL string `yaml:"url"`
}

type DownloaderConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Formats      []string      `yaml:"formats"` // closed fallback list, tried in order
	PollInterval time.Duration `yaml:"poll_interval"`
}

type AIConfig struct {
	GeminiKey      string `yaml:"gemini_key"`
	GeminiModel    string `yaml:"gemini_model"`
	OpenRouterKey  string `yaml:"openrouter_key"`
	OpenRouterBase string `yaml:"openrouter_base"`
	AuthorModel    string `yaml:"author_model"`
	ImageModel     string `yaml:"image_model"`
	MaxTokens      int    `yaml:"max_tokens"`
	TargetWords    int    `yaml:"target_words"`
}

type ImagesConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxPerEntry int  `yaml:"max_per_entry"`
}

type StorageConfig struct {
	KnowledgeBasePath string `yaml:"knowledge_base_path"`
}

type LimitsConfig struct {
	RatePerHour   int           `yaml:"rate_per_hour"`
	RateWindow    time.Duration `yaml:"rate_window"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	PipelineSlots int           `yaml:"pipeline_slots"` // worker pool size
}

type TimeoutConfig struct {
	Download time.Duration `yaml:"download"`
	Analyze  time.Duration `yaml:"analyze"`
	Author   time.Duration `yaml:"author"`
	Image    time.Duration `yaml:"image"`
	Persist  time.Duration `yaml:"persist"`
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	APIToken  string `yaml:"api_token"`
	JWTSecret string `yaml:"jwt_secret"`
}

type Config struct {
	Bot        BotConfig        `yaml:"bot"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Downloader DownloaderConfig `yaml:"downloader"`
	AI         AIConfig         `yaml:"ai"`
	Images     ImagesConfig     `yaml:"images"`
	Storage    StorageConfig    `yaml:"storage"`
	Limits     LimitsConfig     `yaml:"limits"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
	Admin      AdminConfig      `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if len(cfg.Downloader.Formats) == 0 {
		cfg.Downloader.Formats = []string{"best[height<=720]", "best", "worst"}
	}
	if cfg.Downloader.PollInterval <= 0 {
		cfg.Downloader.PollInterval = 2 * time.Second
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-1.5-flash"
	}
	if cfg.AI.OpenRouterBase == "" {
		cfg.AI.OpenRouterBase = "https://openrouter.ai/api/v1"
	}
	if cfg.AI.AuthorModel == "" {
		cfg.AI.AuthorModel = "anthropic/claude-3.5-sonnet"
	}
	if cfg.AI.ImageModel == "" {
		cfg.AI.ImageModel = "google/gemini-2.5-flash-image-preview"
	}
	if cfg.AI.MaxTokens <= 0 {
		cfg.AI.MaxTokens = 20000
	}
	if cfg.AI.TargetWords <= 0 {
		cfg.AI.TargetWords = 3000
	}
	if cfg.Images.MaxPerEntry <= 0 {
		cfg.Images.MaxPerEntry = 3
	}
	if cfg.Storage.KnowledgeBasePath == "" {
		cfg.Storage.KnowledgeBasePath = "./knowledge_base"
	}
	if cfg.Limits.RatePerHour <= 0 {
		cfg.Limits.RatePerHour = 10
	}
	if cfg.Limits.RateWindow <= 0 {
		cfg.Limits.RateWindow = time.Hour
	}
	if cfg.Limits.SessionTTL <= 0 {
		cfg.Limits.SessionTTL = 30 * time.Minute
	}
	if cfg.Limits.SweepInterval <= 0 {
		cfg.Limits.SweepInterval = 5 * time.Minute
	}
	if cfg.Limits.PipelineSlots <= 0 {
		cfg.Limits.PipelineSlots = 8
	}
	cfg.Timeouts.Download = normalizeTimeout(cfg.Timeouts.Download, 5*time.Minute)
	cfg.Timeouts.Analyze = normalizeTimeout(cfg.Timeouts.Analyze, 3*time.Minute)
	cfg.Timeouts.Author = normalizeTimeout(cfg.Timeouts.Author, 2*time.Minute)
	cfg.Timeouts.Image = normalizeTimeout(cfg.Timeouts.Image, 2*time.Minute)
	cfg.Timeouts.Persist = normalizeTimeout(cfg.Timeouts.Persist, 30*time.Second)

	// Minimal validation
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Downloader.BaseURL == "" {
		return nil, errors.New("downloader.base_url is required")
	}
	if cfg.AI.GeminiKey == "" {
		return nil, errors.New("ai.gemini_key is required")
	}
	if cfg.AI.OpenRouterKey == "" {
		return nil, errors.New("ai.openrouter_key is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTimeout(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
