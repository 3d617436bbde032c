package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AIConfig struct {
	Provider    string        `yaml:"provider"` // gemini | openai
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"` // openai-compatible endpoints only
	Timeout     time.Duration `yaml:"timeout"`  // per generation call
	MaxAttempts int           `yaml:"max_attempts"`
	RPS         float64       `yaml:"rps"`
	Burst       int           `yaml:"burst"`
}

type GitHubConfig struct {
	Token        string `yaml:"token"`
	APIURL       string `yaml:"api_url"`
	MaxFileBytes int64  `yaml:"max_file_bytes"`
	Concurrency  int    `yaml:"concurrency"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

type PipelineConfig struct {
	MaxTreePaths   int      `yaml:"max_tree_paths"`
	MaxSignalPaths int      `yaml:"max_signal_paths"`
	EvidenceFiles  int      `yaml:"evidence_files"`
	Concurrency    int      `yaml:"concurrency"`
	Exclude        []string `yaml:"exclude"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type CacheConfig struct {
	Driver        string        `yaml:"driver"` // sqlite | postgres | s3 | none
	SQLitePath    string        `yaml:"sqlite_path"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	S3            S3Config      `yaml:"s3"`
	MemoryEntries int           `yaml:"memory_entries"`
	MemoryTTL     time.Duration `yaml:"memory_ttl"`
}

type Config struct {
	AI       AIConfig       `yaml:"ai"`
	GitHub   GitHubConfig   `yaml:"github"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`
	Output   struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`
	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.AI.Provider = "gemini"
	cfg.AI.Timeout = 120 * time.Second
	cfg.AI.MaxAttempts = 3
	cfg.GitHub.APIURL = "https://api.github.com"
	cfg.GitHub.MaxFileBytes = 200 * 1024
	cfg.GitHub.Concurrency = 8
	cfg.GitHub.MaxAttempts = 4
	cfg.Pipeline.MaxTreePaths = 1500
	cfg.Pipeline.MaxSignalPaths = 40
	cfg.Pipeline.EvidenceFiles = 8
	cfg.Pipeline.Concurrency = 4
	cfg.Cache.Driver = "sqlite"
	cfg.Cache.SQLitePath = "repowiki.db"
	cfg.Cache.S3.Prefix = "analyses"
	cfg.Cache.MemoryEntries = 128
	cfg.Cache.MemoryTTL = 30 * time.Minute
	cfg.Output.Dir = "docs"
	cfg.Log.Level = "info"
	return cfg
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config over defaults; a missing file keeps defaults
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	// 3. Override with Environment Variables if present
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setInt := func(dst *int, key string) {
		if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
			*dst = v
		}
	}

	setString(&cfg.AI.Provider, "REPOWIKI_AI_PROVIDER")
	setString(&cfg.AI.Model, "REPOWIKI_AI_MODEL")
	setString(&cfg.AI.BaseURL, "REPOWIKI_AI_BASE_URL")
	switch strings.ToLower(cfg.AI.Provider) {
	case "openai":
		setString(&cfg.AI.APIKey, "REPOWIKI_API_KEY", "OPENAI_API_KEY")
	default:
		setString(&cfg.AI.APIKey, "REPOWIKI_API_KEY", "GEMINI_API_KEY")
	}
	setString(&cfg.GitHub.Token, "REPOWIKI_GITHUB_TOKEN", "GITHUB_TOKEN")
	setString(&cfg.GitHub.APIURL, "REPOWIKI_GITHUB_API_URL")
	setInt(&cfg.Pipeline.Concurrency, "REPOWIKI_CONCURRENCY")
	setString(&cfg.Cache.Driver, "REPOWIKI_CACHE_DRIVER")
	setString(&cfg.Cache.SQLitePath, "REPOWIKI_SQLITE_PATH")
	setString(&cfg.Cache.PostgresDSN, "REPOWIKI_POSTGRES_DSN")
	setString(&cfg.Cache.S3.Endpoint, "REPOWIKI_S3_ENDPOINT")
	setString(&cfg.Cache.S3.Bucket, "REPOWIKI_S3_BUCKET")
	setString(&cfg.Cache.S3.AccessKey, "REPOWIKI_S3_ACCESS_KEY")
	setString(&cfg.Cache.S3.SecretKey, "REPOWIKI_S3_SECRET_KEY")
	setString(&cfg.Output.Dir, "REPOWIKI_OUTPUT_DIR")
	setString(&cfg.Log.Level, "REPOWIKI_LOG_LEVEL")
}

// Validate rejects unknown providers and drivers and settings a driver cannot run without.
func (c *Config) Validate() error {
	switch strings.ToLower(c.AI.Provider) {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported ai.provider %q (want gemini or openai)", c.AI.Provider)
	}
	switch strings.ToLower(c.Cache.Driver) {
	case "sqlite":
		if strings.TrimSpace(c.Cache.SQLitePath) == "" {
			return fmt.Errorf("cache.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.Cache.PostgresDSN) == "" {
			return fmt.Errorf("cache.postgres_dsn is required for the postgres driver")
		}
	case "s3":
		if strings.TrimSpace(c.Cache.S3.Endpoint) == "" || strings.TrimSpace(c.Cache.S3.Bucket) == "" {
			return fmt.Errorf("cache.s3.endpoint and cache.s3.bucket are required for the s3 driver")
		}
	case "none", "":
	default:
		return fmt.Errorf("unsupported cache.driver %q", c.Cache.Driver)
	}
	if c.Pipeline.Concurrency < 0 || c.GitHub.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	return nil
}

// LogLevel maps log.level onto slog.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
