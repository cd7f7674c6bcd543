// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	GitHub   GitHubConfig
	Gemini   GeminiConfig
	Groq     GroqConfig
	LLM      LLMConfig
	Artifact ArtifactConfig
	Archive  ArchiveConfig

	DatabaseURL  string
	NATS         NATSConfig
	Workers      int
	Sweeper      SweeperConfig
	Cache        CacheConfig
	OTLPEndpoint string
}

// RateLimitHeaders names the response headers carrying remaining quota.
type RateLimitHeaders struct {
	Remaining string
	Reset     string
}

type GitHubConfig struct {
	Token           string
	APIBaseURL      string
	RawBaseURL      string
	TreeTimeout     time.Duration
	FileTimeout     time.Duration
	MetadataTimeout time.Duration
	RateLimit       RateLimitHeaders
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type GroqConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// LLMConfig is shared by the remote classifier tiers.
type LLMConfig struct {
	RPS      float64
	Burst    int
	Cooldown time.Duration
}

type ArtifactConfig struct {
	GistToken     string
	GistAPIURL    string
	GistPublic    bool
	BinderBaseURL string
	ColabBaseURL  string
	PythonVersion string
}

// ArchiveConfig is the optional S3/minio mirror of published bundles.
type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type NATSConfig struct {
	URL     string
	Stream  string
	Subject string
	Durable string
}

type SweeperConfig struct {
	RetryInterval time.Duration
	StaleAfter    time.Duration
	SyncInterval  time.Duration
	BatchSize     int
}

type CacheConfig struct {
	ProjectSize int
	RepoSize    int
	SnapshotTTL time.Duration
	MetadataTTL time.Duration
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() (*Config, error) {
	r := &reader{}
	env := envString("APP_ENV", "local")

	port := envString("PORT", ":8081")
	if !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
		port = ":" + port
	}

	cfg := &Config{
		Port:     port,
		Env:      env,
		LogLevel: envString("LOG_LEVEL", "info"),
		GitHub: GitHubConfig{
			Token:           envString("GITHUB_TOKEN", ""),
			APIBaseURL:      envString("GITHUB_API_URL", "https://api.github.com"),
			RawBaseURL:      envString("GITHUB_RAW_URL", "https://raw.githubusercontent.com"),
			TreeTimeout:     r.duration("GITHUB_TREE_TIMEOUT", 10*time.Second),
			FileTimeout:     r.duration("GITHUB_FILE_TIMEOUT", 5*time.Second),
			MetadataTimeout: r.duration("GITHUB_METADATA_TIMEOUT", 10*time.Second),
			RateLimit: RateLimitHeaders{
				Remaining: envString("GITHUB_RATELIMIT_REMAINING_HEADER", "X-RateLimit-Remaining"),
				Reset:     envString("GITHUB_RATELIMIT_RESET_HEADER", "X-RateLimit-Reset"),
			},
		},
		Gemini: GeminiConfig{
			APIKey:      envString("GEMINI_API_KEY", ""),
			Model:       envString("GEMINI_MODEL", "gemini-2.5-flash"),
			Temperature: r.float("GEMINI_TEMPERATURE", 0.1),
			MaxTokens:   r.integer("GEMINI_MAX_TOKENS", 256),
			Timeout:     r.duration("GEMINI_TIMEOUT", 30*time.Second),
		},
		Groq: GroqConfig{
			APIKey:      envString("GROQ_API_KEY", ""),
			Model:       envString("GROQ_MODEL", "llama-3.3-70b-versatile"),
			BaseURL:     envString("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			Temperature: r.float("GROQ_TEMPERATURE", 0.1),
			MaxTokens:   r.integer("GROQ_MAX_TOKENS", 256),
			Timeout:     r.duration("GROQ_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			RPS:      r.float("LLM_RPS", 1),
			Burst:    r.integer("LLM_BURST", 2),
			Cooldown: r.duration("LLM_COOLDOWN", time.Minute),
		},
		Artifact: ArtifactConfig{
			GistToken:     envString("GIST_TOKEN", ""),
			GistAPIURL:    envString("GIST_API_URL", "https://api.github.com"),
			GistPublic:    r.boolean("GIST_PUBLIC", true),
			BinderBaseURL: envString("BINDER_BASE_URL", "https://mybinder.org"),
			ColabBaseURL:  envString("COLAB_BASE_URL", "https://colab.research.google.com"),
			PythonVersion: envString("BINDER_PYTHON_VERSION", "3.10"),
		},
		Archive:     loadArchiveConfig(env, r),
		DatabaseURL: envString("DATABASE_URL", ""),
		NATS: NATSConfig{
			URL:     envString("NATS_URL", ""),
			Stream:  envString("NATS_STREAM", "KIRI"),
			Subject: envString("NATS_SUBJECT", "kiri.classify"),
			Durable: envString("NATS_DURABLE", "kiri-classifier"),
		},
		Workers: r.integer("WORKERS", 4),
		Sweeper: SweeperConfig{
			RetryInterval: r.duration("SWEEP_RETRY_INTERVAL", 5*time.Minute),
			StaleAfter:    r.duration("SWEEP_STALE_AFTER", 10*time.Minute),
			SyncInterval:  r.duration("SWEEP_SYNC_INTERVAL", 6*time.Hour),
			BatchSize:     r.integer("SWEEP_BATCH_SIZE", 50),
		},
		Cache: CacheConfig{
			ProjectSize: r.integer("CACHE_PROJECT_SIZE", 1024),
			RepoSize:    r.integer("CACHE_REPO_SIZE", 256),
			SnapshotTTL: r.duration("CACHE_SNAPSHOT_TTL", 10*time.Minute),
			MetadataTTL: r.duration("CACHE_METADATA_TTL", time.Hour),
		},
		OTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadArchiveConfig(env string, r *reader) ArchiveConfig {
	local := strings.EqualFold(env, "local")
	endpoint := envString("ARTIFACT_S3_ENDPOINT", "")
	if local {
		endpoint = envString("ARTIFACT_MINIO_ENDPOINT", endpoint)
	}
	useSSL := !local
	if !local {
		useSSL = r.boolean("ARTIFACT_S3_USE_SSL", true)
	}
	return ArchiveConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    envString("ARTIFACT_S3_REGION", "us-east-1"),
		AccessKey: firstNonEmpty(envString("ARTIFACT_S3_ACCESS_KEY", ""), envString("MINIO_ROOT_USER", "")),
		SecretKey: firstNonEmpty(envString("ARTIFACT_S3_SECRET_KEY", ""), envString("MINIO_ROOT_PASSWORD", "")),
		Bucket:    envString("ARTIFACT_S3_BUCKET", "kiri-artifacts"),
		UseSSL:    useSSL,
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers))
	}
	if c.LLM.RPS < 0 {
		errs = append(errs, fmt.Errorf("LLM_RPS must be >= 0, got %v", c.LLM.RPS))
	}
	if c.GitHub.RateLimit.Remaining == "" {
		errs = append(errs, errors.New("GITHUB_RATELIMIT_REMAINING_HEADER must not be empty"))
	}
	if c.Gemini.MaxTokens <= 0 || c.Groq.MaxTokens <= 0 {
		errs = append(errs, errors.New("max tokens must be positive"))
	}
	if c.Archive.Enabled && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		errs = append(errs, errors.New("archive endpoint set without S3 credentials"))
	}
	if c.Sweeper.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("SWEEP_BATCH_SIZE must be >= 1, got %d", c.Sweeper.BatchSize))
	}
	return errors.Join(errs...)
}
