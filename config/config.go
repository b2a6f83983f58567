package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for newslens
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text or json
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LLMConfig configures the OpenAI-compatible chat completion endpoint used for
// bias classification, summaries, insights and chat.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0,2]")
	}
	if l.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must be >= 0")
	}
	return nil
}

// SourcesConfig groups the three source adapters
type SourcesConfig struct {
	NewsAPI NewsAPIConfig `mapstructure:"newsapi"`
	Reddit  RedditConfig  `mapstructure:"reddit"`
	Bluesky BlueskyConfig `mapstructure:"bluesky"`
}

// NewsAPIConfig configures the news-search adapter. Keys are tried in order
// when the upstream reports a rate limit.
type NewsAPIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Keys     []string      `mapstructure:"keys"`
	Endpoint string        `mapstructure:"endpoint"`
	Language string        `mapstructure:"language"`
	SortBy   string        `mapstructure:"sort_by"`
	PageSize int           `mapstructure:"page_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedditConfig configures the Reddit adapter (OAuth client credentials)
type RedditConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	UserAgent         string        `mapstructure:"user_agent"`
	TokenURL          string        `mapstructure:"token_url"`
	APIBase           string        `mapstructure:"api_base"`
	Subreddit         string        `mapstructure:"subreddit"`
	Sort              string        `mapstructure:"sort"`
	Limit             int           `mapstructure:"limit"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// BlueskyConfig configures the Bluesky adapter (app password session)
type BlueskyConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Handle      string        `mapstructure:"handle"`
	AppPassword string        `mapstructure:"app_password"`
	Endpoint    string        `mapstructure:"endpoint"`
	Sort        string        `mapstructure:"sort"`
	Limit       int           `mapstructure:"limit"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (s SourcesConfig) Validate() error {
	if s.NewsAPI.Enabled && len(s.NewsAPI.Keys) == 0 {
		return fmt.Errorf("sources.newsapi.keys required when newsapi is enabled")
	}
	if s.Reddit.Enabled && (strings.TrimSpace(s.Reddit.ClientID) == "" || strings.TrimSpace(s.Reddit.ClientSecret) == "") {
		return fmt.Errorf("sources.reddit.client_id and client_secret required when reddit is enabled")
	}
	if s.Bluesky.Enabled && (strings.TrimSpace(s.Bluesky.Handle) == "" || strings.TrimSpace(s.Bluesky.AppPassword) == "") {
		return fmt.Errorf("sources.bluesky.handle and app_password required when bluesky is enabled")
	}
	if s.Bluesky.Limit > 100 {
		return fmt.Errorf("sources.bluesky.limit must be <= 100")
	}
	return nil
}

// EnrichmentConfig bounds the bias stage
type EnrichmentConfig struct {
	BiasConcurrency  int           `mapstructure:"bias_concurrency"`
	BiasTimeout      time.Duration `mapstructure:"bias_timeout"`
	MinContentLength int           `mapstructure:"min_content_length"`
	UnratedOnFailure bool          `mapstructure:"unrated_on_failure"`
}

func (e EnrichmentConfig) Validate() error {
	if e.BiasConcurrency < 1 {
		return fmt.Errorf("enrichment.bias_concurrency must be >= 1")
	}
	if e.BiasTimeout <= 0 {
		return fmt.Errorf("enrichment.bias_timeout must be > 0")
	}
	return nil
}

// AggregatorConfig holds the per-request limits
type AggregatorConfig struct {
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	// PersistTimeout bounds the cache writes, which run after the request
	// deadline so late enrichment never drops articles.
	PersistTimeout   time.Duration `mapstructure:"persist_timeout"`
	Limit            int           `mapstructure:"limit"`
	MaxNews          int           `mapstructure:"max_news"`
	MaxLeft          int           `mapstructure:"max_left"`
	MaxRight         int           `mapstructure:"max_right"`
	MaxContentLength int           `mapstructure:"max_content_length"`
}

func (a AggregatorConfig) Validate() error {
	if a.RequestTimeout <= 0 {
		return fmt.Errorf("aggregator.request_timeout must be > 0")
	}
	if a.PersistTimeout < 0 {
		return fmt.Errorf("aggregator.persist_timeout must be >= 0")
	}
	if a.Limit < 1 {
		return fmt.Errorf("aggregator.limit must be >= 1")
	}
	if a.MaxContentLength < 1 {
		return fmt.Errorf("aggregator.max_content_length must be >= 1")
	}
	return nil
}

// StorageConfig selects and configures the session cache backend
type StorageConfig struct {
	Backend       string         `mapstructure:"backend"` // postgres, sqlite, redis, memory
	Postgres      PostgresConfig `mapstructure:"postgres"`
	SQLite        SQLiteConfig   `mapstructure:"sqlite"`
	Redis         RedisConfig    `mapstructure:"redis"`
	RetentionDays int            `mapstructure:"retention_days"`
	JanitorCron   string         `mapstructure:"janitor_cron"`
}

func (s StorageConfig) Validate() error {
	switch s.Backend {
	case "postgres":
		return s.Postgres.Validate()
	case "redis":
		return s.Redis.Validate()
	case "sqlite":
		if strings.TrimSpace(s.SQLite.Path) == "" {
			return fmt.Errorf("storage.sqlite.path required")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend %q not supported", s.Backend)
	}
	if s.RetentionDays < 0 {
		return fmt.Errorf("storage.retention_days must be >= 0")
	}
	return nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the connection string, preferring URL when set.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, sslmode)
}

// SQLiteConfig points at the database file
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// TelemetryConfig toggles the prometheus endpoint
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "text")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("sources.newsapi.enabled", true)
	v.SetDefault("sources.newsapi.endpoint", "https://newsapi.org/v2/everything")
	v.SetDefault("sources.newsapi.language", "en")
	v.SetDefault("sources.newsapi.sort_by", "publishedAt")
	v.SetDefault("sources.newsapi.page_size", 100)
	v.SetDefault("sources.newsapi.timeout", 10*time.Second)

	v.SetDefault("sources.reddit.enabled", true)
	v.SetDefault("sources.reddit.token_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("sources.reddit.api_base", "https://oauth.reddit.com")
	v.SetDefault("sources.reddit.user_agent", "newslens/1.0")
	v.SetDefault("sources.reddit.subreddit", "all")
	v.SetDefault("sources.reddit.sort", "relevance")
	v.SetDefault("sources.reddit.limit", 20)
	v.SetDefault("sources.reddit.requests_per_minute", 60)
	v.SetDefault("sources.reddit.timeout", 10*time.Second)

	v.SetDefault("sources.bluesky.enabled", true)
	v.SetDefault("sources.bluesky.endpoint", "https://bsky.social/xrpc")
	v.SetDefault("sources.bluesky.sort", "top")
	v.SetDefault("sources.bluesky.limit", 20)
	v.SetDefault("sources.bluesky.timeout", 10*time.Second)

	v.SetDefault("fetcher.timeout", 15*time.Second)
	v.SetDefault("fetcher.max_chars", 3000)
	v.SetDefault("fetcher.extractor", "readability")
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.user_agent", "Mozilla/5.0 (compatible; newslens/1.0)")
	v.SetDefault("fetcher.per_domain_rps", 1.0)
	v.SetDefault("fetcher.max_concurrent", 4)
	v.SetDefault("fetcher.cache_ttl", time.Hour)
	v.SetDefault("fetcher.render_timeout", 30*time.Second)

	v.SetDefault("enrichment.bias_concurrency", 5)
	v.SetDefault("enrichment.bias_timeout", 20*time.Second)
	v.SetDefault("enrichment.min_content_length", 100)
	v.SetDefault("enrichment.unrated_on_failure", false)

	v.SetDefault("aggregator.request_timeout", 60*time.Second)
	v.SetDefault("aggregator.persist_timeout", 10*time.Second)
	v.SetDefault("aggregator.limit", 20)
	v.SetDefault("aggregator.max_news", 50)
	v.SetDefault("aggregator.max_left", 20)
	v.SetDefault("aggregator.max_right", 20)
	v.SetDefault("aggregator.max_content_length", 3000)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.sqlite.path", "newslens.db")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", 5*time.Second)
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.retention_days", 30)
	v.SetDefault("storage.janitor_cron", "0 3 * * *")

	v.SetDefault("telemetry.enabled", true)
}

// legacyEnv keeps the unprefixed variable names of older deployments working.
var legacyEnv = map[string]string{
	"llm.api_key":                   "OPENAI_API_KEY",
	"sources.reddit.client_id":      "REDDIT_CLIENT_ID",
	"sources.reddit.client_secret":  "REDDIT_CLIENT_SECRET",
	"sources.reddit.user_agent":     "REDDIT_USER_AGENT",
	"sources.bluesky.handle":        "BLUESKY_HANDLE",
	"sources.bluesky.app_password":  "BLUESKY_APP_PASSWORD",
	"storage.postgres.url":          "DATABASE_URL",
	"server.jwt_secret":             "JWT_SECRET",
}

// maxLegacyNewsKeys bounds the NEWS_API_KEY1..N scan.
const maxLegacyNewsKeys = 62

// LoadConfig reads config.json (or path when given), a .env file if present
// and NEWSLENS_* environment variables.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("NEWSLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "NEWSLENS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Sources.NewsAPI.Keys) == 0 {
		cfg.Sources.NewsAPI.Keys = legacyNewsKeys()
	}
	cfg.Sources.NewsAPI.Keys = compactKeys(cfg.Sources.NewsAPI.Keys)
	cfg.Fetcher = cfg.Fetcher.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs every section validator.
func (c *Config) Validate() error {
	validators := []func() error{
		c.LLM.Validate,
		c.Sources.Validate,
		c.Fetcher.Validate,
		c.Enrichment.Validate,
		c.Aggregator.Validate,
		c.Storage.Validate,
	}
	for _, fn := range validators {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func legacyNewsKeys() []string {
	var keys []string
	for i := 1; i <= maxLegacyNewsKeys; i++ {
		if k := os.Getenv(fmt.Sprintf("NEWS_API_KEY%d", i)); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func compactKeys(keys []string) []string {
	out := keys[:0]
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
