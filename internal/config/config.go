// Package config loads application configuration from a YAML file and
// environment variables. Environment variables use the PRICECRAWL_ prefix
// and override file values; a .env file is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/openrounds/pricecrawl/internal/database"
)

// Crawl defaults.
const (
	DefaultUserAgent    = "pricecrawl/1.0 (+https://openrounds.example/bot)"
	DefaultDelayFloor   = 2 * time.Second
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxBodyBytes = 5 * 1024 * 1024

	defaultConfigFile = "config.yml"
)

// AppConfig identifies the running instance.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
}

// ElasticsearchConfig configures the quarantine review store.
type ElasticsearchConfig struct {
	Enabled               bool     `mapstructure:"enabled"`
	Addresses             []string `mapstructure:"addresses"`
	Username              string   `mapstructure:"username"`
	Password              string   `mapstructure:"password"`
	APIKey                string   `mapstructure:"api_key"`
	Index                 string   `mapstructure:"index"`
	TLSInsecureSkipVerify bool     `mapstructure:"tls_insecure_skip_verify"`
}

// CrawlConfig configures the gated fetch path.
type CrawlConfig struct {
	UserAgent string `mapstructure:"user_agent"`
	// DelayFloor is the minimum per-domain delay; robots crawl-delay can
	// raise the effective delay but never lower it below this.
	DelayFloor   time.Duration `mapstructure:"delay_floor"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	// DisableAfterBlocks disables a target after this many consecutive
	// robots-blocked runs.
	DisableAfterBlocks int `mapstructure:"disable_after_blocks"`
}

// SchedulerConfig configures the periodic smoke-run and recompute jobs.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SmokeCron is the cron expression for per-source smoke runs.
	SmokeCron string `mapstructure:"smoke_cron"`
	// SmokeLimit is how many targets each smoke run samples.
	SmokeLimit int `mapstructure:"smoke_limit"`
	// RecomputeCron is the cron expression for the visibility recompute.
	RecomputeCron string `mapstructure:"recompute_cron"`
}

// DatabaseConfig configures Postgres. The field set mirrors
// database.Config; mapstructure tags are added here so viper can fill it.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Config is the full application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Crawl         CrawlConfig         `mapstructure:"crawl"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
}

// Load reads configuration from path, falling back to config.yml in the
// working directory. A missing file is not an error; defaults and
// environment variables still apply.
func Load(path string) (*Config, error) {
	// Best effort; absence of a .env file is the normal production case.
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigFile(defaultConfigFile)
	}

	v.SetEnvPrefix("PRICECRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// An explicit path must exist; the default file is optional.
		if path != "" || !isNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricecrawl")
	v.SetDefault("app.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "pricecrawl")
	// Credential keys need an empty default so AutomaticEnv picks up their
	// env overrides during Unmarshal; viper only surfaces known keys.
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "pricecrawl")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("elasticsearch.enabled", false)
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.api_key", "")
	v.SetDefault("elasticsearch.index", "quarantined-offers")

	v.SetDefault("crawl.user_agent", DefaultUserAgent)
	v.SetDefault("crawl.delay_floor", DefaultDelayFloor)
	v.SetDefault("crawl.fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("crawl.max_body_bytes", DefaultMaxBodyBytes)
	v.SetDefault("crawl.disable_after_blocks", 3)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.smoke_cron", "0 */6 * * *")
	v.SetDefault("scheduler.smoke_limit", 5)
	v.SetDefault("scheduler.recompute_cron", "30 2 * * *")
}

// isNotExist reports whether err is a plain file-not-found from an explicit
// config path. viper wraps those differently from its search-path miss.
func isNotExist(err error) bool {
	return strings.Contains(err.Error(), "no such file")
}

// Validate checks the sections every command needs.
func (c *Config) Validate() error {
	if c.Crawl.UserAgent == "" {
		return errors.New("config: crawl.user_agent is required")
	}
	if c.Crawl.DelayFloor < 0 {
		return errors.New("config: crawl.delay_floor must not be negative")
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return errors.New("config: crawl.max_body_bytes must be positive")
	}

	return nil
}

// ValidateDatabase checks the sections database-backed commands need.
func (c *Config) ValidateDatabase() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Database.Host == "" || c.Database.Port == "" {
		return errors.New("config: database.host and database.port are required")
	}
	if c.Database.DBName == "" {
		return errors.New("config: database.dbname is required")
	}

	return nil
}

// ValidateElasticsearch checks the review-store settings.
func (c *Config) ValidateElasticsearch() error {
	if !c.Elasticsearch.Enabled {
		return nil
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return errors.New("config: elasticsearch.addresses is required when enabled")
	}

	return nil
}

// DatabaseConnConfig converts to the database package's connection config.
func (c *Config) DatabaseConnConfig() database.Config {
	return database.Config{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		DBName:   c.Database.DBName,
		SSLMode:  c.Database.SSLMode,
	}
}
