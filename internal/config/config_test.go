package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err, "explicit missing path must fail")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pricecrawl", cfg.App.Name)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultUserAgent, cfg.Crawl.UserAgent)
	assert.Equal(t, DefaultDelayFloor, cfg.Crawl.DelayFloor)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.Crawl.MaxBodyBytes)
	assert.Equal(t, 3, cfg.Crawl.DisableAfterBlocks)
	assert.False(t, cfg.Elasticsearch.Enabled)
	assert.Equal(t, "quarantined-offers", cfg.Elasticsearch.Index)

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateDatabase())
	require.NoError(t, cfg.ValidateElasticsearch())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: production
log:
  level: debug
  format: json
database:
  host: db.internal
  dbname: prices
crawl:
  user_agent: "openrounds-bot/2.0"
  delay_floor: 5s
  fetch_timeout: 10s
elasticsearch:
  enabled: true
  addresses:
    - https://es.internal:9200
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "prices", cfg.Database.DBName)
	assert.Equal(t, "openrounds-bot/2.0", cfg.Crawl.UserAgent)
	assert.Equal(t, 5*time.Second, cfg.Crawl.DelayFloor)
	assert.Equal(t, 10*time.Second, cfg.Crawl.FetchTimeout)
	assert.True(t, cfg.Elasticsearch.Enabled)
	assert.Equal(t, []string{"https://es.internal:9200"}, cfg.Elasticsearch.Addresses)

	// File values do not wipe untouched defaults.
	assert.Equal(t, "5432", cfg.Database.Port)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PRICECRAWL_DATABASE_PASSWORD", "s3cret")
	t.Setenv("PRICECRAWL_ELASTICSEARCH_API_KEY", "es-key")
	t.Setenv("PRICECRAWL_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	// Overrides must land even for keys that have no configured value,
	// which is every credential key.
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "es-key", cfg.Elasticsearch.APIKey)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Crawl.UserAgent = ""
	assert.Error(t, cfg.Validate())

	cfg, err = Load("")
	require.NoError(t, err)
	cfg.Crawl.MaxBodyBytes = 0
	assert.Error(t, cfg.Validate())

	cfg, err = Load("")
	require.NoError(t, err)
	cfg.Database.DBName = ""
	assert.Error(t, cfg.ValidateDatabase())

	cfg, err = Load("")
	require.NoError(t, err)
	cfg.Elasticsearch.Enabled = true
	cfg.Elasticsearch.Addresses = nil
	assert.Error(t, cfg.ValidateElasticsearch())
}

func TestDatabaseConnConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Database.Password = "pw"

	conn := cfg.DatabaseConnConfig()
	assert.Equal(t, cfg.Database.Host, conn.Host)
	assert.Equal(t, cfg.Database.Port, conn.Port)
	assert.Equal(t, "pw", conn.Password)
	assert.Equal(t, cfg.Database.SSLMode, conn.SSLMode)
}
