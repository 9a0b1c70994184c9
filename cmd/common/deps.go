// Package common wires the shared dependencies the subcommands need:
// configuration, logger, database, crawl session, and the review store.
package common

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openrounds/pricecrawl/internal/config"
	"github.com/openrounds/pricecrawl/internal/crawl"
	"github.com/openrounds/pricecrawl/internal/database"
	"github.com/openrounds/pricecrawl/internal/logger"
	"github.com/openrounds/pricecrawl/internal/quarantine"
)

// RootFlags holds the persistent flags every subcommand inherits.
type RootFlags struct {
	ConfigFile string
	Debug      bool
}

// Build builds the shared dependencies from the root flags.
func (f *RootFlags) Build() (*Deps, error) {
	return Build(f.ConfigFile, f.Debug)
}

// Deps bundles the dependencies built once per command invocation.
type Deps struct {
	Config *config.Config
	Logger logger.Interface
}

// Build loads configuration and creates the logger. debug forces the debug
// log level regardless of configuration.
func Build(cfgPath string, debug bool) (*Deps, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}

	log, err := logger.New(logger.Config{
		Level:       level,
		Encoding:    cfg.Log.Format,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	return &Deps{Config: cfg, Logger: log}, nil
}

// OpenDatabase validates the database settings and connects.
func (d *Deps) OpenDatabase(ctx context.Context) (*sqlx.DB, error) {
	if err := d.Config.ValidateDatabase(); err != nil {
		return nil, err
	}

	return database.Connect(ctx, d.Config.DatabaseConnConfig())
}

// NewSession creates a crawl session from the crawl settings. Each command
// invocation gets a fresh session; its robots cache and rate-limiter state
// must not outlive a run. A positive delayFloor overrides the configured
// per-domain delay floor for this session.
func (d *Deps) NewSession(delayFloor time.Duration) (*crawl.Session, error) {
	if err := d.Config.Validate(); err != nil {
		return nil, err
	}

	if delayFloor <= 0 {
		delayFloor = d.Config.Crawl.DelayFloor
	}

	return crawl.NewSession(nil, crawl.Config{
		UserAgent:    d.Config.Crawl.UserAgent,
		DelayFloor:   delayFloor,
		FetchTimeout: d.Config.Crawl.FetchTimeout,
		MaxBodyBytes: d.Config.Crawl.MaxBodyBytes,
	}, d.Logger), nil
}

// NewQuarantineStore connects to the review store. Returns nil without error
// when the review store is disabled in configuration.
func (d *Deps) NewQuarantineStore() (*quarantine.Store, error) {
	if !d.Config.Elasticsearch.Enabled {
		return nil, nil
	}
	if err := d.Config.ValidateElasticsearch(); err != nil {
		return nil, err
	}

	client, err := quarantine.NewClient(quarantine.ClientConfig{
		Addresses:             d.Config.Elasticsearch.Addresses,
		Username:              d.Config.Elasticsearch.Username,
		Password:              d.Config.Elasticsearch.Password,
		APIKey:                d.Config.Elasticsearch.APIKey,
		TLSInsecureSkipVerify: d.Config.Elasticsearch.TLSInsecureSkipVerify,
	}, d.Logger)
	if err != nil {
		return nil, err
	}

	return quarantine.NewStore(client, d.Config.Elasticsearch.Index, d.Logger), nil
}
