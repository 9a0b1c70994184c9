// Package quarantine stores offers flagged during normalization in an
// Elasticsearch index for human review.
package quarantine

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/openrounds/pricecrawl/internal/logger"
)

// ClientConfig holds the Elasticsearch connection settings for the review
// store.
type ClientConfig struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	// TLSInsecureSkipVerify disables certificate verification. Development
	// only.
	TLSInsecureSkipVerify bool
}

// NewClient creates and pings an Elasticsearch client.
func NewClient(cfg ClientConfig, log logger.Interface) (*es.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("quarantine: elasticsearch addresses are required")
	}

	if log != nil {
		log.Debug("connecting to elasticsearch", "addresses", cfg.Addresses)
	}

	transport := &http.Transport{}
	if cfg.TLSInsecureSkipVerify {
		//nolint:gosec // configurable for development environments
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("quarantine: create elasticsearch client: %w", err)
	}

	res, err := client.Ping()
	if err != nil {
		return nil, fmt.Errorf("quarantine: ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("quarantine: elasticsearch ping: %s", res.String())
	}

	return client, nil
}
