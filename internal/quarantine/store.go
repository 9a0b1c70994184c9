package quarantine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/openrounds/pricecrawl/internal/domain"
	"github.com/openrounds/pricecrawl/internal/logger"
)

// DefaultIndex is the review index name.
const DefaultIndex = "quarantined-offers"

// Operation timeouts.
const (
	indexTimeout  = 10 * time.Second
	searchTimeout = 10 * time.Second
)

// ErrNotFound is returned when a quarantine record does not exist.
var ErrNotFound = errors.New("quarantine: record not found")

// mapping is the index mapping. Reason, source, and status are keywords so
// the review CLI can aggregate on them.
const mapping = `{
  "mappings": {
    "properties": {
      "id":              {"type": "keyword"},
      "run_id":          {"type": "keyword"},
      "source_id":       {"type": "keyword"},
      "target_id":       {"type": "keyword"},
      "url":             {"type": "keyword"},
      "adapter_id":      {"type": "keyword"},
      "adapter_version": {"type": "keyword"},
      "reason":          {"type": "keyword"},
      "status":          {"type": "keyword"},
      "quarantined_at":  {"type": "date"},
      "reviewed_at":     {"type": "date"},
      "reviewed_by":     {"type": "keyword"},
      "offer": {
        "properties": {
          "title":       {"type": "text"},
          "price_cents": {"type": "long"},
          "currency":    {"type": "keyword"},
          "url":         {"type": "keyword"}
        }
      }
    }
  }
}`

// Store persists quarantine records in Elasticsearch.
type Store struct {
	client *es.Client
	index  string
	log    logger.Interface
}

// NewStore creates a Store. An empty index name uses DefaultIndex.
func NewStore(client *es.Client, index string, log logger.Interface) *Store {
	if index == "" {
		index = DefaultIndex
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Store{client: client, index: index, log: log.WithComponent("quarantine")}
}

// EnsureIndex creates the review index with its mapping if it does not
// already exist.
func (s *Store) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists(
		[]string{s.index},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("quarantine: check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	create, err := s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("quarantine: create index: %w", err)
	}
	defer create.Body.Close()

	if create.IsError() {
		return fmt.Errorf("quarantine: create index: %s", create.String())
	}

	s.log.Info("created review index", "index", s.index)

	return nil
}

// Save indexes one quarantine record. New records start in the pending
// review state.
func (s *Store) Save(ctx context.Context, rec domain.QuarantineRecord) error {
	if s.client == nil {
		return errors.New("quarantine: elasticsearch client is not initialized")
	}
	if rec.ID == "" {
		return errors.New("quarantine: record id is required")
	}
	if rec.Status == "" {
		rec.Status = domain.QuarantinePending
	}

	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("quarantine: marshal record: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(rec.ID),
		s.client.Index.WithRefresh("true"),
	)
	if err != nil {
		s.log.Error("failed to index quarantine record",
			"error", err,
			"id", rec.ID,
			"url", rec.URL)
		return fmt.Errorf("quarantine: index record: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("quarantine: index record: %s", res.String())
	}

	return nil
}

// Get retrieves one record by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.QuarantineRecord, error) {
	res, err := s.client.Get(
		s.index,
		id,
		s.client.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("quarantine: get record: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if res.IsError() {
		return nil, fmt.Errorf("quarantine: get record: %s", res.String())
	}

	var doc struct {
		Source domain.QuarantineRecord `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("quarantine: decode record: %w", err)
	}

	return &doc.Source, nil
}

// ListFilter narrows a List call. Zero values match everything.
type ListFilter struct {
	SourceID string
	Reason   string
	Status   string
	Limit    int
}

// List returns records matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]domain.QuarantineRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var clauses []map[string]any
	if filter.SourceID != "" {
		clauses = append(clauses, map[string]any{"term": map[string]any{"source_id": filter.SourceID}})
	}
	if filter.Reason != "" {
		clauses = append(clauses, map[string]any{"term": map[string]any{"reason": filter.Reason}})
	}
	if filter.Status != "" {
		clauses = append(clauses, map[string]any{"term": map[string]any{"status": filter.Status}})
	}

	query := map[string]any{
		"size": limit,
		"sort": []map[string]any{{"quarantined_at": map[string]any{"order": "desc"}}},
	}
	if len(clauses) > 0 {
		query["query"] = map[string]any{"bool": map[string]any{"filter": clauses}}
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("quarantine: marshal query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("quarantine: search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("quarantine: search: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source domain.QuarantineRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("quarantine: decode search response: %w", err)
	}

	records := make([]domain.QuarantineRecord, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		records = append(records, hit.Source)
	}

	return records, nil
}

// Review marks a record resolved or rejected.
func (s *Store) Review(ctx context.Context, id, status, reviewedBy string) error {
	if status != domain.QuarantineResolved && status != domain.QuarantineRejected {
		return fmt.Errorf("quarantine: invalid review status %q", status)
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rec.Status = status
	rec.ReviewedAt = &now
	rec.ReviewedBy = reviewedBy

	return s.Save(ctx, *rec)
}
