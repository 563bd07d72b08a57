package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog/log"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/model"
)

type elasticSink struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticSink indexes audit records into Elasticsearch so they can be
// looked up by request id. Connection setup retries with backoff because ES
// is often the last container to come up.
func NewElasticSink(cfg *config.Config) (Sink, error) {
	if len(cfg.Audit.ElasticAddrs) == 0 {
		log.Error().Msg("Elasticsearch addresses are not configured.")
		return nil, errors.New("elasticsearch audit configuration missing")
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: 10 * time.Second,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
	}
	esCfg := elasticsearch.Config{
		Addresses: cfg.Audit.ElasticAddrs,
		Transport: transport,
	}

	var esClient *elasticsearch.Client
	operation := func() error {
		client, err := elasticsearch.NewClient(esCfg)
		if err != nil {
			log.Warn().Err(err).Msg("Attempt failed: Error creating the Elasticsearch client")
			return err
		}
		res, err := client.Info(client.Info.WithContext(context.Background()))
		if err != nil {
			log.Warn().Err(err).Msg("Attempt failed: Error during Elasticsearch Info() call")
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			errStatus := fmt.Errorf("elasticsearch Info() returned error status: %s", res.Status())
			log.Warn().Err(errStatus).Msg("Attempt failed: Elasticsearch ping returned error status")
			return errStatus
		}
		esClient = client
		return nil
	}

	connectBackoff := backoff.NewExponentialBackOff()
	connectBackoff.InitialInterval = 2 * time.Second
	connectBackoff.MaxInterval = 15 * time.Second
	connectBackoff.MaxElapsedTime = 1 * time.Minute
	if err := backoff.Retry(operation, connectBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}

	log.Info().Strs("addresses", cfg.Audit.ElasticAddrs).Str("index", cfg.Audit.ElasticIndex).Msg("Elasticsearch audit sink initialized")
	return &elasticSink{client: esClient, index: cfg.Audit.ElasticIndex}, nil
}

func (s *elasticSink) Publish(ctx context.Context, record model.AuditRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	res, err := s.client.Index(
		s.index,
		bytes.NewReader(data),
		s.client.Index.WithDocumentID(record.RequestID),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index audit record: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch index returned error status: %s", res.Status())
	}
	return nil
}

func (s *elasticSink) Find(ctx context.Context, requestID string) (*model.AuditRecord, error) {
	res, err := s.client.Get(s.index, requestID, s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch get returned error status: %s", res.Status())
	}

	var doc struct {
		Source model.AuditRecord `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode audit record: %w", err)
	}
	return &doc.Source, nil
}
