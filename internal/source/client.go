// Package source implements the client for the external source-of-truth
// API. It fetches raw JSON records and knows nothing about local entities.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexfeed/content-sync-service/internal/config"
	"github.com/nexfeed/content-sync-service/internal/errors"
	"github.com/nexfeed/content-sync-service/internal/logging"
	"github.com/nexfeed/content-sync-service/internal/models"
)

// probeCollections is the fixed set of representative endpoints checked by
// ProbeHealth before a sync run is allowed to start.
var probeCollections = []string{"users", "posts", "comments"}

// Client executes requests against the external source API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	batchOpts  BatchOptions
	logger     zerolog.Logger
}

// NewClient creates a new source API client.
func NewClient(cfg config.SourceConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		batchOpts: BatchOptions{
			Concurrency: cfg.BatchConcurrency,
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
		},
		logger: logging.Component("source"),
	}
}

// DefaultBatchOptions returns the batch fetch bounds from the client
// configuration.
func (c *Client) DefaultBatchOptions() BatchOptions {
	return c.batchOpts.normalized()
}

// FetchCollection fetches a whole collection in a single request and returns
// its records undecoded. Non-2xx responses and transport failures come back
// as classified errors.
func (c *Client) FetchCollection(ctx context.Context, collection string, params url.Values) ([]json.RawMessage, error) {
	endpoint := c.baseURL + "/" + collection
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s response: %w", collection, err)
	}

	return records, nil
}

// FetchRecord fetches a single record by its source-assigned id.
func (c *Client) FetchRecord(ctx context.Context, collection string, id int) (json.RawMessage, error) {
	endpoint := c.baseURL + "/" + collection + "/" + strconv.Itoa(id)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var record json.RawMessage
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s/%d response: %w", collection, id, err)
	}

	return record, nil
}

// ProbeHealth issues parallel fetches against the representative endpoints
// and reports per-endpoint success. Healthy only when every probe succeeds
// within the request timeout.
func (c *Client) ProbeHealth(ctx context.Context) models.HealthReport {
	report := models.HealthReport{
		Endpoints: make(map[string]bool, len(probeCollections)),
		CheckedAt: time.Now().UTC(),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	params := url.Values{"_limit": []string{"1"}}

	for _, collection := range probeCollections {
		wg.Add(1)
		go func(collection string) {
			defer wg.Done()
			_, err := c.FetchCollection(ctx, collection, params)

			mu.Lock()
			report.Endpoints[collection] = err == nil
			mu.Unlock()

			if err != nil {
				c.logger.Warn().Str("collection", collection).Err(err).Msg("health probe failed")
			}
		}(collection)
	}
	wg.Wait()

	succeeded := 0
	for _, ok := range report.Endpoints {
		if ok {
			succeeded++
		}
	}
	report.SuccessRate = float64(succeeded) / float64(len(probeCollections))
	report.Healthy = succeeded == len(probeCollections)

	return report
}

// get performs one GET request and classifies any failure.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransportError(endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body for error context.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, errors.NewAPIError(endpoint, resp.StatusCode, string(msg))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
