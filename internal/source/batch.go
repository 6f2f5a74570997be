package source

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nexfeed/content-sync-service/internal/errors"
)

// BatchRequest identifies one single-record fetch within a batch.
type BatchRequest struct {
	Collection string
	ID         int
}

// BatchResult is the terminal outcome of one batch request. Err is nil on
// success; Attempts counts how many tries were made including the last.
type BatchResult struct {
	Request  BatchRequest
	Record   json.RawMessage
	Attempts int
	Err      error
}

// BatchOptions bounds the concurrency and retry behavior of BatchFetch.
type BatchOptions struct {
	Concurrency int
	MaxAttempts int
	BaseDelay   time.Duration
}

func (o BatchOptions) normalized() BatchOptions {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	return o
}

// BatchFetch executes many single-record fetches with bounded concurrency.
// Requests are partitioned into groups of at most opts.Concurrency; requests
// within a group run concurrently, groups run sequentially. Each request is
// retried with exponential backoff (BaseDelay doubling per attempt) up to
// MaxAttempts before its result is marked failed. One request failing never
// aborts the others.
func (c *Client) BatchFetch(ctx context.Context, requests []BatchRequest, opts BatchOptions) []BatchResult {
	opts = opts.normalized()
	results := make([]BatchResult, len(requests))

	for start := 0; start < len(requests); start += opts.Concurrency {
		end := start + opts.Concurrency
		if end > len(requests) {
			end = len(requests)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.fetchWithRetry(ctx, requests[i], opts)
			}(i)
		}
		wg.Wait()
	}

	return results
}

// fetchWithRetry performs one batch request under the backoff policy.
func (c *Client) fetchWithRetry(ctx context.Context, req BatchRequest, opts BatchOptions) BatchResult {
	result := BatchResult{Request: req}

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result.Attempts = attempt

		record, err := c.FetchRecord(ctx, req.Collection, req.ID)
		if err == nil {
			result.Record = record
			result.Err = nil
			return result
		}
		result.Err = err

		if !errors.Retryable(err) || attempt == opts.MaxAttempts {
			break
		}

		delay := opts.BaseDelay << (attempt - 1)
		c.logger.Warn().
			Str("collection", req.Collection).
			Int("id", req.ID).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Err(err).
			Msg("batch fetch failed, retrying")

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			return result
		case <-time.After(delay):
		}
	}

	return result
}
