package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexfeed/content-sync-service/internal/errors"
	"github.com/nexfeed/content-sync-service/internal/models"
)

func TestClient_BatchFetch_BackoffSchedule(t *testing.T) {
	var mu sync.Mutex
	var attemptTimes []time.Time

	// Fail three times, succeed on the fourth attempt.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attemptTimes = append(attemptTimes, time.Now())
		count := len(attemptTimes)
		mu.Unlock()

		if count <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(models.ExternalPost{ID: 1, UserID: 1})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	baseDelay := 20 * time.Millisecond
	results := client.BatchFetch(context.Background(),
		[]BatchRequest{{Collection: "posts", ID: 1}},
		BatchOptions{Concurrency: 1, MaxAttempts: 4, BaseDelay: baseDelay})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 4, results[0].Attempts)

	// Observed gaps follow baseDelay, 2*baseDelay, 4*baseDelay.
	require.Len(t, attemptTimes, 4)
	for i, want := range []time.Duration{baseDelay, 2 * baseDelay, 4 * baseDelay} {
		gap := attemptTimes[i+1].Sub(attemptTimes[i])
		assert.GreaterOrEqual(t, gap, want, "gap %d too short", i)
		assert.Less(t, gap, want+15*baseDelay/10, "gap %d too long", i)
	}
}

func TestClient_BatchFetch_PartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/posts/"))
		if id == 5 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(models.ExternalPost{ID: id, UserID: 1})
	}))
	defer server.Close()

	requests := make([]BatchRequest, 10)
	for i := range requests {
		requests[i] = BatchRequest{Collection: "posts", ID: i + 1}
	}

	client := newTestClient(server.URL)
	results := client.BatchFetch(context.Background(), requests,
		BatchOptions{Concurrency: 3, MaxAttempts: 2, BaseDelay: time.Millisecond})

	require.Len(t, results, 10)
	failed := 0
	for _, result := range results {
		if result.Request.ID == 5 {
			failed++
			require.Error(t, result.Err)
			assert.True(t, errors.Is(result.Err, errors.ErrNotFound))
			// Terminal errors are not retried.
			assert.Equal(t, 1, result.Attempts)
			continue
		}
		require.NoError(t, result.Err, "request %d should succeed", result.Request.ID)
		assert.NotNil(t, result.Record)
	}
	assert.Equal(t, 1, failed)
}

func TestClient_BatchFetch_BoundsConcurrency(t *testing.T) {
	var inFlight, maxInFlight int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt64(&inFlight, 1)
		defer atomic.AddInt64(&inFlight, -1)

		for {
			observed := atomic.LoadInt64(&maxInFlight)
			if current <= observed || atomic.CompareAndSwapInt64(&maxInFlight, observed, current) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)
		json.NewEncoder(w).Encode(models.ExternalPost{ID: 1, UserID: 1})
	}))
	defer server.Close()

	requests := make([]BatchRequest, 12)
	for i := range requests {
		requests[i] = BatchRequest{Collection: "posts", ID: i + 1}
	}

	client := newTestClient(server.URL)
	results := client.BatchFetch(context.Background(), requests,
		BatchOptions{Concurrency: 4, MaxAttempts: 1, BaseDelay: time.Millisecond})

	require.Len(t, results, 12)
	for _, result := range results {
		assert.NoError(t, result.Err)
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&maxInFlight), int64(4))
}

func TestClient_BatchFetch_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	client := newTestClient(server.URL)
	results := client.BatchFetch(ctx,
		[]BatchRequest{{Collection: "posts", ID: 1}},
		BatchOptions{Concurrency: 1, MaxAttempts: 10, BaseDelay: 50 * time.Millisecond})

	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
}
