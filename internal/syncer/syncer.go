// Package syncer implements the synchronization engine: it pulls entity
// collections from the source API and merges them into the local store in
// dependency order, tolerating per-record failures.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexfeed/content-sync-service/internal/config"
	"github.com/nexfeed/content-sync-service/internal/errors"
	"github.com/nexfeed/content-sync-service/internal/logging"
	"github.com/nexfeed/content-sync-service/internal/models"
	"github.com/nexfeed/content-sync-service/internal/source"
	"github.com/nexfeed/content-sync-service/internal/storage"
)

// phaseOrder is the strict dependency order of a full sync: users must all
// be attempted before any post merges, and posts before any comment merges,
// because mappers resolve parent references against already-persisted state.
var phaseOrder = []models.EntityType{
	models.EntityUsers,
	models.EntityPosts,
	models.EntityComments,
}

// SourceClient is the part of the source API client the syncer depends on.
type SourceClient interface {
	FetchCollection(ctx context.Context, collection string, params url.Values) ([]json.RawMessage, error)
	FetchRecord(ctx context.Context, collection string, id int) (json.RawMessage, error)
	BatchFetch(ctx context.Context, reqs []source.BatchRequest, opts source.BatchOptions) []source.BatchResult
	DefaultBatchOptions() source.BatchOptions
	ProbeHealth(ctx context.Context) models.HealthReport
}

// Syncer drives sync runs against the local store. At most one full sync
// executes at a time; overlapping run requests fail immediately.
type Syncer struct {
	cfg    config.SyncConfig
	client SourceClient
	store  storage.Store
	logger zerolog.Logger

	running atomic.Bool
}

// New creates a new Syncer with injected collaborators.
func New(cfg config.SyncConfig, client SourceClient, store storage.Store) *Syncer {
	return &Syncer{
		cfg:    cfg,
		client: client,
		store:  store,
		logger: logging.Component("syncer"),
	}
}

// Start performs an initial full sync and then, when periodic syncing is
// enabled, re-runs on the configured interval until ctx is canceled.
// Periodic run failures are logged but never stop the loop.
func (s *Syncer) Start(ctx context.Context) error {
	if result := s.RunFullSync(ctx); !result.Success {
		return fmt.Errorf("initial sync failed: %s", result.Error)
	}

	if !s.cfg.Periodic {
		return nil
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if result := s.RunFullSync(ctx); !result.Success {
				s.logger.Error().Str("error", result.Error).Msg("periodic sync failed")
			}
		}
	}
}

// RunFullSync executes one full sync run and always returns a structured
// result; it never panics or propagates errors past this boundary.
func (s *Syncer) RunFullSync(ctx context.Context) *models.SyncResult {
	if !s.running.CompareAndSwap(false, true) {
		return &models.SyncResult{
			Success:   false,
			Timestamp: time.Now().UTC(),
			Error:     errors.ErrAlreadyInProgress.Error(),
		}
	}
	defer s.running.Store(false)

	start := time.Now()
	var stats models.SyncStats

	s.logger.Info().Msg("starting full sync")

	report := s.client.ProbeHealth(ctx)
	if !report.Healthy {
		err := fmt.Errorf("%w: health probe failed (success rate %.0f%%)",
			errors.ErrConnectivity, report.SuccessRate*100)
		return s.finishRun(ctx, start, stats, err)
	}

	for _, entity := range phaseOrder {
		if err := s.runPhase(ctx, entity, &stats); err != nil {
			return s.finishRun(ctx, start, stats, err)
		}
	}

	return s.finishRun(ctx, start, stats, nil)
}

// runPhase fetches one entity collection and merges every record. A record
// failing to merge is counted and logged; only the collection fetch itself
// can fail the phase.
func (s *Syncer) runPhase(ctx context.Context, entity models.EntityType, stats *models.SyncStats) error {
	records, err := s.client.FetchCollection(ctx, string(entity), nil)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", entity, err)
	}

	bucket := stats.ForEntity(entity)
	for _, record := range records {
		outcome, externalID, err := s.mergeRecord(ctx, entity, record)
		if err != nil {
			bucket.Errors++
			s.logger.Warn().
				Str("entity", string(entity)).
				Int("external_id", externalID).
				Err(err).
				Msg("record merge failed")
			continue
		}
		switch outcome {
		case OutcomeCreated:
			bucket.Created++
		case OutcomeUpdated:
			bucket.Updated++
		}
	}

	s.logger.Info().
		Str("entity", string(entity)).
		Int("created", bucket.Created).
		Int("updated", bucket.Updated).
		Int("errors", bucket.Errors).
		Msg("phase complete")

	return nil
}

// SyncSingleEntity fetches one record from the source and merges it,
// bypassing the full-run machinery. Used for targeted re-sync.
func (s *Syncer) SyncSingleEntity(ctx context.Context, entity models.EntityType, externalID int) *models.SyncResult {
	start := time.Now()
	result := &models.SyncResult{Timestamp: start.UTC()}

	if !entity.Valid() {
		result.Error = fmt.Sprintf("%v: %s", errors.ErrInvalidEntity, entity)
		result.Duration = time.Since(start)
		return result
	}

	record, err := s.client.FetchRecord(ctx, string(entity), externalID)
	if err != nil {
		result.Error = fmt.Sprintf("failed to fetch %s/%d: %v", entity, externalID, err)
		result.Duration = time.Since(start)
		return result
	}

	bucket := result.Stats.ForEntity(entity)
	outcome, _, err := s.mergeRecord(ctx, entity, record)
	if err != nil {
		bucket.Errors++
		result.Error = err.Error()
		result.Duration = time.Since(start)
		result.Summary = result.Stats.Summary()
		return result
	}

	switch outcome {
	case OutcomeCreated:
		bucket.Created++
	case OutcomeUpdated:
		bucket.Updated++
	}
	result.Success = true
	result.Duration = time.Since(start)
	result.Summary = result.Stats.Summary()
	return result
}

// SyncManyEntities re-syncs a set of records of one entity type, fetching
// them concurrently with retry and merging each one. Unreachable records are
// counted as errors; the call succeeds when every record merged cleanly.
func (s *Syncer) SyncManyEntities(ctx context.Context, entity models.EntityType, externalIDs []int) *models.SyncResult {
	start := time.Now()
	result := &models.SyncResult{Timestamp: start.UTC()}

	if !entity.Valid() {
		result.Error = fmt.Sprintf("%v: %s", errors.ErrInvalidEntity, entity)
		result.Duration = time.Since(start)
		return result
	}

	reqs := make([]source.BatchRequest, 0, len(externalIDs))
	for _, id := range externalIDs {
		reqs = append(reqs, source.BatchRequest{Collection: string(entity), ID: id})
	}

	bucket := result.Stats.ForEntity(entity)
	for _, fetched := range s.client.BatchFetch(ctx, reqs, s.client.DefaultBatchOptions()) {
		if fetched.Err != nil {
			bucket.Errors++
			s.logger.Warn().
				Str("entity", string(entity)).
				Int("external_id", fetched.Request.ID).
				Int("attempts", fetched.Attempts).
				Err(fetched.Err).
				Msg("batch fetch failed")
			continue
		}
		outcome, externalID, err := s.mergeRecord(ctx, entity, fetched.Record)
		if err != nil {
			bucket.Errors++
			s.logger.Warn().
				Str("entity", string(entity)).
				Int("external_id", externalID).
				Err(err).
				Msg("record merge failed")
			continue
		}
		switch outcome {
		case OutcomeCreated:
			bucket.Created++
		case OutcomeUpdated:
			bucket.Updated++
		}
	}

	result.Success = bucket.Errors == 0
	if !result.Success {
		result.Error = fmt.Sprintf("%d of %d %s failed to sync", bucket.Errors, len(externalIDs), entity)
	}
	result.Duration = time.Since(start)
	result.Summary = result.Stats.Summary()
	return result
}

// Status reports whether a run is in flight plus the persisted outcome of
// the most recent run.
func (s *Syncer) Status(ctx context.Context) (*models.SyncStatus, error) {
	status, err := s.store.GetSyncStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync status: %w", err)
	}
	status.InProgress = s.running.Load()
	return status, nil
}

// finishRun assembles the run result and persists the final status. The
// status write is best effort; a failure there does not fail the run.
func (s *Syncer) finishRun(ctx context.Context, start time.Time, stats models.SyncStats, runErr error) *models.SyncResult {
	result := &models.SyncResult{
		Success:   runErr == nil,
		Duration:  time.Since(start),
		Timestamp: time.Now().UTC(),
		Stats:     stats,
		Summary:   stats.Summary(),
	}

	status := models.SyncStatus{LastStats: &stats}
	if runErr != nil {
		result.Error = runErr.Error()
		status.LastError = runErr.Error()
		s.logger.Error().Err(runErr).Dur("duration", result.Duration).Msg("sync run failed")
	} else {
		status.LastSyncTime = &result.Timestamp
		s.logger.Info().
			Dur("duration", result.Duration).
			Int("created", result.Summary.TotalCreated).
			Int("updated", result.Summary.TotalUpdated).
			Int("errors", result.Summary.TotalErrors).
			Msg("sync run complete")
	}

	if runErr != nil {
		// A failed run keeps the previous successful sync time visible.
		if prev, err := s.store.GetSyncStatus(ctx); err == nil {
			status.LastSyncTime = prev.LastSyncTime
		}
	}

	if err := s.store.SaveSyncStatus(ctx, status); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist sync status")
	}

	return result
}
