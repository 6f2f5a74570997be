package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/nexfeed/content-sync-service/internal/models"
)

// CleanupOrphans removes posts whose user no longer resolves and comments
// whose post no longer resolves, one bulk delete per entity type. It is
// independent of the run state machine and safe to invoke at any time;
// overlap with an active sync is accepted as eventually consistent.
func (s *Syncer) CleanupOrphans(ctx context.Context) (*models.CleanupResult, error) {
	userIDs, err := s.store.Users().ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	userSet := toSet(userIDs)

	postRefs, err := s.store.Posts().ListRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan posts: %w", err)
	}

	var orphanPosts []string
	for _, ref := range postRefs {
		if !userSet[ref.ParentID] {
			orphanPosts = append(orphanPosts, ref.ID)
		}
	}

	deletedPosts, err := s.store.Posts().DeleteByIDs(ctx, orphanPosts)
	if err != nil {
		return nil, fmt.Errorf("failed to delete orphaned posts: %w", err)
	}

	// Posts removed above orphan their comments; listing post ids after the
	// delete sweeps those in the same pass.
	postIDs, err := s.store.Posts().ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	postSet := toSet(postIDs)

	commentRefs, err := s.store.Comments().ListRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan comments: %w", err)
	}

	var orphanComments []string
	for _, ref := range commentRefs {
		if !postSet[ref.ParentID] {
			orphanComments = append(orphanComments, ref.ID)
		}
	}

	deletedComments, err := s.store.Comments().DeleteByIDs(ctx, orphanComments)
	if err != nil {
		return nil, fmt.Errorf("failed to delete orphaned comments: %w", err)
	}

	if deletedPosts > 0 || deletedComments > 0 {
		s.logger.Info().
			Int("posts", deletedPosts).
			Int("comments", deletedComments).
			Msg("orphan cleanup removed entities")
	}

	return &models.CleanupResult{
		Posts:    deletedPosts,
		Comments: deletedComments,
		RunAt:    time.Now().UTC(),
	}, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
