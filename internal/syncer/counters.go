package syncer

import (
	"context"
	"fmt"
	"time"
)

// refreshUserPostCount recomputes a user's post count from the posts
// collection. Counts are always recomputed, never incremented, so a missed
// event can never leave them drifted.
func (s *Syncer) refreshUserPostCount(ctx context.Context, userID string) error {
	count, err := s.store.Posts().CountByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("post count query failed for user %s: %w", userID, err)
	}

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("user load failed for %s: %w", userID, err)
	}
	if user == nil || user.Stats.PostCount == count {
		return nil
	}

	user.Stats.PostCount = count
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.Users().Save(ctx, user); err != nil {
		return fmt.Errorf("post count update failed for user %s: %w", userID, err)
	}
	return nil
}

// refreshPostCommentCount recomputes a post's comment count from the
// comments collection.
func (s *Syncer) refreshPostCommentCount(ctx context.Context, postID string) error {
	count, err := s.store.Comments().CountByPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("comment count query failed for post %s: %w", postID, err)
	}

	post, err := s.store.Posts().GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("post load failed for %s: %w", postID, err)
	}
	if post == nil || post.Stats.CommentCount == count {
		return nil
	}

	post.Stats.CommentCount = count
	post.UpdatedAt = time.Now().UTC()
	if err := s.store.Posts().Save(ctx, post); err != nil {
		return fmt.Errorf("comment count update failed for post %s: %w", postID, err)
	}
	return nil
}
