package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexfeed/content-sync-service/internal/errors"
	"github.com/nexfeed/content-sync-service/internal/models"
)

// Outcome reports what an idempotent merge did with a record.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// mergeRecord decodes one external record and applies the mapper for its
// entity type. The returned external id is included even on failure so the
// caller can log it.
func (s *Syncer) mergeRecord(ctx context.Context, entity models.EntityType, record json.RawMessage) (Outcome, int, error) {
	switch entity {
	case models.EntityUsers:
		var ext models.ExternalUser
		if err := json.Unmarshal(record, &ext); err != nil {
			return "", 0, fmt.Errorf("malformed user record: %w", err)
		}
		outcome, err := s.mergeUser(ctx, ext)
		return outcome, ext.ID, err
	case models.EntityPosts:
		var ext models.ExternalPost
		if err := json.Unmarshal(record, &ext); err != nil {
			return "", 0, fmt.Errorf("malformed post record: %w", err)
		}
		outcome, err := s.mergePost(ctx, ext)
		return outcome, ext.ID, err
	case models.EntityComments:
		var ext models.ExternalComment
		if err := json.Unmarshal(record, &ext); err != nil {
			return "", 0, fmt.Errorf("malformed comment record: %w", err)
		}
		outcome, err := s.mergeComment(ctx, ext)
		return outcome, ext.ID, err
	}
	return "", 0, fmt.Errorf("%w: %s", errors.ErrInvalidEntity, entity)
}

// mergeUser upserts one user keyed by its external id. Re-running with an
// unchanged record yields Updated with identical mapped fields, never a
// duplicate.
func (s *Syncer) mergeUser(ctx context.Context, ext models.ExternalUser) (Outcome, error) {
	if ext.ID == 0 {
		return "", fmt.Errorf("user record missing id")
	}

	users := s.store.Users()
	now := time.Now().UTC()

	existing, err := users.FindByExternalID(ctx, ext.ID)
	if err != nil {
		return "", fmt.Errorf("user lookup failed: %w", err)
	}

	if existing != nil {
		existing.Name = ext.Name
		existing.Username = ext.Username
		existing.Email = ext.Email
		existing.Phone = ext.Phone
		existing.Website = ext.Website
		existing.SyncSource = models.SourceAPI
		existing.SyncedAt = now
		existing.UpdatedAt = now
		if err := users.Save(ctx, existing); err != nil {
			return "", fmt.Errorf("user update failed: %w", err)
		}
		return OutcomeUpdated, nil
	}

	externalID := ext.ID
	user := &models.User{
		ExternalID: &externalID,
		Name:       ext.Name,
		Username:   ext.Username,
		Email:      ext.Email,
		Phone:      ext.Phone,
		Website:    ext.Website,
		SyncSource: models.SourceAPI,
		SyncedAt:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := users.Save(ctx, user); err != nil {
		return "", fmt.Errorf("user create failed: %w", err)
	}
	return OutcomeCreated, nil
}

// mergePost upserts one post. The referenced user must already be in the
// store; a post is never created against a missing parent.
func (s *Syncer) mergePost(ctx context.Context, ext models.ExternalPost) (Outcome, error) {
	if ext.ID == 0 {
		return "", fmt.Errorf("post record missing id")
	}

	user, err := s.store.Users().FindByExternalID(ctx, ext.UserID)
	if err != nil {
		return "", fmt.Errorf("post parent lookup failed: %w", err)
	}
	if user == nil {
		return "", errors.NewMissingDependencyError("post", "user", ext.ID, ext.UserID)
	}

	posts := s.store.Posts()
	now := time.Now().UTC()

	existing, err := posts.FindByExternalID(ctx, ext.ID)
	if err != nil {
		return "", fmt.Errorf("post lookup failed: %w", err)
	}

	if existing != nil {
		previousUserID := existing.UserID
		existing.UserID = user.ID
		existing.ExternalUserID = ext.UserID
		existing.Title = ext.Title
		existing.Body = ext.Body
		existing.SyncSource = models.SourceAPI
		existing.SyncedAt = now
		existing.UpdatedAt = now
		if err := posts.Save(ctx, existing); err != nil {
			return "", fmt.Errorf("post update failed: %w", err)
		}
		if err := s.refreshUserPostCount(ctx, user.ID); err != nil {
			return "", err
		}
		// A post reassigned between users leaves a stale count behind.
		if previousUserID != user.ID {
			if err := s.refreshUserPostCount(ctx, previousUserID); err != nil {
				return "", err
			}
		}
		return OutcomeUpdated, nil
	}

	externalID := ext.ID
	post := &models.Post{
		ExternalID:     &externalID,
		UserID:         user.ID,
		ExternalUserID: ext.UserID,
		Title:          ext.Title,
		Body:           ext.Body,
		SyncSource:     models.SourceAPI,
		SyncedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := posts.Save(ctx, post); err != nil {
		return "", fmt.Errorf("post create failed: %w", err)
	}
	if err := s.refreshUserPostCount(ctx, user.ID); err != nil {
		return "", err
	}
	return OutcomeCreated, nil
}

// mergeComment upserts one comment. The referenced post must already be in
// the store. A threaded parent comment is optional: when the parent has not
// been synced the comment degrades to top-level rather than failing.
func (s *Syncer) mergeComment(ctx context.Context, ext models.ExternalComment) (Outcome, error) {
	if ext.ID == 0 {
		return "", fmt.Errorf("comment record missing id")
	}

	post, err := s.store.Posts().FindByExternalID(ctx, ext.PostID)
	if err != nil {
		return "", fmt.Errorf("comment parent lookup failed: %w", err)
	}
	if post == nil {
		return "", errors.NewMissingDependencyError("comment", "post", ext.ID, ext.PostID)
	}

	comments := s.store.Comments()
	now := time.Now().UTC()

	parentCommentID := ""
	if ext.ParentID != 0 {
		parent, err := comments.FindByExternalID(ctx, ext.ParentID)
		if err != nil {
			return "", fmt.Errorf("comment thread lookup failed: %w", err)
		}
		if parent != nil {
			parentCommentID = parent.ID
		}
	}

	existing, err := comments.FindByExternalID(ctx, ext.ID)
	if err != nil {
		return "", fmt.Errorf("comment lookup failed: %w", err)
	}

	if existing != nil {
		previousPostID := existing.PostID
		existing.PostID = post.ID
		existing.ExternalPostID = ext.PostID
		existing.ParentCommentID = parentCommentID
		existing.Name = ext.Name
		existing.Email = ext.Email
		existing.Body = ext.Body
		existing.SyncSource = models.SourceAPI
		existing.SyncedAt = now
		existing.UpdatedAt = now
		if err := comments.Save(ctx, existing); err != nil {
			return "", fmt.Errorf("comment update failed: %w", err)
		}
		if err := s.refreshPostCommentCount(ctx, post.ID); err != nil {
			return "", err
		}
		if previousPostID != post.ID {
			if err := s.refreshPostCommentCount(ctx, previousPostID); err != nil {
				return "", err
			}
		}
		return OutcomeUpdated, nil
	}

	externalID := ext.ID
	comment := &models.Comment{
		ExternalID:      &externalID,
		PostID:          post.ID,
		ExternalPostID:  ext.PostID,
		ParentCommentID: parentCommentID,
		Name:            ext.Name,
		Email:           ext.Email,
		Body:            ext.Body,
		SyncSource:      models.SourceAPI,
		SyncedAt:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := comments.Save(ctx, comment); err != nil {
		return "", fmt.Errorf("comment create failed: %w", err)
	}
	if err := s.refreshPostCommentCount(ctx, post.ID); err != nil {
		return "", err
	}
	return OutcomeCreated, nil
}
