package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexfeed/content-sync-service/internal/models"
)

func TestCleanupOrphans(t *testing.T) {
	s, store := newStoreOnlySyncer()
	ctx := context.Background()

	_, err := s.mergeUser(ctx, models.ExternalUser{ID: 1, Name: "keep"})
	require.NoError(t, err)
	_, err = s.mergeUser(ctx, models.ExternalUser{ID: 2, Name: "doomed"})
	require.NoError(t, err)

	_, err = s.mergePost(ctx, models.ExternalPost{ID: 1, UserID: 1, Title: "survives"})
	require.NoError(t, err)
	_, err = s.mergePost(ctx, models.ExternalPost{ID: 2, UserID: 2, Title: "orphaned"})
	require.NoError(t, err)

	_, err = s.mergeComment(ctx, models.ExternalComment{ID: 1, PostID: 1, Body: "survives"})
	require.NoError(t, err)
	_, err = s.mergeComment(ctx, models.ExternalComment{ID: 2, PostID: 2, Body: "orphaned with its post"})
	require.NoError(t, err)

	// Delete user 2 out-of-band; its post and that post's comment become
	// orphans.
	doomed, err := store.Users().FindByExternalID(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, store.Users().Delete(ctx, doomed.ID))

	result, err := s.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Posts)
	assert.Equal(t, 1, result.Comments)

	// Non-orphans survive.
	posts, err := store.Posts().List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "survives", posts[0].Title)

	comments, err := store.Comments().List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "survives", comments[0].Body)
}

func TestCleanupOrphans_NothingToDo(t *testing.T) {
	s, store := newStoreOnlySyncer()
	ctx := context.Background()

	_, err := s.mergeUser(ctx, models.ExternalUser{ID: 1, Name: "u"})
	require.NoError(t, err)
	_, err = s.mergePost(ctx, models.ExternalPost{ID: 1, UserID: 1, Title: "p"})
	require.NoError(t, err)

	result, err := s.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Posts)
	assert.Equal(t, 0, result.Comments)

	posts, err := store.Posts().List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestCleanupOrphans_EmptyStore(t *testing.T) {
	s, _ := newStoreOnlySyncer()

	result, err := s.CleanupOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Posts)
	assert.Equal(t, 0, result.Comments)
	assert.False(t, result.RunAt.IsZero())
}
