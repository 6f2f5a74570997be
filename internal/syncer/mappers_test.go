package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexfeed/content-sync-service/internal/config"
	"github.com/nexfeed/content-sync-service/internal/errors"
	"github.com/nexfeed/content-sync-service/internal/models"
	"github.com/nexfeed/content-sync-service/internal/storage"
)

// newStoreOnlySyncer builds a syncer whose source client is never used, for
// exercising mappers and counters directly.
func newStoreOnlySyncer() (*Syncer, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	return New(config.SyncConfig{}, nil, store), store
}

func TestMergeUser_CreateThenUpdate(t *testing.T) {
	s, store := newStoreOnlySyncer()
	ctx := context.Background()

	ext := models.ExternalUser{ID: 42, Name: "Original", Username: "orig", Email: "o@example.com"}

	outcome, err := s.mergeUser(ctx, ext)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	created, err := store.Users().FindByExternalID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "Original", created.Name)
	assert.Equal(t, models.SourceAPI, created.SyncSource)
	assert.NotEmpty(t, created.ID)

	ext.Name = "Renamed"
	outcome, err = s.mergeUser(ctx, ext)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	updated, err := store.Users().FindByExternalID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "update must not change identity")
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestMergeUser_MissingID(t *testing.T) {
	s, _ := newStoreOnlySyncer()

	_, err := s.mergeUser(context.Background(), models.ExternalUser{Name: "no id"})
	assert.Error(t, err)
}

func TestMergePost_MissingUser(t *testing.T) {
	s, store := newStoreOnlySyncer()
	ctx := context.Background()

	_, err := s.mergePost(ctx, models.ExternalPost{ID: 1, UserID: 7, Title: "orphan"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingDependency))

	// Never defaulted: no post was written.
	posts, listErr := store.Posts().List(ctx, 0, 0)
	require.NoError(t, listErr)
	assert.Empty(t, posts)
}

func TestMergeComment_MissingPost(t *testing.T) {
	s, _ := newStoreOnlySyncer()

	_, err := s.mergeComment(context.Background(), models.ExternalComment{ID: 1, PostID: 9})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingDependency))

	var depErr *errors.MissingDependencyError
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, "post", depErr.Parent)
	assert.Equal(t, 9, depErr.ParentID)
}

func TestMergeComment_ThreadedParent(t *testing.T) {
	s, store := newStoreOnlySyncer()
	ctx := context.Background()

	_, err := s.mergeUser(ctx, models.ExternalUser{ID: 1, Name: "u"})
	require.NoError(t, err)
	_, err = s.mergePost(ctx, models.ExternalPost{ID: 1, UserID: 1, Title: "p"})
	require.NoError(t, err)

	// Parent not yet synced: the reply degrades to top-level.
	outcome, err := s.mergeComment(ctx, models.ExternalComment{ID: 2, PostID: 1, ParentID: 1, Body: "reply"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	reply, err := store.Comments().FindByExternalID(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, reply.ParentCommentID)

	// Once the parent exists, re-merging links the thread.
	_, err = s.mergeComment(ctx, models.ExternalComment{ID: 1, PostID: 1, Body: "parent"})
	require.NoError(t, err)
	_, err = s.mergeComment(ctx, models.ExternalComment{ID: 2, PostID: 1, ParentID: 1, Body: "reply"})
	require.NoError(t, err)

	reply, err = store.Comments().FindByExternalID(ctx, 2)
	require.NoError(t, err)
	parent, err := store.Comments().FindByExternalID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, reply.ParentCommentID)
}

func TestDerivedCounters_RecomputedNotDrifted(t *testing.T) {
	s, store := newStoreOnlySyncer()
	ctx := context.Background()

	_, err := s.mergeUser(ctx, models.ExternalUser{ID: 1, Name: "u"})
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := s.mergePost(ctx, models.ExternalPost{ID: i, UserID: 1, Title: "p"})
		require.NoError(t, err)
	}

	user, err := store.Users().FindByExternalID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, user.Stats.PostCount)

	// Delete one post out-of-band; the next recompute lands on the true count.
	post, err := store.Posts().FindByExternalID(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, store.Posts().Delete(ctx, post.ID))

	require.NoError(t, s.refreshUserPostCount(ctx, user.ID))

	user, err = store.Users().FindByExternalID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, user.Stats.PostCount)
}

func TestDerivedCounters_PostReassignment(t *testing.T) {
	s, store := newStoreOnlySyncer()
	ctx := context.Background()

	_, err := s.mergeUser(ctx, models.ExternalUser{ID: 1, Name: "a"})
	require.NoError(t, err)
	_, err = s.mergeUser(ctx, models.ExternalUser{ID: 2, Name: "b"})
	require.NoError(t, err)
	_, err = s.mergePost(ctx, models.ExternalPost{ID: 1, UserID: 1, Title: "p"})
	require.NoError(t, err)

	// The source moved the post to the other user.
	outcome, err := s.mergePost(ctx, models.ExternalPost{ID: 1, UserID: 2, Title: "p"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	userA, err := store.Users().FindByExternalID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, userA.Stats.PostCount)
	userB, err := store.Users().FindByExternalID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, userB.Stats.PostCount)
}

func TestMergeRecord_MalformedJSON(t *testing.T) {
	s, _ := newStoreOnlySyncer()

	_, _, err := s.mergeRecord(context.Background(), models.EntityUsers, []byte(`"not an object"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestMergeUser_StampsSyncedAt(t *testing.T) {
	s, store := newStoreOnlySyncer()
	ctx := context.Background()

	_, err := s.mergeUser(ctx, models.ExternalUser{ID: 1, Name: "u"})
	require.NoError(t, err)

	user, err := store.Users().FindByExternalID(ctx, 1)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), user.SyncedAt, 5*time.Second)
}
