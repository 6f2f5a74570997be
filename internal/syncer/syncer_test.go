package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexfeed/content-sync-service/internal/config"
	"github.com/nexfeed/content-sync-service/internal/errors"
	"github.com/nexfeed/content-sync-service/internal/models"
	"github.com/nexfeed/content-sync-service/internal/source"
	"github.com/nexfeed/content-sync-service/internal/storage"
)

// fakeAPI serves a mutable JSONPlaceholder-shaped dataset.
type fakeAPI struct {
	mu       sync.Mutex
	users    []models.ExternalUser
	posts    []models.ExternalPost
	comments []models.ExternalComment
	failPath map[string]bool // paths that return 500
	delay    time.Duration
}

func defaultFixture() *fakeAPI {
	return &fakeAPI{
		users: []models.ExternalUser{
			{ID: 1, Name: "Leanne Graham", Username: "Bret", Email: "leanne@example.com"},
			{ID: 2, Name: "Ervin Howell", Username: "Antonette", Email: "ervin@example.com"},
		},
		posts: []models.ExternalPost{
			{ID: 1, UserID: 1, Title: "first", Body: "body one"},
			{ID: 2, UserID: 1, Title: "second", Body: "body two"},
			{ID: 3, UserID: 2, Title: "third", Body: "body three"},
		},
		comments: []models.ExternalComment{
			{ID: 1, PostID: 1, Name: "c1", Email: "a@example.com", Body: "nice"},
			{ID: 2, PostID: 1, ParentID: 1, Name: "c2", Email: "b@example.com", Body: "reply"},
			{ID: 3, PostID: 2, Name: "c3", Email: "c@example.com", Body: "hm"},
			{ID: 4, PostID: 3, Name: "c4", Email: "d@example.com", Body: "ok"},
		},
		failPath: map[string]bool{},
	}
}

func (f *fakeAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		delay := f.delay
		fail := f.failPath[r.URL.Path]
		users := append([]models.ExternalUser{}, f.users...)
		posts := append([]models.ExternalPost{}, f.posts...)
		comments := append([]models.ExternalComment{}, f.comments...)
		f.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

		switch {
		case len(parts) == 1 && parts[0] == "users":
			json.NewEncoder(w).Encode(users)
		case len(parts) == 1 && parts[0] == "posts":
			json.NewEncoder(w).Encode(posts)
		case len(parts) == 1 && parts[0] == "comments":
			json.NewEncoder(w).Encode(comments)
		case len(parts) == 2:
			id, _ := strconv.Atoi(parts[1])
			switch parts[0] {
			case "users":
				for _, u := range users {
					if u.ID == id {
						json.NewEncoder(w).Encode(u)
						return
					}
				}
			case "posts":
				for _, p := range posts {
					if p.ID == id {
						json.NewEncoder(w).Encode(p)
						return
					}
				}
			case "comments":
				for _, c := range comments {
					if c.ID == id {
						json.NewEncoder(w).Encode(c)
						return
					}
				}
			}
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestSyncer(t *testing.T, api *fakeAPI) (*Syncer, *storage.MemoryStore) {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	client := source.NewClient(config.SourceConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	store := storage.NewMemoryStore()
	return New(config.SyncConfig{Interval: time.Hour}, client, store), store
}

func TestRunFullSync(t *testing.T) {
	s, store := newTestSyncer(t, defaultFixture())

	result := s.RunFullSync(context.Background())

	require.True(t, result.Success, "sync failed: %s", result.Error)
	assert.Equal(t, models.EntityStats{Created: 2}, result.Stats.Users)
	assert.Equal(t, models.EntityStats{Created: 3}, result.Stats.Posts)
	assert.Equal(t, models.EntityStats{Created: 4}, result.Stats.Comments)
	assert.Equal(t, 9, result.Summary.TotalCreated)
	assert.Equal(t, 0, result.Summary.TotalErrors)

	ctx := context.Background()

	// Relationships resolve to local identities.
	post, err := store.Posts().FindByExternalID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, post)
	owner, err := store.Users().GetByID(ctx, post.UserID)
	require.NoError(t, err)
	require.NotNil(t, owner)
	require.NotNil(t, owner.ExternalID)
	assert.Equal(t, 1, *owner.ExternalID)
	assert.Equal(t, models.SourceAPI, post.SyncSource)
	assert.WithinDuration(t, time.Now().UTC(), post.SyncedAt, 5*time.Second)

	// Derived counters are recomputed on write.
	user1, err := store.Users().FindByExternalID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, user1.Stats.PostCount)
	user2, err := store.Users().FindByExternalID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, user2.Stats.PostCount)

	assert.Equal(t, 2, post.Stats.CommentCount)

	// Threaded comment resolved its parent.
	reply, err := store.Comments().FindByExternalID(ctx, 2)
	require.NoError(t, err)
	parent, err := store.Comments().FindByExternalID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, reply.ParentCommentID)
}

func TestRunFullSync_Idempotent(t *testing.T) {
	s, store := newTestSyncer(t, defaultFixture())
	ctx := context.Background()

	first := s.RunFullSync(ctx)
	require.True(t, first.Success)

	second := s.RunFullSync(ctx)
	require.True(t, second.Success)

	// Second run updates everything and creates nothing.
	assert.Equal(t, models.EntityStats{Updated: 2}, second.Stats.Users)
	assert.Equal(t, models.EntityStats{Updated: 3}, second.Stats.Posts)
	assert.Equal(t, models.EntityStats{Updated: 4}, second.Stats.Comments)

	// No duplicates: one local entity per external id.
	users, err := store.Users().List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	posts, err := store.Posts().List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	comments, err := store.Comments().List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, comments, 4)
}

func TestRunFullSync_PartialFailureIsolation(t *testing.T) {
	api := defaultFixture()
	api.posts = nil
	for i := 1; i <= 10; i++ {
		userID := 1
		if i == 5 {
			userID = 999 // unresolvable parent
		}
		api.posts = append(api.posts, models.ExternalPost{
			ID: i, UserID: userID, Title: "post", Body: "body",
		})
	}
	api.comments = nil

	s, store := newTestSyncer(t, api)
	result := s.RunFullSync(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 9, result.Stats.Posts.Created)
	assert.Equal(t, 1, result.Stats.Posts.Errors)

	posts, err := store.Posts().List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 9)
}

func TestRunFullSync_UnhealthySourceAborts(t *testing.T) {
	api := defaultFixture()
	api.failPath["/users"] = true

	s, store := newTestSyncer(t, api)
	result := s.RunFullSync(context.Background())

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "health probe failed")

	// Fail fast: nothing was written.
	users, err := store.Users().List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRunFullSync_SingleFlight(t *testing.T) {
	api := defaultFixture()
	api.delay = 50 * time.Millisecond

	s, _ := newTestSyncer(t, api)

	var wg sync.WaitGroup
	var background *models.SyncResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		background = s.RunFullSync(context.Background())
	}()

	time.Sleep(25 * time.Millisecond) // let the first run take the flag

	overlapping := s.RunFullSync(context.Background())
	assert.False(t, overlapping.Success)
	assert.Equal(t, errors.ErrAlreadyInProgress.Error(), overlapping.Error)

	wg.Wait()
	require.NotNil(t, background)
	assert.True(t, background.Success, "original run failed: %s", background.Error)

	// The flag is released; a later run succeeds.
	api.mu.Lock()
	api.delay = 0
	api.mu.Unlock()
	assert.True(t, s.RunFullSync(context.Background()).Success)
}

func TestSyncSingleEntity_DependencyOrdering(t *testing.T) {
	s, _ := newTestSyncer(t, defaultFixture())
	ctx := context.Background()

	// Post 1 references user 1, which has not been synced yet.
	result := s.SyncSingleEntity(ctx, models.EntityPosts, 1)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "missing")
	assert.Equal(t, 1, result.Stats.Posts.Errors)

	// After syncing the user, the identical call succeeds.
	userResult := s.SyncSingleEntity(ctx, models.EntityUsers, 1)
	require.True(t, userResult.Success)
	assert.Equal(t, 1, userResult.Stats.Users.Created)

	retry := s.SyncSingleEntity(ctx, models.EntityPosts, 1)
	assert.True(t, retry.Success, "retry failed: %s", retry.Error)
	assert.Equal(t, 1, retry.Stats.Posts.Created)
}

func TestSyncManyEntities(t *testing.T) {
	s, store := newTestSyncer(t, defaultFixture())
	ctx := context.Background()

	require.True(t, s.SyncManyEntities(ctx, models.EntityUsers, []int{1, 2}).Success)

	result := s.SyncManyEntities(ctx, models.EntityPosts, []int{1, 2, 3})
	require.True(t, result.Success, "bulk sync failed: %s", result.Error)
	assert.Equal(t, 3, result.Stats.Posts.Created)

	posts, err := store.Posts().List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
}

func TestSyncManyEntities_PartialFailure(t *testing.T) {
	s, _ := newTestSyncer(t, defaultFixture())
	ctx := context.Background()

	result := s.SyncManyEntities(ctx, models.EntityUsers, []int{1, 9999})
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Stats.Users.Created)
	assert.Equal(t, 1, result.Stats.Users.Errors)
	assert.Contains(t, result.Error, "1 of 2 users failed")
}

func TestSyncSingleEntity_UnknownType(t *testing.T) {
	s, _ := newTestSyncer(t, defaultFixture())

	result := s.SyncSingleEntity(context.Background(), "widgets", 1)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid entity type")
}

func TestSyncSingleEntity_NotFoundUpstream(t *testing.T) {
	s, _ := newTestSyncer(t, defaultFixture())

	result := s.SyncSingleEntity(context.Background(), models.EntityUsers, 9999)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "failed to fetch users/9999")
}

func TestStatus(t *testing.T) {
	s, _ := newTestSyncer(t, defaultFixture())
	ctx := context.Background()

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.InProgress)
	assert.Nil(t, status.LastSyncTime)

	result := s.RunFullSync(ctx)
	require.True(t, result.Success)

	status, err = s.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.InProgress)
	require.NotNil(t, status.LastSyncTime)
	assert.WithinDuration(t, time.Now().UTC(), *status.LastSyncTime, 5*time.Second)
	require.NotNil(t, status.LastStats)
	assert.Equal(t, 2, status.LastStats.Users.Created)
}

func TestStatus_KeepsLastSyncTimeAfterFailure(t *testing.T) {
	api := defaultFixture()
	s, _ := newTestSyncer(t, api)
	ctx := context.Background()

	require.True(t, s.RunFullSync(ctx).Success)

	api.mu.Lock()
	api.failPath["/users"] = true
	api.mu.Unlock()

	failed := s.RunFullSync(ctx)
	assert.False(t, failed.Success)

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.NotNil(t, status.LastSyncTime)
	assert.NotEmpty(t, status.LastError)
}
