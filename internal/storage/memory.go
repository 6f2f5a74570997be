package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nexfeed/content-sync-service/internal/models"
)

// MemoryStore is an in-memory Store used for tests and local demo runs.
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	posts    map[string]models.Post
	comments map[string]models.Comment
	status   *models.SyncStatus
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]models.User),
		posts:    make(map[string]models.Post),
		comments: make(map[string]models.Comment),
	}
}

// Users returns the user repository.
func (m *MemoryStore) Users() UserRepository { return &memoryUsers{store: m} }

// Posts returns the post repository.
func (m *MemoryStore) Posts() PostRepository { return &memoryPosts{store: m} }

// Comments returns the comment repository.
func (m *MemoryStore) Comments() CommentRepository { return &memoryComments{store: m} }

// SaveSyncStatus persists the sync status.
func (m *MemoryStore) SaveSyncStatus(_ context.Context, status models.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = &status
	return nil
}

// GetSyncStatus returns the persisted sync status.
func (m *MemoryStore) GetSyncStatus(_ context.Context) (*models.SyncStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == nil {
		return &models.SyncStatus{}, nil
	}
	status := *m.status
	return &status, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

type memoryUsers struct {
	store *MemoryStore
}

func (r *memoryUsers) FindByExternalID(_ context.Context, externalID int) (*models.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, user := range r.store.users {
		if user.ExternalID != nil && *user.ExternalID == externalID {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if user, ok := r.store.users[id]; ok {
		u := user
		return &u, nil
	}
	return nil, nil
}

func (r *memoryUsers) Save(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.users[user.ID] = *user
	return nil
}

func (r *memoryUsers) List(_ context.Context, limit, offset int) ([]models.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	users := make([]models.User, 0, len(r.store.users))
	for _, user := range r.store.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return pageOf(users, limit, offset), nil
}

func (r *memoryUsers) ListIDs(_ context.Context) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ids := make([]string, 0, len(r.store.users))
	for id := range r.store.users {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memoryUsers) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.users, id)
	return nil
}

type memoryPosts struct {
	store *MemoryStore
}

func (r *memoryPosts) FindByExternalID(_ context.Context, externalID int) (*models.Post, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, post := range r.store.posts {
		if post.ExternalID != nil && *post.ExternalID == externalID {
			p := post
			return &p, nil
		}
	}
	return nil, nil
}

func (r *memoryPosts) GetByID(_ context.Context, id string) (*models.Post, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if post, ok := r.store.posts[id]; ok {
		p := post
		return &p, nil
	}
	return nil, nil
}

func (r *memoryPosts) Save(_ context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.posts[post.ID] = *post
	return nil
}

func (r *memoryPosts) List(_ context.Context, limit, offset int) ([]models.Post, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	posts := make([]models.Post, 0, len(r.store.posts))
	for _, post := range r.store.posts {
		posts = append(posts, post)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })
	return pageOf(posts, limit, offset), nil
}

func (r *memoryPosts) ListIDs(_ context.Context) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ids := make([]string, 0, len(r.store.posts))
	for id := range r.store.posts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memoryPosts) ListRefs(_ context.Context) ([]EntityRef, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	refs := make([]EntityRef, 0, len(r.store.posts))
	for id, post := range r.store.posts {
		refs = append(refs, EntityRef{ID: id, ParentID: post.UserID})
	}
	return refs, nil
}

func (r *memoryPosts) CountByUser(_ context.Context, userID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, post := range r.store.posts {
		if post.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *memoryPosts) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.posts, id)
	return nil
}

func (r *memoryPosts) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := r.store.posts[id]; ok {
			delete(r.store.posts, id)
			deleted++
		}
	}
	return deleted, nil
}

type memoryComments struct {
	store *MemoryStore
}

func (r *memoryComments) FindByExternalID(_ context.Context, externalID int) (*models.Comment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, comment := range r.store.comments {
		if comment.ExternalID != nil && *comment.ExternalID == externalID {
			c := comment
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memoryComments) GetByID(_ context.Context, id string) (*models.Comment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if comment, ok := r.store.comments[id]; ok {
		c := comment
		return &c, nil
	}
	return nil, nil
}

func (r *memoryComments) Save(_ context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.comments[comment.ID] = *comment
	return nil
}

func (r *memoryComments) List(_ context.Context, limit, offset int) ([]models.Comment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	comments := make([]models.Comment, 0, len(r.store.comments))
	for _, comment := range r.store.comments {
		comments = append(comments, comment)
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })
	return pageOf(comments, limit, offset), nil
}

func (r *memoryComments) ListRefs(_ context.Context) ([]EntityRef, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	refs := make([]EntityRef, 0, len(r.store.comments))
	for id, comment := range r.store.comments {
		refs = append(refs, EntityRef{ID: id, ParentID: comment.PostID})
	}
	return refs, nil
}

func (r *memoryComments) CountByPost(_ context.Context, postID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, comment := range r.store.comments {
		if comment.PostID == postID {
			count++
		}
	}
	return count, nil
}

func (r *memoryComments) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.comments, id)
	return nil
}

func (r *memoryComments) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := r.store.comments[id]; ok {
			delete(r.store.comments, id)
			deleted++
		}
	}
	return deleted, nil
}

// pageOf applies limit/offset slicing to an already sorted slice. A limit
// of zero or less means no limit.
func pageOf[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
