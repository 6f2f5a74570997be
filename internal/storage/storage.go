package storage

import (
	"context"
	"fmt"

	"github.com/nexfeed/content-sync-service/internal/config"
	"github.com/nexfeed/content-sync-service/internal/models"
)

// EntityRef is a minimal (id, parent id) projection used by the orphan
// cleanup scan.
type EntityRef struct {
	ID       string
	ParentID string
}

// UserRepository is the persistence contract for users. Find methods return
// (nil, nil) when no matching record exists.
type UserRepository interface {
	FindByExternalID(ctx context.Context, externalID int) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// Save inserts the user, assigning an ID when empty, or replaces the
	// stored record with the same ID.
	Save(ctx context.Context, user *models.User) error
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	ListIDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// PostRepository is the persistence contract for posts.
type PostRepository interface {
	FindByExternalID(ctx context.Context, externalID int) (*models.Post, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	Save(ctx context.Context, post *models.Post) error
	List(ctx context.Context, limit, offset int) ([]models.Post, error)
	ListIDs(ctx context.Context) ([]string, error)
	// ListRefs returns every post's (id, user id) pair for orphan scanning.
	ListRefs(ctx context.Context) ([]EntityRef, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, id string) error
	// DeleteByIDs removes the given posts in one bulk operation and returns
	// how many were deleted.
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// CommentRepository is the persistence contract for comments.
type CommentRepository interface {
	FindByExternalID(ctx context.Context, externalID int) (*models.Comment, error)
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	Save(ctx context.Context, comment *models.Comment) error
	List(ctx context.Context, limit, offset int) ([]models.Comment, error)
	// ListRefs returns every comment's (id, post id) pair for orphan scanning.
	ListRefs(ctx context.Context) ([]EntityRef, error)
	CountByPost(ctx context.Context, postID string) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// Store is the persisted store consumed by the sync engine.
type Store interface {
	Users() UserRepository
	Posts() PostRepository
	Comments() CommentRepository

	// SaveSyncStatus persists the outcome of the most recent sync run.
	SaveSyncStatus(ctx context.Context, status models.SyncStatus) error
	// GetSyncStatus returns the persisted status, or a zero status if no
	// run has ever been recorded.
	GetSyncStatus(ctx context.Context) (*models.SyncStatus, error)

	Ping(ctx context.Context) error
	Close() error
}

// NewStore creates a store instance based on configuration
func NewStore(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "mongodb":
		return NewMongoStore(cfg)
	case "postgresql":
		return NewPostgresStore(cfg)
	case "dynamodb":
		return NewDynamoDBStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
