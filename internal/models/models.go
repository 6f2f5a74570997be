package models

import "time"

// EntityType identifies one of the synced entity kinds. The value doubles
// as the source API collection name.
type EntityType string

const (
	EntityUsers    EntityType = "users"
	EntityPosts    EntityType = "posts"
	EntityComments EntityType = "comments"
)

// Valid reports whether t names a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityUsers, EntityPosts, EntityComments:
		return true
	}
	return false
}

// Sync source tags recorded on every local entity.
const (
	SourceManual = "manual"
	SourceAPI    = "api"
)

// ExternalUser is the user record shape returned by the source API.
type ExternalUser struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Website  string `json:"website"`
}

// ExternalPost is the post record shape returned by the source API.
type ExternalPost struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// ExternalComment is the comment record shape returned by the source API.
// ParentID is zero when the comment is not a threaded reply.
type ExternalComment struct {
	ID       int    `json:"id"`
	PostID   int    `json:"postId"`
	ParentID int    `json:"parentId,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Body     string `json:"body"`
}

// UserStats holds denormalized aggregates recomputed on every post write.
type UserStats struct {
	PostCount int `json:"post_count" bson:"post_count"`
}

// PostStats holds denormalized aggregates recomputed on every comment write.
type PostStats struct {
	CommentCount int `json:"comment_count" bson:"comment_count"`
}

// User is a locally persisted user. ExternalID is nil for manually created
// users; at most one user exists per external id.
type User struct {
	ID         string    `json:"id" bson:"_id"`
	ExternalID *int      `json:"external_id,omitempty" bson:"external_id,omitempty"`
	Name       string    `json:"name" bson:"name"`
	Username   string    `json:"username" bson:"username"`
	Email      string    `json:"email" bson:"email"`
	Phone      string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Website    string    `json:"website,omitempty" bson:"website,omitempty"`
	Stats      UserStats `json:"stats" bson:"stats"`
	SyncSource string    `json:"sync_source" bson:"sync_source"`
	SyncedAt   time.Time `json:"synced_at" bson:"synced_at"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

// Post is a locally persisted post. UserID references the local User;
// ExternalUserID is retained only to resolve that reference during sync.
type Post struct {
	ID             string    `json:"id" bson:"_id"`
	ExternalID     *int      `json:"external_id,omitempty" bson:"external_id,omitempty"`
	UserID         string    `json:"user_id" bson:"user_id"`
	ExternalUserID int       `json:"external_user_id,omitempty" bson:"external_user_id,omitempty"`
	Title          string    `json:"title" bson:"title"`
	Body           string    `json:"body" bson:"body"`
	Stats          PostStats `json:"stats" bson:"stats"`
	SyncSource     string    `json:"sync_source" bson:"sync_source"`
	SyncedAt       time.Time `json:"synced_at" bson:"synced_at"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

// Comment is a locally persisted comment. PostID references the local Post.
// ParentCommentID is empty for top-level comments.
type Comment struct {
	ID              string    `json:"id" bson:"_id"`
	ExternalID      *int      `json:"external_id,omitempty" bson:"external_id,omitempty"`
	PostID          string    `json:"post_id" bson:"post_id"`
	ExternalPostID  int       `json:"external_post_id,omitempty" bson:"external_post_id,omitempty"`
	ParentCommentID string    `json:"parent_comment_id,omitempty" bson:"parent_comment_id,omitempty"`
	Name            string    `json:"name" bson:"name"`
	Email           string    `json:"email" bson:"email"`
	Body            string    `json:"body" bson:"body"`
	SyncSource      string    `json:"sync_source" bson:"sync_source"`
	SyncedAt        time.Time `json:"synced_at" bson:"synced_at"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at"`
}

// EntityStats counts the outcomes of one entity phase in a sync run.
type EntityStats struct {
	Created int `json:"created" bson:"created"`
	Updated int `json:"updated" bson:"updated"`
	Errors  int `json:"errors" bson:"errors"`
}

// SyncStats is the canonical per-run stats schema, one bucket per entity type.
type SyncStats struct {
	Users    EntityStats `json:"users" bson:"users"`
	Posts    EntityStats `json:"posts" bson:"posts"`
	Comments EntityStats `json:"comments" bson:"comments"`
}

// ForEntity returns the mutable stats bucket for the given entity type.
func (s *SyncStats) ForEntity(t EntityType) *EntityStats {
	switch t {
	case EntityUsers:
		return &s.Users
	case EntityPosts:
		return &s.Posts
	case EntityComments:
		return &s.Comments
	}
	return nil
}

// Summary returns totals across all entity types.
func (s *SyncStats) Summary() SyncSummary {
	return SyncSummary{
		TotalCreated: s.Users.Created + s.Posts.Created + s.Comments.Created,
		TotalUpdated: s.Users.Updated + s.Posts.Updated + s.Comments.Updated,
		TotalErrors:  s.Users.Errors + s.Posts.Errors + s.Comments.Errors,
	}
}

// SyncSummary aggregates SyncStats across entity types.
type SyncSummary struct {
	TotalCreated int `json:"total_created" bson:"total_created"`
	TotalUpdated int `json:"total_updated" bson:"total_updated"`
	TotalErrors  int `json:"total_errors" bson:"total_errors"`
}

// SyncResult is the structured outcome of a sync run. Error is set only
// when Success is false.
type SyncResult struct {
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
	Stats     SyncStats     `json:"stats"`
	Summary   SyncSummary   `json:"summary"`
	Error     string        `json:"error,omitempty"`
}

// SyncStatus tracks the state of sync runs across restarts.
type SyncStatus struct {
	InProgress   bool       `json:"in_progress" bson:"in_progress"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty" bson:"last_sync_time,omitempty"`
	LastStats    *SyncStats `json:"last_stats,omitempty" bson:"last_stats,omitempty"`
	LastError    string     `json:"last_error,omitempty" bson:"last_error,omitempty"`
}

// CleanupResult reports how many orphaned entities a cleanup pass removed.
type CleanupResult struct {
	Posts    int       `json:"posts"`
	Comments int       `json:"comments"`
	RunAt    time.Time `json:"run_at"`
}

// HealthReport is the result of probing the source API endpoints.
type HealthReport struct {
	Healthy     bool            `json:"healthy"`
	Endpoints   map[string]bool `json:"endpoints"`
	SuccessRate float64         `json:"success_rate"`
	CheckedAt   time.Time       `json:"checked_at"`
}
