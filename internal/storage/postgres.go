package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nexfeed/content-sync-service/internal/config"
	"github.com/nexfeed/content-sync-service/internal/models"
)

// PostgresStore implements Store using PostgreSQL via lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(cfg config.StorageConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			external_id INTEGER UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			post_count INTEGER NOT NULL DEFAULT 0,
			sync_source TEXT NOT NULL DEFAULT 'manual',
			synced_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			external_id INTEGER UNIQUE,
			user_id TEXT NOT NULL,
			external_user_id INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			comment_count INTEGER NOT NULL DEFAULT 0,
			sync_source TEXT NOT NULL DEFAULT 'manual',
			synced_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			external_id INTEGER UNIQUE,
			post_id TEXT NOT NULL,
			external_post_id INTEGER NOT NULL DEFAULT 0,
			parent_comment_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			sync_source TEXT NOT NULL DEFAULT 'manual',
			synced_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			key TEXT PRIMARY KEY,
			status JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_user_id ON posts (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments (post_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Users returns the user repository.
func (s *PostgresStore) Users() UserRepository { return &pgUsers{db: s.db} }

// Posts returns the post repository.
func (s *PostgresStore) Posts() PostRepository { return &pgPosts{db: s.db} }

// Comments returns the comment repository.
func (s *PostgresStore) Comments() CommentRepository { return &pgComments{db: s.db} }

// SaveSyncStatus upserts the sync status row as JSON.
func (s *PostgresStore) SaveSyncStatus(ctx context.Context, status models.SyncStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal sync status: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_state (key, status) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET status = EXCLUDED.status`,
		syncStatusKey, payload)
	return err
}

// GetSyncStatus returns the persisted sync status, or a zero status when no
// run has been recorded.
func (s *PostgresStore) GetSyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM sync_state WHERE key = $1`, syncStatusKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return &models.SyncStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	var status models.SyncStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync status: %w", err)
	}
	return &status, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func pgListIDs(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func pgListRefs(ctx context.Context, db *sql.DB, table, parentColumn string) ([]EntityRef, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, `+parentColumn+` FROM `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []EntityRef
	for rows.Next() {
		var ref EntityRef
		if err := rows.Scan(&ref.ID, &ref.ParentID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func pgDeleteByIDs(ctx context.Context, db *sql.DB, table string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

type pgUsers struct {
	db *sql.DB
}

const userColumns = `id, external_id, name, username, email, phone, website,
	post_count, sync_source, synced_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var user models.User
	var externalID sql.NullInt64
	var syncedAt sql.NullTime
	err := row.Scan(&user.ID, &externalID, &user.Name, &user.Username, &user.Email,
		&user.Phone, &user.Website, &user.Stats.PostCount, &user.SyncSource,
		&syncedAt, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.ExternalID = intPtr(externalID)
	if syncedAt.Valid {
		user.SyncedAt = syncedAt.Time
	}
	return &user, nil
}

func (r *pgUsers) FindByExternalID(ctx context.Context, externalID int) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
	return scanUser(row)
}

func (r *pgUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *pgUsers) Save(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, external_id, name, username, email, phone, website,
			post_count, sync_source, synced_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			name = EXCLUDED.name,
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			website = EXCLUDED.website,
			post_count = EXCLUDED.post_count,
			sync_source = EXCLUDED.sync_source,
			synced_at = EXCLUDED.synced_at,
			updated_at = EXCLUDED.updated_at`,
		user.ID, nullableInt(user.ExternalID), user.Name, user.Username, user.Email,
		user.Phone, user.Website, user.Stats.PostCount, user.SyncSource,
		user.SyncedAt, user.CreatedAt, user.UpdatedAt)
	return err
}

func (r *pgUsers) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *pgUsers) ListIDs(ctx context.Context) ([]string, error) {
	return pgListIDs(ctx, r.db, "users")
}

func (r *pgUsers) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

type pgPosts struct {
	db *sql.DB
}

const postColumns = `id, external_id, user_id, external_user_id, title, body,
	comment_count, sync_source, synced_at, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	var post models.Post
	var externalID sql.NullInt64
	var syncedAt sql.NullTime
	err := row.Scan(&post.ID, &externalID, &post.UserID, &post.ExternalUserID,
		&post.Title, &post.Body, &post.Stats.CommentCount, &post.SyncSource,
		&syncedAt, &post.CreatedAt, &post.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	post.ExternalID = intPtr(externalID)
	if syncedAt.Valid {
		post.SyncedAt = syncedAt.Time
	}
	return &post, nil
}

func (r *pgPosts) FindByExternalID(ctx context.Context, externalID int) (*models.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE external_id = $1`, externalID)
	return scanPost(row)
}

func (r *pgPosts) GetByID(ctx context.Context, id string) (*models.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	return scanPost(row)
}

func (r *pgPosts) Save(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, external_id, user_id, external_user_id, title, body,
			comment_count, sync_source, synced_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			user_id = EXCLUDED.user_id,
			external_user_id = EXCLUDED.external_user_id,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			comment_count = EXCLUDED.comment_count,
			sync_source = EXCLUDED.sync_source,
			synced_at = EXCLUDED.synced_at,
			updated_at = EXCLUDED.updated_at`,
		post.ID, nullableInt(post.ExternalID), post.UserID, post.ExternalUserID,
		post.Title, post.Body, post.Stats.CommentCount, post.SyncSource,
		post.SyncedAt, post.CreatedAt, post.UpdatedAt)
	return err
}

func (r *pgPosts) List(ctx context.Context, limit, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

func (r *pgPosts) ListIDs(ctx context.Context) ([]string, error) {
	return pgListIDs(ctx, r.db, "posts")
}

func (r *pgPosts) ListRefs(ctx context.Context) ([]EntityRef, error) {
	return pgListRefs(ctx, r.db, "posts", "user_id")
}

func (r *pgPosts) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

func (r *pgPosts) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	return err
}

func (r *pgPosts) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	return pgDeleteByIDs(ctx, r.db, "posts", ids)
}

type pgComments struct {
	db *sql.DB
}

const commentColumns = `id, external_id, post_id, external_post_id, parent_comment_id,
	name, email, body, sync_source, synced_at, created_at, updated_at`

func scanComment(row interface{ Scan(...any) error }) (*models.Comment, error) {
	var comment models.Comment
	var externalID sql.NullInt64
	var syncedAt sql.NullTime
	err := row.Scan(&comment.ID, &externalID, &comment.PostID, &comment.ExternalPostID,
		&comment.ParentCommentID, &comment.Name, &comment.Email, &comment.Body,
		&comment.SyncSource, &syncedAt, &comment.CreatedAt, &comment.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	comment.ExternalID = intPtr(externalID)
	if syncedAt.Valid {
		comment.SyncedAt = syncedAt.Time
	}
	return &comment, nil
}

func (r *pgComments) FindByExternalID(ctx context.Context, externalID int) (*models.Comment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE external_id = $1`, externalID)
	return scanComment(row)
}

func (r *pgComments) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1`, id)
	return scanComment(row)
}

func (r *pgComments) Save(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, external_id, post_id, external_post_id, parent_comment_id,
			name, email, body, sync_source, synced_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			post_id = EXCLUDED.post_id,
			external_post_id = EXCLUDED.external_post_id,
			parent_comment_id = EXCLUDED.parent_comment_id,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			body = EXCLUDED.body,
			sync_source = EXCLUDED.sync_source,
			synced_at = EXCLUDED.synced_at,
			updated_at = EXCLUDED.updated_at`,
		comment.ID, nullableInt(comment.ExternalID), comment.PostID, comment.ExternalPostID,
		comment.ParentCommentID, comment.Name, comment.Email, comment.Body,
		comment.SyncSource, comment.SyncedAt, comment.CreatedAt, comment.UpdatedAt)
	return err
}

func (r *pgComments) List(ctx context.Context, limit, offset int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *comment)
	}
	return comments, rows.Err()
}

func (r *pgComments) ListRefs(ctx context.Context) ([]EntityRef, error) {
	return pgListRefs(ctx, r.db, "comments", "post_id")
}

func (r *pgComments) CountByPost(ctx context.Context, postID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE post_id = $1`, postID).Scan(&count)
	return count, err
}

func (r *pgComments) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	return err
}

func (r *pgComments) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	return pgDeleteByIDs(ctx, r.db, "comments", ids)
}
