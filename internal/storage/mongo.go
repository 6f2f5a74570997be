package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nexfeed/content-sync-service/internal/config"
	"github.com/nexfeed/content-sync-service/internal/models"
)

const syncStatusKey = "sync_status"

// MongoStore implements Store using MongoDB.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	posts    *mongo.Collection
	comments *mongo.Collection
	state    *mongo.Collection
}

// NewMongoStore connects to MongoDB and ensures the indexes the merge key
// relies on (unique sparse index on external_id per collection).
func NewMongoStore(cfg config.StorageConfig) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(cfg.MongoDBName)
	store := &MongoStore{
		client:   client,
		users:    db.Collection("users"),
		posts:    db.Collection("posts"),
		comments: db.Collection("comments"),
		state:    db.Collection("sync_state"),
	}

	if err := store.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	return store, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	externalID := mongo.IndexModel{
		Keys:    bson.D{{Key: "external_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	}
	for _, coll := range []*mongo.Collection{s.users, s.posts, s.comments} {
		if _, err := coll.Indexes().CreateOne(ctx, externalID); err != nil {
			return err
		}
	}
	parentIdx := map[*mongo.Collection]string{
		s.posts:    "user_id",
		s.comments: "post_id",
	}
	for coll, field := range parentIdx {
		idx := mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
		if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

// Users returns the user repository.
func (s *MongoStore) Users() UserRepository { return &mongoUsers{coll: s.users} }

// Posts returns the post repository.
func (s *MongoStore) Posts() PostRepository { return &mongoPosts{coll: s.posts} }

// Comments returns the comment repository.
func (s *MongoStore) Comments() CommentRepository { return &mongoComments{coll: s.comments} }

// SaveSyncStatus upserts the single sync status document.
func (s *MongoStore) SaveSyncStatus(ctx context.Context, status models.SyncStatus) error {
	_, err := s.state.ReplaceOne(ctx,
		bson.M{"_id": syncStatusKey},
		bson.M{"_id": syncStatusKey, "status": status},
		options.Replace().SetUpsert(true))
	return err
}

// GetSyncStatus returns the persisted sync status, or a zero status when no
// run has been recorded.
func (s *MongoStore) GetSyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	var doc struct {
		Status models.SyncStatus `bson:"status"`
	}
	err := s.state.FindOne(ctx, bson.M{"_id": syncStatusKey}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return &models.SyncStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc.Status, nil
}

// Ping checks connectivity to the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mongoListIDs(ctx context.Context, coll *mongo.Collection) ([]string, error) {
	raw, err := coll.Distinct(ctx, "_id", bson.M{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func mongoListRefs(ctx context.Context, coll *mongo.Collection, parentField string) ([]EntityRef, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, parentField: 1})
	cursor, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var refs []EntityRef
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ref := EntityRef{}
		if id, ok := doc["_id"].(string); ok {
			ref.ID = id
		}
		if parent, ok := doc[parentField].(string); ok {
			ref.ParentID = parent
		}
		refs = append(refs, ref)
	}
	return refs, cursor.Err()
}

func mongoDeleteByIDs(ctx context.Context, coll *mongo.Collection, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return int(result.DeletedCount), nil
}

type mongoUsers struct {
	coll *mongo.Collection
}

func (r *mongoUsers) FindByExternalID(ctx context.Context, externalID int) (*models.User, error) {
	var user models.User
	err := r.coll.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *mongoUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *mongoUsers) Save(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, options.Replace().SetUpsert(true))
	return err
}

func (r *mongoUsers) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *mongoUsers) ListIDs(ctx context.Context) ([]string, error) {
	return mongoListIDs(ctx, r.coll)
}

func (r *mongoUsers) Delete(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

type mongoPosts struct {
	coll *mongo.Collection
}

func (r *mongoPosts) FindByExternalID(ctx context.Context, externalID int) (*models.Post, error) {
	var post models.Post
	err := r.coll.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *mongoPosts) GetByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *mongoPosts) Save(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": post.ID}, post, options.Replace().SetUpsert(true))
	return err
}

func (r *mongoPosts) List(ctx context.Context, limit, offset int) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	posts := []models.Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *mongoPosts) ListIDs(ctx context.Context) ([]string, error) {
	return mongoListIDs(ctx, r.coll)
}

func (r *mongoPosts) ListRefs(ctx context.Context) ([]EntityRef, error) {
	return mongoListRefs(ctx, r.coll, "user_id")
}

func (r *mongoPosts) CountByUser(ctx context.Context, userID string) (int, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"user_id": userID})
	return int(count), err
}

func (r *mongoPosts) Delete(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *mongoPosts) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	return mongoDeleteByIDs(ctx, r.coll, ids)
}

type mongoComments struct {
	coll *mongo.Collection
}

func (r *mongoComments) FindByExternalID(ctx context.Context, externalID int) (*models.Comment, error) {
	var comment models.Comment
	err := r.coll.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&comment)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *mongoComments) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&comment)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *mongoComments) Save(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": comment.ID}, comment, options.Replace().SetUpsert(true))
	return err
}

func (r *mongoComments) List(ctx context.Context, limit, offset int) ([]models.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	comments := []models.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (r *mongoComments) ListRefs(ctx context.Context) ([]EntityRef, error) {
	return mongoListRefs(ctx, r.coll, "post_id")
}

func (r *mongoComments) CountByPost(ctx context.Context, postID string) (int, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"post_id": postID})
	return int(count), err
}

func (r *mongoComments) Delete(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *mongoComments) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	return mongoDeleteByIDs(ctx, r.coll, ids)
}
