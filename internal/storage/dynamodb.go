package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/google/uuid"

	"github.com/nexfeed/content-sync-service/internal/config"
	"github.com/nexfeed/content-sync-service/internal/models"
)

// dynamoBatchLimit is the DynamoDB BatchWriteItem cap.
const dynamoBatchLimit = 25

// DynamoDBStore implements Store using AWS DynamoDB. Lookups that are not
// by primary key use table scans, which is acceptable at this dataset size.
type DynamoDBStore struct {
	client *dynamodb.DynamoDB
	prefix string
}

// NewDynamoDBStore creates a new DynamoDB store instance.
func NewDynamoDBStore(cfg config.StorageConfig) (*DynamoDBStore, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	store := &DynamoDBStore{
		client: dynamodb.New(sess),
		prefix: cfg.TablePrefix,
	}

	for _, table := range []string{store.table("users"), store.table("posts"),
		store.table("comments"), store.table("sync_state")} {
		if err := store.ensureTable(table); err != nil {
			return nil, fmt.Errorf("failed to ensure table %s exists: %w", table, err)
		}
	}

	return store, nil
}

func (d *DynamoDBStore) table(name string) string {
	return d.prefix + "_" + name
}

// ensureTable creates the DynamoDB table if it doesn't exist
func (d *DynamoDBStore) ensureTable(name string) error {
	_, err := d.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})
	if err == nil {
		return nil // Table already exists
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       aws.String("HASH"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("id"),
				AttributeType: aws.String("S"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}

	if _, err := d.client.CreateTable(input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return d.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})
}

// Users returns the user repository.
func (d *DynamoDBStore) Users() UserRepository {
	return &dynamoUsers{repo: dynamoRepo{store: d, tableName: d.table("users")}}
}

// Posts returns the post repository.
func (d *DynamoDBStore) Posts() PostRepository {
	return &dynamoPosts{repo: dynamoRepo{store: d, tableName: d.table("posts")}}
}

// Comments returns the comment repository.
func (d *DynamoDBStore) Comments() CommentRepository {
	return &dynamoComments{repo: dynamoRepo{store: d, tableName: d.table("comments")}}
}

// SaveSyncStatus stores the sync status under a fixed key.
func (d *DynamoDBStore) SaveSyncStatus(ctx context.Context, status models.SyncStatus) error {
	item, err := dynamodbattribute.MarshalMap(status)
	if err != nil {
		return fmt.Errorf("failed to marshal sync status: %w", err)
	}
	item["id"] = &dynamodb.AttributeValue{S: aws.String(syncStatusKey)}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table("sync_state")),
		Item:      item,
	})
	return err
}

// GetSyncStatus returns the persisted sync status, or a zero status when no
// run has been recorded.
func (d *DynamoDBStore) GetSyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	result, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table("sync_state")),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(syncStatusKey)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}
	if result.Item == nil {
		return &models.SyncStatus{}, nil
	}

	var status models.SyncStatus
	if err := dynamodbattribute.UnmarshalMap(result.Item, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync status: %w", err)
	}
	return &status, nil
}

// Ping verifies the users table is reachable.
func (d *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.table("users")),
	})
	return err
}

// Close closes the DynamoDB connection
func (d *DynamoDBStore) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}

// dynamoRepo holds the shared scan/put/delete plumbing for one table.
type dynamoRepo struct {
	store     *DynamoDBStore
	tableName string
}

func (r *dynamoRepo) put(ctx context.Context, entity any) error {
	item, err := dynamodbattribute.MarshalMap(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	_, err = r.store.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *dynamoRepo) getByID(ctx context.Context, id string, out any) (bool, error) {
	result, err := r.store.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := dynamodbattribute.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return true, nil
}

// scan runs a full table scan with an optional filter, appending pages into
// out (a pointer to a slice).
func (r *dynamoRepo) scan(ctx context.Context, filter string, values map[string]*dynamodb.AttributeValue, out any) error {
	input := &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
	}
	if filter != "" {
		input.FilterExpression = aws.String(filter)
		input.ExpressionAttributeValues = values
	}

	var items []map[string]*dynamodb.AttributeValue
	err := r.store.client.ScanPagesWithContext(ctx, input,
		func(page *dynamodb.ScanOutput, _ bool) bool {
			items = append(items, page.Items...)
			return true
		})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", r.tableName, err)
	}

	return dynamodbattribute.UnmarshalListOfMaps(items, out)
}

func (r *dynamoRepo) deleteByID(ctx context.Context, id string) error {
	_, err := r.store.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
		},
	})
	return err
}

func (r *dynamoRepo) deleteByIDs(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	for start := 0; start < len(ids); start += dynamoBatchLimit {
		end := start + dynamoBatchLimit
		if end > len(ids) {
			end = len(ids)
		}

		requests := make([]*dynamodb.WriteRequest, 0, end-start)
		for _, id := range ids[start:end] {
			requests = append(requests, &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{
					Key: map[string]*dynamodb.AttributeValue{
						"id": {S: aws.String(id)},
					},
				},
			})
		}

		_, err := r.store.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]*dynamodb.WriteRequest{
				r.tableName: requests,
			},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to batch delete from %s: %w", r.tableName, err)
		}
		deleted += len(requests)
	}
	return deleted, nil
}

func (r *dynamoRepo) listIDs(ctx context.Context) ([]string, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	if err := r.scan(ctx, "", nil, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

func externalIDFilter(externalID int) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		":eid": {N: aws.String(fmt.Sprintf("%d", externalID))},
	}
}

type dynamoUsers struct {
	repo dynamoRepo
}

func (r *dynamoUsers) FindByExternalID(ctx context.Context, externalID int) (*models.User, error) {
	var users []models.User
	err := r.repo.scan(ctx, "external_id = :eid", externalIDFilter(externalID), &users)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (r *dynamoUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	found, err := r.repo.getByID(ctx, id, &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

func (r *dynamoUsers) Save(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	return r.repo.put(ctx, user)
}

func (r *dynamoUsers) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	if err := r.repo.scan(ctx, "", nil, &users); err != nil {
		return nil, err
	}
	return pageOf(users, limit, offset), nil
}

func (r *dynamoUsers) ListIDs(ctx context.Context) ([]string, error) {
	return r.repo.listIDs(ctx)
}

func (r *dynamoUsers) Delete(ctx context.Context, id string) error {
	return r.repo.deleteByID(ctx, id)
}

type dynamoPosts struct {
	repo dynamoRepo
}

func (r *dynamoPosts) FindByExternalID(ctx context.Context, externalID int) (*models.Post, error) {
	var posts []models.Post
	err := r.repo.scan(ctx, "external_id = :eid", externalIDFilter(externalID), &posts)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}

func (r *dynamoPosts) GetByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	found, err := r.repo.getByID(ctx, id, &post)
	if err != nil || !found {
		return nil, err
	}
	return &post, nil
}

func (r *dynamoPosts) Save(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	return r.repo.put(ctx, post)
}

func (r *dynamoPosts) List(ctx context.Context, limit, offset int) ([]models.Post, error) {
	var posts []models.Post
	if err := r.repo.scan(ctx, "", nil, &posts); err != nil {
		return nil, err
	}
	return pageOf(posts, limit, offset), nil
}

func (r *dynamoPosts) ListIDs(ctx context.Context) ([]string, error) {
	return r.repo.listIDs(ctx)
}

func (r *dynamoPosts) ListRefs(ctx context.Context) ([]EntityRef, error) {
	var rows []struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
	}
	if err := r.repo.scan(ctx, "", nil, &rows); err != nil {
		return nil, err
	}
	refs := make([]EntityRef, len(rows))
	for i, row := range rows {
		refs[i] = EntityRef{ID: row.ID, ParentID: row.UserID}
	}
	return refs, nil
}

func (r *dynamoPosts) CountByUser(ctx context.Context, userID string) (int, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	values := map[string]*dynamodb.AttributeValue{
		":uid": {S: aws.String(userID)},
	}
	if err := r.repo.scan(ctx, "user_id = :uid", values, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *dynamoPosts) Delete(ctx context.Context, id string) error {
	return r.repo.deleteByID(ctx, id)
}

func (r *dynamoPosts) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	return r.repo.deleteByIDs(ctx, ids)
}

type dynamoComments struct {
	repo dynamoRepo
}

func (r *dynamoComments) FindByExternalID(ctx context.Context, externalID int) (*models.Comment, error) {
	var comments []models.Comment
	err := r.repo.scan(ctx, "external_id = :eid", externalIDFilter(externalID), &comments)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, nil
	}
	return &comments[0], nil
}

func (r *dynamoComments) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	found, err := r.repo.getByID(ctx, id, &comment)
	if err != nil || !found {
		return nil, err
	}
	return &comment, nil
}

func (r *dynamoComments) Save(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	return r.repo.put(ctx, comment)
}

func (r *dynamoComments) List(ctx context.Context, limit, offset int) ([]models.Comment, error) {
	var comments []models.Comment
	if err := r.repo.scan(ctx, "", nil, &comments); err != nil {
		return nil, err
	}
	return pageOf(comments, limit, offset), nil
}

func (r *dynamoComments) ListRefs(ctx context.Context) ([]EntityRef, error) {
	var rows []struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := r.repo.scan(ctx, "", nil, &rows); err != nil {
		return nil, err
	}
	refs := make([]EntityRef, len(rows))
	for i, row := range rows {
		refs[i] = EntityRef{ID: row.ID, ParentID: row.PostID}
	}
	return refs, nil
}

func (r *dynamoComments) CountByPost(ctx context.Context, postID string) (int, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	values := map[string]*dynamodb.AttributeValue{
		":pid": {S: aws.String(postID)},
	}
	if err := r.repo.scan(ctx, "post_id = :pid", values, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *dynamoComments) Delete(ctx context.Context, id string) error {
	return r.repo.deleteByID(ctx, id)
}

func (r *dynamoComments) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	return r.repo.deleteByIDs(ctx, ids)
}
