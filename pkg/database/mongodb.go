package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/grigta/outreach/pkg/logger"
)

// MongoDB wraps a connected client scoped to one database.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	timeout  time.Duration
}

func NewMongoDB(uri string, dbName string, timeout time.Duration) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	clientOptions.SetMaxPoolSize(50)
	clientOptions.SetMinPoolSize(10)
	clientOptions.SetMaxConnIdleTime(5 * time.Minute)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB", logger.Field{Key: "database", Value: dbName})

	return &MongoDB{
		client:   client,
		database: client.Database(dbName),
		timeout:  timeout,
	}, nil
}

func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

func (m *MongoDB) FindOne(ctx context.Context, collection string, filter interface{}, result interface{}) error {
	err := m.Collection(collection).FindOne(ctx, filter).Decode(result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrNotFound
		}
		return fmt.Errorf("failed to find document: %w", err)
	}
	return nil
}

func (m *MongoDB) Find(ctx context.Context, collection string, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	return m.Collection(collection).Find(ctx, filter, opts...)
}

func (m *MongoDB) InsertOne(ctx context.Context, collection string, document interface{}) (*mongo.InsertOneResult, error) {
	res, err := m.Collection(collection).InsertOne(ctx, document)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return res, nil
}

// Upsert replaces the document matching filter, inserting it when absent.
func (m *MongoDB) Upsert(ctx context.Context, collection string, filter interface{}, document interface{}) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := m.Collection(collection).ReplaceOne(ctx, filter, document, opts); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (m *MongoDB) UpdateOne(ctx context.Context, collection string, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return m.Collection(collection).UpdateOne(ctx, filter, update, opts...)
}

func (m *MongoDB) DeleteOne(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error) {
	return m.Collection(collection).DeleteOne(ctx, filter)
}

func (m *MongoDB) DeleteMany(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error) {
	return m.Collection(collection).DeleteMany(ctx, filter)
}

func (m *MongoDB) CountDocuments(ctx context.Context, collection string, filter interface{}) (int64, error) {
	return m.Collection(collection).CountDocuments(ctx, filter)
}

func (m *MongoDB) CreateIndexes(collection string, indexes []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	_, err := m.Collection(collection).Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *MongoDB) CreateUniqueIndex(collection string, fields []string) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{},
		Options: options.Index().SetUnique(true),
	}

	for _, field := range fields {
		indexModel.Keys = append(indexModel.Keys.(bson.D), bson.E{Key: field, Value: 1})
	}

	return m.CreateIndexes(collection, []mongo.IndexModel{indexModel})
}

func (m *MongoDB) CreateCompoundIndex(collection string, fields map[string]int) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{},
	}

	for field, order := range fields {
		indexModel.Keys = append(indexModel.Keys.(bson.D), bson.E{Key: field, Value: order})
	}

	return m.CreateIndexes(collection, []mongo.IndexModel{indexModel})
}
