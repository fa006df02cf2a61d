package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoTimeout = 5 * time.Second

// MongoDBBackend keeps one document per key in the "documents" collection.
type MongoDBBackend struct {
	uri        string
	dbName     string
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoDocument struct {
	Key       string    `bson:"_id"`
	Data      string    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoDBBackend creates a MongoDB storage backend
func NewMongoDBBackend(uri, dbName string) (*MongoDBBackend, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb uri is required")
	}
	if dbName == "" {
		dbName = "geminivoice"
	}
	return &MongoDBBackend{uri: uri, dbName: dbName}, nil
}

func (m *MongoDBBackend) Name() string { return "mongodb" }

// Initialize connects to MongoDB
func (m *MongoDBBackend) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultMongoTimeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(m.uri)
	clientOptions.SetMaxPoolSize(4)
	clientOptions.SetServerSelectionTimeout(defaultMongoTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m.client = client
	m.collection = client.Database(m.dbName).Collection("documents")
	return nil
}

// Close closes MongoDB connection
func (m *MongoDBBackend) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultMongoTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoDBBackend) Health(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("mongodb storage not initialized")
	}
	return m.client.Ping(ctx, nil)
}

func (m *MongoDBBackend) GetDocument(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultMongoTimeout)
	defer cancel()
	var doc mongoDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &ErrNotFound{Key: key}
		}
		return nil, err
	}
	return []byte(doc.Data), nil
}

func (m *MongoDBBackend) PutDocument(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, defaultMongoTimeout)
	defer cancel()
	doc := mongoDocument{Key: key, Data: string(data), UpdatedAt: time.Now().UTC()}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoDBBackend) DeleteDocument(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultMongoTimeout)
	defer cancel()
	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": key})
	return err
}
