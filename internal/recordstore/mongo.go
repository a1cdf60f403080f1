package recordstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo stores documents in a MongoDB database, one collection per logical
// collection name and the caller's key as _id.
type Mongo struct {
	db *mongo.Database
}

// NewMongo wraps an established client connection.
func NewMongo(client *mongo.Client, database string) *Mongo {
	return &Mongo{db: client.Database(database)}
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Write upserts the full document at key.
func (s *Mongo) Write(ctx context.Context, collection, key string, doc any) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": key}, doc, opts); err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, key, err)
	}
	return nil
}

// Update merges fields into an existing document via $set.
func (s *Mongo) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, key, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
