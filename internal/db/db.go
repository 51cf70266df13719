// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Client wraps mongo.Client and exposes the collections the server uses.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	// db is the application database; the "users" and "chat_rooms"
	// collections are accessed through it
	db *mongo.Database
}

// New connects to MongoDB and returns a Client.
func New(ctx context.Context, mongoURI, dbName string) (*Client, error) {
	// SetConnectTimeout: fail fast if MongoDB is unreachable
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping verifies the connection actually works; bound it so startup can't
	// hang on a dead server.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database(dbName),
	}, nil
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// RoomsCollection returns the chat rooms collection.
func (c *Client) RoomsCollection() *mongo.Collection {
	return c.db.Collection("chat_rooms")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// ===== USERS COLLECTION INDEXES =====
	usersIndexes := []mongo.IndexModel{
		{
			// Unique email: no two accounts share an address. Backs
			// GetUserByEmail and guards duplicate signups.
			Keys:    map[string]int{"email": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			// The match ingestor resolves scorer candidates to users by the
			// profile photo file name. This index is what makes that reverse
			// lookup an indexed query rather than a collection scan.
			Keys: map[string]int{"profile_photo": 1},
		},
	}

	if _, err := c.UsersCollection().Indexes().CreateMany(ctx, usersIndexes); err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}

	// ===== CHAT ROOMS COLLECTION INDEX =====
	// Unique room_id is the storage-level guarantee that concurrent
	// get-or-create calls for the same room never produce duplicates.
	roomsIndexModel := mongo.IndexModel{
		Keys:    map[string]int{"room_id": 1},
		Options: options.Index().SetUnique(true),
	}

	if _, err := c.RoomsCollection().Indexes().CreateOne(ctx, roomsIndexModel); err != nil {
		return fmt.Errorf("failed to create chat_rooms index: %w", err)
	}

	return nil
}
