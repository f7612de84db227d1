package db

import (
	"context" // For connection timeout/cancellation
	"errors"
	"fmt"  // Error formatting
	"time" // Duration for timeouts

	"go.mongodb.org/mongo-driver/v2/bson"           // Document filters
	"go.mongodb.org/mongo-driver/v2/mongo"          // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options"  // MongoDB options
	"go.mongodb.org/mongo-driver/v2/mongo/readpref" // MongoDB read preference

	"github.com/PaulBabatuyi/streams/internal/data"
)

// currentID is the _id of the one document holding the live store.
const currentID = "current"

// Mongo stores the whole workspace as a single document.
type Mongo struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	// db is the workspace database; the "snapshots" collection lives here
	db *mongo.Database

	// docID selects which snapshot document Save and Load address
	docID string
}

// snapshotDoc wraps a snapshot with its key and save time.
type snapshotDoc struct {
	ID       string         `bson:"_id"`
	SavedAt  time.Time      `bson:"saved_at"`
	Snapshot *data.Snapshot `bson:"snapshot"`
}

// NewMongo connects to MongoDB and verifies the connection with a ping.
func NewMongo(ctx context.Context, mongoURI, database string) (*Mongo, error) {
	if database == "" {
		database = "streams"
	}

	// SetConnectTimeout: fail fast if MongoDB is unreachable
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	// This doesn't actually connect yet, just creates the client
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// If ping doesn't complete in 5 seconds, fail
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// This is the actual connection test
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Mongo{
		client: client,
		db:     client.Database(database),
		docID:  currentID,
	}, nil
}

// WithDocument returns a view of m that reads and writes the snapshot stored
// under id. Backups use it to keep named copies next to the live document.
func (m *Mongo) WithDocument(id string) *Mongo {
	return &Mongo{client: m.client, db: m.db, docID: id}
}

// SnapshotsCollection returns the snapshots collection.
func (m *Mongo) SnapshotsCollection() *mongo.Collection {
	// Created if doesn't exist (MongoDB creates on first write)
	return m.db.Collection("snapshots")
}

// Save upserts the snapshot document.
func (m *Mongo) Save(ctx context.Context, snap *data.Snapshot) error {
	doc := snapshotDoc{ID: m.docID, SavedAt: time.Now().UTC(), Snapshot: snap}

	// Replace the whole document; insert it the first time round
	_, err := m.SnapshotsCollection().ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: m.docID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("replace snapshot %q: %w", m.docID, err)
	}
	return nil
}

// Load fetches the snapshot document, nil when none was saved yet.
func (m *Mongo) Load(ctx context.Context) (*data.Snapshot, error) {
	var doc snapshotDoc
	err := m.SnapshotsCollection().FindOne(ctx, bson.D{{Key: "_id", Value: m.docID}}).Decode(&doc)
	if err != nil {
		// Fresh database, nothing to restore
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find snapshot %q: %w", m.docID, err)
	}
	return doc.Snapshot, nil
}

// Ping checks the primary is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (m *Mongo) Close(ctx context.Context) error {
	// ctx can have timeout if you want to force shutdown after N seconds
	return m.client.Disconnect(ctx)
}
