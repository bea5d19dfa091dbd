// Package mongodb implements storage interfaces using MongoDB
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-esocial/internal/storage"
)

// Store implements storage.Store using MongoDB
type Store struct {
	client *mongo.Client
	events *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI        string
	Database   string
	Collection string
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	// Connect to MongoDB
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	collection := cfg.Collection
	if collection == "" {
		collection = "events"
	}

	s := &Store{
		client: client,
		events: db.Collection(collection),
	}

	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "nr_insc", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "event_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating event indexes: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// EventStore implementation

func (s *Store) CreateEvent(ctx context.Context, rec *storage.EventRecord) error {
	if rec.ID == "" {
		rec.ID = primitive.NewObjectID().Hex()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.Status == "" {
		rec.Status = storage.StatusPending
	}

	_, err := s.events.InsertOne(ctx, rec)
	return err
}

func (s *Store) GetEvent(ctx context.Context, id string) (*storage.EventRecord, error) {
	var rec storage.EventRecord
	err := s.events.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListEvents(ctx context.Context, filter *storage.EventFilter) ([]*storage.EventRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(filter.EffectiveLimit()))

	cursor, err := s.events.Find(ctx, listQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*storage.EventRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func listQuery(filter *storage.EventFilter) bson.M {
	query := bson.M{}
	if filter != nil {
		if filter.NrInsc != "" {
			query["nr_insc"] = filter.NrInsc
		}
		if filter.Status != "" {
			query["status"] = filter.Status
		}
	}
	return query
}

func (s *Store) UpdateEventStatus(ctx context.Context, id string, update *storage.StatusUpdate) error {
	res, err := s.events.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updateDoc(update, time.Now())})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// updateDoc mirrors storage.StatusUpdate.Apply as a $set document.
func updateDoc(u *storage.StatusUpdate, now time.Time) bson.M {
	set := bson.M{
		"status":     u.Status,
		"updated_at": now,
	}
	if u.SignedXML != "" {
		set["signed_xml"] = u.SignedXML
		set["signed_at"] = now
	}
	if u.Envelope != "" {
		set["envelope"] = u.Envelope
	}
	if u.Response != "" {
		set["response"] = u.Response
	}
	if u.StatusCode != 0 {
		set["status_code"] = u.StatusCode
	}
	if u.ResponseCode != "" {
		set["response_code"] = u.ResponseCode
	}
	if u.Protocol != "" {
		set["protocol"] = u.Protocol
	}
	if u.Error != "" {
		set["last_error"] = u.Error
	}
	if u.Status == storage.StatusSent || u.Status == storage.StatusRejected {
		set["sent_at"] = now
	}
	return set
}
