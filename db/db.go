package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements store.Store on top of MongoDB.
type MongoStore struct {
	Client *mongo.Client

	UsersCollection     *mongo.Collection
	FavoritesCollection *mongo.Collection
	SlotCollection      *mongo.Collection
	SessionsCollection  *mongo.Collection
	QueueCollection     *mongo.Collection
	BookingsCollection  *mongo.Collection
	TemplatesCollection *mongo.Collection
	CountersCollection  *mongo.Collection
}

var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// Connect dials MongoDB, binds the collections of database dbName and
// makes sure the indexes the store relies on exist.
func Connect(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	d := client.Database(dbName)
	s := &MongoStore{
		Client:              client,
		UsersCollection:     d.Collection("users"),
		FavoritesCollection: d.Collection("favorites"),
		SlotCollection:      d.Collection("slots"),
		SessionsCollection:  d.Collection("sessions"),
		QueueCollection:     d.Collection("queue"),
		BookingsCollection:  d.Collection("bookings"),
		TemplatesCollection: d.Collection("templates"),
		CountersCollection:  d.Collection("counters"),
	}
	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	log.Printf("[db] connected to mongo database %q", dbName)
	return s, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.UsersCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(caseInsensitive),
		}},
		{s.SlotCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		// One active session per slot: active_slot only exists while
		// the session is running.
		{s.SessionsCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "active_slot", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"active_slot": bson.M{"$exists": true}}),
		}},
		{s.SessionsCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "started_at", Value: -1}},
		}},
		{s.QueueCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "slot_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.BookingsCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "slot_id", Value: 1}, {Key: "date", Value: 1}, {Key: "status", Value: 1}},
		}},
	}
	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateOne(ctx, ix.model); err != nil {
			return fmt.Errorf("create index on %s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}

// nextID hands out sequential integer ids per entity name.
func (s *MongoStore) nextID(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.CountersCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}
	return doc.Seq, nil
}
