package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vditaxi/models"
	"vditaxi/store"
)

var _ store.Store = (*MongoStore)(nil)

// sessionDoc adds the field backing the one-active-session index.
type sessionDoc struct {
	models.SessionRecord `bson:",inline"`
	ActiveSlot           string `bson:"active_slot,omitempty"`
}

type favoritesDoc struct {
	UserID  int64    `bson:"user_id"`
	SlotIDs []string `bson:"slot_ids"`
}

func mapErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

// ---------- Users ----------

func (s *MongoStore) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	id, err := s.nextID(ctx, "users")
	if err != nil {
		return models.User{}, err
	}
	u.ID = id
	if _, err := s.UsersCollection.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, store.ErrUsernameTaken
		}
		return models.User{}, err
	}
	return u, nil
}

func (s *MongoStore) UserByID(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.UsersCollection.FindOne(ctx, bson.M{"id": id}).Decode(&u)
	return u, mapErr(err)
}

func (s *MongoStore) UserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := s.UsersCollection.FindOne(ctx, bson.M{"username": username},
		options.FindOne().SetCollation(caseInsensitive),
	).Decode(&u)
	return u, mapErr(err)
}

func (s *MongoStore) UpdateUser(ctx context.Context, u models.User) error {
	res, err := s.UsersCollection.ReplaceOne(ctx, bson.M{"id": u.ID}, u)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	cur, err := s.UsersCollection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *MongoStore) Favorites(ctx context.Context, userID int64) ([]string, error) {
	var doc favoritesDoc
	err := s.FavoritesCollection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	return doc.SlotIDs, err
}

func (s *MongoStore) SetFavorites(ctx context.Context, userID int64, slotIDs []string) error {
	if slotIDs == nil {
		slotIDs = []string{}
	}
	_, err := s.FavoritesCollection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"slot_ids": slotIDs}},
		options.Update().SetUpsert(true),
	)
	return err
}

// ---------- Slots ----------

func (s *MongoStore) UpsertSlot(ctx context.Context, slot models.SlotRecord) error {
	_, err := s.SlotCollection.ReplaceOne(ctx, bson.M{"id": slot.ID}, slot, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetSlot(ctx context.Context, id string) (models.SlotRecord, error) {
	var slot models.SlotRecord
	err := s.SlotCollection.FindOne(ctx, bson.M{"id": id}).Decode(&slot)
	return slot, mapErr(err)
}

func (s *MongoStore) ListSlots(ctx context.Context, includeInactive bool) ([]models.SlotRecord, error) {
	filter := bson.M{}
	if !includeInactive {
		filter["is_active"] = true
	}
	cur, err := s.SlotCollection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var slots []models.SlotRecord
	if err := cur.All(ctx, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// ---------- Sessions ----------

func (s *MongoStore) StartSession(ctx context.Context, userID int64, slotID string, at time.Time) (models.SessionRecord, error) {
	id, err := s.nextID(ctx, "sessions")
	if err != nil {
		return models.SessionRecord{}, err
	}
	doc := sessionDoc{
		SessionRecord: models.SessionRecord{ID: id, UserID: userID, SlotID: slotID, StartedAt: at},
		ActiveSlot:    slotID,
	}
	if _, err := s.SessionsCollection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.SessionRecord{}, store.ErrSlotTaken
		}
		return models.SessionRecord{}, err
	}
	return doc.SessionRecord, nil
}

func (s *MongoStore) ActiveSession(ctx context.Context, slotID string) (models.SessionRecord, error) {
	var doc sessionDoc
	err := s.SessionsCollection.FindOne(ctx, bson.M{"active_slot": slotID}).Decode(&doc)
	return doc.SessionRecord, mapErr(err)
}

func (s *MongoStore) ActiveSessions(ctx context.Context) ([]models.SessionRecord, error) {
	cur, err := s.SessionsCollection.Find(ctx,
		bson.M{"active_slot": bson.M{"$exists": true}},
		options.Find().SetSort(bson.D{{Key: "id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	return decodeSessions(ctx, cur)
}

func (s *MongoStore) EndSession(ctx context.Context, id int64, at time.Time, reason string) (models.SessionRecord, error) {
	var doc sessionDoc
	err := s.SessionsCollection.FindOneAndUpdate(ctx,
		bson.M{"id": id, "active_slot": bson.M{"$exists": true}},
		bson.M{
			"$set":   bson.M{"ended_at": at, "end_reason": reason},
			"$unset": bson.M{"active_slot": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	return doc.SessionRecord, mapErr(err)
}

func (s *MongoStore) GetSession(ctx context.Context, id int64) (models.SessionRecord, error) {
	var doc sessionDoc
	err := s.SessionsCollection.FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	return doc.SessionRecord, mapErr(err)
}

func (s *MongoStore) SessionHistory(ctx context.Context, userID int64, limit int) ([]models.SessionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.SessionsCollection.Find(ctx,
		bson.M{"user_id": userID, "ended_at": bson.M{"$exists": true}},
		opts,
	)
	if err != nil {
		return nil, err
	}
	return decodeSessions(ctx, cur)
}

func (s *MongoStore) SessionsSince(ctx context.Context, since time.Time) ([]models.SessionRecord, error) {
	cur, err := s.SessionsCollection.Find(ctx,
		bson.M{"started_at": bson.M{"$gte": since}},
		options.Find().SetSort(bson.D{{Key: "id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	return decodeSessions(ctx, cur)
}

func decodeSessions(ctx context.Context, cur *mongo.Cursor) ([]models.SessionRecord, error) {
	var docs []sessionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.SessionRecord, len(docs))
	for i, d := range docs {
		out[i] = d.SessionRecord
	}
	return out, nil
}

// ---------- Queue ----------

func (s *MongoStore) Enqueue(ctx context.Context, slotID string, userID int64, at time.Time) (models.QueueEntry, int, error) {
	var entry models.QueueEntry
	err := s.QueueCollection.FindOne(ctx, bson.M{"slot_id": slotID, "user_id": userID}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		var last models.QueueEntry
		err = s.QueueCollection.FindOne(ctx, bson.M{"slot_id": slotID},
			options.FindOne().SetSort(bson.D{{Key: "position", Value: -1}}),
		).Decode(&last)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return models.QueueEntry{}, 0, err
		}
		entry = models.QueueEntry{SlotID: slotID, UserID: userID, Position: last.Position + 1, CreatedAt: at}
		if _, err = s.QueueCollection.InsertOne(ctx, entry); err != nil && !mongo.IsDuplicateKeyError(err) {
			return models.QueueEntry{}, 0, err
		}
		if err != nil {
			// Lost a race with our own concurrent request; report the stored entry.
			if err := s.QueueCollection.FindOne(ctx, bson.M{"slot_id": slotID, "user_id": userID}).Decode(&entry); err != nil {
				return models.QueueEntry{}, 0, err
			}
		}
	} else if err != nil {
		return models.QueueEntry{}, 0, err
	}

	total, err := s.QueueSize(ctx, slotID)
	if err != nil {
		return models.QueueEntry{}, 0, err
	}
	return entry, total, nil
}

func (s *MongoStore) Dequeue(ctx context.Context, slotID string, userID int64) error {
	res, err := s.QueueCollection.DeleteOne(ctx, bson.M{"slot_id": slotID, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MongoStore) PopQueue(ctx context.Context, slotID string) (models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.QueueCollection.FindOneAndDelete(ctx, bson.M{"slot_id": slotID},
		options.FindOneAndDelete().SetSort(bson.D{{Key: "position", Value: 1}}),
	).Decode(&entry)
	return entry, mapErr(err)
}

func (s *MongoStore) QueueSize(ctx context.Context, slotID string) (int, error) {
	n, err := s.QueueCollection.CountDocuments(ctx, bson.M{"slot_id": slotID})
	return int(n), err
}

// ---------- Bookings ----------

func (s *MongoStore) ListBookings(ctx context.Context, userID int64) ([]models.Booking, error) {
	cur, err := s.BookingsCollection.Find(ctx,
		bson.M{"user_id": userID, "status": models.BookingActive},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var out []models.Booking
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateBooking checks overlaps and inserts in two steps; two
// simultaneous requests for the same window can both pass the check.
func (s *MongoStore) CreateBooking(ctx context.Context, b models.Booking) (models.Booking, error) {
	cur, err := s.BookingsCollection.Find(ctx, bson.M{
		"slot_id": b.SlotID, "date": b.Date, "status": models.BookingActive,
	})
	if err != nil {
		return models.Booking{}, err
	}
	var existing []models.Booking
	if err := cur.All(ctx, &existing); err != nil {
		return models.Booking{}, err
	}
	for _, e := range existing {
		if b.Overlaps(e) {
			return models.Booking{}, &store.BookingConflictError{Existing: e}
		}
	}

	id, err := s.nextID(ctx, "bookings")
	if err != nil {
		return models.Booking{}, err
	}
	b.ID = id
	if b.Status == "" {
		b.Status = models.BookingActive
	}
	if _, err := s.BookingsCollection.InsertOne(ctx, b); err != nil {
		return models.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	return b, nil
}

func (s *MongoStore) CancelBooking(ctx context.Context, userID, id int64) error {
	res, err := s.BookingsCollection.UpdateOne(ctx,
		bson.M{"id": id, "user_id": userID},
		bson.M{"$set": bson.M{"status": models.BookingCancelled}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---------- Templates ----------

func (s *MongoStore) ListTemplates(ctx context.Context) ([]models.Template, error) {
	cur, err := s.TemplatesCollection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []models.Template
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) GetTemplate(ctx context.Context, id int64) (models.Template, error) {
	var t models.Template
	err := s.TemplatesCollection.FindOne(ctx, bson.M{"id": id}).Decode(&t)
	return t, mapErr(err)
}

func (s *MongoStore) CreateTemplate(ctx context.Context, t models.Template) (models.Template, error) {
	id, err := s.nextID(ctx, "templates")
	if err != nil {
		return models.Template{}, err
	}
	t.ID = id
	if _, err := s.TemplatesCollection.InsertOne(ctx, t); err != nil {
		return models.Template{}, err
	}
	return t, nil
}

func (s *MongoStore) UpdateTemplate(ctx context.Context, t models.Template) error {
	res, err := s.TemplatesCollection.ReplaceOne(ctx, bson.M{"id": t.ID}, t)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteTemplate(ctx context.Context, id int64) error {
	res, err := s.TemplatesCollection.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MongoStore) IncrementTemplateUsage(ctx context.Context, id int64) error {
	res, err := s.TemplatesCollection.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$inc": bson.M{"usage_count": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
