package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classbook/internal/config"
	"classbook/internal/domain"
	"classbook/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	BookingsCollection = "bookings"
	UsersCollection    = "users"
)

// ConnectMongo opens a client and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// withTimeout bounds ctx by timeout unless it already has an earlier deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}

// MongoBookingStore keeps bookings in the "bookings" collection keyed by _id.
// Uniqueness is enforced by the _id index; there is no atomic conflict
// re-check, so concurrent creators may both pass the service-level scan.
type MongoBookingStore struct {
	collection   *mongo.Collection
	readTimeout  time.Duration
	writeTimeout time.Duration
	now          func() time.Time
}

func NewMongoBookingStore(db *mongo.Database, cfg config.MongoConfig) *MongoBookingStore {
	return &MongoBookingStore{
		collection:   db.Collection(BookingsCollection),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		now:          time.Now,
	}
}

// EnsureIndexes creates the (room, date) lookup index.
func (r *MongoBookingStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room", Value: 1}, {Key: "date", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create booking index: %w", err)
	}
	return nil
}

func (r *MongoBookingStore) Insert(ctx context.Context, b *models.Booking) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	now := r.now().UTC().Truncate(time.Millisecond)
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, b); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *MongoBookingStore) Get(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	var b models.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &b, nil
}

func (r *MongoBookingStore) Update(ctx context.Context, b *models.Booking) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	now := r.now().UTC().Truncate(time.Millisecond)
	filter := bson.M{"_id": b.ID, "version": b.Version}
	update := bson.M{
		"$set": bson.M{
			"date":       b.Date,
			"time":       b.Time,
			"room":       b.Room,
			"priority":   b.Priority,
			"status":     b.Status,
			"owner":      b.Owner,
			"updated_at": now,
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		n, err := r.collection.CountDocuments(ctx, bson.M{"_id": b.ID}, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConcurrentModification
	}

	b.Version++
	b.UpdatedAt = now
	return nil
}

func (r *MongoBookingStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoBookingStore) List(ctx context.Context) ([]*models.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []*models.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *MongoBookingStore) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check booking: %w", err)
	}
	return n > 0, nil
}

type MongoUserStore struct {
	collection   *mongo.Collection
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewMongoUserStore(db *mongo.Database, cfg config.MongoConfig) *MongoUserStore {
	return &MongoUserStore{
		collection:   db.Collection(UsersCollection),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (r *MongoUserStore) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *MongoUserStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	var u models.User
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

func (r *MongoUserStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	ctx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []*models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (r *MongoUserStore) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.writeTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
