package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"classbook/internal/config"
	"classbook/internal/domain"
	"classbook/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	bookingsSetKey = "bookings"
	usersSetKey    = "users"

	// maxWatchRetries bounds optimistic WATCH/MULTI retries on a busy keyspace.
	maxWatchRetries = 5
)

func bookingKey(id string) string { return "booking:" + id }
func userKey(id string) string    { return "user:" + id }

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisBookingStore stores each booking as a JSON string under booking:{id}
// and keeps the set of ids in "bookings".
type RedisBookingStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisBookingStore(client *redis.Client) *RedisBookingStore {
	return &RedisBookingStore{client: client, now: time.Now}
}

func (r *RedisBookingStore) Insert(ctx context.Context, b *models.Booking) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	r.stamp(b)
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}

	ok, err := r.client.SetNX(ctx, bookingKey(b.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	if !ok {
		return domain.ErrDuplicateID
	}
	if err := r.client.SAdd(ctx, bookingsSetKey, b.ID).Err(); err != nil {
		return fmt.Errorf("failed to index booking: %w", err)
	}
	return nil
}

// InsertIfNoConflict watches the id set and the booking key, re-checks
// uniqueness and conflicts, and writes in a MULTI block. A concurrent writer
// aborts the transaction and the check is retried.
func (r *RedisBookingStore) InsertIfNoConflict(ctx context.Context, b *models.Booking, conflicts domain.ConflictFunc) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := bookingKey(b.ID)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrDuplicateID
		}

		existing, err := r.listWith(ctx, tx)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if conflicts(e, b) {
				return domain.ErrSlotConflict
			}
		}

		r.stamp(b)
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal booking: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, bookingsSetKey, b.ID)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, bookingsSetKey, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateID) || errors.Is(err, domain.ErrSlotConflict) {
				return err
			}
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	}
	return domain.ErrConcurrentModification
}

func (r *RedisBookingStore) stamp(b *models.Booking) {
	now := r.now().UTC()
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
}

func (r *RedisBookingStore) Get(ctx context.Context, id string) (*models.Booking, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, bookingKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking from redis: %w", err)
	}

	var b models.Booking
	if err := json.Unmarshal([]byte(val), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking: %w", err)
	}
	return &b, nil
}

func (r *RedisBookingStore) Update(ctx context.Context, b *models.Booking) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := bookingKey(b.ID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var current models.Booking
		if err := json.Unmarshal([]byte(val), &current); err != nil {
			return fmt.Errorf("failed to unmarshal booking: %w", err)
		}
		if current.Version != b.Version {
			return domain.ErrConcurrentModification
		}

		next := b.Clone()
		next.Version++
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = r.now().UTC()
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal booking: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			*b = *next
		}
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return domain.ErrConcurrentModification
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConcurrentModification):
		return err
	default:
		return fmt.Errorf("failed to update booking: %w", err)
	}
}

func (r *RedisBookingStore) Delete(ctx context.Context, id string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, bookingKey(id))
		pipe.SRem(ctx, bookingsSetKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete booking from redis: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RedisBookingStore) List(ctx context.Context) ([]*models.Booking, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return r.listWith(ctx, r.client)
}

// bookingReader is satisfied by both *redis.Client and *redis.Tx.
type bookingReader interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (r *RedisBookingStore) listWith(ctx context.Context, c bookingReader) ([]*models.Booking, error) {
	ids, err := c.SMembers(ctx, bookingsSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list booking ids: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Booking{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = bookingKey(id)
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	out := make([]*models.Booking, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var b models.Booking
		if err := json.Unmarshal([]byte(s), &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal booking: %w", err)
		}
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *RedisBookingStore) Exists(ctx context.Context, id string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	n, err := r.client.Exists(ctx, bookingKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check booking: %w", err)
	}
	return n > 0, nil
}

type RedisUserStore struct {
	client *redis.Client
}

func NewRedisUserStore(client *redis.Client) *RedisUserStore {
	return &RedisUserStore{client: client}
}

func (r *RedisUserStore) CreateUser(ctx context.Context, u *models.User) error {
	data, err := json.Marshal(redisUser{User: *u, PasswordHash: u.PasswordHash})
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	ok, err := r.client.SetNX(ctx, userKey(u.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if !ok {
		return domain.ErrUserExists
	}
	return r.client.SAdd(ctx, usersSetKey, u.ID).Err()
}

// redisUser carries the password hash, which models.User hides from JSON.
type redisUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

func (r *RedisUserStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	val, err := r.client.Get(ctx, userKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user from redis: %w", err)
	}
	var ru redisUser
	if err := json.Unmarshal([]byte(val), &ru); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	u := ru.User
	u.PasswordHash = ru.PasswordHash
	return &u, nil
}

func (r *RedisUserStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	ids, err := r.client.SMembers(ctx, usersSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.Strings(ids)
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		u, err := r.GetUser(ctx, id)
		if errors.Is(err, domain.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *RedisUserStore) DeleteUser(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, userKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return r.client.SRem(ctx, usersSetKey, id).Err()
}

type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	rk := "rate_limit:" + key
	count, err := r.client.Incr(ctx, rk).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, rk, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
