package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"classbook/internal/domain"
	"classbook/internal/models"
)

// MemoryBookingStore keeps bookings in process memory. Records are copied on
// the way in and out so callers never share state with the store.
type MemoryBookingStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	now      func() time.Time
}

func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{
		bookings: make(map[string]*models.Booking),
		now:      time.Now,
	}
}

func (r *MemoryBookingStore) Insert(ctx context.Context, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(b)
}

func (r *MemoryBookingStore) insertLocked(b *models.Booking) error {
	if _, ok := r.bookings[b.ID]; ok {
		return domain.ErrDuplicateID
	}
	now := r.now()
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	r.bookings[b.ID] = b.Clone()
	return nil
}

// InsertIfNoConflict runs the uniqueness and conflict checks and the insert
// under the store's write lock.
func (r *MemoryBookingStore) InsertIfNoConflict(ctx context.Context, b *models.Booking, conflicts domain.ConflictFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[b.ID]; ok {
		return domain.ErrDuplicateID
	}
	for _, existing := range r.bookings {
		if conflicts(existing, b) {
			return domain.ErrSlotConflict
		}
	}
	return r.insertLocked(b)
}

func (r *MemoryBookingStore) Get(ctx context.Context, id string) (*models.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b.Clone(), nil
}

func (r *MemoryBookingStore) Update(ctx context.Context, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bookings[b.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != b.Version {
		return domain.ErrConcurrentModification
	}

	b.Version++
	b.CreatedAt = current.CreatedAt
	b.UpdatedAt = r.now()
	r.bookings[b.ID] = b.Clone()
	return nil
}

func (r *MemoryBookingStore) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.bookings, id)
	return nil
}

func (r *MemoryBookingStore) List(ctx context.Context) ([]*models.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Booking, 0, len(r.bookings))
	for _, b := range r.bookings {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryBookingStore) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bookings[id]
	return ok, nil
}

type MemoryUserStore struct {
	users sync.Map
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{}
}

func (r *MemoryUserStore) CreateUser(ctx context.Context, u *models.User) error {
	c := *u
	if _, loaded := r.users.LoadOrStore(u.ID, &c); loaded {
		return domain.ErrUserExists
	}
	return nil
}

func (r *MemoryUserStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	val, ok := r.users.Load(id)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *val.(*models.User)
	return &c, nil
}

func (r *MemoryUserStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	var out []*models.User
	r.users.Range(func(_, v any) bool {
		c := *v.(*models.User)
		out = append(out, &c)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryUserStore) DeleteUser(ctx context.Context, id string) error {
	if _, loaded := r.users.LoadAndDelete(id); !loaded {
		return domain.ErrUserNotFound
	}
	return nil
}

type MemoryRateLimiter struct {
	mu         sync.Mutex
	rateLimits map[string]*rateLimitEntry
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{rateLimits: make(map[string]*rateLimitEntry)}
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	} else {
		entry.count++
	}

	return entry.count <= limit, nil
}
