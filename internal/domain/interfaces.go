package domain

import (
	"context"
	"time"

	"classbook/internal/models"
)

// BookingStore persists bookings. Update is a compare-and-swap on Version:
// it succeeds only if the stored version equals b.Version and then bumps it.
type BookingStore interface {
	Insert(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id string) (*models.Booking, error)
	Update(ctx context.Context, b *models.Booking) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Booking, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// ConflictFunc reports whether two bookings may not coexist.
type ConflictFunc func(existing, candidate *models.Booking) bool

// AtomicBookingCreator is implemented by stores that can re-check uniqueness
// and conflicts and insert within one atomic boundary.
type AtomicBookingCreator interface {
	InsertIfNoConflict(ctx context.Context, b *models.Booking, conflicts ConflictFunc) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// IdentityOracle resolves a request credential to a caller id.
type IdentityOracle interface {
	ResolveCaller(ctx context.Context, credential string) (string, error)
}

type TokenIssuer interface {
	IssueToken(userID string) (string, time.Time, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type BookingService interface {
	CreateBooking(ctx context.Context, b *models.Booking) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	MakeReservation(ctx context.Context, id, callerID string) (*models.Booking, error)
	CancelReservation(ctx context.Context, id, callerID string) (*models.Booking, error)
	ListAll(ctx context.Context) ([]*models.Booking, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Booking, error)
	DeleteBooking(ctx context.Context, id string) error
}

type GeneratorService interface {
	GenerateExact(ctx context.Context, n int) ([]*models.Booking, error)
	GenerateRange(ctx context.Context, min, max int) ([]*models.Booking, error)
	ClearAll(ctx context.Context) (int, error)
}

type UserService interface {
	Register(ctx context.Context, id, email, password, confirmation string) (*models.User, error)
	Authenticate(ctx context.Context, id, password string) (string, time.Time, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}
