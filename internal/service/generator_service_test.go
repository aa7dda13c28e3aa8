package service

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"classbook/internal/config"
	"classbook/internal/domain"
	"classbook/internal/models"
	"classbook/internal/repository"
	"classbook/internal/scheduler"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBookingService struct {
	mock.Mock
}

func (m *mockBookingService) CreateBooking(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingService) MakeReservation(ctx context.Context, id, caller string) (*models.Booking, error) {
	args := m.Called(ctx, id, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingService) CancelReservation(ctx context.Context, id, caller string) (*models.Booking, error) {
	args := m.Called(ctx, id, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingService) ListAll(ctx context.Context) ([]*models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingService) ListByOwner(ctx context.Context, owner string) ([]*models.Booking, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingService) DeleteBooking(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

var fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func generatorConfig() config.GeneratorConfig {
	return config.GeneratorConfig{
		Rooms:       models.DefaultRooms,
		Hours:       models.DefaultHours,
		HorizonDays: models.DefaultHorizonDays,
		IDPrefix:    models.DefaultGeneratedIDPrefix,
		RetryFactor: models.DefaultRetryFactor,
		Timezone:    "UTC",
	}
}

func newTestGenerator(t *testing.T, bookings domain.BookingService, cfg config.GeneratorConfig) *GeneratorService {
	t.Helper()
	logger := zerolog.New(io.Discard)
	g, err := NewGeneratorService(bookings, cfg, &logger,
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	return g
}

func memoryBookingService() *BookingService {
	logger := zerolog.New(io.Discard)
	return NewBookingService(repository.NewMemoryBookingStore(), nil, false, &logger)
}

func TestGeneratorService_GenerateExact(t *testing.T) {
	ctx := context.Background()

	t.Run("ProducesConflictFreeFreeBookings", func(t *testing.T) {
		svc := memoryBookingService()
		g := newTestGenerator(t, svc, generatorConfig())

		got, err := g.GenerateExact(ctx, 40)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), 40)
		assert.NotEmpty(t, got)

		start := models.DateOf(fixedNow)
		end := start.AddDate(0, 0, models.DefaultHorizonDays)
		for i, b := range got {
			assert.Equal(t, models.StatusFree, b.Status)
			assert.Empty(t, b.Owner)
			assert.GreaterOrEqual(t, b.Priority, models.MinPriority)
			assert.LessOrEqual(t, b.Priority, models.MaxPriority)
			assert.False(t, b.Date.Before(start))
			assert.True(t, b.Date.Before(end))
			assert.Contains(t, models.DefaultHours, b.Time.Hour())
			for _, other := range got[i+1:] {
				assert.False(t, scheduler.Conflicts(b, other), "%s vs %s", b.ID, other.ID)
			}
		}

		all, err := svc.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, len(got))
	})

	t.Run("AvoidsPreexistingBookings", func(t *testing.T) {
		svc := memoryBookingService()
		day := models.DateOf(fixedNow)
		for _, b := range []*models.Booking{
			{ID: "p1", Date: day, Time: models.NewTimeOfDay(10, 0), Room: "A101", Priority: 2},
			{ID: "p2", Date: day, Time: models.NewTimeOfDay(13, 0), Room: "A101", Priority: 4},
			{ID: "p3", Date: day.AddDate(0, 0, 1), Time: models.NewTimeOfDay(12, 30), Room: "A101", Priority: 1},
		} {
			_, err := svc.CreateBooking(ctx, b)
			require.NoError(t, err)
		}
		preexisting, err := svc.ListAll(ctx)
		require.NoError(t, err)

		cfg := generatorConfig()
		cfg.Rooms = []string{"A101"}
		cfg.Hours = []int{9, 11, 13, 15}
		cfg.HorizonDays = 2
		cfg.RetryFactor = 20

		g := newTestGenerator(t, svc, cfg)
		got, err := g.GenerateExact(ctx, 8)
		require.NoError(t, err)
		// only day one 15:00 and day two 9:00, 15:00 clear the seeded bookings
		assert.Len(t, got, 3)
		for _, b := range got {
			assert.Nil(t, scheduler.FindConflict(preexisting, b), "%s at %s %s", b.ID, b.Date.Format(models.DateLayout), b.Time)
		}
	})

	t.Run("HugeCountIsBoundedByFreeSlots", func(t *testing.T) {
		cfg := generatorConfig()
		cfg.Rooms = []string{"A101"}
		cfg.Hours = []int{7}
		cfg.HorizonDays = 2

		for _, n := range []int{1 << 40, math.MaxInt} {
			g := newTestGenerator(t, memoryBookingService(), cfg)
			got, err := g.GenerateExact(ctx, n)
			require.NoError(t, err)
			assert.Len(t, got, 2)
		}
	})

	t.Run("CounterContinuesAfterExistingIDs", func(t *testing.T) {
		svc := memoryBookingService()
		_, err := svc.CreateBooking(ctx, &models.Booking{ID: "lab7", Date: fixedNow.AddDate(1, 0, 0), Time: models.NewTimeOfDay(8, 0), Room: "Z1", Priority: 1})
		require.NoError(t, err)
		_, err = svc.CreateBooking(ctx, &models.Booking{ID: "labX", Date: fixedNow.AddDate(1, 0, 0), Time: models.NewTimeOfDay(12, 0), Room: "Z1", Priority: 1})
		require.NoError(t, err)

		g := newTestGenerator(t, svc, generatorConfig())
		got, err := g.GenerateExact(ctx, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "lab8", got[0].ID)
	})

	t.Run("StopsWhenHorizonExhausted", func(t *testing.T) {
		cfg := generatorConfig()
		cfg.Rooms = []string{"A101"}
		cfg.Hours = []int{7}
		cfg.HorizonDays = 2

		g := newTestGenerator(t, memoryBookingService(), cfg)
		got, err := g.GenerateExact(ctx, 5)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("RetryBudgetBoundsSubmissions", func(t *testing.T) {
		bookings := new(mockBookingService)
		bookings.On("ListAll", ctx).Return([]*models.Booking{}, nil).Once()
		bookings.On("CreateBooking", ctx, mock.Anything).Return(nil, domain.ErrSlotConflict).Times(15)

		g := newTestGenerator(t, bookings, generatorConfig())
		got, err := g.GenerateExact(ctx, 3)
		require.NoError(t, err)
		assert.Empty(t, got)
		bookings.AssertExpectations(t)
		bookings.AssertNumberOfCalls(t, "CreateBooking", 15)
	})

	t.Run("Zero", func(t *testing.T) {
		bookings := new(mockBookingService)
		g := newTestGenerator(t, bookings, generatorConfig())
		got, err := g.GenerateExact(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
		bookings.AssertNotCalled(t, "ListAll", mock.Anything)
	})

	t.Run("Negative", func(t *testing.T) {
		g := newTestGenerator(t, new(mockBookingService), generatorConfig())
		_, err := g.GenerateExact(ctx, -1)
		assert.ErrorIs(t, err, domain.ErrInvalidRange)
	})
}

func TestGeneratorService_GenerateRange(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidRange", func(t *testing.T) {
		g := newTestGenerator(t, new(mockBookingService), generatorConfig())
		_, err := g.GenerateRange(ctx, 5, 2)
		assert.ErrorIs(t, err, domain.ErrInvalidRange)
		_, err = g.GenerateRange(ctx, -1, 2)
		assert.ErrorIs(t, err, domain.ErrInvalidRange)
	})

	t.Run("SpanTooWide", func(t *testing.T) {
		bookings := new(mockBookingService)
		g := newTestGenerator(t, bookings, generatorConfig())
		_, err := g.GenerateRange(ctx, 0, math.MaxInt)
		assert.ErrorIs(t, err, domain.ErrInvalidRange)
		bookings.AssertNotCalled(t, "ListAll", mock.Anything)
	})

	t.Run("HugeUpperBound", func(t *testing.T) {
		cfg := generatorConfig()
		cfg.Rooms = []string{"A101"}
		cfg.Hours = []int{7}
		cfg.HorizonDays = 2

		g := newTestGenerator(t, memoryBookingService(), cfg)
		got, err := g.GenerateRange(ctx, 1, math.MaxInt)
		require.NoError(t, err)
		assert.NotEmpty(t, got)
		assert.LessOrEqual(t, len(got), 2)
	})

	t.Run("WithinBounds", func(t *testing.T) {
		g := newTestGenerator(t, memoryBookingService(), generatorConfig())
		got, err := g.GenerateRange(ctx, 3, 6)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), 6)
	})

	t.Run("SingleValue", func(t *testing.T) {
		g := newTestGenerator(t, memoryBookingService(), generatorConfig())
		got, err := g.GenerateRange(ctx, 4, 4)
		require.NoError(t, err)
		assert.Len(t, got, 4)
	})
}

func TestGeneratorService_ClearAll(t *testing.T) {
	ctx := context.Background()

	t.Run("SkipsFailures", func(t *testing.T) {
		bookings := new(mockBookingService)
		all := []*models.Booking{{ID: "a"}, {ID: "b"}, {ID: "c"}}
		bookings.On("ListAll", ctx).Return(all, nil).Once()
		bookings.On("DeleteBooking", ctx, "a").Return(nil).Once()
		bookings.On("DeleteBooking", ctx, "b").Return(errors.New("locked")).Once()
		bookings.On("DeleteBooking", ctx, "c").Return(nil).Once()

		g := newTestGenerator(t, bookings, generatorConfig())
		n, err := g.ClearAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		bookings.AssertExpectations(t)
	})

	t.Run("ListFailure", func(t *testing.T) {
		bookings := new(mockBookingService)
		bookings.On("ListAll", ctx).Return(nil, errors.New("down")).Once()

		g := newTestGenerator(t, bookings, generatorConfig())
		_, err := g.ClearAll(ctx)
		assert.Error(t, err)
	})

	t.Run("EmptiesStore", func(t *testing.T) {
		svc := memoryBookingService()
		g := newTestGenerator(t, svc, generatorConfig())
		created, err := g.GenerateExact(ctx, 5)
		require.NoError(t, err)

		n, err := g.ClearAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(created), n)

		left, err := svc.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, left)
	})
}

func TestNewGeneratorService_BadTimezone(t *testing.T) {
	cfg := generatorConfig()
	cfg.Timezone = "Mars/Olympus"
	logger := zerolog.New(io.Discard)
	_, err := NewGeneratorService(new(mockBookingService), cfg, &logger)
	assert.Error(t, err)
}
