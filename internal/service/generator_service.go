package service

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"classbook/internal/config"
	"classbook/internal/domain"
	"classbook/internal/metrics"
	"classbook/internal/models"
	"classbook/internal/scheduler"

	"github.com/rs/zerolog"
)

// GeneratorService fills the booking store with synthetic free slots and
// clears it. Calls are serialised per instance.
type GeneratorService struct {
	mu          sync.Mutex
	bookings    domain.BookingService
	rng         *rand.Rand
	now         func() time.Time
	location    *time.Location
	rooms       []string
	hours       []int
	horizonDays int
	idPrefix    string
	retryFactor int
	logger      *zerolog.Logger
}

type GeneratorOption func(*GeneratorService)

func WithRand(rng *rand.Rand) GeneratorOption {
	return func(g *GeneratorService) { g.rng = rng }
}

func WithClock(now func() time.Time) GeneratorOption {
	return func(g *GeneratorService) { g.now = now }
}

func NewGeneratorService(bookings domain.BookingService, cfg config.GeneratorConfig, logger *zerolog.Logger, opts ...GeneratorOption) (*GeneratorService, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load generator timezone: %w", err)
	}

	g := &GeneratorService{
		bookings:    bookings,
		now:         time.Now,
		location:    loc,
		rooms:       cfg.Rooms,
		hours:       cfg.Hours,
		horizonDays: cfg.HorizonDays,
		idPrefix:    cfg.IDPrefix,
		retryFactor: cfg.RetryFactor,
		logger:      logger,
	}
	if g.idPrefix == "" {
		g.idPrefix = models.DefaultGeneratedIDPrefix
	}
	if g.retryFactor <= 0 {
		g.retryFactor = models.DefaultRetryFactor
	}
	if g.horizonDays <= 0 {
		g.horizonDays = models.DefaultHorizonDays
	}
	if len(g.rooms) == 0 {
		g.rooms = models.DefaultRooms
	}
	if len(g.hours) == 0 {
		g.hours = models.DefaultHours
	}

	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = rand.Uint64()
		}
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return g, nil
}

// GenerateRange draws n uniformly from [min, max] and generates n bookings.
func (g *GeneratorService) GenerateRange(ctx context.Context, min, max int) ([]*models.Booking, error) {
	if min < 0 || max < min || max-min == math.MaxInt {
		return nil, domain.ErrInvalidRange
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	n := min + g.rng.IntN(max-min+1)
	return g.generate(ctx, n)
}

func (g *GeneratorService) GenerateExact(ctx context.Context, n int) ([]*models.Booking, error) {
	if n < 0 {
		return nil, domain.ErrInvalidRange
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.generate(ctx, n)
}

// generate makes at most target*retryFactor submissions, where target is n
// capped by the free slots in the horizon, and returns what succeeded.
func (g *GeneratorService) generate(ctx context.Context, n int) ([]*models.Booking, error) {
	if n == 0 {
		return []*models.Booking{}, nil
	}

	existing, err := g.bookings.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	counter := g.nextCounter(existing)
	slots := scheduler.NewSlotIndex(g.rooms, g.hours, g.now().In(g.location), g.horizonDays, existing)

	target := min(n, slots.Len())
	created := make([]*models.Booking, 0, target)
	budget := attemptBudget(target, g.retryFactor)
	attempts := 0
	for ; attempts < budget && len(created) < target; attempts++ {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		slot, ok := slots.Sample(g.rng)
		if !ok {
			g.logger.Debug().Int("generated", len(created)).Msg("no free slots left in horizon")
			break
		}

		candidate := &models.Booking{
			ID:       g.idPrefix + strconv.Itoa(counter),
			Date:     slot.Date,
			Time:     slot.Time(),
			Room:     slot.Room,
			Priority: models.MinPriority + g.rng.IntN(models.MaxPriority-models.MinPriority+1),
		}
		counter++

		b, err := g.bookings.CreateBooking(ctx, candidate)
		if err != nil {
			metrics.IncGeneratorAttempt("rejected")
			g.logger.Debug().Err(err).
				Str("booking_id", candidate.ID).
				Str("room", slot.Room).
				Str("date", slot.Date.Format(models.DateLayout)).
				Int("hour", slot.Hour).
				Msg("generated booking rejected")
			continue
		}

		metrics.IncGeneratorAttempt("created")
		slots.Occupy(slot)
		created = append(created, b)
	}

	g.logger.Info().Int("requested", n).Int("generated", len(created)).Int("attempts", attempts).Msg("bookings generated")
	return created, nil
}

// attemptBudget returns target*factor, saturating at math.MaxInt.
func attemptBudget(target, factor int) int {
	if target > 0 && factor > math.MaxInt/target {
		return math.MaxInt
	}
	return target * factor
}

// nextCounter returns one past the largest numeric suffix among ids carrying
// the generator prefix.
func (g *GeneratorService) nextCounter(existing []*models.Booking) int {
	maxSuffix := 0
	for _, b := range existing {
		if !strings.HasPrefix(b.ID, g.idPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(b.ID, g.idPrefix))
		if err != nil || n < 0 {
			continue
		}
		if n > maxSuffix {
			maxSuffix = n
		}
	}
	return maxSuffix + 1
}

// ClearAll deletes every booking and returns how many deletions were
// attempted. Individual failures are logged and skipped.
func (g *GeneratorService) ClearAll(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	all, err := g.bookings.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list bookings: %w", err)
	}

	failed := 0
	for _, b := range all {
		if err := g.bookings.DeleteBooking(ctx, b.ID); err != nil {
			failed++
			g.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("failed to delete booking")
		}
	}

	g.logger.Info().Int("attempted", len(all)).Int("failed", failed).Msg("bookings cleared")
	return len(all), nil
}
