package service

import (
	"context"
	"errors"
	"strings"

	"classbook/internal/domain"
	"classbook/internal/events"
	"classbook/internal/metrics"
	"classbook/internal/models"
	"classbook/internal/scheduler"

	"github.com/rs/zerolog"
)

type BookingService struct {
	store           domain.BookingStore
	eventBus        domain.EventPublisher
	strictOwnership bool
	logger          *zerolog.Logger
}

func NewBookingService(store domain.BookingStore, eventBus domain.EventPublisher, strictOwnership bool, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		store:           store,
		eventBus:        eventBus,
		strictOwnership: strictOwnership,
		logger:          logger,
	}
}

// CreateBooking validates a candidate and stores it as a free slot. Checks run
// in a fixed order: well-formed input, id uniqueness, priority range, then the
// conflict scan.
func (s *BookingService) CreateBooking(ctx context.Context, candidate *models.Booking) (*models.Booking, error) {
	if candidate == nil || strings.TrimSpace(candidate.ID) == "" || strings.TrimSpace(candidate.Room) == "" ||
		candidate.Date.IsZero() || !candidate.Time.Valid() {
		metrics.IncBookingOutcome("invalid")
		return nil, domain.ErrInvalidBooking
	}

	b := candidate.Clone()
	b.Date = models.DateOf(b.Date)
	b.Status = models.StatusFree
	b.Owner = ""

	exists, err := s.store.Exists(ctx, b.ID)
	if err != nil {
		metrics.IncBookingOutcome("error")
		return nil, err
	}
	if exists {
		metrics.IncBookingOutcome("duplicate")
		return nil, domain.ErrDuplicateID
	}

	if b.Priority < models.MinPriority || b.Priority > models.MaxPriority {
		metrics.IncBookingOutcome("invalid_priority")
		return nil, domain.ErrInvalidPriority
	}

	existing, err := s.store.List(ctx)
	if err != nil {
		metrics.IncBookingOutcome("error")
		return nil, err
	}
	if other := scheduler.FindConflict(existing, b); other != nil {
		metrics.IncBookingOutcome("conflict")
		s.logger.Debug().Str("booking_id", b.ID).Str("conflicts_with", other.ID).Msg("slot conflict")
		return nil, domain.ErrSlotConflict
	}

	if atomic, ok := s.store.(domain.AtomicBookingCreator); ok {
		err = atomic.InsertIfNoConflict(ctx, b, scheduler.Conflicts)
	} else {
		err = s.store.Insert(ctx, b)
	}
	if err != nil {
		metrics.IncBookingOutcome(outcomeOf(err))
		return nil, err
	}

	metrics.IncBookingOutcome("created")
	s.publishEvent(events.EventBookingCreated, b, "")
	return b, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.store.Get(ctx, id)
}

// MakeReservation marks a free booking as reserved by callerID.
func (s *BookingService) MakeReservation(ctx context.Context, id, callerID string) (*models.Booking, error) {
	if callerID == "" {
		metrics.IncReservation("make", "unauthenticated")
		return nil, domain.ErrUnauthenticated
	}

	b, err := s.store.Get(ctx, id)
	if err != nil {
		metrics.IncReservation("make", outcomeOf(err))
		return nil, err
	}
	if b.Reserved() {
		metrics.IncReservation("make", "already_reserved")
		return nil, domain.ErrAlreadyReserved
	}

	b.Status = models.StatusReserved
	b.Owner = callerID
	if err := s.store.Update(ctx, b); err != nil {
		metrics.IncReservation("make", outcomeOf(err))
		return nil, err
	}

	metrics.IncReservation("make", "ok")
	s.publishEvent(events.EventBookingReserved, b, callerID)
	return b, nil
}

// CancelReservation releases a reserved booking. A booking reserved without a
// recorded owner may be released by anyone unless strict ownership is on.
func (s *BookingService) CancelReservation(ctx context.Context, id, callerID string) (*models.Booking, error) {
	if callerID == "" {
		metrics.IncReservation("cancel", "unauthenticated")
		return nil, domain.ErrUnauthenticated
	}

	b, err := s.store.Get(ctx, id)
	if err != nil {
		metrics.IncReservation("cancel", outcomeOf(err))
		return nil, err
	}
	if !b.Reserved() {
		metrics.IncReservation("cancel", "already_free")
		return nil, domain.ErrAlreadyFree
	}
	if b.Owner != callerID && (b.Owner != "" || s.strictOwnership) {
		metrics.IncReservation("cancel", "not_owner")
		return nil, domain.ErrNotOwner
	}

	b.Status = models.StatusFree
	b.Owner = ""
	if err := s.store.Update(ctx, b); err != nil {
		metrics.IncReservation("cancel", outcomeOf(err))
		return nil, err
	}

	metrics.IncReservation("cancel", "ok")
	s.publishEvent(events.EventBookingReleased, b, callerID)
	return b, nil
}

func (s *BookingService) ListAll(ctx context.Context) ([]*models.Booking, error) {
	return s.store.List(ctx)
}

func (s *BookingService) ListByOwner(ctx context.Context, ownerID string) ([]*models.Booking, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthenticated
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	owned := make([]*models.Booking, 0)
	for _, b := range all {
		if b.Reserved() && b.Owner == ownerID {
			owned = append(owned, b)
		}
	}
	return owned, nil
}

func (s *BookingService) DeleteBooking(ctx context.Context, id string) error {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.publishEvent(events.EventBookingDeleted, b, "")
	return nil
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID: b.ID,
		Room:      b.Room,
		Date:      b.Date.Format(models.DateLayout),
		Time:      b.Time.String(),
		Priority:  b.Priority,
		Status:    string(b.Status),
		Owner:     b.Owner,
		ChangedBy: changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", b.ID).Msg("publish event error")
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateID):
		return "duplicate"
	case errors.Is(err, domain.ErrSlotConflict):
		return "conflict"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "concurrent_modification"
	default:
		return "error"
	}
}
