package worker

import (
	"context"
	"time"

	"classbook/internal/events"
	"classbook/internal/metrics"

	"github.com/rs/zerolog"
)

// Sink receives forwarded events, e.g. events.KafkaSink.
type Sink interface {
	Write(ctx context.Context, event *events.Event) error
}

// EventForwarder buffers bus events in a bounded queue and delivers them to a
// Sink in the background, retrying failed writes with backoff. When the queue
// is full new events are dropped so publishers never block.
type EventForwarder struct {
	sink         Sink
	queue        chan *events.Event
	retryPolicy  RetryPolicy
	writeTimeout time.Duration
	logger       *zerolog.Logger
}

func NewEventForwarder(sink Sink, queueSize int, retry RetryPolicy, logger *zerolog.Logger) *EventForwarder {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &EventForwarder{
		sink:         sink,
		queue:        make(chan *events.Event, queueSize),
		retryPolicy:  retry.WithDefaults(),
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// Attach subscribes the forwarder to every booking event type on bus.
func (f *EventForwarder) Attach(bus *events.EventBus) {
	for _, t := range events.AllTypes {
		bus.Subscribe(t, func(ev *events.Event) error {
			f.Enqueue(ev)
			return nil
		})
	}
}

// Enqueue reports whether the event was accepted.
func (f *EventForwarder) Enqueue(ev *events.Event) bool {
	select {
	case f.queue <- ev:
		return true
	default:
		metrics.IncEventForwarded("dropped")
		f.logger.Warn().Str("event_type", ev.Type).Str("key", ev.Key).Msg("event queue full, dropping event")
		return false
	}
}

// Run delivers queued events until ctx is done, then flushes what is left
// with a single attempt per event.
func (f *EventForwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.drain()
			return
		case ev := <-f.queue:
			f.deliver(ctx, ev)
		}
	}
}

func (f *EventForwarder) drain() {
	for {
		select {
		case ev := <-f.queue:
			ctx, cancel := context.WithTimeout(context.Background(), f.writeTimeout)
			if err := f.write(ctx, ev); err != nil {
				metrics.IncEventForwarded("failed")
				f.logger.Error().Err(err).Str("event_type", ev.Type).Msg("event lost on shutdown")
			} else {
				metrics.IncEventForwarded("ok")
			}
			cancel()
		default:
			return
		}
	}
}

func (f *EventForwarder) deliver(ctx context.Context, ev *events.Event) {
	for attempt := 1; ; attempt++ {
		err := f.write(ctx, ev)
		if err == nil {
			metrics.IncEventForwarded("ok")
			return
		}

		if attempt > f.retryPolicy.MaxRetries {
			metrics.IncEventForwarded("failed")
			f.logger.Error().Err(err).Str("event_type", ev.Type).Str("key", ev.Key).Int("attempts", attempt).Msg("event delivery failed")
			return
		}

		f.logger.Warn().Err(err).Str("event_type", ev.Type).Int("attempt", attempt).Msg("event delivery failed, retrying")
		if !f.retryPolicy.Wait(ctx, attempt) {
			// shutting down; leave the event for drain
			f.Enqueue(ev)
			return
		}
	}
}

func (f *EventForwarder) write(ctx context.Context, ev *events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, f.writeTimeout)
	defer cancel()
	return f.sink.Write(ctx, ev)
}
