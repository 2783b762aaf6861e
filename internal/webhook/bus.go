package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler consumes envelope events. Returning an error only affects the
// handler itself.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// FailureRecorder is notified when a handler fails.
type FailureRecorder interface {
	HandlerFailed(handler string, eventType EventType)
}

type subscription struct {
	name    string
	handler Handler
}

// Bus delivers events synchronously to every subscribed handler in
// subscription order. Each handler is isolated: an error or panic is logged
// and the remaining handlers still run.
type Bus struct {
	mu       sync.RWMutex
	subs     []subscription
	logger   *slog.Logger
	failures FailureRecorder
}

func NewBus(logger *slog.Logger, failures FailureRecorder) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("component", "webhook.bus"), failures: failures}
}

func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, handler: h})
}

// Publish delivers events in order. It returns the number of handler
// failures observed.
func (b *Bus) Publish(ctx context.Context, events ...Event) int {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	failed := 0
	for _, ev := range events {
		for _, s := range subs {
			if err := b.deliver(ctx, s, ev); err != nil {
				failed++
				b.logger.ErrorContext(ctx, "webhook handler failed",
					slog.String("handler", s.name),
					slog.String("event_type", string(ev.Type)),
					slog.String("event_id", ev.ID),
					slog.String("envelope_id", ev.EnvelopeID),
					slog.Any("error", err),
				)
				if b.failures != nil {
					b.failures.HandlerFailed(s.name, ev.Type)
				}
			}
		}
	}
	return failed
}

func (b *Bus) deliver(ctx context.Context, s subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return s.handler.HandleEvent(ctx, ev)
}
