package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Publisher fans lifecycle events out to zero or more subscribers.
type Publisher interface {
	Publish(ctx context.Context, event any)
}

// Handler receives one event. Returning an error only produces a log entry;
// a failing or panicking handler never blocks the other subscribers or the
// publishing operation.
type Handler func(ctx context.Context, event any) error

// Fanout is an in-process Publisher delivering events synchronously to
// subscribers in registration order.
type Fanout struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *zap.Logger
}

// NewFanout builds a Fanout publisher.
func NewFanout(logger *zap.Logger) *Fanout {
	if logger == nil {
		panic("fanout publisher requires logger")
	}
	return &Fanout{logger: logger}
}

// Subscribe registers a handler for all events.
func (f *Fanout) Subscribe(h Handler) {
	if h == nil {
		return
	}
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
}

// Publish delivers the event to every subscriber. Each invocation is wrapped
// with panic recovery so one misbehaving subscriber cannot take down the
// caller or starve its siblings.
func (f *Fanout) Publish(ctx context.Context, event any) {
	f.mu.RLock()
	handlers := make([]Handler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.RUnlock()

	for _, h := range handlers {
		f.deliver(ctx, h, event)
	}
}

func (f *Fanout) deliver(ctx context.Context, h Handler, event any) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event subscriber panicked",
				zap.Any("panic", r),
				zap.Any("event", event),
			)
		}
	}()

	if err := h(ctx, event); err != nil {
		f.logger.Error("event subscriber failed",
			zap.Error(err),
			zap.Any("event", event),
		)
	}
}

var _ Publisher = (*Fanout)(nil)

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(context.Context, any) {}

var _ Publisher = Nop{}
