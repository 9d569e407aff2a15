// Package memory provides an in-process run event broker for deployments
// without Kafka and for tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
)

// Handler receives published run events.
type Handler func(ctx context.Context, event scanning.RunEvent) error

// Broker implements scanning.EventPublisher by delivering every event
// synchronously to the handlers subscribed at publish time.
type Broker struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

var _ scanning.EventPublisher = (*Broker)(nil)

// NewBroker creates a Broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{handlers: make(map[int]Handler)}
}

// Subscribe registers handler until ctx is done.
func (b *Broker) Subscribe(ctx context.Context, handler Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}()

	return nil
}

// PublishRunEvent implements scanning.EventPublisher. Every handler is called
// even if an earlier one fails; their errors are joined.
func (b *Broker) PublishRunEvent(ctx context.Context, event scanning.RunEvent) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
