package eventing

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

// ErrUnsupportedEventType is returned for events nobody registered for.
var ErrUnsupportedEventType = errors.New("unsupported event type")

// Handler processes one decoded message.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, msg Message) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, msg)
}

// Router dispatches messages by event type.
type Router struct {
	handlers map[enums.OutboxEventType]Handler
}

func NewRouter() *Router {
	return &Router{handlers: map[enums.OutboxEventType]Handler{}}
}

// Register binds handler to eventType. Registering a type twice panics.
func (r *Router) Register(eventType enums.OutboxEventType, handler Handler) *Router {
	if handler == nil {
		panic(fmt.Sprintf("eventing: nil handler for %s", eventType))
	}
	if _, exists := r.handlers[eventType]; exists {
		panic(fmt.Sprintf("eventing: duplicate handler for %s", eventType))
	}
	r.handlers[eventType] = handler
	return r
}

// Handle implements Handler.
func (r *Router) Handle(ctx context.Context, msg Message) error {
	handler, ok := r.handlers[msg.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, msg.EventType)
	}
	return handler.Handle(ctx, msg)
}
