// Package handlers implements the per-event-family projection writers:
// idempotent handlers that translate a parsed event into an update against
// the Projection Store.
package handlers

import (
	"context"

	"github.com/billie/servicing-projector/internal/projection"
)

// Handler is the single-method contract every projection handler
// implements. event is either a *events.ParsedEvent (account/customer
// families) or an events.Envelope (chat/write-off families); the
// type discrimination happens inside each adapter, not in the registry.
type Handler interface {
	Handle(ctx context.Context, store projection.Store, event interface{}) error
}

// HandlerFunc adapts a plain function to the Handler interface, mirroring
// the teacher's functional-option style used elsewhere in the codebase.
type HandlerFunc func(ctx context.Context, store projection.Store, event interface{}) error

func (f HandlerFunc) Handle(ctx context.Context, store projection.Store, event interface{}) error {
	return f(ctx, store, event)
}

// Registry is the event_type -> Handler mapping the processor loop
// dispatches through. Unknown event types are not an error at the registry
// level; the loop decides how to treat a miss (log + ack, per spec).
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(eventType string, h Handler) {
	r.handlers[eventType] = h
}

func (r *Registry) Lookup(eventType string) (Handler, bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}

// RegisterAll wires every handler in §4.4 of the projection spec into a
// fresh registry, grouped by family.
func RegisterAll(r *Registry) {
	RegisterCustomerHandlers(r)
	RegisterAccountHandlers(r)
	RegisterConversationHandlers(r)
	RegisterWriteOffHandlers(r)
}
