package realtime

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Publisher sends an event to every current subscriber of the event's room.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscription delivers the events of one room until Close.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}

type Broadcaster interface {
	Publisher
	Subscriber
}

// Handler reacts to one event.
type Handler func(ctx context.Context, event Event)

// Router dispatches events to the handlers registered for their type.
type Router struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[EventType][]Handler)}
}

// On registers h for events of type t. Handlers run in registration order.
func (r *Router) On(t EventType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = append(r.handlers[t], h)
}

// Dispatch runs the handlers for event.Type and reports whether any existed.
func (r *Router) Dispatch(ctx context.Context, event Event) bool {
	r.mu.RLock()
	hs := r.handlers[event.Type]
	r.mu.RUnlock()
	for _, h := range hs {
		h(ctx, event)
	}
	return len(hs) > 0
}

// Pump feeds sub into the router until ctx ends or the subscription closes.
func (r *Router) Pump(ctx context.Context, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !r.Dispatch(ctx, ev) {
				logrus.WithFields(logrus.Fields{"room_id": ev.RoomID, "type": ev.Type}).Debug("Realtime: no handler for event")
			}
		}
	}
}
