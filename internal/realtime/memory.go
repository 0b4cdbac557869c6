package realtime

import (
	"context"
	"sync"
)

const subscriptionBuffer = 64

// MemoryBroadcaster fans events out inside one process. A subscriber whose buffer is
// full misses the event, the same as a dropped pub/sub message.
type MemoryBroadcaster struct {
	mu     sync.RWMutex
	rooms  map[string]map[*memorySubscription]struct{}
	closed bool
}

func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{rooms: make(map[string]map[*memorySubscription]struct{})}
}

func (b *MemoryBroadcaster) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.rooms[event.RoomID] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryBroadcaster) Subscribe(_ context.Context, roomID string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &memorySubscription{b: b, roomID: roomID, ch: make(chan Event, subscriptionBuffer)}
	if b.closed {
		close(sub.ch)
		return sub, nil
	}
	if b.rooms[roomID] == nil {
		b.rooms[roomID] = make(map[*memorySubscription]struct{})
	}
	b.rooms[roomID][sub] = struct{}{}
	return sub, nil
}

// Close ends every subscription.
func (b *MemoryBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for roomID, subs := range b.rooms {
		for sub := range subs {
			close(sub.ch)
		}
		delete(b.rooms, roomID)
	}
	b.closed = true
}

type memorySubscription struct {
	b      *MemoryBroadcaster
	roomID string
	ch     chan Event
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan Event { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		subs, ok := s.b.rooms[s.roomID]
		if !ok {
			return
		}
		if _, ok := subs[s]; !ok {
			return
		}
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.b.rooms, s.roomID)
		}
		close(s.ch)
	})
	return nil
}
