package changefeed

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Channel is the postgres NOTIFY channel the row triggers write to.
const Channel = "row_changes"

const subscriberBuffer = 32

// Change is one row-level insert, update or delete.
type Change struct {
	Table string         `json:"table"`
	Op    string         `json:"op"`
	Row   map[string]any `json:"row"`
}

// Decode parses a NOTIFY payload.
func Decode(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("changefeed: bad payload: %w", err)
	}
	if c.Table == "" {
		return Change{}, fmt.Errorf("changefeed: payload without table")
	}
	return c, nil
}

// Filter matches changes on Table. When Column is set the row value must equal Value.
type Filter struct {
	Table  string
	Column string
	Value  string
}

func (f Filter) Match(c Change) bool {
	if f.Table != c.Table {
		return false
	}
	if f.Column == "" {
		return true
	}
	v, ok := c.Row[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

type subscriber struct {
	filters []Filter
	ch      chan Change
}

// Feed fans changes out to subscribers. Slow subscribers miss changes.
type Feed struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[*subscriber]struct{})}
}

// Subscribe returns changes matching any of filters, plus a cancel func that
// closes the channel. With no filters nothing is delivered.
func (f *Feed) Subscribe(filters ...Filter) (<-chan Change, func()) {
	s := &subscriber{filters: filters, ch: make(chan Change, subscriberBuffer)}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, s)
			f.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, cancel
}

// Publish delivers c to every matching subscriber without blocking.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for s := range f.subs {
		for _, flt := range s.filters {
			if !flt.Match(c) {
				continue
			}
			select {
			case s.ch <- c:
			default:
			}
			break
		}
	}
}

// Subscribers reports the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
