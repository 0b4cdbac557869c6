package changefeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	c, err := Decode(`{"table":"game_rooms","op":"UPDATE","row":{"id":"r1","status":"playing"}}`)

	require.NoError(t, err)
	assert.Equal(t, "game_rooms", c.Table)
	assert.Equal(t, "UPDATE", c.Op)
	assert.Equal(t, "playing", c.Row["status"])
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode("not json")
	assert.Error(t, err)

	_, err = Decode(`{"op":"INSERT"}`)
	assert.Error(t, err)
}

func TestFilter_Match(t *testing.T) {
	c := Change{Table: "game_room_players", Op: "INSERT", Row: map[string]any{"room_id": "r1", "score": float64(300)}}

	assert.True(t, Filter{Table: "game_room_players"}.Match(c))
	assert.True(t, Filter{Table: "game_room_players", Column: "room_id", Value: "r1"}.Match(c))
	assert.True(t, Filter{Table: "game_room_players", Column: "score", Value: "300"}.Match(c))
	assert.False(t, Filter{Table: "game_room_players", Column: "room_id", Value: "r2"}.Match(c))
	assert.False(t, Filter{Table: "game_room_players", Column: "missing", Value: "r1"}.Match(c))
	assert.False(t, Filter{Table: "game_rooms", Column: "room_id", Value: "r1"}.Match(c))
}

func TestFeed_DeliversMatchingChangesOnce(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe(
		Filter{Table: "game_rooms", Column: "id", Value: "r1"},
		Filter{Table: "game_room_players", Column: "room_id", Value: "r1"},
		Filter{Table: "game_rooms"},
	)
	defer cancel()

	feed.Publish(Change{Table: "game_rooms", Op: "UPDATE", Row: map[string]any{"id": "r1"}})
	feed.Publish(Change{Table: "presence", Op: "UPDATE", Row: map[string]any{"user_id": "u1"}})

	select {
	case c := <-ch:
		assert.Equal(t, "game_rooms", c.Table)
	case <-time.After(time.Second):
		t.Fatal("expected a change")
	}
	select {
	case c := <-ch:
		t.Fatalf("unexpected change %+v", c)
	default:
	}
}

func TestFeed_CancelClosesAndUnregisters(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe(Filter{Table: "presence"})
	require.Equal(t, 1, feed.Subscribers())

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, feed.Subscribers())
	assert.NotPanics(t, func() { feed.Publish(Change{Table: "presence"}) })
}

func TestFeed_SlowSubscriberDrops(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe(Filter{Table: "presence"})
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		feed.Publish(Change{Table: "presence"})
	}

	assert.Len(t, ch, subscriberBuffer)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*minBackoff, nextBackoff(minBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(maxBackoff-time.Millisecond))
}
