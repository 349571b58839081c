package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"spinwheel/events"
	"spinwheel/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *Session) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-s.Send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_PublishReachesRoomAndLobbyOnce(t *testing.T) {
	hub := NewHub()
	lobby := hub.Register(true)
	member := hub.Register(false)
	other := hub.Register(false)
	both := hub.Register(true)

	hub.Join(member, 1)
	hub.Join(other, 2)
	hub.Join(both, 1)

	delivered := hub.Publish(1, []byte("hello"))

	assert.Equal(t, 3, delivered)
	assert.Len(t, drain(lobby), 1)
	assert.Len(t, drain(member), 1)
	assert.Empty(t, drain(other))
	assert.Len(t, drain(both), 1)
}

func TestHub_LeaveAndClose(t *testing.T) {
	hub := NewHub()
	s := hub.Register(false)
	hub.Join(s, 5)
	hub.Join(s, 6)
	assert.Equal(t, 1, hub.RoomSize(5))

	hub.Leave(s, 5)
	assert.Equal(t, 0, hub.RoomSize(5))
	assert.Equal(t, 1, hub.RoomSize(6))

	s.Close()
	s.Close()
	assert.Equal(t, 0, hub.RoomSize(6))
	assert.Equal(t, 0, hub.SessionCount())

	_, ok := <-s.Send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Publish(6, []byte("late")))

	// joining after close is ignored
	hub.Join(s, 7)
	assert.Equal(t, 0, hub.RoomSize(7))
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	slow := hub.Register(true)

	for range sendBuffer {
		require.Equal(t, 1, hub.Publish(1, []byte("x")))
	}
	assert.Equal(t, 0, hub.Publish(1, []byte("dropped")))
	assert.Len(t, drain(slow), sendBuffer)
}

func TestBroadcaster_SendsEnvelope(t *testing.T) {
	bus := events.NewSyncBus()
	hub := NewHub()
	NewBroadcaster(hub).Attach(bus)

	watcher := hub.Register(false)
	hub.Join(watcher, 3)

	bus.Emit(context.Background(), events.PlayerEliminatedEvent{WheelID: 3, UserID: 11, Remaining: 2})
	bus.Emit(context.Background(), events.WheelFinishedEvent{
		WheelID:    4,
		WinnerID:   12,
		Settlement: models.Settlement{Pot: 300, Winner: 100, House: 200},
	})
	bus.Emit(context.Background(), events.BalanceChangeEvent{UserID: 11})

	msgs := drain(watcher)
	require.Len(t, msgs, 1)

	var frame struct {
		Event   string `json:"event"`
		WheelID int64  `json:"wheel_id"`
		Payload struct {
			Eliminated int64 `json:"eliminated"`
			Remaining  int   `json:"remaining"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msgs[0], &frame))
	assert.Equal(t, "wheel:eliminated", frame.Event)
	assert.Equal(t, int64(3), frame.WheelID)
	assert.Equal(t, int64(11), frame.Payload.Eliminated)
	assert.Equal(t, 2, frame.Payload.Remaining)
}

func TestBroadcaster_AsyncBusKeepsFrameOrder(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	hub := NewHub()
	NewBroadcaster(hub).Attach(bus)

	lobby := hub.Register(true)

	for i := range 40 {
		bus.Emit(context.Background(), events.PlayerJoinedEvent{WheelID: 6, UserID: int64(i), PlayerCount: i + 1})
	}
	bus.Emit(context.Background(), events.WheelStartedEvent{WheelID: 6, PlayerCount: 40})

	var msgs [][]byte
	require.Eventually(t, func() bool {
		msgs = append(msgs, drain(lobby)...)
		return len(msgs) == 41
	}, 2*time.Second, 5*time.Millisecond)

	for i, msg := range msgs[:40] {
		var frame struct {
			Event   string `json:"event"`
			Payload struct {
				PlayerCount int `json:"player_count"`
			} `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(msg, &frame))
		assert.Equal(t, "wheel:player_joined", frame.Event)
		assert.Equal(t, i+1, frame.Payload.PlayerCount)
	}

	var last struct {
		Event string `json:"event"`
	}
	require.NoError(t, json.Unmarshal(msgs[40], &last))
	assert.Equal(t, "wheel:started", last.Event)
}
