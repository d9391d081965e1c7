package runtime

import (
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	ID string
}

func (s Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func TestRegistry_Join_One_Room_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connectionID := uuid.NewString()
	roomID := chat.RoomID("MIT")
	sink := Sink{ID: connectionID}

	// Given no connection is registered
	req.Nil(registry.GetSinksForRoom(roomID))
	req.Zero(registry.Count(roomID))

	// When a connection joins a room
	registry.Join(connectionID, roomID, sink)

	// Then
	req.Equal(1, registry.Count(roomID))
	req.Len(registry.GetSinksForRoom(roomID), 1)
	req.Contains(registry.GetSinksForRoom(roomID), sink)
	req.Equal([]chat.RoomID{roomID}, registry.Rooms(connectionID))
}

func TestRegistry_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connectionID := uuid.NewString()
	sink := Sink{ID: connectionID}

	// When the same connection joins twice
	registry.Join(connectionID, "MIT", sink)
	registry.Join(connectionID, "MIT", sink)

	// Then it is delivered only once
	req.Len(registry.GetSinksForRoom("MIT"), 1)
	req.Len(registry.AllSinks(), 1)
}

func TestRegistry_Join_One_Room_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink1 := Sink{ID: uuid.NewString()}
	sink2 := Sink{ID: uuid.NewString()}

	registry.Join(sink1.ID, "MIT", sink1)
	registry.Join(sink2.ID, "MIT", sink2)

	req.Equal(2, registry.Count("MIT"))
	req.Len(registry.GetSinksForRoom("MIT"), 2)
	req.Contains(registry.GetSinksForRoom("MIT"), sink1)
	req.Nil(registry.GetSinksForRoom("Stanford"))
}

func TestRegistry_Leave_One_Room_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink := Sink{ID: uuid.NewString()}

	// Given a connection joined a room
	registry.Join(sink.ID, "MIT", sink)

	// When it leaves the room
	registry.Leave(sink.ID, "MIT")

	// Then the room doesn't exist anymore
	req.Nil(registry.GetSinksForRoom("MIT"))
	req.Empty(registry.rooms)
	req.Empty(registry.Rooms(sink.ID))
}

func TestRegistry_LeaveAll_Forgets_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink1 := Sink{ID: uuid.NewString()}
	sink2 := Sink{ID: uuid.NewString()}

	// Given a connection subscribed to two rooms and another one to a single room
	registry.Join(sink1.ID, "MIT", sink1)
	registry.Join(sink1.ID, "Harvard", sink1)
	registry.Join(sink2.ID, "MIT", sink2)

	// When the first connection drops
	registry.LeaveAll(sink1.ID)

	// Then only the second connection is left
	req.Len(registry.GetSinksForRoom("MIT"), 1)
	req.Contains(registry.GetSinksForRoom("MIT"), sink2)
	req.Zero(registry.Count("Harvard"))
	req.Len(registry.AllSinks(), 1)
	req.NotContains(registry.connections, sink1.ID)
}

func TestRegistry_Connect_Without_Room_Receives_Global(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink := Sink{ID: uuid.NewString()}

	registry.Connect(sink.ID, sink)

	req.Len(registry.AllSinks(), 1)
	req.Empty(registry.rooms)
}

func TestRegistry_Concurrent_Joins_And_Leaves(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	rooms := []chat.RoomID{"MIT", "Harvard", "Stanford"}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sink := Sink{ID: uuid.NewString()}
			room := rooms[i%len(rooms)]
			registry.Join(sink.ID, room, sink)
			if i%2 == 0 {
				registry.LeaveAll(sink.ID)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, room := range rooms {
		total += registry.Count(room)
	}
	req.Equal(50, total)
	req.Len(registry.AllSinks(), 50)
}
