package runtime

import (
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"sync"
)

var _ contract.IRegistry = (*Registry)(nil)

// roomGroup is the broadcast group of one room, guarded by its own lock
// so joins and leaves of different rooms never wait on each other.
type roomGroup struct {
	mu      sync.RWMutex
	members map[string]contract.EventSink // connection -> sink
}

type Registry struct {
	mu          sync.RWMutex
	rooms       map[chat.RoomID]*roomGroup
	connections map[string]map[chat.RoomID]struct{} // connection -> joined rooms
	sinks       map[string]contract.EventSink       // connection -> sink, for global events
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[chat.RoomID]*roomGroup),
		connections: make(map[string]map[chat.RoomID]struct{}),
		sinks:       make(map[string]contract.EventSink),
	}
}

// Connect makes a connection reachable by global events before it joins any room.
func (r *Registry) Connect(connectionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[connectionID] = sink
}

// Join subscribes a connection to a room's broadcast group.
// Joining twice is the same as joining once: members are keyed by connection.
// If the room does not yet exist in the registry, it is initialized on the fly.
func (r *Registry) Join(connectionID string, roomID chat.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	group, ok := r.rooms[roomID]
	if !ok {
		group = &roomGroup{members: make(map[string]contract.EventSink)}
		r.rooms[roomID] = group
	}
	if _, ok := r.connections[connectionID]; !ok {
		r.connections[connectionID] = make(map[chat.RoomID]struct{})
	}
	r.connections[connectionID][roomID] = struct{}{}
	r.sinks[connectionID] = sink
	// Lock ordering is registry then group, everywhere
	group.mu.Lock()
	r.mu.Unlock()

	group.members[connectionID] = sink
	group.mu.Unlock()
}

// Leave removes a connection from one room.
// Empty rooms are dropped to prevent memory leaks over time.
func (r *Registry) Leave(connectionID string, roomID chat.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connectionID, roomID)
}

// LeaveAll forgets a connection entirely, typically on disconnect.
func (r *Registry) LeaveAll(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for roomID := range r.connections[connectionID] {
		r.leaveLocked(connectionID, roomID)
	}
	delete(r.connections, connectionID)
	delete(r.sinks, connectionID)
}

func (r *Registry) leaveLocked(connectionID string, roomID chat.RoomID) {
	if rooms, ok := r.connections[connectionID]; ok {
		delete(rooms, roomID)
	}
	group, ok := r.rooms[roomID]
	if !ok {
		return
	}
	group.mu.Lock()
	delete(group.members, connectionID)
	empty := len(group.members) == 0
	group.mu.Unlock()

	// If no one is left in the room, remove the room entry entirely
	if empty {
		delete(r.rooms, roomID)
	}
}

// GetSinksForRoom returns a snapshot of the sinks subscribed to a room.
// Returns nil if the room doesn't exist or has no members.
func (r *Registry) GetSinksForRoom(roomID chat.RoomID) []contract.EventSink {
	r.mu.RLock()
	group, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	group.mu.RLock()
	defer group.mu.RUnlock()
	var activeSinks []contract.EventSink
	for _, sink := range group.members {
		activeSinks = append(activeSinks, sink)
	}
	return activeSinks
}

// AllSinks returns every known connection, used for global events.
func (r *Registry) AllSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sinks := make([]contract.EventSink, 0, len(r.sinks))
	for _, sink := range r.sinks {
		sinks = append(sinks, sink)
	}
	return sinks
}

// Count is the number of connections subscribed to a room.
func (r *Registry) Count(roomID chat.RoomID) int {
	r.mu.RLock()
	group, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	group.mu.RLock()
	defer group.mu.RUnlock()
	return len(group.members)
}

// Rooms returns the rooms a connection is subscribed to.
func (r *Registry) Rooms(connectionID string) []chat.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]chat.RoomID, 0, len(r.connections[connectionID]))
	for roomID := range r.connections[connectionID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}
