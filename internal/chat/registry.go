package chat

import (
	"sync"
)

// Registry owns the set of live rooms and their subscribed sessions.
// Rooms are created lazily on first join and removed when the last
// session leaves.
//
// Lock order is always registry.mu before room.mu. Broadcast takes only
// the room's own lock, so delivery in one room never contends with
// joins, leaves or broadcasts in another.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	mu      sync.Mutex
	members map[*Session]struct{}
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join adds the session to the named room, creating the room if absent.
func (r *Registry) Join(name string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		rm = &room{members: make(map[*Session]struct{})}
		r.rooms[name] = rm
	}

	rm.mu.Lock()
	rm.members[s] = struct{}{}
	rm.mu.Unlock()
}

// Leave removes the session from the named room and drops the room when
// it empties. Leaving twice, or leaving a session that never joined, is
// a no-op.
func (r *Registry) Leave(name string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return
	}

	rm.mu.Lock()
	delete(rm.members, s)
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if empty {
		delete(r.rooms, name)
	}
}

// Broadcast delivers payload to every session subscribed to the room at
// the moment of the call. Pushes for a room are serialized under its
// lock, so all subscribers observe broadcasts in the same relative
// order. A session whose queue is full is disconnected via its
// closeSlow hook instead of blocking or skipping the others.
func (r *Registry) Broadcast(name string, payload []byte) {
	r.mu.RLock()
	rm := r.rooms[name]
	r.mu.RUnlock()
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	for s := range rm.members {
		select {
		case s.frames <- payload:
		default:
			s.closeSlow()
		}
	}
}

// MemberCount reports how many sessions are subscribed to the named
// room. Zero means the room does not exist.
func (r *Registry) MemberCount(name string) int {
	r.mu.RLock()
	rm := r.rooms[name]
	r.mu.RUnlock()
	if rm == nil {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// RoomCount reports how many rooms currently have subscribers.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
