package chat

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ventihq/clubchat-server/internal/store"
)

// DefaultRoomName is used when a connection does not name a room.
const DefaultRoomName = "general"

// sessionBuffer bounds the per-session outbound queue. A session that
// falls this far behind the room stream is disconnected rather than
// served a gap.
const sessionBuffer = 16

// Room is a parsed room identifier. A numeric identifier addresses a
// club's chat; anything else is an open room with no persistence target.
type Room struct {
	Name   string
	ClubID int64
	IsClub bool
}

// ParseRoom interprets a raw room identifier. Empty input falls back to
// the default room.
func ParseRoom(raw string) Room {
	if raw == "" {
		raw = DefaultRoomName
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Room{Name: raw, ClubID: id, IsClub: true}
	}
	return Room{Name: raw}
}

// Session ties one live connection to a user and a room for the
// connection's whole lifetime. The transport layer drains Frames into
// the socket; the registry pushes broadcast payloads into it.
type Session struct {
	ID          string
	UserID      int64
	Username    string
	Room        Room
	ConnectedAt time.Time

	frames    chan []byte
	closeSlow func()
}

// NewSession builds a session for an authenticated user. closeSlow is
// invoked by the registry when the session's outbound queue overflows;
// it must be safe to call multiple times and from any goroutine.
func NewSession(user *store.User, room Room, closeSlow func()) *Session {
	return &Session{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Username:    user.Username,
		Room:        room,
		ConnectedAt: time.Now(),
		frames:      make(chan []byte, sessionBuffer),
		closeSlow:   closeSlow,
	}
}

// Frames returns the stream of broadcast payloads for this session.
func (s *Session) Frames() <-chan []byte {
	return s.frames
}
