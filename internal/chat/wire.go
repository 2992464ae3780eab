package chat

import (
	"encoding/json"
	"time"

	"github.com/ventihq/clubchat-server/internal/store"
)

// Inbound is the only frame clients send: {"message": "..."}.
// Unknown extra fields are ignored; a frame without a non-empty message
// is a protocol violation and closes the connection.
type Inbound struct {
	Message string `json:"message"`
}

// Outbound mirrors the canonical persisted message. For open (non-club)
// rooms ID and Club are zero since nothing is persisted.
type Outbound struct {
	ID             int64     `json:"id"`
	Club           int64     `json:"club"`
	AuthorUsername string    `json:"author_username"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// OutboundFromMessage builds the wire frame for a persisted message.
func OutboundFromMessage(msg *store.Message) Outbound {
	return Outbound{
		ID:             msg.ID,
		Club:           msg.ClubID,
		AuthorUsername: msg.AuthorUsername,
		Text:           msg.Text,
		CreatedAt:      msg.CreatedAt,
	}
}

// Encode marshals the frame once so every subscriber in a room receives
// byte-identical payloads for the same event.
func (o Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}
