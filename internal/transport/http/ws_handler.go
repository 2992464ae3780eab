package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventihq/clubchat-server/internal/auth"
	"github.com/ventihq/clubchat-server/internal/chat"
	"github.com/ventihq/clubchat-server/internal/store"
)

// errInvalidFrame marks an inbound frame without a usable message field.
var errInvalidFrame = errors.New("invalid frame")

// WSHandler upgrades chat connections and bridges them to the room
// registry. Authentication and authorization happen before the upgrade,
// so a rejected client sees a plain HTTP error and no frames.
type WSHandler struct {
	registry *chat.Registry
	oracle   *chat.MembershipOracle
	auth     *auth.Service
	messages store.MessageStore
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket chat handler.
func NewWSHandler(registry *chat.Registry, oracle *chat.MembershipOracle, authService *auth.Service, messages store.MessageStore, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		oracle:   oracle,
		auth:     authService,
		messages: messages,
		log:      logger,
	}
}

// Handle serves GET /ws/chat/ and GET /ws/chat/:room/.
func (h *WSHandler) Handle(c *gin.Context) {
	room := chat.ParseRoom(strings.Trim(c.Param("room"), "/"))

	user, err := h.authenticate(c)
	if err != nil {
		h.log.Debug().Err(err).Str("room", room.Name).Msg("ws connection unauthenticated")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return
	}

	allowed, err := h.oracle.Authorize(c.Request.Context(), user, room)
	if err != nil {
		h.log.Error().Err(err).Str("room", room.Name).Int64("user_id", user.ID).Msg("authorization check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !allowed {
		h.log.Debug().Str("room", room.Name).Int64("user_id", user.ID).Msg("ws connection denied")
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not authorized for this room"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// cancel doubles as the slow-subscriber hook: an overflowing session
	// is torn down through the same path as a client disconnect.
	sess := chat.NewSession(user, room, cancel)

	h.registry.Join(room.Name, sess)
	var leaveOnce sync.Once
	leave := func() {
		leaveOnce.Do(func() { h.registry.Leave(room.Name, sess) })
	}
	defer leave()

	h.log.Info().Str("room", room.Name).Str("session_id", sess.ID).Str("user", user.Username).Msg("ws session open")

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh
	leave()

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, errInvalidFrame):
		status = websocket.StatusPolicyViolation
		reason = "invalid frame"
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "closing"
			h.log.Warn().Err(err).Str("session_id", sess.ID).Msg("ws connection closed with error")
		}
	}

	h.log.Info().Str("room", room.Name).Str("session_id", sess.ID).Msg("ws session closed")
	conn.Close(status, reason)
}

// authenticate resolves the connecting user from the Authorization
// header or, for browser WebSocket clients that cannot set headers, the
// token query parameter. The user row is read fresh from the store.
func (h *WSHandler) authenticate(c *gin.Context) (*store.User, error) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		return nil, errors.New("missing credentials")
	}
	return h.auth.ResolveUser(c.Request.Context(), token)
}

// readLoop pumps inbound frames: parse, persist for club rooms, then
// fan out the canonical payload. A failed persistence drops the one
// message and keeps the session open.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *chat.Session) error {
	for {
		var inbound chat.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}
		if strings.TrimSpace(inbound.Message) == "" {
			return errInvalidFrame
		}

		payload, ok := h.buildFrame(ctx, sess, inbound.Message)
		if !ok {
			continue
		}
		h.registry.Broadcast(sess.Room.Name, payload)
	}
}

// buildFrame persists the message for club rooms and encodes the
// broadcast payload. Open rooms are ephemeral: nothing is stored and
// id/club stay zero.
func (h *WSHandler) buildFrame(ctx context.Context, sess *chat.Session, text string) ([]byte, bool) {
	var outbound chat.Outbound
	if sess.Room.IsClub {
		msg, err := h.messages.CreateMessage(ctx, sess.Room.ClubID, sess.UserID, text)
		if err != nil {
			// Fail the operation, not the connection.
			if errors.Is(err, store.ErrNotFound) {
				h.log.Debug().Int64("club_id", sess.Room.ClubID).Msg("message dropped: club not found")
			} else {
				h.log.Warn().Err(err).Int64("club_id", sess.Room.ClubID).Msg("message dropped: persistence failed")
			}
			return nil, false
		}
		outbound = chat.OutboundFromMessage(msg)
	} else {
		outbound = chat.Outbound{
			AuthorUsername: sess.Username,
			Text:           text,
			CreatedAt:      time.Now().UTC(),
		}
	}

	payload, err := outbound.Encode()
	if err != nil {
		h.log.Error().Err(err).Msg("encode outbound frame")
		return nil, false
	}
	return payload, true
}

// writeLoop drains the session's broadcast queue into the socket. Raw
// byte writes keep frames identical across all subscribers.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *chat.Session) error {
	for {
		select {
		case payload := <-sess.Frames():
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
