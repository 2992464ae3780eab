package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventihq/clubchat-server/internal/store"
)

// ClubHandlers provides HTTP handlers for club management endpoints.
type ClubHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewClubHandlers creates a new club handlers instance.
func NewClubHandlers(st store.Store, logger *zerolog.Logger) *ClubHandlers {
	return &ClubHandlers{
		store: st,
		log:   logger,
	}
}

// CreateClubRequest represents the create club request body.
type CreateClubRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=150"`
	Description string `json:"description"`
}

// RejectClubRequest represents the reject club request body.
type RejectClubRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CreatePostRequest represents the create post request body.
type CreatePostRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreateEventRequest represents the create event request body.
type CreateEventRequest struct {
	Title       string    `json:"title" binding:"required,max=200"`
	Description string    `json:"description"`
	Date        time.Time `json:"date" binding:"required"`
}

// ClubResponse represents a club in API responses. ChatURL points at the
// club's chat room on the WebSocket gateway.
type ClubResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AdminID     int64  `json:"admin_id"`
	Status      string `json:"status"`
	ChatURL     string `json:"chat_url"`
	CreatedAt   string `json:"created_at"`
}

// MessageResponse matches the gateway's outbound chat frame.
type MessageResponse struct {
	ID             int64  `json:"id"`
	Club           int64  `json:"club"`
	AuthorUsername string `json:"author_username"`
	Text           string `json:"text"`
	CreatedAt      string `json:"created_at"`
}

// PostResponse represents a club board post.
type PostResponse struct {
	ID             int64  `json:"id"`
	Club           int64  `json:"club"`
	AuthorUsername string `json:"author_username"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

// EventResponse represents a club event.
type EventResponse struct {
	ID          int64  `json:"id"`
	Club        int64  `json:"club"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	CreatedAt   string `json:"created_at"`
}

func clubResponse(club *store.Club) ClubResponse {
	return ClubResponse{
		ID:          club.ID,
		Name:        club.Name,
		Description: club.Description,
		AdminID:     club.AdminID,
		Status:      string(club.Status),
		ChatURL:     "/ws/chat/" + strconv.FormatInt(club.ID, 10) + "/",
		CreatedAt:   club.CreatedAt.Format(time.RFC3339),
	}
}

// currentUserID pulls the authenticated user's ID set by AuthMiddleware.
func currentUserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// clubIDParam parses the :id path parameter.
func clubIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid club id"})
		return 0, false
	}
	return id, true
}

// CreateClub handles club creation. New clubs start pending until a
// superuser approves them.
// POST /api/clubs
func (h *ClubHandlers) CreateClub(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateClubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create club request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	club, err := h.store.CreateClub(c.Request.Context(), req.Name, req.Description, uid)
	if err != nil {
		h.log.Error().Err(err).Str("club_name", req.Name).Msg("failed to create club")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("club_id", club.ID).Int64("admin_id", uid).Msg("club created, awaiting approval")
	c.JSON(http.StatusCreated, clubResponse(club))
}

// ListClubs handles listing clubs, optionally filtered by ?status=.
// GET /api/clubs
func (h *ClubHandlers) ListClubs(c *gin.Context) {
	var status *store.ClubStatus
	if raw := c.Query("status"); raw != "" {
		s := store.ClubStatus(raw)
		switch s {
		case store.ClubStatusPending, store.ClubStatusActive, store.ClubStatusRejected:
			status = &s
		default:
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status filter"})
			return
		}
	}

	clubs, err := h.store.ListClubs(c.Request.Context(), status)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list clubs")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ClubResponse, 0, len(clubs))
	for _, club := range clubs {
		response = append(response, clubResponse(club))
	}

	c.JSON(http.StatusOK, response)
}

// GetClub handles fetching a single club.
// GET /api/clubs/:id
func (h *ClubHandlers) GetClub(c *gin.Context) {
	id, ok := clubIDParam(c)
	if !ok {
		return
	}

	club, err := h.store.GetClubByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "club not found"})
			return
		}
		h.log.Error().Err(err).Int64("club_id", id).Msg("failed to load club")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, clubResponse(club))
}

// JoinClub enrolls the current user into an active club.
// POST /api/clubs/:id/join
func (h *ClubHandlers) JoinClub(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := clubIDParam(c)
	if !ok {
		return
	}

	club, err := h.store.GetClubByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "club not found"})
			return
		}
		h.log.Error().Err(err).Int64("club_id", id).Msg("failed to load club")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if club.Status != store.ClubStatusActive {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "club is not active"})
		return
	}

	if err := h.store.AddMember(c.Request.Context(), id, uid, false); err != nil {
		h.log.Error().Err(err).Int64("club_id", id).Int64("user_id", uid).Msg("failed to join club")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("club_id", id).Int64("user_id", uid).Msg("user joined club")
	c.Status(http.StatusNoContent)
}

// ApproveClub marks a pending club active. Superuser only.
// POST /api/clubs/:id/approve
func (h *ClubHandlers) ApproveClub(c *gin.Context) {
	id, ok := clubIDParam(c)
	if !ok {
		return
	}

	if err := h.store.ApproveClub(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "club not found"})
			return
		}
		h.log.Error().Err(err).Int64("club_id", id).Msg("failed to approve club")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("club_id", id).Msg("club approved")
	c.Status(http.StatusNoContent)
}

// RejectClub marks a club rejected with a reason. Superuser only.
// POST /api/clubs/:id/reject
func (h *ClubHandlers) RejectClub(c *gin.Context) {
	id, ok := clubIDParam(c)
	if !ok {
		return
	}

	var req RejectClubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.store.RejectClub(c.Request.Context(), id, req.Reason); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "club not found"})
			return
		}
		h.log.Error().Err(err).Int64("club_id", id).Msg("failed to reject club")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("club_id", id).Msg("club rejected")
	c.Status(http.StatusNoContent)
}

// ListMessages returns the most recent chat messages for a club. Members
// only.
// GET /api/clubs/:id/messages
func (h *ClubHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := clubIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, id, uid) {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	messages, err := h.store.ListRecentMessages(c.Request.Context(), id, limit)
	if err != nil {
		h.log.Error().Err(err).Int64("club_id", id).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, MessageResponse{
			ID:             msg.ID,
			Club:           msg.ClubID,
			AuthorUsername: msg.AuthorUsername,
			Text:           msg.Text,
			CreatedAt:      msg.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, response)
}

// CreatePost publishes a post on a club's board. Members only.
// POST /api/clubs/:id/posts
func (h *ClubHandlers) CreatePost(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := clubIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, id, uid) {
		return
	}

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	post, err := h.store.CreatePost(c.Request.Context(), id, uid, req.Content)
	if err != nil {
		h.log.Error().Err(err).Int64("club_id", id).Msg("failed to create post")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, PostResponse{
		ID:             post.ID,
		Club:           post.ClubID,
		AuthorUsername: post.AuthorUsername,
		Content:        post.Content,
		CreatedAt:      post.CreatedAt.Format(time.RFC3339),
	})
}

// ListPosts lists a club's posts, newest first.
// GET /api/clubs/:id/posts
func (h *ClubHandlers) ListPosts(c *gin.Context) {
	id, ok := clubIDParam(c)
	if !ok {
		return
	}

	posts, err := h.store.ListPosts(c.Request.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Int64("club_id", id).Msg("failed to list posts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]PostResponse, 0, len(posts))
	for _, post := range posts {
		response = append(response, PostResponse{
			ID:             post.ID,
			Club:           post.ClubID,
			AuthorUsername: post.AuthorUsername,
			Content:        post.Content,
			CreatedAt:      post.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, response)
}

// CreateEvent schedules an event for a club. Members only.
// POST /api/clubs/:id/events
func (h *ClubHandlers) CreateEvent(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	id, ok := clubIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, id, uid) {
		return
	}

	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	event, err := h.store.CreateEvent(c.Request.Context(), id, req.Title, req.Description, req.Date)
	if err != nil {
		h.log.Error().Err(err).Int64("club_id", id).Msg("failed to create event")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, EventResponse{
		ID:          event.ID,
		Club:        event.ClubID,
		Title:       event.Title,
		Description: event.Description,
		Date:        event.Date.Format(time.RFC3339),
		CreatedAt:   event.CreatedAt.Format(time.RFC3339),
	})
}

// ListEvents lists a club's events, soonest first.
// GET /api/clubs/:id/events
func (h *ClubHandlers) ListEvents(c *gin.Context) {
	id, ok := clubIDParam(c)
	if !ok {
		return
	}

	events, err := h.store.ListEvents(c.Request.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Int64("club_id", id).Msg("failed to list events")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]EventResponse, 0, len(events))
	for _, event := range events {
		response = append(response, EventResponse{
			ID:          event.ID,
			Club:        event.ClubID,
			Title:       event.Title,
			Description: event.Description,
			Date:        event.Date.Format(time.RFC3339),
			CreatedAt:   event.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, response)
}

// requireMember ensures uid is a member of the club, writing the error
// response when not. Superusers bypass the check.
func (h *ClubHandlers) requireMember(c *gin.Context, clubID, uid int64) bool {
	if c.GetBool(ContextKeyIsSuperuser) {
		return true
	}

	member, err := h.store.IsMember(c.Request.Context(), clubID, uid)
	if err != nil {
		h.log.Error().Err(err).Int64("club_id", clubID).Int64("user_id", uid).Msg("failed to check membership")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a club member"})
		return false
	}
	return true
}
