package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ventihq/clubchat-server/internal/auth"
	"github.com/ventihq/clubchat-server/internal/chat"
	"github.com/ventihq/clubchat-server/internal/config"
	"github.com/ventihq/clubchat-server/internal/store"
)

// NewServer builds the HTTP server: REST API, health check and the
// WebSocket chat gateway.
func NewServer(registry *chat.Registry, oracle *chat.MembershipOracle, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(authService, logger)
	clubHandlers := NewClubHandlers(st, logger)
	wsHandler := NewWSHandler(registry, oracle, authService, st, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("")
	authed.Use(AuthMiddleware(authService, logger))
	authed.GET("/clubs", clubHandlers.ListClubs)
	authed.POST("/clubs", clubHandlers.CreateClub)
	authed.GET("/clubs/:id", clubHandlers.GetClub)
	authed.POST("/clubs/:id/join", clubHandlers.JoinClub)
	authed.GET("/clubs/:id/messages", clubHandlers.ListMessages)
	authed.GET("/clubs/:id/posts", clubHandlers.ListPosts)
	authed.POST("/clubs/:id/posts", clubHandlers.CreatePost)
	authed.GET("/clubs/:id/events", clubHandlers.ListEvents)
	authed.POST("/clubs/:id/events", clubHandlers.CreateEvent)

	admin := authed.Group("")
	admin.Use(RequireSuperuser(logger))
	admin.POST("/clubs/:id/approve", clubHandlers.ApproveClub)
	admin.POST("/clubs/:id/reject", clubHandlers.RejectClub)

	// Default room and per-club rooms.
	router.GET("/ws/chat/", wsHandler.Handle)
	router.GET("/ws/chat/:room/", wsHandler.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
