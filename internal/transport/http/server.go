package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/msgin/msgin-server/internal/auth"
	"github.com/msgin/msgin-server/internal/config"
	"github.com/msgin/msgin-server/internal/core"
	"github.com/msgin/msgin-server/internal/media"
	"github.com/msgin/msgin-server/internal/store"
)

// authRateLimit caps signup/login attempts per minute per instance.
const authRateLimit = 30

// NewServer builds the HTTP server with all REST, media and WebSocket routes.
func NewServer(
	delivery *core.Delivery,
	registry *core.Registry,
	authService *auth.Service,
	st store.Store,
	mediaStore *media.Store,
	cfg config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger), CORSMiddleware(cfg.ClientOrigin))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	var uploader core.Uploader
	if mediaStore != nil {
		uploader = mediaStore
	}

	authHandlers := NewAuthHandlers(authService, st, uploader, logger)
	messageHandlers := NewMessageHandlers(delivery, logger)
	wsHandler := NewWSHandler(registry, authService, logger)

	requireAuth := AuthMiddleware(authService, logger)

	limiter := newRateLimiter(authRateLimit)
	limiter.startReset(make(chan struct{}))

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/signup", limiter.middleware(), authHandlers.Signup)
		authGroup.POST("/login", limiter.middleware(), authHandlers.Login)
		authGroup.GET("/check", requireAuth, authHandlers.Check)
		authGroup.PUT("/update-profile", requireAuth, authHandlers.UpdateProfile)

		messages := api.Group("/messages", requireAuth)
		messages.GET("/users", messageHandlers.Sidebar)
		messages.GET("/:id", messageHandlers.Conversation)
		messages.PUT("/mark/:id", messageHandlers.MarkSeen)
		messages.POST("/send/:id", messageHandlers.Send)
	}

	router.GET("/ws", func(c *gin.Context) {
		wsHandler.ServeHTTP(c.Writer, c.Request)
	})

	if mediaStore != nil {
		router.Static("/media", mediaStore.Dir())
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
