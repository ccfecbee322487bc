package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/galleria/internal/auth"
	"github.com/MarcoPoloResearchLab/galleria/internal/identity"
	"github.com/MarcoPoloResearchLab/galleria/internal/images"
	"github.com/MarcoPoloResearchLab/galleria/internal/interactions"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 25 * time.Second

var (
	errMissingImageSource    = errors.New("image source dependency required")
	errMissingWriter         = errors.New("interaction writer dependency required")
	errMissingReader         = errors.New("interaction reader dependency required")
	errMissingLive           = errors.New("live query dependency required")
	errMissingSessionManager = errors.New("session manager dependency required")
)

type Dependencies struct {
	Images            images.Source
	Writer            *interactions.Writer
	Reader            *interactions.Reader
	Live              *interactions.Live
	Sessions          *auth.SessionManager
	AllowedOrigins    []string
	WritesPerMinute   int
	HeartbeatInterval time.Duration
	Random            identity.RandomSource
	Clock             func() time.Time
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Images == nil {
		return nil, errMissingImageSource
	}
	if deps.Writer == nil {
		return nil, errMissingWriter
	}
	if deps.Reader == nil {
		return nil, errMissingReader
	}
	if deps.Live == nil {
		return nil, errMissingLive
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	handler := &httpHandler{
		images:         deps.Images,
		writer:         deps.Writer,
		reader:         deps.Reader,
		live:           deps.Live,
		sessions:       deps.Sessions,
		allowedOrigins: deps.AllowedOrigins,
		limiter:        newWriteLimiter(deps.WritesPerMinute, clock),
		heartbeat:      heartbeat,
		random:         deps.Random,
		clock:          clock,
		logger:         logger,
	}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || handler.originAllowed(origin)
		},
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	api := router.Group("/")
	api.Use(handler.sessionMiddleware)

	api.GET("/session", handler.handleSession)
	api.GET("/emojis", handler.handleEmojis)

	api.GET("/images", handler.handleListImages)
	api.GET("/images/search", handler.handleSearchImages)
	api.GET("/images/:id", handler.handleGetImage)
	api.GET("/images/:id/reactions", handler.handleListReactions)
	api.GET("/images/:id/comments", handler.handleListComments)
	api.GET("/images/:id/stream", handler.handleImageStream)

	api.GET("/feed", handler.handleFeed)
	api.GET("/feed/stream", handler.handleFeedStream)
	api.GET("/ws", handler.handleWebSocket)

	writes := api.Group("/")
	writes.Use(handler.limitWrites)
	writes.POST("/images/:id/reactions", handler.handleAddReaction)
	writes.DELETE("/reactions/:id", handler.handleDeleteReaction)
	writes.POST("/images/:id/comments", handler.handleAddComment)
	writes.DELETE("/comments/:id", handler.handleDeleteComment)

	return router, nil
}

type httpHandler struct {
	images         images.Source
	writer         *interactions.Writer
	reader         *interactions.Reader
	live           *interactions.Live
	sessions       *auth.SessionManager
	allowedOrigins []string
	limiter        *writeLimiter
	heartbeat      time.Duration
	random         identity.RandomSource
	clock          func() time.Time
	upgrader       websocket.Upgrader
	logger         *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return originAllowed(allowedOrigins, origin)
		},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Accept", "Content-Type", "Last-Event-ID", "Origin"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// originAllowed accepts any origin when no allow list is configured.
func originAllowed(allowedOrigins []string, origin string) bool {
	if len(allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (h *httpHandler) originAllowed(origin string) bool {
	return originAllowed(h.allowedOrigins, origin)
}

func respondError(c *gin.Context, status int, reason string) {
	c.AbortWithStatusJSON(status, gin.H{"error": reason})
}
