package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/auth"
	"github.com/vovakirdan/strangerchat-server/internal/config"
	"github.com/vovakirdan/strangerchat-server/internal/core"
	"github.com/vovakirdan/strangerchat-server/internal/metrics"
)

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewServer builds the HTTP server with the socket, health, metrics and staff routes.
func NewServer(hub *core.Hub, authService *auth.Service, m *metrics.Metrics, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/health/", healthHandler)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	staff := NewStaffHandlers(hub.Store(), authService, logger)
	staffAPI := router.Group("/api/staff")
	staffAPI.POST("/token", staff.IssueToken)

	protected := staffAPI.Group("")
	protected.Use(StaffMiddleware(authService, logger))
	protected.GET("/rooms/summary", staff.RoomsSummary)
	protected.GET("/rooms/:token/messages", staff.RoomMessages)

	// Staff calls carry a bearer token, so CORS never needs credentials.
	api := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{stdhttp.MethodGet, stdhttp.MethodPost, stdhttp.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(router)

	// Sockets are served outside gin: its response writer wrapper cannot
	// be hijacked for the upgrade.
	wsOpts := WSOptions{
		MaxMessageBytes:    cfg.MaxMessageBytes,
		SendBuffer:         cfg.SendBuffer,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		OriginPatterns:     cfg.WSOriginPatterns,
	}
	chat := NewChatHandler(hub, authService, wsOpts, m, logger)
	admin := NewAdminHandler(hub, authService, wsOpts, m, logger)
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws/chat", chat)
	mux.Handle("/ws/chat/", chat)
	mux.Handle("/ws/admin", admin)
	mux.Handle("/ws/admin/", admin)
	mux.Handle("/", api)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, HealthResponse{
		Status:  "healthy",
		Message: "Stranger Chat Backend is running",
	})
}
