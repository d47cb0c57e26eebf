// Package devserver is a local stand-in for the travel backend. It implements
// the auth, telemetry and personalization endpoints with in-memory state and
// canned payloads so the client can be exercised end to end without the real
// service.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/personalization"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
)

// Config configures the development server.
type Config struct {
	// JWTSecret signs issued tokens. A random secret is generated when empty.
	JWTSecret string
	// TokenTTL bounds token validity. Default 24h.
	TokenTTL time.Duration
	// AllowOrigins lists CORS origins. Default: local dev ports.
	AllowOrigins []string
	// BcryptCost for password hashes. Default bcrypt.DefaultCost.
	BcryptCost int
	// RateLimit caps requests per second per client on /ai. Zero disables it.
	RateLimit float64
	RateBurst int
}

type account struct {
	ID           string
	Username     string
	Email        string
	Phone        string
	IsStaff      bool
	PasswordHash []byte
}

// Server is the development backend.
type Server struct {
	cfg    Config
	logger *slog.Logger
	engine *gin.Engine

	mu          sync.RWMutex
	accounts    map[string]*account // by id
	codes       map[string]string   // phone -> code
	received    []telemetry.UserAction
	preferences map[string]personalization.Preferences
	failing     bool

	httpServer *http.Server
}

// New builds the server and its routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.JWTSecret == "" {
		secret, err := generateSecret(32)
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		}
	}

	s := &Server{
		cfg:         cfg,
		logger:      metrics.ForChannel(logger, metrics.ChannelDevServer),
		accounts:    make(map[string]*account),
		codes:       make(map[string]string),
		preferences: make(map[string]personalization.Preferences),
	}
	s.engine = s.routes()
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		ExposeHeaders:    []string{"Content-Type"},
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login/", s.handleLogin)
		authGroup.POST("/register/", s.handleRegister)
		authGroup.POST("/otp/send/", s.handleSendCode)
		authGroup.POST("/otp/verify/", s.handleVerifyCode)
	}

	ai := api.Group("/ai", s.failureInjection(), s.rateLimit())
	{
		ai.POST("/track-actions/", s.optionalAuth(), s.handleTrackActions)

		protected := ai.Group("", s.requireAuth())
		protected.GET("/user-behavior/:userId/", s.requireSelf(), s.handleUserBehavior)
		protected.POST("/recommendations/", s.handleRecommendations)
		protected.GET("/travel-personality/:userId/", s.requireSelf(), s.handlePersonality)
		protected.GET("/analytics/:userId/", s.requireSelf(), s.handleAnalytics)
		protected.GET("/insights/:userId/", s.requireSelf(), s.handleInsights)
		protected.GET("/budget-insights/:userId/", s.requireSelf(), s.handleBudgetInsights)
		protected.PUT("/preferences/:userId/", s.requireSelf(), s.handlePreferences)
		protected.POST("/chat/", s.handleChat)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("development backend listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Serve or ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// SetFailing makes every /ai endpoint answer 503 while on.
func (s *Server) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// IssuedCode returns the outstanding one-time code for phone.
func (s *Server) IssuedCode(phone string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.codes[phone]
	return code, ok
}

// Received returns every telemetry action accepted so far, in arrival order.
func (s *Server) Received() []telemetry.UserAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]telemetry.UserAction, len(s.received))
	copy(out, s.received)
	return out
}

// Preferences returns the last preferences stored for userID.
func (s *Server) Preferences(userID string) (personalization.Preferences, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[userID]
	return p, ok
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
