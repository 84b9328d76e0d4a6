// Package api serves the store dashboard REST API and the inbound webhooks.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/inbox"
	"github.com/xaenox/hitome/internal/line"
	"github.com/xaenox/hitome/internal/storage"
)

const defaultSessionTTL = 30 * 24 * time.Hour

// LoginProvider runs the LINE Login code flow
type LoginProvider interface {
	AuthCodeURL(state, nonce, redirectURI string) string
	Exchange(ctx context.Context, code, redirectURI string) (*line.Profile, error)
}

// LineCredentials is the channel used by the webhook route without a channel id
type LineCredentials struct {
	ChannelID     string
	ChannelSecret string
	AccessToken   string
}

type ServerOptions struct {
	Port int
	// LoginRedirectURL overrides the callback URL derived from the request host
	LoginRedirectURL string
	CookieSecure     bool
	SessionTTL       time.Duration
	DefaultLine      LineCredentials

	Storage storage.Storage
	Inbox   *inbox.Service
	Login   LoginProvider
	Logger  *zap.Logger
}

// Server represents the API server
type Server struct {
	echo    *echo.Echo
	opts    ServerOptions
	storage storage.Storage
	inbox   *inbox.Service
	login   LoginProvider
	logger  *zap.Logger
	now     func() time.Time
}

// NewServer creates a new API server
func NewServer(opts ServerOptions) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	server := &Server{
		echo:    e,
		opts:    opts,
		storage: opts.Storage,
		inbox:   opts.Inbox,
		login:   opts.Login,
		logger:  opts.Logger,
		now:     time.Now,
	}
	e.HTTPErrorHandler = server.handleError

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			server.logger.Info("request", fields...)
			return nil
		},
	}))

	server.setupRoutes()
	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	// Webhooks authenticate with signatures and tokens, not sessions
	api.GET("/webhook/line", s.lineWebhookInfo)
	api.POST("/webhook/line", s.lineWebhook)
	api.POST("/webhook/line/:channelID", s.lineWebhook)
	api.POST("/webhook/google/:storeID", s.googleWebhook)

	api.GET("/auth/line", s.loginRedirect)
	api.GET("/auth/line/callback", s.loginCallback)
	api.GET("/auth/me", s.me)
	api.POST("/auth/logout", s.logout)

	authed := api.Group("", s.requireSession)
	authed.GET("/stores", s.listStores)
	authed.POST("/stores", s.createStore)
	authed.PATCH("/stores", s.switchStore)
	authed.DELETE("/stores/:id", s.deleteStore)

	scoped := authed.Group("", s.requireStore)
	scoped.GET("/stores/current", s.currentStore)
	scoped.PUT("/stores/current", s.updateCurrentStore)
	scoped.GET("/threads", s.listThreads)
	scoped.GET("/threads/:id", s.getThread)
	scoped.POST("/threads/reset", s.resetThreads)
	scoped.GET("/messages/:id", s.listMessages)
	scoped.PATCH("/messages/:id", s.updateStatus)
	scoped.POST("/messages/:id", s.sendReply)
	scoped.GET("/kpi", s.kpi)
	scoped.GET("/danger-words", s.listDangerWords)
	scoped.POST("/danger-words", s.addDangerWord)
	scoped.DELETE("/danger-words/:id", s.deleteDangerWord)
}

// ServeHTTP lets the server be mounted or exercised directly
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start begins the API server and blocks until ctx is done, then shuts
// down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.Int("port", s.opts.Port))
		if err := s.echo.Start(fmt.Sprintf(":%d", s.opts.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// handleError renders every error as {"error": ..., "success": false}
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = fmt.Sprint(he.Message)
		if he.Internal != nil {
			err = he.Internal
		}
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorResponse{Error: message, Success: false})
	}
	if err != nil {
		s.logger.Error("Failed to write error response", zap.Error(err))
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// storageError maps storage failures onto HTTP errors
func storageError(err error, notFound string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
}
