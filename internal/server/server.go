package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"manuscript-assist/internal/assist"
	"manuscript-assist/internal/config"
)

const (
	readTimeout  = 30 * time.Second
	// Streams stay open for as long as the model keeps producing output.
	writeTimeout = 10 * time.Minute
	idleTimeout  = 120 * time.Second

	defaultMaxBodyBytes = 1 << 20 // 1 MiB
	defaultShutdownWait = 10 * time.Second
)

// UserHeader carries the caller identity charged for usage.
const UserHeader = "X-User-ID"

type Server struct {
	cfg      config.ServerConfig
	service  *assist.Service
	app      *echo.Echo
	address  string
	upgrader websocket.Upgrader
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, service *assist.Service) (*Server, error) {
	if service == nil {
		return nil, errors.New("service must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = defaultMaxBodyBytes
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"request_id", v.RequestID,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:     cfg.Server,
		service: service,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The editor plugin connects from its own origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Port)
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		grace := time.Duration(s.cfg.ShutdownSeconds) * time.Second
		if grace <= 0 {
			grace = defaultShutdownWait
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.POST("/ai/process", s.handleProcess)
	s.app.GET("/ai/ws", s.handleSocket)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("manuscript-assist ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /ai/process")
	fmt.Println("  GET  /ai/ws")
	fmt.Printf("Example:\n  curl -N http://%s:%d/ai/process -H 'Content-Type: application/json' -H '%s: alice' -d '{\"feature\":\"rephrase\",\"text\":[\"It was a dark and stormy night.\"]}'\n\n", host, port, UserHeader)
}
