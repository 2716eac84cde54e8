// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/runbooker/config"
	"github.com/mohammad-safakhou/runbooker/internal/inference"
	"github.com/mohammad-safakhou/runbooker/internal/pipeline"
	"github.com/mohammad-safakhou/runbooker/internal/runtime"
	"github.com/mohammad-safakhou/runbooker/internal/search"
	"github.com/mohammad-safakhou/runbooker/internal/store"
	"github.com/mohammad-safakhou/runbooker/internal/synth"
	"github.com/mohammad-safakhou/runbooker/models"
)

// ReadStore is the query side used by the read-only endpoints.
type ReadStore interface {
	TopicCounts(ctx context.Context) ([]models.TopicCount, error)
	ListTicketsByTopic(ctx context.Context, topic models.Topic, limit int) ([]models.Ticket, error)
	GetTicket(ctx context.Context, number string) (models.Ticket, error)
	GetRunbook(ctx context.Context, topic models.Topic) (models.Runbook, error)
	ListRunbooks(ctx context.Context) ([]models.Runbook, error)
	ListImports(ctx context.Context, limit int) ([]models.ImportBatch, error)
}

// StatusReporter reports inference runtime health.
type StatusReporter interface {
	Status() inference.Status
}

type Deps struct {
	Config   config.ServerConfig
	Pipeline *pipeline.Service
	Store    ReadStore
	Index    *search.Index
	Runtime  StatusReporter
	Metrics  http.Handler
}

type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *log.Logger
}

func New(deps Deps) *Server {
	s := &Server{
		echo:   echo.New(),
		deps:   deps,
		logger: log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", s.health)
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	api := e.Group("/api")
	read, write := []echo.MiddlewareFunc{}, []echo.MiddlewareFunc{}
	if deps.Config.AuthEnabled {
		secret := []byte(deps.Config.JWTSecret)
		auth := &AuthHandler{User: deps.Config.AdminUser, PasswordHash: deps.Config.AdminPasswordHash, Secret: secret}
		auth.Register(api.Group("/auth"))
		read = append(read, runtime.EchoAuthMiddleware(secret), runtime.RequireScopes(runtime.ScopeRead))
		write = append(write, runtime.EchoAuthMiddleware(secret), runtime.RequireScopes(runtime.ScopeWrite))
	}

	limit := deps.Config.MaxUploadBytes
	if limit <= 0 {
		limit = 100 << 20
	}
	api.POST("/imports", s.importTickets, append(write, middleware.BodyLimit(fmt.Sprintf("%dB", limit)))...)
	api.GET("/imports", s.listImports, read...)

	api.GET("/topics", s.topicCounts, read...)
	api.GET("/topics/:topic/tickets", s.topicTickets, read...)

	api.GET("/tickets/search", s.searchTickets, read...)
	api.GET("/tickets/:number", s.getTicket, read...)
	api.POST("/tickets/reclassify", s.reclassify, write...)

	api.GET("/runbooks", s.listRunbooks, read...)
	api.GET("/runbooks/:topic", s.getRunbook, read...)
	api.GET("/runbooks/:topic/html", s.getRunbookHTML, read...)
	api.POST("/runbooks/:topic", s.synthesize, write...)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// handleError maps domain errors to status codes and writes a JSON body.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	case errors.Is(err, models.ErrTopicNotFound), errors.Is(err, search.ErrEmptyQuery):
		code = http.StatusBadRequest
	case errors.Is(err, synth.ErrNoTickets):
		code = http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, inference.ErrUnavailable):
		code = http.StatusServiceUnavailable
	}
	req := c.Request()
	s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
	if c.Response().Committed {
		return
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]interface{}{"error": msg})
}
