// Package server exposes a store.Repository over a JSON REST API, serves
// published pages read-only, and answers related-page queries from the
// vector index.
package server

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kittclouds/kittpages/internal/apperror"
	"github.com/kittclouds/kittpages/internal/store"
)

// PreviewCache caches published page payloads; *cache.PreviewCache
// implements it.
type PreviewCache interface {
	Get(ctx context.Context, documentID string, v any) (bool, error)
	Set(ctx context.Context, documentID string, v any) error
	Invalidate(ctx context.Context, documentIDs ...string) error
}

// Server is the HTTP front of a repository.
type Server struct {
	echo    *echo.Echo
	repo    store.Repository
	vectors store.VectorIndex
	cache   PreviewCache
	log     zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l.With().Str("component", "server").Logger() }
}

// WithVectorIndex enables related pages. Documents are re-embedded after
// every write that touches them.
func WithVectorIndex(v store.VectorIndex) Option {
	return func(s *Server) { s.vectors = v }
}

// WithPreviewCache caches published pages.
func WithPreviewCache(c PreviewCache) Option {
	return func(s *Server) { s.cache = c }
}

// New builds the server and registers its routes.
func New(repo store.Repository, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, repo: repo, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(s.recovery())
	e.Use(s.requestLogger())
	e.HTTPErrorHandler = s.errorHandler
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)

	api := s.echo.Group("/api")
	api.GET("/documents", s.listDocuments)
	api.POST("/documents", s.createDocument)
	api.GET("/documents/:id", s.getDocument)
	api.PATCH("/documents/:id", s.updateDocument)
	api.DELETE("/documents/:id", s.deleteDocument)
	api.GET("/documents/:id/related", s.relatedDocuments)

	api.GET("/blocks", s.listBlocks)
	api.POST("/blocks", s.createBlock)
	api.PUT("/blocks", s.upsertBlocks)
	api.GET("/blocks/:id", s.getBlock)
	api.PATCH("/blocks/:id", s.updateBlock)
	api.DELETE("/blocks/:id", s.deleteBlock)

	s.echo.GET("/preview/:slug", s.publishedPage)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("listening")
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	if p, ok := s.repo.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(c.Request().Context()); err != nil {
			return apperror.NewInternal(err)
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// Middleware and errors
// =============================================================================

func (s *Server) recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Str("method", c.Request().Method).
						Str("path", c.Request().URL.Path).
						Msg("panic recovered")
					returnErr = apperror.NewInternal(errors.New("panic"))
				}
			}()
			return next(c)
		}
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			ev := s.log.Info()
			switch {
			case res.Status >= 500:
				ev = s.log.Error()
			case res.Status >= 400:
				ev = s.log.Warn()
			}
			ev.Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Msg("request")
			return nil
		}
	}
}

// errorHandler renders AppErrors as {"type", "message"} and maps Echo's own
// errors to the same shape.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		if appErr.Internal != nil {
			s.log.Error().Err(appErr.Internal).
				Str("type", appErr.Type).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}
	case errors.As(err, &echoErr):
		msg, ok := echoErr.Message.(string)
		if !ok {
			msg = http.StatusText(echoErr.Code)
		}
		appErr = &apperror.AppError{Code: echoErr.Code, Type: errorType(echoErr.Code), Message: msg}
	default:
		s.log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
		appErr = apperror.NewInternal(err)
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(appErr.Code)
		return
	}
	c.JSON(appErr.Code, appErr)
}

func errorType(code int) string {
	switch code {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	}
	if code >= 500 {
		return "internal_error"
	}
	return "error"
}
