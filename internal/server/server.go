// Package server exposes the recommendation engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/kamusis/assessrec/internal/engine"
	"github.com/kamusis/assessrec/internal/logger"
)

const (
	DefaultTopK = 10
	MaxTopK     = 10

	defaultRequestTimeout = 15 * time.Second
	shutdownTimeout       = 10 * time.Second
	queryLogLimit         = 80
)

// Recommender is the part of engine.Engine the HTTP layer needs.
type Recommender interface {
	Recommend(ctx context.Context, query string, topK int) ([]engine.Result, error)
	State() engine.State
}

type Options struct {
	Engine Recommender
	Logger *zap.Logger
	// RequestTimeout bounds a single /recommend call. Zero means 15s.
	RequestTimeout time.Duration
}

// Server wraps an echo instance with the recommendation routes registered.
type Server struct {
	echo    *echo.Echo
	engine  Recommender
	log     *zap.Logger
	timeout time.Duration
}

// RecommendRequest is the POST /recommend body. TopK defaults to 10 when
// omitted and is clamped to [1, 10].
type RecommendRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

type RecommendResponse struct {
	Recommendations []engine.Result `json:"recommendations"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	IndexLoaded bool   `json:"index_loaded"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, engine: opts.Engine, log: log, timeout: timeout}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(s.accessLog)
	e.Use(middleware.Recover())

	e.GET("/health", s.health)
	e.POST("/recommend", s.recommend)
	return s
}

// Handler returns the root http.Handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:      "active",
		IndexLoaded: s.engine.State() == engine.StateReady,
	})
}

func (s *Server) recommend(c echo.Context) error {
	var req RecommendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "invalid request body"})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "query must not be empty"})
	}
	k := ClampTopK(req.TopK)

	log := s.requestLogger(c).With(
		zap.String("query", logger.TruncateForLog(req.Query, queryLogLimit)),
		zap.Int("top_k", k),
	)

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.timeout)
	defer cancel()

	type outcome struct {
		results []engine.Result
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.engine.Recommend(ctx, req.Query, k)
		done <- outcome{res, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}

	switch {
	case out.err == nil:
		if out.results == nil {
			out.results = []engine.Result{}
		}
		log.Debug("recommendation served", zap.Int("results", len(out.results)))
		return c.JSON(http.StatusOK, RecommendResponse{Recommendations: out.results})
	case errors.Is(out.err, context.DeadlineExceeded):
		log.Warn("recommendation timed out", zap.Duration("timeout", s.timeout))
		return c.JSON(http.StatusGatewayTimeout, ErrorResponse{Detail: "recommendation timed out"})
	default:
		log.Error("recommendation failed", zap.Error(out.err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "recommendation failed"})
	}
}

// ClampTopK applies the default and the [1, MaxTopK] bounds.
func ClampTopK(k *int) int {
	if k == nil {
		return DefaultTopK
	}
	return max(1, min(MaxTopK, *k))
}

func (s *Server) requestLogger(c echo.Context) *zap.Logger {
	return s.log.With(zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
}

func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		s.requestLogger(c).Info("request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", c.Response().Status),
			zap.Duration("latency", time.Since(start)),
		)
		return nil
	}
}

// handleError renders echo errors (unknown route, bad method, panics) in
// the same {"detail": ...} shape as the handlers.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	detail := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(code)
		}
	} else {
		s.requestLogger(c).Error("unhandled error", zap.Error(err))
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Detail: detail})
}
