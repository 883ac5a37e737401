// Package api serves the round-flow backend over HTTP with echo.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/enftaurus/vidyamitra/internal/flowstore"
	"github.com/enftaurus/vidyamitra/pkg/errclass"
	"github.com/enftaurus/vidyamitra/pkg/logging"
	"github.com/enftaurus/vidyamitra/pkg/metrics"
)

// UserCookie identifies the caller on every round-flow route.
const UserCookie = "user_id"

type Router struct {
	Root *echo.Group
	Flow *echo.Group
}

// Server keeps the backend's dependencies and its echo instance.
type Server struct {
	Echo    *echo.Echo
	Router  *Router
	Flow    *flowstore.Service
	Metrics *metrics.Registry
	Log     *logging.Logger
	// Bridge, if set, is mounted at /ws/session.
	Bridge http.Handler
}

// NewServer wires routes for flow. reg may be nil to disable /metrics.
func NewServer(flow *flowstore.Service, reg *metrics.Registry, log *logging.Logger, bridge http.Handler) *Server {
	if log == nil {
		log = logging.Global()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Echo:    e,
		Flow:    flow,
		Metrics: reg,
		Log:     log.WithFields(map[string]any{"component": "api"}),
		Bridge:  bridge,
	}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.requestLogger)

	s.Router = &Router{
		Root: e.Group(""),
		Flow: e.Group("/interview_flow", requireUser),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	GetHealthRoute(s)
	GetStatusRoute(s)
	PostResetRoute(s)
	PostStartRoute(s)
	PostAnswerRoute(s)
	PostCompleteRoute(s)

	if s.Metrics != nil {
		s.Router.Root.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}
	if s.Bridge != nil {
		s.Router.Root.GET("/ws/session", echo.WrapHandler(s.Bridge))
	}
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.Log.Info("listening", map[string]any{"addr": addr})
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.Log.Debug("request", map[string]any{
			"method": c.Request().Method,
			"path":   c.Path(),
			"status": c.Response().Status,
		})
		return nil
	}
}

// errorBody mirrors the backend's historic {"detail": ...} shape and adds
// the stable error code.
type errorBody struct {
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		_ = c.JSON(he.Code, errorBody{Detail: msg})
		return
	}

	status := errclass.HTTPStatus(err)
	body := errorBody{Code: errclass.Code(err), Detail: detail(err)}
	if status >= http.StatusInternalServerError {
		s.Log.ErrorErr("request failed", err, map[string]any{"path": c.Path()})
	}
	_ = c.JSON(status, body)
}

// detail returns the human-readable part of a classified error.
func detail(err error) string {
	var pe *errclass.ProctorError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}
