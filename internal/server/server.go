// Package server exposes the chat gateway over HTTP and hosts the dispatch
// orchestrator that connects intent classification, the execution gate, and
// the team backend.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/yoyoo-ai/yoyoo/internal/chat"
	"github.com/yoyoo-ai/yoyoo/internal/gate"
	"github.com/yoyoo-ai/yoyoo/internal/intent"
	"github.com/yoyoo-ai/yoyoo/internal/profile"
	"github.com/yoyoo-ai/yoyoo/internal/team"
)

// Server wires the HTTP surface over the gate, chat store, classifier, and
// team backend client.
type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	gate       *gate.Gate
	chat       *chat.Store
	intent     *intent.Classifier
	team       *team.Client
}

func New(p *profile.Profile, g *gate.Gate, chatStore *chat.Store, classifier *intent.Classifier, teamClient *team.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())
	e.Use(newRateLimiter().middleware)

	s := &Server{
		echoServer: e,
		profile:    p,
		gate:       g,
		chat:       chatStore,
		intent:     classifier,
		team:       teamClient,
	}
	s.registerRoutes(e)
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	g := e.Group("/chat")
	g.GET("/messages", s.getMessages)
	g.POST("/messages", s.postMessage)
	g.DELETE("/messages", s.deleteMessages)
	g.GET("/state", s.getState)
	g.PUT("/state", s.putState)
	g.POST("/stream", s.postStream)
	g.GET("/tasks", s.getTasks)
}

// Echo exposes the underlying engine for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}

func (s *Server) Start() error {
	return s.echoServer.Start(s.profile.ListenAddr())
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echoServer.Shutdown(ctx)
}

// requestLogger records one structured line per request after it finishes.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"latency", time.Since(start).String(),
				"user_id", c.QueryParam("userId"),
			)
			return nil
		}
	}
}

// badRequest is the uniform 400 envelope of the chat API.
func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{
		"ok":    false,
		"error": message,
	})
}
