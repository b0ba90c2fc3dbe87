// Package web exposes the HTTP surface: the public contact and project
// endpoints the site calls, and the JWT-protected admin API the dashboard
// uses to read and manage the notification feed.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"folionotify/internal/config"
	"folionotify/internal/mailer"
	"folionotify/internal/notify"
	"folionotify/internal/stats"
	"folionotify/pkg/logx"
)

const defaultAddr = "127.0.0.1:8080"

// Server wires echo around the notification engine, live feed, stats tracker
// and project registry.
type Server struct {
	e   *echo.Echo
	log logx.Logger

	addr     string
	engine   *notify.Service
	feed     *notify.Feed
	tracker  *stats.Tracker
	registry *Registry
	mail     mailer.Mailer
	auth     *authenticator
}

func New(cfg config.WebConfig, engine *notify.Service, feed *notify.Feed, tracker *stats.Tracker, registry *Registry, mail mailer.Mailer, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	ttl, err := config.ParseDurationOrDefault("web.token_ttl", cfg.TokenTTL, 12*time.Hour)
	if err != nil {
		log.Warn("invalid token ttl, using default", logx.Err(err))
		ttl = 12 * time.Hour
	}

	s := &Server{
		e:        echo.New(),
		log:      log,
		addr:     addr,
		engine:   engine,
		feed:     feed,
		tracker:  tracker,
		registry: registry,
		mail:     mail,
		auth:     newAuthenticator(cfg.AdminPassword, cfg.JWTSecret, ttl),
	}

	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Validator = newValidator()
	s.e.HTTPErrorHandler = errorHandler(log)

	s.e.Use(middleware.Recover())
	s.e.Use(s.observe)
	if cfg.CORSOrigin != "" {
		s.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{cfg.CORSOrigin},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.e.Group("/api")

	api.POST("/contact", s.handleContact)
	api.GET("/projects", s.handlePublicProjects)
	api.POST("/projects/:id/view", s.handleProjectView)
	api.POST("/auth/login", s.handleLogin)

	admin := api.Group("/admin", s.auth.requireAuth)
	admin.GET("/notifications", s.handleNotifications)
	admin.GET("/notifications/stream", s.handleStream)
	admin.POST("/notifications/read-all", s.handleReadAll)
	admin.POST("/notifications/:id/read", s.handleMarkRead)
	admin.POST("/notifications/:id/unread", s.handleMarkUnread)
	admin.DELETE("/notifications/:id", s.handleDeleteNotification)
	admin.GET("/projects", s.handleAdminProjects)
	admin.PATCH("/projects/:id", s.handleProjectUpdate)
	admin.POST("/events", s.handleEvent)
}

// observe feeds every request's latency and outcome into the stats tracker,
// which the hourly performance check reads.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			code, _ := mapError(logx.Nop(), err)
			status = code
		}
		if s.tracker != nil {
			s.tracker.ObserveRequest(time.Since(start), status >= http.StatusInternalServerError)
		}
		return err
	}
}

// Start runs the listener until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", logx.String("addr", s.addr))
	if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
