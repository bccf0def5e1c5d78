// Package server exposes the view sessions over HTTP
package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brettboylen/clanboard/models"
)

const viewerCookie = "clanboard_viewer"

// StatsSource provides the feed snapshot statistics
type StatsSource interface {
	GetStatistics() models.Statistics
}

// Config holds the HTTP server settings
type Config struct {
	Port                 int
	MaxRequestsPerMinute int // 0 disables the per-IP limiter
	SessionTTL           time.Duration
}

// Server is the clanboard HTTP API
type Server struct {
	echo    *echo.Echo
	viewers *Registry
	stats   StatsSource
	config  Config
	log     *logrus.Logger
}

// New creates the server and registers every route
func New(config Config, viewers *Registry, stats StatsSource, log *logrus.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		viewers: viewers,
		stats:   stats,
		config:  config,
		log:     log,
	}

	// middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if config.MaxRequestsPerMinute > 0 {
		e.Use(rateLimiter(config.MaxRequestsPerMinute))
	}

	s.routes()
	return s
}

// rateLimiter limits each client IP to maxRequestsPerMinute
func rateLimiter(maxRequestsPerMinute int) echo.MiddlewareFunc {
	requestsPerSecond := float64(maxRequestsPerMinute) / 60.0

	// a page load fans out into a few API calls at once
	burst := int(math.Ceil(requestsPerSecond))
	if burst < 1 {
		burst = 1
	}

	tooMany := func(ctx echo.Context) error {
		return ctx.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Rate limit exceeded, please try again later",
		})
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(requestsPerSecond),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return tooMany(ctx)
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return tooMany(ctx)
		},
	})
}

func (s *Server) routes() {
	e := s.echo

	api := e.Group("/api", s.withViewer)

	api.GET("/home", s.getHome)
	api.POST("/home/posts/:id/vote", s.voteHome)

	api.GET("/c/:name", s.getClan)
	api.POST("/c/:name/posts/:id/vote", s.voteClan)
	api.POST("/c/:name/join", s.joinClan)
	api.POST("/c/:name/leave", s.leaveClan)
	api.GET("/c/:name/members", s.getClanMembers)

	api.GET("/post/:id", s.getPost)
	api.POST("/post/:id/vote", s.votePost)
	api.PUT("/post/:id/draft", s.saveDraft)
	api.POST("/post/:id/comments", s.submitComment)
	api.POST("/post/:id/comments/:cid/replies", s.submitReply)
	api.POST("/post/:id/comments/:cid/vote", s.voteComment)

	api.GET("/search", s.getSearch)
	api.POST("/search/posts/:id/vote", s.voteSearch)

	api.GET("/user/:username", s.getProfile)
	api.POST("/user/:username/posts/:id/vote", s.voteProfile)

	api.GET("/sidebar", s.getSidebar)
	api.POST("/sidebar/clans/:name/toggle", s.toggleSidebarClan)

	api.POST("/posts", s.createPost)
	api.POST("/clans", s.createClan)

	api.POST("/login", s.login)
	api.POST("/signup", s.signup)
	api.POST("/logout", s.logout)
	api.GET("/session", s.getSession)

	e.GET("/api/stats", s.getStats)
	e.GET("/api/stats/:clan", s.getClanStats)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully. Idle view
// sessions are swept while the server runs.
func (s *Server) Start(ctx context.Context) {
	go s.viewers.Run(ctx)

	go func() {
		serverAddr := fmt.Sprintf(":%d", s.config.Port)
		s.log.WithField("port", s.config.Port).Info("Starting API server")
		if err := s.echo.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Fatal("API server failed")
		}
	}()

	<-ctx.Done()
	s.log.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Error("API server shutdown failed")
	}
}

// withViewer attaches the caller's view session, issuing a cookie for new ones
func (s *Server) withViewer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := ""
		if cookie, err := c.Cookie(viewerCookie); err == nil {
			id = cookie.Value
		}

		v := s.viewers.Resolve(id)
		if v.ID != id {
			c.SetCookie(&http.Cookie{
				Name:     viewerCookie,
				Value:    v.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				MaxAge:   int((30 * 24 * time.Hour).Seconds()),
			})
		}

		c.Set(viewerCookie, v)
		return next(c)
	}
}

func viewerOf(c echo.Context) *Viewer {
	return c.Get(viewerCookie).(*Viewer)
}
