// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package gateway exposes the orchestrator over HTTP for web and partner
// channel integrations.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dotsetgreg/wargabot/pkg/agent"
	"github.com/dotsetgreg/wargabot/pkg/config"
	"github.com/dotsetgreg/wargabot/pkg/logger"
)

// TurnProcessor is the slice of the orchestrator the gateway serves.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, in agent.TurnInput) agent.TurnResult
	Stats() agent.Stats
}

type Options struct {
	Host      string
	Port      int
	JWTSecret string
	JWTIssuer string
	// MaxBodyBytes bounds request bodies; zero means 64 KiB.
	MaxBodyBytes int64
}

func OptionsFromConfig(cfg config.GatewayConfig) Options {
	return Options{Host: cfg.Host, Port: cfg.Port, JWTSecret: cfg.JWTSecret, JWTIssuer: cfg.JWTIssuer}
}

// ErrOpenGateway is returned by New when /v1 would be reachable beyond
// loopback without authentication.
var ErrOpenGateway = errors.New("gateway: jwt_secret is required when host is not loopback")

type Server struct {
	echo      *echo.Echo
	turns     TurnProcessor
	readiness *Readiness
	opts      Options
}

func New(turns TurnProcessor, opts Options) (*Server, error) {
	if opts.JWTSecret == "" && !isLoopback(opts.Host) {
		return nil, fmt.Errorf("%w (host %q)", ErrOpenGateway, opts.Host)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 10
	}
	s := &Server{
		echo:      echo.New(),
		turns:     turns,
		readiness: NewReadiness(),
		opts:      opts,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(requestLogger())
	s.echo.Use(middleware.BodyLimit(fmt.Sprintf("%dB", opts.MaxBodyBytes)))

	s.echo.GET("/health", s.health)
	s.echo.GET("/ready", s.ready)

	v1 := s.echo.Group("/v1")
	if opts.JWTSecret != "" {
		v1.Use(BearerAuth([]byte(opts.JWTSecret), opts.JWTIssuer))
	} else {
		logger.WarnCF("gateway", "No JWT secret configured; /v1 is open to local callers only", map[string]interface{}{"host": opts.Host})
	}
	v1.POST("/turns", s.processTurn)
	v1.GET("/stats", s.stats)
	return s, nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Readiness() *Readiness {
	return s.readiness
}

func (s *Server) Addr() string {
	return net.JoinHostPort(strings.Trim(s.opts.Host, "[]"), strconv.Itoa(s.opts.Port))
}

// Start serves until Shutdown. It marks the gateway ready once listening
// begins.
func (s *Server) Start() error {
	logger.InfoCF("gateway", "Gateway listening", map[string]interface{}{"addr": s.Addr()})
	s.readiness.SetReady()
	if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Drain stops accepting new turns without closing the listener, so health
// checks keep answering while in-flight turns finish.
func (s *Server) Drain() {
	s.readiness.SetDraining()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.readiness.SetDraining()
	return s.echo.Shutdown(ctx)
}

type statusBody struct {
	Status string `json:"status"`
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// GET /health
func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, statusBody{Status: "ok"})
}

// GET /ready
func (s *Server) ready(c echo.Context) error {
	if s.readiness.IsReady() {
		return c.JSON(http.StatusOK, statusBody{Status: s.readiness.State()})
	}
	return c.JSON(http.StatusServiceUnavailable, statusBody{Status: s.readiness.State()})
}

// POST /v1/turns
func (s *Server) processTurn(c echo.Context) error {
	if !s.readiness.IsReady() {
		return c.JSON(http.StatusServiceUnavailable, errorBody("gateway is "+s.readiness.State()))
	}

	var in agent.TurnInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if strings.TrimSpace(in.UserID) == "" {
		return c.JSON(http.StatusBadRequest, errorBody("user_id is required"))
	}
	if strings.TrimSpace(in.Channel) == "" {
		return c.JSON(http.StatusBadRequest, errorBody("channel is required"))
	}
	if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.MediaURL) == "" {
		return c.JSON(http.StatusBadRequest, errorBody("text or media_url is required"))
	}

	res := s.turns.ProcessTurn(c.Request().Context(), in)
	return c.JSON(http.StatusOK, res)
}

// GET /v1/stats
func (s *Server) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.turns.Stats())
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Request().Header.Get(echo.HeaderXRequestID)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, reqID)

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.DebugCF("gateway", "Request served", map[string]interface{}{
				"request_id":  reqID,
				"method":      c.Request().Method,
				"path":        c.Path(),
				"status":      c.Response().Status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			return nil
		}
	}
}
