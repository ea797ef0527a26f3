// Package server provides the HTTP and websocket surface of terratale.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	orchestration "github.com/terratale/terratale/core"
	"github.com/terratale/terratale/core/gateway"
	"github.com/terratale/terratale/core/knowledge"
	"github.com/terratale/terratale/core/session"
	"github.com/terratale/terratale/core/speech"
)

// Config holds the listen address.
type Config struct {
	Host string
	Port int
}

// Deps are the collaborators the endpoints delegate to.
type Deps struct {
	Supervisor  *orchestration.ConnectionSupervisor
	Synthesizer gateway.SpeechSynthesizer
	TextGen     gateway.TextGenerator
	Retriever   knowledge.ContextRetriever
	Images      knowledge.ImageSearcher
	// Lexicon may be left zero-valued; synthesis then runs without phoneme
	// annotation.
	Lexicon speech.Lexicon

	// CallTimeout bounds the synchronous HTTP endpoints.
	CallTimeout time.Duration
}

// Server serves the websocket session endpoint and the synchronous REST
// endpoints.
type Server struct {
	echo     *echo.Echo
	upgrader websocket.Upgrader
	logger   *zap.Logger
	config   Config
	deps     Deps
}

func NewServer(deps Deps, logger *zap.Logger, cfg Config) (*Server, error) {
	if deps.Supervisor == nil {
		return nil, fmt.Errorf("connection supervisor is required")
	}
	if deps.Synthesizer == nil {
		return nil, fmt.Errorf("speech synthesizer is required")
	}
	if deps.TextGen == nil || deps.Retriever == nil || deps.Images == nil {
		return nil, fmt.Errorf("gateway and knowledge collaborators are required")
	}
	if deps.CallTimeout <= 0 {
		deps.CallTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo: e,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		config: cfg,
		deps:   deps,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ws", s.handleWebsocket)
	s.echo.POST("/synthesize", s.handleSynthesize)
	s.echo.POST("/qa", s.handleQA)
	s.echo.POST("/image-search", s.handleImageSearch)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleWebsocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return nil
	}

	s.logger.Info("websocket connected")
	channel := session.NewWebsocketChannel(conn)
	if err := s.deps.Supervisor.Serve(c.Request().Context(), channel); err != nil {
		s.logger.Warn("websocket session ended with error", zap.Error(err))
	}
	s.logger.Info("websocket disconnected")
	return nil
}

type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
