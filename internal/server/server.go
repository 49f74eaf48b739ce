// Package server exposes the transcription handler to the browser over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/config"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultShutdownTimeout = 10 * time.Second

// Transcriber is the request handler the server hosts.
type Transcriber interface {
	Transcribe(ctx context.Context, buf *audio.Buffer) transcribe.Result
	EngineName() string
}

type Server struct {
	httpServer  *http.Server
	engine      *gin.Engine
	transcriber Transcriber
	config      config.ServerConfig
	log         *zap.Logger
}

func New(cfg config.ServerConfig, transcriber Transcriber, log *zap.Logger) (*Server, error) {
	if transcriber == nil {
		return nil, errors.New("transcriber is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		engine:      gin.New(),
		transcriber: transcriber,
		config:      cfg,
		log:         log.Named("server"),
	}

	s.engine.Use(Recovery(s.log))
	s.engine.Use(RequestID(s.log))
	s.engine.Use(RequestLogger(s.log))
	s.engine.Use(BodySizeLimit(cfg.MaxUploadBytes))
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:           s.engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run binds the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// down gracefully and waits for in-flight transcriptions up to the shutdown
// timeout.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.log.Info("HTTP server started", zap.String("addr", listener.Addr().String()), zap.String("engine", s.transcriber.EngineName()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	s.log.Info("Shutting down HTTP server", zap.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}

	s.log.Info("HTTP server shut down")
	return nil
}
