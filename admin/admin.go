// Package admin serves the HTTP admin surface: metrics snapshots and a health check.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/code19m/errx"
	"github.com/gin-gonic/gin"

	"mini-cmd/logger"
	"mini-cmd/metrics"
)

// Config configures the admin listener. The surface is disabled when Addr is empty.
type Config struct {
	Addr string `mapstructure:"addr"`
}

// SnapshotSource provides the metrics served on /metrics.
type SnapshotSource interface {
	Snapshot() metrics.Snapshot
}

// Server is the admin HTTP server.
type Server struct {
	http   *http.Server
	logger logger.Logger
}

// NewServer builds the admin router on top of src.
func NewServer(cfg Config, src SnapshotSource, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	log = log.Named("admin")
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Snapshot())
	})

	return &Server{
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve handles HTTP requests on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Infow("admin listening", "addr", l.Addr().String())
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errx.Wrap(err)
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return errx.Wrap(err)
	}
	return s.Serve(l)
}

// Shutdown stops the server, waiting for active requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return errx.Wrap(s.http.Shutdown(ctx))
}
