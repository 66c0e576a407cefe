// Package server accepts TCP connections and answers one JSON command per connection.
//
// Request pipeline, one goroutine per connection:
//
//	Accept conn → read until the client half-closes → Codec.Decode
//	  → Middleware Chain → Dispatcher → Codec.Encode → write → close
//
// A request that cannot be decoded is answered with its DecodeError's response and
// never reaches the middleware chain.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/code19m/errx"
	"golang.org/x/time/rate"

	"mini-cmd/codec"
	"mini-cmd/logger"
	"mini-cmd/message"
	"mini-cmd/middleware"
	"mini-cmd/registry"
)

const (
	CodeShutdownTimeout = "SHUTDOWN_TIMEOUT"
	CodeAlreadyServing  = "ALREADY_SERVING"
)

const (
	registerTimeout = 5 * time.Second
	drainTimeout    = time.Second
)

// acceptRetryInterval paces the accept loop after accept errors such as running out of descriptors.
const acceptRetryInterval = 50 * time.Millisecond

// Dispatcher resolves a decoded request. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req message.Request) message.Response
}

// Server is the command server.
type Server struct {
	cfg         Config
	dispatcher  Dispatcher
	codec       codec.Codec
	logger      logger.Logger
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(dispatcher)))

	registry    registry.Registry // nil if not announcing
	registryCfg registry.Config

	acceptLimiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	listener   net.Listener
	advertised string         // address held in the registry, empty when not registered
	wg         sync.WaitGroup // tracks open connections for graceful shutdown
	shutdown   atomic.Bool    // set before the listener is closed so Accept errors are expected
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = l.Named("server") }
}

// WithCodec replaces the JSON codec.
func WithCodec(c codec.Codec) Option {
	return func(s *Server) { s.codec = c }
}

// WithRegistry announces the server in reg while it serves.
func WithRegistry(reg registry.Registry, cfg registry.Config) Option {
	return func(s *Server) {
		s.registry = reg
		s.registryCfg = cfg
	}
}

// NewServer creates a server that hands decoded requests to d.
func NewServer(d Dispatcher, cfg Config, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:           cfg,
		dispatcher:    d,
		logger:        logger.NewNop(),
		acceptLimiter: rate.NewLimiter(rate.Every(acceptRetryInterval), 1),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = codec.NewJSONCodec(s.logger)
	}
	return s
}

// Use registers a middleware. Middlewares run in the order they are added, the first being the outermost.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// ListenAndServe listens on cfg.Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errx.Wrap(err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown, which makes it return nil.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return errx.New("server is already serving", errx.WithCode(CodeAlreadyServing))
	}
	s.listener = l
	s.mu.Unlock()

	if s.shutdown.Load() {
		_ = l.Close()
		return nil
	}

	// Built once here so Use calls before Serve all apply.
	s.handler = middleware.Chain(s.middlewares...)(s.dispatcher.Dispatch)

	s.logger.Infow("listening", "addr", l.Addr().String())

	if err := s.register(l.Addr()); err != nil {
		_ = l.Close()
		return err
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return errx.Wrap(err)
			}
			var ne net.Error
			if !errors.As(err, &ne) {
				return errx.Wrap(err)
			}
			s.logger.Warnw("accept failed, retrying", "error", err)
			if werr := s.acceptLimiter.Wait(s.ctx); werr != nil {
				return nil
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Addr returns the listener's address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) register(addr net.Addr) error {
	if s.registry == nil {
		return nil
	}

	advertised := s.cfg.AdvertiseAddr
	if advertised == "" {
		advertised = addr.String()
	}

	ctx, cancel := context.WithTimeout(s.ctx, registerTimeout)
	defer cancel()

	err := s.registry.Register(ctx, s.registryCfg.Service, registry.ServiceInstance{
		Addr:    advertised,
		Weight:  s.registryCfg.Weight,
		Version: s.registryCfg.Version,
	}, s.registryCfg.TTL)
	if err != nil {
		s.logger.Errorw("failed to register", "service", s.registryCfg.Service, "error", err)
		return err
	}

	s.mu.Lock()
	s.advertised = advertised
	s.mu.Unlock()
	return nil
}

// handleConn reads one request, answers it and closes the connection.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	log := s.logger.With("remote", conn.RemoteAddr().String())

	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	data, err := io.ReadAll(io.LimitReader(conn, s.cfg.MaxRequestBytes+1))
	if err != nil {
		log.Errorw("failed to read request", "error", err)
		return
	}

	resp := s.respond(log, data)

	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if _, err := conn.Write(s.codec.Encode(resp)); err != nil {
		log.Errorw("failed to write response", "error", err)
		return
	}

	if int64(len(data)) > s.cfg.MaxRequestBytes {
		closeWriteAndDrain(conn)
	}
}

// closeWriteAndDrain discards unread input before the connection is closed.
// Closing a socket with unread data resets it, and the reset can destroy the
// response before the client reads it.
func closeWriteAndDrain(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	_ = conn.SetReadDeadline(time.Now().Add(drainTimeout))
	_, _ = io.Copy(io.Discard, conn)
}

func (s *Server) respond(log logger.Logger, data []byte) message.Response {
	if int64(len(data)) > s.cfg.MaxRequestBytes {
		log.Debugw("request too large", "limit", s.cfg.MaxRequestBytes)
		return message.ErrorResponse(nil, fmt.Sprintf("request exceeds %d bytes", s.cfg.MaxRequestBytes))
	}

	req, err := s.codec.Decode(data)
	if err != nil {
		var de *message.DecodeError
		if errors.As(err, &de) {
			log.Debugw("failed to decode request", "request_id", de.RequestID, "error", err)
			return de.Response()
		}
		log.Debugw("failed to decode request", "error", err)
		return message.ErrorResponse(nil, err.Error())
	}

	return s.handler(s.ctx, req)
}

// Shutdown stops the server gracefully:
//  1. deregister from the registry so clients stop picking this instance
//  2. close the listener
//  3. wait up to timeout for open connections to finish
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	advertised := s.advertised
	s.advertised = ""
	s.mu.Unlock()

	if advertised != "" {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.registry.Deregister(ctx, s.registryCfg.Service, advertised); err != nil {
			s.logger.Warnw("failed to deregister", "error", err)
		}
		cancel()
	}

	// The flag must be set before closing, otherwise Serve reports the Accept error.
	s.shutdown.Store(true)
	s.cancel()

	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		_ = l.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("server stopped")
		return nil
	case <-time.After(timeout):
		return errx.New("timeout waiting for open connections to finish", errx.WithCode(CodeShutdownTimeout))
	}
}
