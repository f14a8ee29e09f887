// Package server runs the relay's accept loop and supervises one session per
// connection, with operator broadcast and shutdown on top.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/remeh/sizedwaitgroup"
	"github.com/rs/zerolog"
)

// Server accepts connections, registers each one and runs a Session for it.
type Server struct {
	cfg         Config
	log         zerolog.Logger
	registry    *Registry
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	sessions    sizedwaitgroup.SizedWaitGroup
	started     time.Time

	ctx        context.Context
	cancel     context.CancelFunc
	// acceptCtx ends with Close; ctx ends with Shutdown
	acceptCtx  context.Context
	stopAccept context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewServer creates a relay from cfg (defaults when nil). Nothing is bound
// until ListenAndServe or Serve is called.
func NewServer(cfg *Config, logger zerolog.Logger) *Server {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}
	c = c.sanitized()

	ctx, cancel := context.WithCancel(context.Background())
	acceptCtx, stopAccept := context.WithCancel(ctx)
	registry := NewRegistry()
	origins := newOriginPolicy(c.AllowedOrigins, logger)

	return &Server{
		cfg:         c,
		log:         logger,
		registry:    registry,
		broadcaster: NewBroadcaster(registry, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		sessions:   sizedwaitgroup.New(c.MaxSessions),
		started:    time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		acceptCtx:  acceptCtx,
		stopAccept: stopAccept,
	}
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config { return s.cfg }

// Registry returns the server's connection registry.
func (s *Server) Registry() *Registry { return s.registry }

// Addr returns the listening address, or nil before Serve is called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds the configured address and runs the accept loop.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the listener is closed. Sessions run
// concurrently with the loop; it never waits for one to finish. After Close or
// Shutdown it returns ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Relay listening")

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			tempDelay = nextAcceptDelay(tempDelay)
			s.log.Warn().Err(err).Dur("retry_in", tempDelay).Msg("Accept error")
			select {
			case <-time.After(tempDelay):
			case <-s.acceptCtx.Done():
				return ErrServerClosed
			}
			continue
		}
		tempDelay = 0

		// with MaxSessions reached the loop holds this one connection and stops
		// accepting; later connections wait in the kernel backlog
		if err := s.sessions.AddWithContext(s.acceptCtx); err != nil {
			_ = conn.Close()
			return ErrServerClosed
		}
		s.startSession(newTCPTransport(conn, s.cfg.ReadBufferSize))
	}
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		return time.Second
	}
	return d
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listener = ln
	return true
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// startSession registers the transport as a peer and runs its session in the
// background. The caller must already hold a session slot.
func (s *Server) startSession(t transport) *Session {
	peer := newPeer(t, s.cfg.OutboundQueueSize, s.cfg.WriteTimeout, s.log)
	s.registry.Register(peer)
	session := newSession(peer, s.registry, s.broadcaster, s.cfg.RateLimit)
	peer.log.Info().Int("clients", s.registry.Count()).Msg("Client connected")

	if s.ctx.Err() != nil {
		// raced with Shutdown's sweep of the registry
		peer.interrupt()
	}

	go func() {
		defer s.sessions.Done()
		session.Run()
	}()
	return session
}

// Broadcast sends an operator message to every connected client.
func (s *Server) Broadcast(text string) {
	s.broadcaster.Broadcast(serverBroadcast(text), nil)
}

// Close stops accepting new connections on the listener and the WebSocket
// gateway. Running sessions are left alone and end on their own terms.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopAccept()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Shutdown closes the listener, interrupts every session and waits up to
// timeout for them to finish cleanup.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info().Msg("Initiating relay shutdown...")

	if err := s.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn().Err(err).Msg("Error closing listener")
	}
	s.cancel()

	peers := s.registry.Snapshot()
	for _, p := range peers {
		p.interrupt()
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Int("sessions", len(peers)).Msg("Relay shutdown completed")
		return nil
	case <-time.After(timeout):
		s.log.Warn().Msg("Relay shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
