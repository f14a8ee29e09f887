package server

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hako/durafmt"
	"github.com/rs/zerolog"
)

// SessionState is the lifecycle stage of a session.
type SessionState int32

const (
	// StateActive sessions read and dispatch messages.
	StateActive SessionState = iota
	// StateClosing sessions are deregistering and closing their connection.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session owns one peer for its whole life: it reads inbound messages,
// dispatches them, and on any exit path deregisters and closes the peer.
type Session struct {
	peer        *Peer
	registry    *Registry
	broadcaster *Broadcaster
	limiter     *rateLimiter
	rateLimit   RateLimitConfig
	log         zerolog.Logger
	state       atomic.Int32
}

func newSession(peer *Peer, registry *Registry, broadcaster *Broadcaster, rateLimit RateLimitConfig) *Session {
	return &Session{
		peer:        peer,
		registry:    registry,
		broadcaster: broadcaster,
		limiter:     newRateLimiter(rateLimit),
		rateLimit:   rateLimit,
		log:         peer.log,
	}
}

// Peer returns the connection the session owns.
func (s *Session) Peer() *Peer { return s.peer }

// State returns the current lifecycle stage.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Run reads and dispatches until the peer disconnects, a read fails, or the
// server interrupts it. Cleanup always runs before Run returns.
func (s *Session) Run() {
	defer s.cleanup()

	for {
		raw, err := s.peer.transport.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if !s.checkRateLimit() {
			continue
		}

		s.dispatch(string(raw))
	}
}

func (s *Session) dispatch(message string) {
	cmd := ParseCommand(message)
	switch cmd.Kind {
	case CommandCount:
		s.reply(countReply(s.registry.Count()))
	case CommandBroadcast:
		if cmd.Text == "" {
			s.reply(broadcastUsageReply)
			return
		}
		s.broadcaster.Broadcast(peerBroadcast(s.peer.Addr(), cmd.Text), s.peer)
		s.reply(broadcastSentReply)
	default:
		s.reply(echoReply(cmd.Text))
	}
}

func (s *Session) reply(message string) {
	if err := s.peer.Send(message); err != nil {
		s.log.Warn().Err(err).Msg("Reply dropped")
	}
}

// checkRateLimit reports whether the next message may be processed.
func (s *Session) checkRateLimit() bool {
	if s.limiter.allow() {
		return true
	}
	s.log.Warn().
		Int("burst", s.rateLimit.Burst).
		Dur("interval", s.rateLimit.RefillInterval).
		Msg("Rate limit exceeded; discarding message")
	return false
}

func (s *Session) logReadError(err error) {
	var netErr net.Error
	switch {
	case s.peer.interrupted.Load():
		s.log.Info().Msg("Session closed by server shutdown")
	case errors.Is(err, io.EOF),
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.log.Debug().Msg("Client disconnected")
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		s.log.Info().Err(err).Msg("Client disconnected abruptly")
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn().Msg("Message exceeded maximum size")
	case errors.As(err, &netErr) && netErr.Timeout():
		s.log.Info().Msg("Connection dropped after failed write")
	case isExpectedCloseError(err):
		s.log.Debug().Err(err).Msg("Connection closed")
	default:
		s.log.Warn().Err(err).Msg("Read error")
	}
}

// cleanup deregisters and closes the peer. It is deferred by Run so it executes
// on every exit path, including a panic while dispatching.
func (s *Session) cleanup() {
	if r := recover(); r != nil {
		s.log.Error().Interface("panic", r).Msg("Session panicked; closing connection")
	}

	s.state.Store(int32(StateClosing))
	removed := s.registry.Deregister(s.peer)
	if err := s.peer.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Debug().Err(err).Msg("Error closing connection")
	}
	s.state.Store(int32(StateClosed))

	lifetime := time.Since(s.peer.ConnectedAt()).Truncate(time.Millisecond)
	s.log.Info().
		Bool("deregistered", removed).
		Str("duration", durafmt.Parse(lifetime).LimitFirstN(2).String()).
		Int("clients", s.registry.Count()).
		Msg("Connection closed")
}
