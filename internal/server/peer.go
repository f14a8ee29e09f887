package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Peer is one registered connection. Its session is the only reader; every
// outbound message, whether a direct reply or a broadcast from another session,
// goes through the bounded send queue and is written by the peer's own writer
// goroutine, so writes on the socket never interleave.
type Peer struct {
	id           string
	addr         string
	kind         TransportKind
	connectedAt  time.Time
	transport    transport
	writeTimeout time.Duration
	log          zerolog.Logger

	mu     sync.RWMutex
	closed bool
	send   chan []byte

	writerDone  chan struct{}
	interrupted atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

func newPeer(t transport, queueSize int, writeTimeout time.Duration, logger zerolog.Logger) *Peer {
	if queueSize <= 0 {
		queueSize = defaultOutboundQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	p := &Peer{
		id:           uuid.NewString(),
		addr:         peerAddress(t.RemoteAddr()),
		kind:         t.Kind(),
		connectedAt:  time.Now(),
		transport:    t,
		writeTimeout: writeTimeout,
		send:         make(chan []byte, queueSize),
		writerDone:   make(chan struct{}),
	}
	p.log = logger.With().
		Str("session", p.id).
		Str("addr", p.addr).
		Str("transport", string(p.kind)).
		Logger()
	go p.writePump()
	return p
}

// peerAddress renders the remote address as host:port without IPv6 brackets.
func peerAddress(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host + ":" + port
}

// ID returns the session identifier assigned when the connection was accepted.
func (p *Peer) ID() string { return p.id }

// Addr returns the remote address as host:port.
func (p *Peer) Addr() string { return p.addr }

// Kind returns the transport the peer is connected over.
func (p *Peer) Kind() TransportKind { return p.kind }

// ConnectedAt returns when the connection was accepted.
func (p *Peer) ConnectedAt() time.Time { return p.connectedAt }

// Send queues message for delivery without blocking. It fails with
// ErrPeerClosed after Close and ErrQueueFull when the peer is not keeping up.
func (p *Peer) Send(message string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPeerClosed
	}
	select {
	case p.send <- []byte(message):
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Peer) writePump() {
	defer close(p.writerDone)
	for message := range p.send {
		if !p.writeMessage(message) {
			return
		}
	}
}

// writeMessage writes one queued message and returns false if the connection
// should stop writing.
func (p *Peer) writeMessage(message []byte) bool {
	if err := p.transport.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
		if !isExpectedCloseError(err) {
			p.log.Warn().Err(err).Msg("Error setting write deadline")
		}
		return false
	}
	if err := p.transport.WriteMessage(message); err != nil {
		if !isExpectedCloseError(err) {
			p.log.Debug().Err(err).Msg("Write failed; dropping connection")
		}
		// wake the session's blocked read so it can clean up
		_ = p.transport.SetReadDeadline(time.Now())
		return false
	}
	return true
}

// interrupt makes the session's pending read fail so it runs its cleanup.
func (p *Peer) interrupt() {
	p.interrupted.Store(true)
	if err := p.transport.SetReadDeadline(time.Now()); err != nil && !isExpectedCloseError(err) {
		p.log.Debug().Err(err).Msg("Error interrupting read")
	}
}

// Close stops accepting messages, gives the writer up to one write timeout to
// flush what is queued, then closes the transport. Only the first call has an effect.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.send)
		p.mu.Unlock()

		timer := time.NewTimer(p.writeTimeout)
		select {
		case <-p.writerDone:
		case <-timer.C:
			p.log.Warn().Msg("Outbound queue not drained before close")
		}
		timer.Stop()

		p.closeErr = p.transport.Close()
	})
	return p.closeErr
}
