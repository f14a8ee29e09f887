package server

import (
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// TransportKind names the wire a peer is connected over.
type TransportKind string

const (
	// TransportTCP is a raw TCP byte stream; one read is one inbound message.
	TransportTCP TransportKind = "tcp"
	// TransportWebSocket is a WebSocket connection; one frame is one inbound message.
	TransportWebSocket TransportKind = "websocket"
)

// transport is the byte-level side of a peer. ReadMessage is only called by the
// owning session and WriteMessage only by the peer's writer goroutine.
type transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(p []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
	Kind() TransportKind
}

type tcpTransport struct {
	conn net.Conn
	buf  []byte
}

func newTCPTransport(conn net.Conn, bufSize int) *tcpTransport {
	if bufSize <= 0 {
		bufSize = defaultReadBufferSize
	}
	return &tcpTransport{conn: conn, buf: make([]byte, bufSize)}
}

// ReadMessage returns whatever a single read delivered. Data that arrives
// together with an error is returned first; the error surfaces on the next call.
func (t *tcpTransport) ReadMessage() ([]byte, error) {
	for {
		n, err := t.conn.Read(t.buf)
		if n > 0 {
			msg := make([]byte, n)
			copy(msg, t.buf[:n])
			return msg, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (t *tcpTransport) WriteMessage(p []byte) error {
	_, err := t.conn.Write(p)
	return err
}

func (t *tcpTransport) SetReadDeadline(d time.Time) error  { return t.conn.SetReadDeadline(d) }
func (t *tcpTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }
func (t *tcpTransport) RemoteAddr() net.Addr               { return t.conn.RemoteAddr() }
func (t *tcpTransport) Close() error                       { return t.conn.Close() }
func (t *tcpTransport) Kind() TransportKind                { return TransportTCP }

type wsTransport struct {
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn, maxMessageSize int64) *wsTransport {
	conn.SetReadLimit(maxMessageSize)
	return &wsTransport{conn: conn}
}

// ReadMessage returns the next data frame. Control frames are handled by
// gorilla/websocket and never reach the session.
func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) WriteMessage(p []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, p)
}

func (t *wsTransport) SetReadDeadline(d time.Time) error  { return t.conn.SetReadDeadline(d) }
func (t *wsTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }
func (t *wsTransport) RemoteAddr() net.Addr               { return t.conn.RemoteAddr() }
func (t *wsTransport) Kind() TransportKind                { return TransportWebSocket }

// Close sends a best-effort close frame before dropping the connection.
func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return t.conn.Close()
}
