package server

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeTransport stands in for a socket: inbound messages are pushed on a
// channel (closing it reads as EOF) and every successful write is recorded.
type fakeTransport struct {
	port        int
	inbound     chan []byte
	written     chan string
	interrupted chan struct{}
	stopOnce    sync.Once
	failWrites  atomic.Bool
	blockWrites chan struct{}
	panicOnRead atomic.Bool
	closes      atomic.Int32
}

func newFakeTransport(port int) *fakeTransport {
	return &fakeTransport{
		port:        port,
		inbound:     make(chan []byte, 16),
		written:     make(chan string, 64),
		interrupted: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	if f.panicOnRead.Load() {
		panic("fake transport read panic")
	}
	select {
	case msg, ok := <-f.inbound:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-f.interrupted:
		return nil, os.ErrDeadlineExceeded
	}
}

func (f *fakeTransport) WriteMessage(p []byte) error {
	if f.blockWrites != nil {
		<-f.blockWrites
	}
	if f.failWrites.Load() {
		return errors.New("write: connection reset by peer")
	}
	f.written <- string(p)
	return nil
}

func (f *fakeTransport) SetReadDeadline(t time.Time) error {
	if !t.After(time.Now()) {
		f.stopOnce.Do(func() { close(f.interrupted) })
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: f.port}
}

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeTransport) Kind() TransportKind { return TransportTCP }

func (f *fakeTransport) push(message string) {
	f.inbound <- []byte(message)
}

func newTestPeer(t *testing.T, port int) (*Peer, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport(port)
	p := newPeer(ft, 8, time.Second, zerolog.Nop())
	t.Cleanup(func() { _ = p.Close() })
	return p, ft
}

func expectWritten(t *testing.T, ft *fakeTransport, want string) {
	t.Helper()
	select {
	case got := <-ft.written:
		require.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func expectNothingWritten(t *testing.T, ft *fakeTransport, wait time.Duration) {
	t.Helper()
	select {
	case got := <-ft.written:
		t.Fatalf("unexpected write %q", got)
	case <-time.After(wait):
	}
}
