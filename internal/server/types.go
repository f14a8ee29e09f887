// Package server defines the wire-level response formats, sentinel errors and
// utility helpers shared by sessions, peers and the accept loop.
package server

import (
	"errors"
	"fmt"
	"strings"
)

const (
	broadcastSentReply  = "Broadcast sent."
	broadcastUsageReply = "Usage: /broadcast <message>"
)

var (
	// ErrServerClosed is returned by Serve after Close or Shutdown.
	ErrServerClosed = errors.New("server: relay closed")

	// ErrPeerClosed is returned when sending to a peer whose session has ended.
	ErrPeerClosed = errors.New("server: peer closed")

	// ErrQueueFull is returned when a peer's outbound queue has no room left.
	ErrQueueFull = errors.New("server: outbound queue full")
)

func countReply(n int) string {
	return fmt.Sprintf("Active clients: %d", n)
}

func echoReply(message string) string {
	return "Echo: " + message
}

func peerBroadcast(addr, text string) string {
	return fmt.Sprintf("[Broadcast from %s] %s", addr, text)
}

func serverBroadcast(text string) string {
	return "[Server Broadcast] " + text
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "io: read/write on closed pipe")
}
