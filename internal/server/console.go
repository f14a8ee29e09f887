package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// ErrConsoleClosed is returned by RunConsole when its input reaches EOF.
var ErrConsoleClosed = fmt.Errorf("console: input closed: %w", io.EOF)

const (
	consoleExit      = "exit"
	consoleBroadcast = "broadcast "
	consoleHelp      = "Unknown command. \nAvailable:\n" +
		"  exit -> Shut down server.\n" +
		"  broadcast <message> -> Broadcast message to all clients.\n"
)

// RunConsole reads operator commands from in, one per line, and writes
// feedback to out. It returns nil when the operator types "exit"; the caller
// is expected to shut the relay down. EOF yields ErrConsoleClosed and a done
// ctx yields ctx.Err(), both leaving the relay running.
func RunConsole(ctx context.Context, in io.Reader, out io.Writer, relay *Server) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			if err != nil {
				return fmt.Errorf("console: %w", err)
			}
			return ErrConsoleClosed
		case line := <-lines:
			if handleConsoleLine(strings.TrimSuffix(line, "\r"), out, relay) {
				return nil
			}
		}
	}
}

// handleConsoleLine executes one operator command and reports whether it asked for shutdown.
func handleConsoleLine(line string, out io.Writer, relay *Server) bool {
	switch {
	case line == consoleExit:
		_, _ = fmt.Fprintln(out, "Shutting down server...")
		return true
	case strings.HasPrefix(line, consoleBroadcast):
		text := strings.TrimSpace(line[len(consoleBroadcast):])
		if text == "" {
			_, _ = fmt.Fprintln(out, "Usage: broadcast <message>")
			return false
		}
		relay.Broadcast(text)
		_, _ = fmt.Fprintf(out, "Broadcast sent to %d clients.\n", relay.Registry().Count())
	default:
		_, _ = fmt.Fprint(out, consoleHelp)
	}
	return false
}
