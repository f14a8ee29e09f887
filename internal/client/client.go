// Package client is the interactive relay client: it connects over TCP, prints
// everything the server sends from a background reader, and forwards typed
// commands.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// Banner is printed before the prompt loop starts.
const Banner = "Commands: /count | /broadcast <message> | Ctrl+C to quit"

const readBufferSize = 1024

// Client is one connection to the relay.
type Client struct {
	conn      net.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the relay at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// Send writes text to the relay as a single message, without a terminator.
func (c *Client) Send(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := io.WriteString(c.conn, text); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Listen prints every read from the relay to w until the connection ends. A
// clean close by the server returns nil.
func (c *Client) Listen(w io.Writer) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			_, _ = fmt.Fprintf(w, "\n[Server] %s\n", buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				_, _ = fmt.Fprintln(w, "Server closed connection.")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
	}
}

// Close closes the connection; later calls are no-ops.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Run starts the background reader, then sends each non-empty line typed on
// in until in is exhausted, ctx is done, or the server goes away.
func Run(ctx context.Context, c *Client, in io.Reader, out io.Writer) error {
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- c.Listen(out)
	}()

	_, _ = fmt.Fprintln(out, Banner)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, _ = fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-listenErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			if err := c.Send(line); err != nil {
				return err
			}
		}
	}
}
