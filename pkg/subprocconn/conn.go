// Package subprocconn implements a framed newline-delimited JSON TCP
// connection and a fixed-capacity pool of such connections to a single
// local endpoint, used to reach the long-lived inference subprocess.
package subprocconn

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 8 * 1024

// Config configures a single Connection's timeouts.
type Config struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig matches the spec's 10s/10s defaults.
func DefaultConfig() Config {
	return Config{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
}

// Connection is a single framed newline-JSON socket. Once unhealthy it
// must not be returned to a pool; IsHealthy reports this permanently.
type Connection struct {
	conn    net.Conn
	reader  *bufio.Reader
	cfg     Config
	healthy atomic.Bool
}

// Dial opens a TCP connection to addr and wraps it.
func Dial(ctx context.Context, addr string, cfg Config) (*Connection, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("subprocconn: dial %s: %w", addr, err)
	}
	c := &Connection{
		conn:   nc,
		reader: bufio.NewReaderSize(nc, defaultBufferSize),
		cfg:    cfg,
	}
	c.healthy.Store(true)
	return c, nil
}

// SendLine marshals v as JSON and writes it as one newline-terminated
// frame, honoring ctx cancellation and the configured write timeout.
func (c *Connection) SendLine(ctx context.Context, v any) error {
	if !c.healthy.Load() {
		return fmt.Errorf("subprocconn: send on unhealthy connection")
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.markUnhealthy()
		return fmt.Errorf("subprocconn: marshal: %w", err)
	}
	b = append(b, '\n')

	deadline := c.cfg.WriteTimeout
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline || deadline == 0 {
			deadline = remaining
		}
	}
	if deadline > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(deadline))
	}

	if _, err := c.conn.Write(b); err != nil {
		c.markUnhealthy()
		return fmt.Errorf("subprocconn: write: %w", err)
	}
	return nil
}

// ReadLine reads one newline-terminated frame and unmarshals it into
// out, honoring ctx cancellation and the configured read timeout.
func (c *Connection) ReadLine(ctx context.Context, out any) error {
	if !c.healthy.Load() {
		return fmt.Errorf("subprocconn: read on unhealthy connection")
	}

	deadline := c.cfg.ReadTimeout
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline || deadline == 0 {
			deadline = remaining
		}
	}
	if deadline > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.markUnhealthy()
		return fmt.Errorf("subprocconn: read: %w", err)
	}
	if err := json.Unmarshal(line, out); err != nil {
		c.markUnhealthy()
		return fmt.Errorf("subprocconn: unmarshal: %w", err)
	}
	return nil
}

// IsHealthy reports whether this connection is still eligible to be
// returned to a pool. It latches false permanently on the first
// framing, I/O, or protocol error.
func (c *Connection) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *Connection) markUnhealthy() {
	c.healthy.Store(false)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.conn.Close()
}
