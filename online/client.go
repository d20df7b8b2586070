// Package online owns the TCP connection to the game server. It publishes
// the connection, keys, region and squad roster into a session.State for
// the dispatcher to read.
package online

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nicebartender/squad-bridge/packet"
	"github.com/nicebartender/squad-bridge/session"
)

var ErrNotConnected = errors.New("online: not connected")

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

type Client struct {
	addr   string
	key    []byte
	iv     []byte
	region string
	state  *session.State

	Logger       *slog.Logger
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// RetryInterval is the first reconnect delay; it grows exponentially.
	RetryInterval time.Duration

	conn      net.Conn
	w         *bufio.Writer
	connected bool
	done      chan struct{}
	mu        sync.Mutex
}

func NewClient(addr string, key, iv []byte, region string, state *session.State) *Client {
	return &Client{
		addr:   addr,
		key:    key,
		iv:     iv,
		region: region,
		state:  state,
	}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the game server and, once the socket is up, publishes it as
// the shared transport.
func (c *Client) Connect(ctx context.Context) error {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.w = bufio.NewWriter(conn)
	c.connected = true
	c.done = done
	c.mu.Unlock()

	c.state.SetKeys(c.key, c.iv)
	c.state.SetRegion(c.region)
	c.state.SetTransport(c)

	go c.readLoop(conn, done)

	c.logger().Info("online: connected", "addr", c.addr, "region", c.region)
	return nil
}

// Done is closed when the current connection's read loop exits.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.w = nil
	}
	c.state.Disconnected()
}

func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		current := c.conn == conn
		if current {
			c.connected = false
			c.conn = nil
			c.w = nil
		}
		c.mu.Unlock()
		if current {
			c.state.Disconnected()
		}
		close(done)
	}()

	r := bufio.NewReader(conn)
	header := make([]byte, packet.HeaderSize)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			c.logger().Debug("online: read loop ended", "err", err)
			return
		}
		n, err := packet.BodyLength(header)
		if err != nil {
			c.logger().Warn("online: dropping connection", "err", err)
			return
		}
		frame := make([]byte, packet.HeaderSize+n)
		copy(frame, header)
		if _, err := io.ReadFull(r, frame[packet.HeaderSize:]); err != nil {
			c.logger().Debug("online: read loop ended", "err", err)
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame []byte) {
	f, err := packet.ParseFrame(frame, c.key, c.iv)
	if err != nil {
		c.logger().Warn("online: undecodable frame", "err", err)
		return
	}

	switch f.Type {
	case packet.TypeSquadRoster:
		roster, err := packet.DecodeRoster(f.Payload)
		if err != nil {
			c.logger().Warn("online: bad roster", "err", err)
			return
		}
		c.state.SetMembership(roster.Active, roster.Members)
		c.logger().Info("online: squad roster", "active", roster.Active, "members", len(roster.Members))
	default:
		c.logger().Debug("online: frame ignored", "type", f.Type, "len", len(f.Payload))
	}
}

// Write buffers a frame for the next Drain. A frame larger than the
// buffer goes to the socket directly, under the same deadline as Drain.
func (c *Client) Write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(c.writeDeadline(context.Background()))
	if _, err := c.w.Write(frame); err != nil {
		c.dropLocked(err)
		return err
	}
	return nil
}

// Drain flushes buffered frames to the socket.
func (c *Client) Drain(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(c.writeDeadline(ctx))
	if err := c.w.Flush(); err != nil {
		c.dropLocked(err)
		return err
	}
	return nil
}

func (c *Client) writeDeadline(ctx context.Context) time.Time {
	timeout := c.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// dropLocked closes a connection whose writer failed. A bufio.Writer keeps
// its first error forever, so the socket is unusable from here on; closing
// it ends the read loop and lets Run reconnect. Callers hold c.mu.
func (c *Client) dropLocked(err error) {
	c.logger().Warn("online: write failed, dropping connection", "err", err)
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.w = nil
	}
	c.state.Disconnected()
}

// Run keeps the connection up until ctx ends, reconnecting with
// exponential backoff whenever it drops.
func (c *Client) Run(ctx context.Context) error {
	for {
		b := backoff.NewExponentialBackOff()
		if c.RetryInterval > 0 {
			b.InitialInterval = c.RetryInterval
		}
		b.MaxInterval = 30 * time.Second

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			if err := c.Connect(ctx); err != nil {
				c.logger().Warn("online: connect failed", "err", err)
				return struct{}{}, err
			}
			return struct{}{}, nil
		}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("online: giving up: %w", err)
		}

		select {
		case <-c.Done():
			c.logger().Warn("online: disconnected, reconnecting", "addr", c.addr)
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		}
	}
}
