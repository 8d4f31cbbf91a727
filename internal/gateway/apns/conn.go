package apns

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// GatewayConnection is the upstream binary push capability: submit a frame
// and forget it. Delivery errors, if any, arrive later on the connection's
// error callback.
type GatewayConnection interface {
	SendNotificationMultiple(frame *Frame) error
}

// ErrorHandler is invoked once per upstream-reported error, on the
// connection's read-loop goroutine.
type ErrorHandler func(identifier uint32, status uint8)

// FeedbackConnection is the upstream feedback capability. Items returns
// the finite batch of stale-token reports accumulated since the last
// drain; each batch is consumed exactly once per sweep.
type FeedbackConnection interface {
	Items(ctx context.Context) ([]push.FeedbackItem, error)
}

// Conn is a TLS gateway connection. A read loop watches for 6-byte error
// responses (command, status, identifier) and hands them to the error
// handler; the gateway closes the connection after writing one.
type Conn struct {
	addr      string
	tlsConfig *tls.Config
	onError   ErrorHandler
	logger    *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

func Dial(addr string, tlsConfig *tls.Config, onError ErrorHandler, logger *slog.Logger) (*Conn, error) {
	c := &Conn{
		addr:      addr,
		tlsConfig: tlsConfig,
		onError:   onError,
		logger:    logger.With("component", "APNSConn", "addr", addr),
	}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) SendNotificationMultiple(frame *Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		if err := c.reconnect(); err != nil {
			return err
		}
		c.mu.Lock()
		conn = c.conn
		c.mu.Unlock()
	}
	if _, err := conn.Write(frame.WireFormat()); err != nil {
		// Drop the broken socket; the next send redials.
		c.closeCurrent()
		return fmt.Errorf("apns gateway write: %w", err)
	}
	return nil
}

func (c *Conn) Close() error {
	c.closeCurrent()
	return nil
}

func (c *Conn) reconnect() error {
	conn, err := tls.Dial("tcp", c.addr, c.tlsConfig)
	if err != nil {
		return fmt.Errorf("apns gateway dial %s: %w", c.addr, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readErrors(conn)
	return nil
}

func (c *Conn) readErrors(conn net.Conn) {
	for {
		var buf [6]byte
		if _, err := io.ReadFull(conn, buf[:]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Warn("Error response read loop terminated", "err", err)
			}
			c.closeCurrent()
			return
		}
		status := buf[1]
		identifier := binary.BigEndian.Uint32(buf[2:])
		if c.onError != nil {
			c.onError(identifier, status)
		}
	}
}

func (c *Conn) closeCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// FeedbackConn drains the feedback service. Each record is a 4-byte unix
// timestamp, a 2-byte token length, and the token bytes; the service
// closes the stream once everything pending has been written.
type FeedbackConn struct {
	addr      string
	tlsConfig *tls.Config
}

func NewFeedbackConn(addr string, tlsConfig *tls.Config) *FeedbackConn {
	return &FeedbackConn{addr: addr, tlsConfig: tlsConfig}
}

func (f *FeedbackConn) Items(ctx context.Context) ([]push.FeedbackItem, error) {
	dialer := &tls.Dialer{Config: f.tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", f.addr)
	if err != nil {
		return nil, fmt.Errorf("apns feedback dial %s: %w", f.addr, err)
	}
	defer func() { _ = conn.Close() }()

	var items []push.FeedbackItem
	for {
		var header [6]byte
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return items, nil
			}
			return nil, fmt.Errorf("apns feedback read: %w", err)
		}
		reportedAt := time.Unix(int64(binary.BigEndian.Uint32(header[:4])), 0)
		token := make([]byte, binary.BigEndian.Uint16(header[4:]))
		if _, err := io.ReadFull(conn, token); err != nil {
			return nil, fmt.Errorf("apns feedback read token: %w", err)
		}
		items = append(items, push.FeedbackItem{
			Token:      hex.EncodeToString(token),
			ReportedAt: reportedAt,
		})
	}
}
