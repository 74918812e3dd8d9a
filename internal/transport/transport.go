// Package transport provides a reference TCP implementation of the
// "arbitrary bidirectional byte transport" spec.md §1 calls out as
// external to the session engine: a Responder plus an acceptor and an
// initiator that frame the byte stream into individual FIX messages
// and drive session.Session.ReceiveRaw/Tick.
//
// internal/session never imports this package; it is wired up only by
// cmd/nextfixd.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nextfix-go/nextfix/internal/session"
)

const soh = '\x01'

// checksumPrefix is the byte sequence that begins the trailing
// CheckSum(10) field every well-formed FIX message ends with.
var checksumPrefix = []byte{soh, '1', '0', '='}

// Conn adapts a net.Conn into a session.Responder.
type Conn struct {
	mu     sync.Mutex
	conn   net.Conn
	logger *slog.Logger
}

// NewConn wraps conn as a session.Responder.
func NewConn(conn net.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{conn: conn, logger: logger}
}

var _ session.Responder = (*Conn)(nil)

func (c *Conn) Send(raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return false
	}
	if _, err := c.conn.Write(raw); err != nil {
		c.logger.Warn("write failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Conn) RemoteAddress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// Serve runs the per-connection read loop, decoding one framed FIX
// message at a time and handing it to sess.ReceiveRaw, until the
// connection closes or ctx is canceled. It blocks; callers run it in
// its own goroutine.
func Serve(ctx context.Context, conn net.Conn, sess *Session) error {
	r := bufio.NewReader(conn)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := readMessage(r)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := sess.Session.ReceiveRaw(raw); err != nil {
			sess.Logger.Warn("error handling inbound message", slog.String("error", err.Error()))
		}
	}
}

// readMessage reads bytes from r up to and including the CheckSum(10)
// field's trailing SOH, the end-of-message marker for tag=value FIX.
func readMessage(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		if buf.Len() >= len(checksumPrefix) && bytes.HasSuffix(buf.Bytes(), checksumPrefix) {
			// Consume the 3 checksum digits and the trailing SOH.
			tail := make([]byte, 4)
			for i := range tail {
				tb, err := r.ReadByte()
				if err != nil {
					return nil, err
				}
				tail[i] = tb
			}
			buf.Write(tail)
			return buf.Bytes(), nil
		}
	}
}

// Session pairs a session.Session with the logger its transport loop
// uses, so Serve and the ticker goroutine share one logging context.
type Session struct {
	Session *session.Session
	Logger  *slog.Logger
}

// RunTicker drives sess.Tick once per interval until ctx is canceled,
// the liveness-check cadence spec.md §4.3 calls "typically 1s".
func RunTicker(ctx context.Context, sess *session.Session, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sess.Tick()
		}
	}
}

// Acceptor listens for inbound TCP connections and attaches each one
// as the Responder for a session resolved by resolve. resolve typically
// decodes the first Logon's SessionID to look the session up in a
// Manager; a reference resolver living in cmd/nextfixd keeps this
// package free of any session-directory policy.
type Acceptor struct {
	Listener net.Listener
	Resolve  func(firstMsgRaw []byte) (*session.Session, error)
	Logger   *slog.Logger
}

// Run accepts connections until ctx is canceled or the listener is
// closed.
func (a *Acceptor) Run(ctx context.Context) error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		<-ctx.Done()
		_ = a.Listener.Close()
	}()

	for {
		conn, err := a.Listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		go a.handle(ctx, conn, logger)
	}
}

func (a *Acceptor) handle(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	r := bufio.NewReader(conn)
	raw, err := readMessage(r)
	if err != nil {
		logger.Warn("failed to read initial message", slog.String("error", err.Error()))
		_ = conn.Close()
		return
	}

	sess, err := a.Resolve(raw)
	if err != nil {
		logger.Warn("failed to resolve session for inbound connection", slog.String("error", err.Error()))
		_ = conn.Close()
		return
	}

	responder := NewConn(conn, logger)
	sess.SetResponder(responder)
	if err := sess.ReceiveRaw(raw); err != nil {
		logger.Warn("error handling initial message", slog.String("error", err.Error()))
	}

	wrapped := &Session{Session: sess, Logger: logger}
	if err := serveRemainder(ctx, r, wrapped); err != nil {
		logger.Info("connection closed", slog.String("error", err.Error()))
	}
	sess.SetResponder(nil)
}

func serveRemainder(ctx context.Context, r *bufio.Reader, sess *Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		raw, err := readMessage(r)
		if err != nil {
			return err
		}
		if err := sess.Session.ReceiveRaw(raw); err != nil {
			sess.Logger.Warn("error handling inbound message", slog.String("error", err.Error()))
		}
	}
}

// Dial connects to addr and attaches the resulting connection as sess's
// Responder, then runs the read loop until the connection closes or
// ctx is canceled.
func Dial(ctx context.Context, network, addr string, sess *session.Session, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	responder := NewConn(conn, logger)
	sess.SetResponder(responder)
	defer sess.SetResponder(nil)

	return Serve(ctx, conn, &Session{Session: sess, Logger: logger})
}
