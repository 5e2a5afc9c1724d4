//go:build linux

package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxFrameSize bounds one TCPHandle frame; generous for an OOB negotiation
// message, small enough to reject a corrupt length prefix quickly.
const maxFrameSize = 1 << 16

// TCPHandle is a reference transport.Sender over a TCP connection. TCP is
// a byte stream, not a message transport, so each Send is wrapped with a
// 4-byte big-endian length prefix and reassembled on read -- the
// connection above still sees one on_bytes per send (spec 6.2 "message
// boundaries").
type TCPHandle struct {
	conn   *net.TCPConn
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// DialTCPHandle connects to addr and configures TCP_NODELAY and
// keepalives for low-latency OOB negotiation traffic.
func DialTCPHandle(ctx context.Context, addr string, logger *slog.Logger) (*TCPHandle, error) {
	var d net.Dialer
	d.Control = func(_, _ string, c syscall.RawConn) error {
		return setTCPHandleOpts(c)
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp handle %s: %w", addr, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("dial tcp handle %s: not a TCP connection", addr)
	}
	return &TCPHandle{conn: tcpConn, logger: logger.With(slog.String("component", "transport.tcp_handle"), slog.String("remote", addr))}, nil
}

// NewTCPHandleFromConn wraps an already-accepted connection, applying the
// same socket options a dialed connection gets.
func NewTCPHandleFromConn(conn *net.TCPConn, logger *slog.Logger) (*TCPHandle, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("tcp handle from conn: %w", err)
	}
	if err := setTCPHandleOpts(raw); err != nil {
		return nil, fmt.Errorf("tcp handle from conn: %w", err)
	}
	return &TCPHandle{conn: conn, logger: logger.With(slog.String("component", "transport.tcp_handle"))}, nil
}

func setTCPHandleOpts(c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)
		if e := unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			sockErr = fmt.Errorf("set SO_REUSEADDR: %w", e)
			return
		}
		if e := unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); e != nil {
			sockErr = fmt.Errorf("set SO_KEEPALIVE: %w", e)
			return
		}
		if e := unix.SetsockoptInt(intFD, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); e != nil {
			sockErr = fmt.Errorf("set TCP_NODELAY: %w", e)
			return
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockErr
}

// SendBytes implements Sender: writes a length-prefixed frame.
func (h *TCPHandle) SendBytes(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("send on tcp handle: %w", ErrConnectionClosed)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data))) //nolint:gosec // bounded by maxFrameSize on the remote side
	if _, err := h.conn.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := h.conn.Write(data); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// Run reads frames from the connection and delivers them to c until the
// connection errs or ctx is done, then reports disconnect/closed to c.
func (h *TCPHandle) Run(ctx context.Context, c *Connection) {
	for {
		select {
		case <-ctx.Done():
			c.OnClosed()
			return
		default:
		}

		var prefix [4]byte
		if _, err := io.ReadFull(h.conn, prefix[:]); err != nil {
			h.logger.Warn("tcp handle read failed", slog.String("error", err.Error()))
			c.OnDisconnect()
			return
		}
		size := binary.BigEndian.Uint32(prefix[:])
		if size > maxFrameSize {
			h.logger.Warn("tcp handle frame too large, closing", slog.Uint64("size", uint64(size)))
			c.OnClosed()
			return
		}
		frame := make([]byte, size)
		if _, err := io.ReadFull(h.conn, frame); err != nil {
			h.logger.Warn("tcp handle read failed", slog.String("error", err.Error()))
			c.OnDisconnect()
			return
		}
		c.OnBytes(frame)
	}
}

// Close closes the underlying connection.
func (h *TCPHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if err := h.conn.Close(); err != nil {
		return fmt.Errorf("close tcp handle: %w", err)
	}
	return nil
}
