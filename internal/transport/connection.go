package transport

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-ranging/goranging/internal/ranging"
)

// OobHandle identifies one transport connection by session and peer (spec
// 4.B).
type OobHandle struct {
	SessionID uint64
	PeerID    ranging.DeviceId
}

// ConnState is a TransportConnection state (spec 4.B).
type ConnState uint8

const (
	ConnConnected ConnState = iota
	ConnDisconnected
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnConnected:
		return "CONNECTED"
	case ConnDisconnected:
		return "DISCONNECTED"
	case ConnClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// CloseReason is why a Connection moved to CLOSED (spec 4.B).
type CloseReason uint8

const (
	CloseRequested CloseReason = iota
	CloseTransportClosed
	CloseTransportTimeout
)

func (r CloseReason) String() string {
	switch r {
	case CloseRequested:
		return "REQUESTED"
	case CloseTransportClosed:
		return "TRANSPORT_CLOSED"
	case CloseTransportTimeout:
		return "TRANSPORT_TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// DisconnectGrace is how long a DISCONNECTED connection waits for
// on_reconnect before closing with CloseTransportTimeout (spec 4.B).
const DisconnectGrace = 5 * time.Second

// Sender is the byte-level transport a Connection hands CONNECTED sends
// to. Implementations must not block past what the underlying transport
// itself blocks for (spec 6.2 "send(bytes) -> Future<()>").
type Sender interface {
	SendBytes(data []byte) error
}

type sendRequest struct {
	data   []byte
	result chan error
}

type receiveRequest struct {
	result chan ReceiveResult
}

// ReceiveResult is the outcome of a Receive call: exactly one of Data or
// Err is meaningful.
type ReceiveResult struct {
	Data []byte
	Err  error
}

// Connection is the OOB transport connection: three FIFO queues (send,
// receive, waiters) and a {CONNECTED, DISCONNECTED, CLOSED} state machine,
// all owned by a single goroutine (spec 4.B, spec 5 actor-style split).
// External callers only use the exported methods; the transport supervisor
// drives OnBytes/OnDisconnect/OnReconnect/OnClosed.
type Connection struct {
	handle OobHandle
	sender Sender
	logger *slog.Logger

	state atomic.Uint32 // ConnState

	sendReqCh    chan sendRequest
	receiveReqCh chan receiveRequest
	bytesCh      chan []byte
	disconnectCh chan struct{}
	reconnectCh  chan struct{}
	closedCh     chan struct{}
	closeCh      chan CloseReason

	doneCh chan struct{}
}

// NewConnection creates a Connection in CONNECTED state and starts its
// goroutine.
func NewConnection(ctx context.Context, handle OobHandle, sender Sender, logger *slog.Logger) *Connection {
	c := &Connection{
		handle:       handle,
		sender:       sender,
		logger:       logger.With(slog.Uint64("session_id", handle.SessionID), slog.String("peer", handle.PeerID.String())),
		sendReqCh:    make(chan sendRequest, 16),
		receiveReqCh: make(chan receiveRequest, 16),
		bytesCh:      make(chan []byte, 16),
		disconnectCh: make(chan struct{}, 1),
		reconnectCh:  make(chan struct{}, 1),
		closedCh:     make(chan struct{}, 1),
		closeCh:      make(chan CloseReason, 1),
		doneCh:       make(chan struct{}),
	}
	c.state.Store(uint32(ConnConnected))
	go c.run(ctx)
	return c
}

// State returns the connection's current state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// Send queues data for delivery. The returned channel receives exactly
// one value: nil on success, ErrConnectionClosed if the connection is (or
// becomes) CLOSED before delivery (spec 4.B "send").
func (c *Connection) Send(data []byte) <-chan error {
	result := make(chan error, 1)
	req := sendRequest{data: data, result: result}
	select {
	case c.sendReqCh <- req:
	case <-c.doneCh:
		result <- ErrConnectionClosed
	}
	return result
}

// Receive completes with the next received message, or ErrConnectionClosed
// if the connection is (or becomes) CLOSED first (spec 4.B "receive").
func (c *Connection) Receive() <-chan ReceiveResult {
	result := make(chan ReceiveResult, 1)
	req := receiveRequest{result: result}
	select {
	case c.receiveReqCh <- req:
	case <-c.doneCh:
		result <- ReceiveResult{Err: ErrConnectionClosed}
	}
	return result
}

// Close requests an idempotent move to CLOSED (spec 4.B "close").
func (c *Connection) Close(reason CloseReason) {
	select {
	case c.closeCh <- reason:
	case <-c.doneCh:
	}
}

// OnBytes is called by the transport supervisor when a full message
// arrives.
func (c *Connection) OnBytes(data []byte) {
	select {
	case c.bytesCh <- data:
	case <-c.doneCh:
	}
}

// OnDisconnect is called by the transport supervisor when the underlying
// transport drops.
func (c *Connection) OnDisconnect() {
	select {
	case c.disconnectCh <- struct{}{}:
	case <-c.doneCh:
	default:
	}
}

// OnReconnect is called by the transport supervisor when the underlying
// transport comes back.
func (c *Connection) OnReconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	case <-c.doneCh:
	default:
	}
}

// OnClosed is called by the transport supervisor when the underlying
// transport is closed permanently.
func (c *Connection) OnClosed() {
	select {
	case c.closedCh <- struct{}{}:
	case <-c.doneCh:
	default:
	}
}

// Done is closed once the connection's goroutine exits (state == CLOSED).
func (c *Connection) Done() <-chan struct{} {
	return c.doneCh
}

func (c *Connection) run(ctx context.Context) {
	defer close(c.doneCh)

	var pendingSends []sendRequest
	var receiveQueue [][]byte
	var waiters []receiveRequest
	var disconnectTimer *time.Timer

	closeAll := func(reason CloseReason) {
		c.state.Store(uint32(ConnClosed))
		for _, req := range pendingSends {
			req.result <- ErrConnectionClosed
		}
		pendingSends = nil
		for _, w := range waiters {
			w.result <- ReceiveResult{Err: ErrConnectionClosed}
		}
		waiters = nil
		receiveQueue = nil
		c.logger.Info("connection closed", slog.String("reason", reason.String()))
	}

	for {
		if c.State() == ConnClosed {
			return
		}

		var timerC <-chan time.Time
		if disconnectTimer != nil {
			timerC = disconnectTimer.C
		}

		select {
		case <-ctx.Done():
			closeAll(CloseRequested)
			return

		case reason := <-c.closeCh:
			closeAll(reason)
			return

		case req := <-c.sendReqCh:
			switch c.State() {
			case ConnConnected:
				req.result <- c.sender.SendBytes(req.data)
			case ConnDisconnected:
				pendingSends = append(pendingSends, req)
			case ConnClosed:
				req.result <- ErrConnectionClosed
			}

		case req := <-c.receiveReqCh:
			if len(receiveQueue) > 0 {
				data := receiveQueue[0]
				receiveQueue = receiveQueue[1:]
				req.result <- ReceiveResult{Data: data}
			} else {
				waiters = append(waiters, req)
			}

		case data := <-c.bytesCh:
			if len(waiters) > 0 {
				w := waiters[0]
				waiters = waiters[1:]
				w.result <- ReceiveResult{Data: data}
			} else {
				receiveQueue = append(receiveQueue, data)
			}

		case <-c.disconnectCh:
			if c.State() == ConnConnected {
				c.state.Store(uint32(ConnDisconnected))
				disconnectTimer = time.NewTimer(DisconnectGrace)
			}

		case <-c.reconnectCh:
			if c.State() == ConnDisconnected {
				c.state.Store(uint32(ConnConnected))
				if disconnectTimer != nil {
					disconnectTimer.Stop()
					disconnectTimer = nil
				}
				flush := pendingSends
				pendingSends = nil
				for _, req := range flush {
					req.result <- c.sender.SendBytes(req.data)
				}
			}

		case <-c.closedCh:
			closeAll(CloseTransportClosed)
			return

		case <-timerC:
			closeAll(CloseTransportTimeout)
			return
		}
	}
}
