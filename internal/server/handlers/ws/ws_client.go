package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/openmined/vaultsync/internal/vaultmsg"
	"github.com/openmined/vaultsync/internal/wsproto"
)

const (
	writeTimeout   = 20 * time.Second
	sendTimeout    = 10 * time.Second
	bufferSize     = 256
	shutdownReason = "shutdown"
	peerGoneReason = "peer disconnected"
)

// WebsocketClient is one connected peer. Send waits up to sendWait for room
// in the queue; a peer that stays stalled gets ErrSendBufferFull.
type WebsocketClient struct {
	Info *ClientInfo

	connID string
	msgRx  chan *vaultmsg.Message
	msgTx  chan *vaultmsg.Message
	closed chan struct{}

	conn       *websocket.Conn
	wsDone     chan struct{}
	readerDone chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once

	sendWait time.Duration

	mu          sync.Mutex
	closeReason string
}

func NewWebsocketClient(conn *websocket.Conn, info *ClientInfo) *WebsocketClient {
	return &WebsocketClient{
		Info:       info,
		connID:     uuid.NewString(),
		msgRx:      make(chan *vaultmsg.Message, bufferSize),
		msgTx:      make(chan *vaultmsg.Message, bufferSize),
		closed:     make(chan struct{}),
		conn:       conn,
		wsDone:     make(chan struct{}),
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
		sendWait:   sendTimeout,
	}
}

func (c *WebsocketClient) ConnID() string {
	return c.connID
}

// Send queues msg for the write loop
func (c *WebsocketClient) Send(msg *vaultmsg.Message) error {
	select {
	case <-c.wsDone:
		return ErrClientClosed
	default:
	}

	select {
	case c.msgTx <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(c.sendWait)
	defer timer.Stop()

	select {
	case c.msgTx <- msg:
		return nil
	case <-c.wsDone:
		return ErrClientClosed
	case <-timer.C:
		return ErrSendBufferFull
	}
}

// Close flushes queued messages, then closes the connection with reason.
// Safe to call more than once and from any goroutine.
func (c *WebsocketClient) Close(reason string) {
	c.closeConnection(websocket.StatusPolicyViolation, reason)
}

// Closed is done once both loops have stopped
func (c *WebsocketClient) Closed() <-chan struct{} {
	return c.closed
}

// Messages delivers decoded inbound messages
func (c *WebsocketClient) Messages() <-chan *vaultmsg.Message {
	return c.msgRx
}

func (c *WebsocketClient) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

func (c *WebsocketClient) Start(ctx context.Context) {
	slog.Debug("wsclient start", "connId", c.connID, "peer", c.Info.PeerID)
	go c.writeLoop(ctx)
	go c.readLoop(ctx)
}

func (c *WebsocketClient) shutdown() {
	c.closeConnection(websocket.StatusGoingAway, shutdownReason)
	<-c.closed
}

func (c *WebsocketClient) closeConnection(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReason = reason
		c.mu.Unlock()

		// writer drains msgTx before the close frame goes out
		close(c.wsDone)
		<-c.writerDone

		c.conn.Close(status, reason)
		<-c.readerDone

		close(c.closed)
		slog.Debug("wsclient closed", "connId", c.connID, "reason", reason)
	})
}

func (c *WebsocketClient) readLoop(ctx context.Context) {
	defer func() {
		close(c.readerDone)
		c.closeConnection(websocket.StatusNormalClosure, peerGoneReason)
	}()

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				// connection closed
			} else if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway && status != websocket.StatusNoStatusRcvd {
				slog.Warn("wsclient reader", "connId", c.connID, "error", err)
			}
			return
		}

		msg, _, err := wsproto.Unmarshal(typ, data)
		if err != nil {
			slog.Warn("wsclient decode", "connId", c.connID, "error", err)
			continue
		}

		select {
		case c.msgRx <- msg:
		case <-c.wsDone:
			return
		}
	}
}

func (c *WebsocketClient) writeLoop(ctx context.Context) {
	defer func() {
		close(c.writerDone)
		c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	}()

	for {
		select {
		case msg := <-c.msgTx:
			c.write(ctx, msg)

		case <-c.wsDone:
			c.drain(ctx)
			return

		case <-ctx.Done():
			return
		}
	}
}

func (c *WebsocketClient) drain(ctx context.Context) {
	for {
		select {
		case msg := <-c.msgTx:
			c.write(ctx, msg)
		default:
			return
		}
	}
}

func (c *WebsocketClient) write(ctx context.Context, msg *vaultmsg.Message) {
	typ, data, err := wsproto.Marshal(msg, c.Info.Encoding)
	if err != nil {
		slog.Error("wsclient encode", "connId", c.connID, "msgId", msg.Id, "msgType", msg.Type, "error", err)
		return
	}

	ctxWrite, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctxWrite, typ, data); err != nil {
		slog.Error("wsclient writer", "connId", c.connID, "msgId", msg.Id, "msgType", msg.Type, "error", err)
		return
	}
	slog.Debug("wsclient writer", "connId", c.connID, "msgId", msg.Id, "msgType", msg.Type)
}
