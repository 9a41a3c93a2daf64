// This file contains the Conn struct which represents one WebSocket
// connection to one browser context. It handles the low-level communication,
// including the read/write pumps, ping/pong keepalive, the inbound event
// loop, and connection lifecycle management.
package webui

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const gatewayEntity = "GATEWAY"

// Conn is one live bidirectional connection. It is owned by the registry
// from successful handshake until disconnect or send failure.
type Conn struct {
	ID            string
	conn          *websocket.Conn
	send          chan []byte
	receive       chan []byte
	closeChan     chan struct{}
	readDone      chan struct{}
	closeOnce     sync.Once
	mutex         sync.RWMutex
	isClosing     bool
	closeHandlers []func(*Conn)
	options       *Options
	logger        *slog.Logger
	ctx           context.Context
	cancel        context.CancelFunc
}

func newConn(mCtx context.Context, wsConn *websocket.Conn, id string, options *Options, logger *slog.Logger) (*Conn, error) {
	ctx, cancel := context.WithCancel(mCtx)

	c := &Conn{
		ID:        id,
		conn:      wsConn,
		ctx:       ctx,
		cancel:    cancel,
		closeChan: make(chan struct{}),
		readDone:  make(chan struct{}),
		send:      make(chan []byte, options.SendChannelBuffer),
		receive:   make(chan []byte, options.SendChannelBuffer),
		options:   options,
		logger:    logger.With("conn", id),
	}

	wsConn.SetReadLimit(options.MaxMessageSize)
	if err := wsConn.SetReadDeadline(time.Now().Add(options.PongWait)); err != nil {
		cancel()

		return nil, wrapF(err, "failed to set initial read deadline for connection %s", id)
	}

	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(options.PongWait))
	})

	c.conn.SetCloseHandler(func(code int, text string) error {
		c.Close()

		return nil
	})

	go c.readPump()

	go c.writePump()

	return c, nil
}

func (c *Conn) readPump() {
	defer func() {
		close(c.readDone)

		c.close(true)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			if err := c.conn.SetReadDeadline(time.Now().Add(c.options.PongWait)); err != nil {
				c.logger.Debug("failed to refresh read deadline", "error", err)

				return
			}
			messageType, message, err := c.conn.ReadMessage()

			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					return
				}

				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					c.logger.Debug("read pump closing", "error", err)
				} else if !errors.Is(err, context.Canceled) {
					c.logger.Debug("read pump closing", "error", err)
				}

				return
			}

			if messageType != websocket.TextMessage {
				continue
			}
			select {
			case c.receive <- message:
			case <-c.ctx.Done():
				return
			case <-time.After(c.options.WriteWait):
				c.logger.Warn("timed out delivering inbound frame to handler, closing connection")

				return
			}
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.options.PingInterval)

	defer func() {
		ticker.Stop()

		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok || !c.IsActive() {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "connection closed"))

				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if !c.IsActive() {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		case <-c.closeChan:
			return
		}
	}
}

// enqueue places an already encoded frame on the outbound buffer without
// blocking. A full buffer is treated as a delivery failure: the caller is
// expected to drop the connection rather than stall the rest of a
// broadcast.
func (c *Conn) enqueue(frame []byte) (err error) {
	if !c.IsActive() {
		return internal(gatewayEntity, "connection "+c.ID+" is closing")
	}

	defer func() {
		if r := recover(); r != nil {
			err = internal(gatewayEntity, "connection "+c.ID+" is closing")
		}
	}()

	select {
	case <-c.closeChan:
		return internal(gatewayEntity, "connection "+c.ID+" is closing")

	case <-c.ctx.Done():
		return internal(gatewayEntity, "connection "+c.ID+" is closing due to context cancellation")

	case c.send <- frame:
		return nil
	default:
		return unavailable(gatewayEntity, "outbound buffer full for connection "+c.ID)
	}
}

// handleEvents runs the per-connection ingress loop: it decodes each
// inbound frame and hands client events to the supplied callback. Decode
// failures are logged and skipped; the loop ends when the connection
// closes.
func (c *Conn) handleEvents(handler func(ev Event, size int)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("ingress loop panic, closing connection", "panic", r)

				c.Close()
			}
		}()

		for {
			select {
			case message, ok := <-c.receive:
				if !ok {
					return
				}

				ev, control, err := decodeInbound(message)

				if err != nil {
					c.logger.Debug("dropping malformed inbound frame", "error", err)
					continue
				}
				if control {
					continue
				}
				handler(*ev, len(message))

			case <-c.ctx.Done():
				return
			case <-c.closeChan:
				return
			}
		}
	}()
}

// OnClose registers a callback to run when the connection closes. Callbacks
// run in registration order, synchronously during connection cleanup.
func (c *Conn) OnClose(callback func(*Conn)) {
	c.mutex.Lock()

	defer c.mutex.Unlock()

	c.closeHandlers = append(c.closeHandlers, callback)
}

// IsActive returns true while the connection can still send and receive.
func (c *Conn) IsActive() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	c.mutex.RLock()

	defer c.mutex.RUnlock()

	return !c.isClosing
}

// Close gracefully shuts down the connection. It runs all registered close
// callbacks, cancels the context and closes the WebSocket. Idempotent.
func (c *Conn) Close() {
	c.close(false)
}

func (c *Conn) close(fromReader bool) {
	c.closeOnce.Do(func() {
		c.mutex.Lock()

		c.isClosing = true
		handlersToRun := make([]func(*Conn), len(c.closeHandlers))

		copy(handlersToRun, c.closeHandlers)

		c.mutex.Unlock()

		if c.cancel != nil {
			c.cancel()
		}
		close(c.closeChan)

		conn := c.conn

		if !fromReader && conn != nil {
			_ = conn.Close()
		}

		if !fromReader {
			if c.readDone != nil {
				<-c.readDone
			}
		}

		for _, handler := range handlersToRun {
			handler(c)
		}

		if fromReader && conn != nil {
			_ = conn.Close()
		}
	})
}
