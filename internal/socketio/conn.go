package socketio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxPayload   int64 = 1000000
	writeTimeout       = 10 * time.Second
	pingInterval       = 25 * time.Second
	pingTimeout        = 20 * time.Second
)

type conn struct {
	ws  *websocket.Conn
	sid string

	ctx    context.Context
	cancel context.CancelFunc

	connected atomic.Bool
	closed    atomic.Bool

	sendMu sync.Mutex

	pingMu       sync.Mutex
	awaitingPong bool
	pingSentAt   time.Time
	nextPingAt   time.Time
}

func newConn(ws *websocket.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		ws:         ws,
		sid:        uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		nextPingAt: time.Now().Add(pingInterval),
	}
}

func (c *conn) close() {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
	_ = c.ws.Close()
}

func (c *conn) writeText(msg string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// writePacket sends a socket.io packet inside an engine.io MESSAGE.
func (c *conn) writePacket(packet string) error {
	return c.writeText(string(engineMessage) + packet)
}

func (c *conn) emit(event string, args ...any) error {
	packet, err := buildEvent("/", event, args...)
	if err != nil {
		return err
	}
	return c.writePacket(packet)
}

func (c *conn) readLoop(onMessage func(string)) {
	defer c.close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(string(data))
	}
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			c.pingMu.Lock()
			if c.awaitingPong && now.Sub(c.pingSentAt) > pingTimeout {
				c.pingMu.Unlock()
				c.close()
				return
			}
			send := !c.awaitingPong && !now.Before(c.nextPingAt)
			if send {
				c.awaitingPong = true
				c.pingSentAt = now
				c.nextPingAt = now.Add(pingInterval)
			}
			c.pingMu.Unlock()
			if send {
				_ = c.writeText(string(enginePing))
			}
		}
	}
}

func (c *conn) markPong() {
	c.pingMu.Lock()
	c.awaitingPong = false
	c.pingMu.Unlock()
}
