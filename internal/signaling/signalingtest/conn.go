package signalingtest

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/signaling"
)

const writeWait = 5 * time.Second

// conn is one client socket. room is owned by the hub goroutine.
type conn struct {
	server *Server
	conn   *websocket.Conn
	sid    string
	room   string

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *conn) emit(event string, args ...any) {
	data, err := signaling.EncodeEvent(event, args...)
	if err != nil {
		c.server.logger.Debug("encode failed", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	case <-c.closed:
	default:
		c.server.logger.Warn("client queue full, dropping event", zap.String("sid", c.sid), zap.String("event", event))
	}
}

func (c *conn) shutdown() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *conn) readPump() {
	registered := false
	defer func() {
		c.conn.Close()
		if registered {
			select {
			case c.server.unregister <- c:
			case <-c.server.quit:
			}
		} else {
			c.shutdown()
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		p, err := signaling.ParsePacket(data)
		if err != nil {
			continue
		}

		switch {
		case p.Engine == signaling.EngineClose:
			return
		case p.Engine == signaling.EngineMessage && p.Socket == signaling.SocketConnect:
			if registered {
				continue
			}
			ack, _ := json.Marshal(map[string]string{"sid": c.sid})
			c.send <- append([]byte{signaling.EngineMessage, signaling.SocketConnect}, ack...)
			select {
			case c.server.register <- c:
				registered = true
			case <-c.server.quit:
				return
			}
		case p.Engine == signaling.EngineMessage && p.Socket == signaling.SocketDisconnect:
			return
		case p.Engine == signaling.EngineMessage && p.Socket == signaling.SocketEvent:
			if !registered {
				continue
			}
			ev, err := signaling.ParseEvent(p.Data)
			if err != nil {
				continue
			}
			c.server.record(c, ev)
			select {
			case c.server.inbound <- inbound{from: c, event: ev}:
			case <-c.server.quit:
				return
			}
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.server.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte{signaling.EnginePing}); err != nil {
				return
			}
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
