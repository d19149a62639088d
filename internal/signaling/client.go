package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/dns"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 1 << 20
	queueSize        = 128

	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
)

// State is the connection lifecycle: Idle → Connecting → Open → Closed.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("signaling")
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshakeTimeout = d }
}

// WithNetDial replaces the resolver-backed dialer.
func WithNetDial(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.netDial = dial }
}

// Client is a Socket.IO client over the Engine.IO websocket transport. It
// is single use: once closed, a new Client is needed.
type Client struct {
	endpoint         string
	logger           *zap.Logger
	handshakeTimeout time.Duration
	netDial          func(ctx context.Context, network, addr string) (net.Conn, error)

	state  *atomic.Int32
	events *dispatcher

	conn         *websocket.Conn
	sid          string
	pingInterval time.Duration
	pingTimeout  time.Duration

	outgoing   chan []byte
	quit       chan struct{}
	done       chan struct{}
	writerDone chan struct{}
	quitOnce   sync.Once
	doneOnce   sync.Once
}

// NewClient creates a client for a server base URL such as
// https://chat.example.com. Nothing is dialed until Connect.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:         endpoint,
		logger:           zap.NewNop(),
		handshakeTimeout: handshakeTimeout,
		netDial:          dns.Dialer(),
		state:            atomic.NewInt32(int32(StateIdle)),
		events:           newDispatcher(),
		outgoing:         make(chan []byte, queueSize),
		quit:             make(chan struct{}),
		done:             make(chan struct{}),
		writerDone:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State() State { return State(c.state.Load()) }

// SID is the Engine.IO session id assigned by the server.
func (c *Client) SID() string { return c.sid }

// On subscribes fn to the named event. The returned func unsubscribes and is
// safe to call more than once.
func (c *Client) On(event string, fn Handler) (off func()) {
	return c.events.on(event, fn)
}

// Listeners reports how many handlers are currently subscribed.
func (c *Client) Listeners() int { return c.events.count() }

// Connect dials the server and completes the Engine.IO and Socket.IO
// handshakes. The connect event is dispatched from the read goroutine before
// any server event.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return opError("connect", ErrHandshake, fmt.Errorf("client is %s", c.State()))
	}

	u, err := endpointURL(c.endpoint)
	if err != nil {
		c.fail()
		return opError("connect", ErrHandshake, err)
	}

	dialer := &websocket.Dialer{
		NetDialContext:   c.netDial,
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.handshakeTimeout,
	}
	c.logger.Debug("dialing", zap.String("url", u))
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		c.fail()
		return opError("connect", ErrHandshake, err)
	}

	if err := c.handshake(ctx, conn); err != nil {
		conn.Close()
		c.fail()
		return opError("connect", ErrHandshake, err)
	}

	c.conn = conn
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		conn.Close()
		c.fail()
		return opError("connect", ErrDisconnected, errors.New("closed during connect"))
	}

	c.logger.Info("signaling connected", zap.String("sid", c.sid))
	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline := time.Now().Add(c.handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	conn.SetReadLimit(maxMessageSize)

	p, err := readPacket(conn)
	if err != nil {
		return err
	}
	if p.Engine != EngineOpen {
		return fmt.Errorf("expected open packet, got %q", p.Engine)
	}
	var h Handshake
	if err := json.Unmarshal(p.Data, &h); err != nil {
		return fmt.Errorf("open packet: %w", err)
	}
	c.sid = h.SID
	c.pingInterval = time.Duration(h.PingInterval) * time.Millisecond
	c.pingTimeout = time.Duration(h.PingTimeout) * time.Millisecond
	if c.pingInterval <= 0 {
		c.pingInterval = defaultPingInterval
	}
	if c.pingTimeout <= 0 {
		c.pingTimeout = defaultPingTimeout
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte{EngineMessage, SocketConnect}); err != nil {
		return err
	}

	for {
		p, err := readPacket(conn)
		if err != nil {
			return err
		}
		switch {
		case p.Engine == EnginePing:
			if err := conn.WriteMessage(websocket.TextMessage, []byte{EnginePong}); err != nil {
				return err
			}
		case p.Engine == EngineClose:
			return errors.New("server closed during handshake")
		case p.Engine == EngineMessage && p.Socket == SocketConnect:
			conn.SetReadDeadline(time.Time{})
			conn.SetWriteDeadline(time.Time{})
			return nil
		case p.Engine == EngineMessage && p.Socket == SocketConnectError:
			return fmt.Errorf("connect refused: %s", p.Data)
		}
	}
}

// Send queues event for transmission. It fails with ErrSendFailed unless
// the client is open.
func (c *Client) Send(event string, args ...any) error {
	op := "send " + event
	if c.State() != StateOpen {
		return opError(op, ErrSendFailed, ErrDisconnected)
	}
	data, err := EncodeEvent(event, args...)
	if err != nil {
		return opError(op, ErrSendFailed, err)
	}

	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return opError(op, ErrSendFailed, ErrDisconnected)
	case <-c.quit:
		return opError(op, ErrSendFailed, ErrDisconnected)
	}
}

// Close flushes queued packets, says goodbye to the server and closes the
// transport. No disconnect event is dispatched for a local close.
func (c *Client) Close() error {
	prev := State(c.state.Swap(int32(StateClosed)))
	switch prev {
	case StateClosed:
		return nil
	case StateIdle, StateConnecting:
		c.finish()
		return nil
	}

	c.quitOnce.Do(func() { close(c.quit) })
	select {
	case <-c.writerDone:
	case <-time.After(writeWait):
		c.logger.Warn("signaling writer did not drain in time")
	}
	c.conn.Close()
	c.finish()
	c.logger.Info("signaling closed")
	return nil
}

func (c *Client) readPump() {
	reason, cause := "transport close", error(nil)
	defer func() {
		c.conn.Close()
		c.lost(reason, cause)
	}()

	c.events.dispatch(Event{Name: EventConnect})

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.pingInterval + c.pingTimeout))
		p, err := readPacket(c.conn)
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				reason = "ping timeout"
			case errors.Is(err, errMalformed):
				c.logger.Debug("dropping malformed packet", zap.Error(err))
				continue
			default:
				reason = "transport error"
			}
			cause = err
			return
		}

		switch p.Engine {
		case EnginePing:
			c.enqueue([]byte{EnginePong})
		case EngineClose:
			return
		case EngineMessage:
			switch p.Socket {
			case SocketEvent:
				ev, err := ParseEvent(p.Data)
				if err != nil {
					c.logger.Debug("dropping malformed event", zap.Error(err))
					continue
				}
				if ev.Name == EventConnect || ev.Name == EventDisconnect {
					continue
				}
				c.logger.Debug("event received", zap.String("event", ev.Name))
				c.events.dispatch(ev)
			case SocketDisconnect:
				reason = "io server disconnect"
				return
			case SocketConnectError:
				reason, cause = "connect error", fmt.Errorf("%s", p.Data)
				return
			}
		}
	}
}

func (c *Client) writePump() {
	defer close(c.writerDone)

	write := func(data []byte) bool {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.logger.Debug("write failed", zap.Error(err))
			c.conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case data := <-c.outgoing:
			if !write(data) {
				return
			}
		case <-c.quit:
		flush:
			for {
				select {
				case data := <-c.outgoing:
					if !write(data) {
						return
					}
				default:
					break flush
				}
			}
			write([]byte{EngineMessage, SocketDisconnect})
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) enqueue(data []byte) {
	select {
	case c.outgoing <- data:
	case <-c.done:
	case <-c.quit:
	}
}

// lost handles transport loss. The disconnect event fires at most once and
// never after a local Close.
func (c *Client) lost(reason string, cause error) {
	if State(c.state.Swap(int32(StateClosed))) == StateClosed {
		return
	}
	c.finish()

	c.logger.Info("signaling lost", zap.String("reason", reason), zap.Error(cause))
	arg, _ := json.Marshal(reason)
	c.events.dispatch(Event{Name: EventDisconnect, Args: []json.RawMessage{arg}})
}

func (c *Client) fail() {
	c.state.Store(int32(StateClosed))
	c.finish()
}

func (c *Client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func readPacket(conn *websocket.Conn) (Packet, error) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return Packet{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return ParsePacket(data)
	}
}

// endpointURL turns a server base URL into the Engine.IO websocket URL.
func endpointURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", endpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
