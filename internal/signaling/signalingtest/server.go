// Package signalingtest runs an in-process matchmaking server that speaks
// the same Socket.IO protocol as the production server. Clients are paired
// in arrival order.
package signalingtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/signaling"
)

// Received is one event the server read from a client.
type Received struct {
	SID   string
	Room  string
	Event signaling.Event
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPingInterval sets the Engine.IO ping interval advertised and used.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.pingInterval = d }
}

// WithOfferOnMatch makes the server send send-offer to the first member of
// every new room right after joined.
func WithOfferOnMatch() Option {
	return func(s *Server) { s.offerOnMatch = true }
}

// Server is the hub: one goroutine owns the queue, rooms and clients.
type Server struct {
	URL string

	logger       *zap.Logger
	pingInterval time.Duration
	offerOnMatch bool
	started      time.Time
	http         *httptest.Server

	register   chan *conn
	unregister chan *conn
	inbound    chan inbound
	calls      chan func()
	quit       chan struct{}
	wg         sync.WaitGroup

	// owned by the hub goroutine
	clients map[string]*conn
	rooms   map[string][2]*conn
	queue   []*conn

	mu       sync.Mutex
	received []Received
}

type inbound struct {
	from  *conn
	event signaling.Event
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewServer starts the server on a loopback port.
func NewServer(opts ...Option) *Server {
	s := &Server{
		logger:       zap.NewNop(),
		pingInterval: 25 * time.Second,
		started:      time.Now(),
		register:     make(chan *conn),
		unregister:   make(chan *conn),
		inbound:      make(chan inbound, 64),
		calls:        make(chan func()),
		quit:         make(chan struct{}),
		clients:      make(map[string]*conn),
		rooms:        make(map[string][2]*conn),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/socket.io/", s.serveWS)
	r.Get("/status", s.serveStatus)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	s.http = httptest.NewServer(r)
	s.URL = s.http.URL

	s.wg.Add(1)
	go s.run()
	return s
}

// Close disconnects every client and stops the server.
func (s *Server) Close() {
	s.call(func() {
		for _, c := range s.clients {
			c.conn.Close()
		}
	})
	close(s.quit)
	s.wg.Wait()
	s.http.CloseClientConnections()
	s.http.Close()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "unsupported transport", http.StatusBadRequest)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	c := &conn{
		server: s,
		conn:   ws,
		sid:    uuid.NewString(),
		send:   make(chan []byte, 256),
		closed: make(chan struct{}),
	}
	open, _ := signaling.EncodeOpen(signaling.Handshake{
		SID:          c.sid,
		Upgrades:     []string{},
		PingInterval: int(s.pingInterval / time.Millisecond),
		PingTimeout:  20000,
		MaxPayload:   1000000,
	})
	c.send <- open

	go c.writePump()
	go c.readPump()
}

func (s *Server) serveStatus(w http.ResponseWriter, _ *http.Request) {
	var n int
	s.call(func() { n = len(s.clients) })
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"activeUsers": n,
		"uptime":      time.Since(s.started).Seconds(),
		"version":     "signalingtest",
	})
}

// run is the hub loop.
func (s *Server) run() {
	defer s.wg.Done()
	for {
		select {
		case c := <-s.register:
			s.clients[c.sid] = c
			s.logger.Debug("client registered", zap.String("sid", c.sid))
			s.broadcastCount()

		case c := <-s.unregister:
			if _, ok := s.clients[c.sid]; !ok {
				continue
			}
			delete(s.clients, c.sid)
			s.dequeue(c)
			if other := s.leave(c); other != nil {
				other.emit(signaling.EventLeaveRoom)
			}
			c.shutdown()
			s.logger.Debug("client unregistered", zap.String("sid", c.sid))
			s.broadcastCount()

		case in := <-s.inbound:
			s.handle(in.from, in.event)

		case fn := <-s.calls:
			fn()

		case <-s.quit:
			for _, c := range s.clients {
				c.shutdown()
			}
			return
		}
	}
}

func (s *Server) handle(c *conn, ev signaling.Event) {
	if _, ok := s.clients[c.sid]; !ok {
		return
	}

	switch ev.Name {
	case signaling.EventJoin:
		if c.room != "" {
			return
		}
		for _, q := range s.queue {
			if q == c {
				return
			}
		}
		s.queue = append(s.queue, c)
		s.match()

	case signaling.EventLeaveRoom:
		s.dequeue(c)
		other := s.leave(c)
		c.emit(signaling.EventLeaveRoom)
		if other != nil {
			other.emit(signaling.EventLeaveRoom)
		}

	case signaling.EventMessage, signaling.EventOffer, signaling.EventAnswer, signaling.EventICECandidates:
		var room string
		if err := ev.Decode(0, &room); err != nil || room == "" || room != c.room {
			s.logger.Debug("dropping unscoped event", zap.String("event", ev.Name), zap.String("sid", c.sid))
			return
		}
		other := s.peerOf(c)
		if other == nil {
			return
		}
		args := make([]any, 0, len(ev.Args)-1)
		for _, a := range ev.Args[1:] {
			args = append(args, a)
		}
		other.emit(ev.Name, args...)

	default:
		s.logger.Debug("unknown event", zap.String("event", ev.Name))
	}
}

func (s *Server) match() {
	for len(s.queue) >= 2 {
		a, b := s.queue[0], s.queue[1]
		s.queue = s.queue[2:]

		id := roomID(func(id string) bool { _, ok := s.rooms[id]; return ok })
		s.rooms[id] = [2]*conn{a, b}
		a.room, b.room = id, id

		s.logger.Debug("room created", zap.String("room", id))
		joined := signaling.Joined{Room: id}
		a.emit(signaling.EventJoined, joined)
		b.emit(signaling.EventJoined, joined)
		if s.offerOnMatch {
			a.emit(signaling.EventSendOffer)
		}
	}
}

// leave removes c from its room and returns the other member, if any.
func (s *Server) leave(c *conn) *conn {
	if c.room == "" {
		return nil
	}
	other := s.peerOf(c)
	delete(s.rooms, c.room)
	c.room = ""
	if other != nil {
		other.room = ""
	}
	return other
}

func (s *Server) peerOf(c *conn) *conn {
	pair, ok := s.rooms[c.room]
	if !ok {
		return nil
	}
	if pair[0] == c {
		return pair[1]
	}
	return pair[0]
}

func (s *Server) dequeue(c *conn) {
	for i, q := range s.queue {
		if q == c {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Server) broadcastCount() {
	for _, c := range s.clients {
		c.emit(signaling.EventUserCount, len(s.clients))
	}
}

// call runs fn on the hub goroutine and waits for it.
func (s *Server) call(fn func()) {
	done := make(chan struct{})
	select {
	case s.calls <- func() { fn(); close(done) }:
		<-done
	case <-s.quit:
	}
}

func (s *Server) record(c *conn, ev signaling.Event) {
	var room string
	s.call(func() { room = c.room })

	s.mu.Lock()
	s.received = append(s.received, Received{SID: c.sid, Room: room, Event: ev})
	s.mu.Unlock()
}

// Received returns every recorded event with the given name, oldest first.
// An empty name returns all of them.
func (s *Server) Received(name string) []Received {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Received
	for _, r := range s.received {
		if name == "" || r.Event.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Clients returns the session ids of connected clients.
func (s *Server) Clients() []string {
	var out []string
	s.call(func() {
		for sid := range s.clients {
			out = append(out, sid)
		}
	})
	return out
}

// RoomOf returns the room sid is in, or "".
func (s *Server) RoomOf(sid string) string {
	var room string
	s.call(func() {
		if c, ok := s.clients[sid]; ok {
			room = c.room
		}
	})
	return room
}

// Rooms returns the ids of active rooms.
func (s *Server) Rooms() []string {
	var out []string
	s.call(func() {
		for id := range s.rooms {
			out = append(out, id)
		}
	})
	return out
}

// Emit sends an event to one client. It reports false for unknown sids.
func (s *Server) Emit(sid, event string, args ...any) bool {
	ok := false
	s.call(func() {
		if c, found := s.clients[sid]; found {
			c.emit(event, args...)
			ok = true
		}
	})
	return ok
}

// SendOffer asks sid to produce an offer.
func (s *Server) SendOffer(sid string) bool {
	return s.Emit(sid, signaling.EventSendOffer)
}

// Drop kills the transport of sid without a close handshake.
func (s *Server) Drop(sid string) bool {
	ok := false
	s.call(func() {
		if c, found := s.clients[sid]; found {
			c.conn.Close()
			ok = true
		}
	})
	return ok
}
