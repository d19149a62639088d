// Package debugserver exposes metrics and the live session state over HTTP.
package debugserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/session"
	"github.com/moorthiguru33/omegle-clone-sub000/internal/version"
)

const shutdownTimeout = 3 * time.Second

// SessionView is the JSON form of a session snapshot.
type SessionView struct {
	Status  string      `json:"status"`
	Room    string      `json:"room,omitempty"`
	Online  int         `json:"online"`
	Local   LocalView   `json:"local"`
	Remote  *RemoteView `json:"remote,omitempty"`
	Chat    int         `json:"chatMessages"`
	Error   string      `json:"error,omitempty"`
	Seq     uint64      `json:"seq"`
	Profile string      `json:"profile,omitempty"`
}

type LocalView struct {
	Live  bool `json:"live"`
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

type RemoteView struct {
	ID     string   `json:"id"`
	Room   string   `json:"room"`
	Tracks []string `json:"tracks"`
}

func View(s session.Snapshot) SessionView {
	v := SessionView{
		Status: s.Status.String(),
		Room:   s.Room,
		Online: s.Online,
		Local:  LocalView{Live: s.HasLocal, Audio: s.Audio, Video: s.Video},
		Chat:   len(s.Chat),
		Seq:    s.Seq,
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	if s.Remote != nil {
		rv := &RemoteView{ID: s.Remote.ID, Room: s.Remote.Room}
		for _, t := range s.Remote.Tracks {
			rv.Tracks = append(rv.Tracks, string(t.Kind))
		}
		v.Remote = rv
	}
	return v
}

type Server struct {
	addr      string
	snapshot  func() session.Snapshot
	profileID string
	logger    *zap.Logger
	started   time.Time
}

// New serves snapshot on addr. profileID is reported alongside the session.
func New(addr string, snapshot func() session.Snapshot, profileID string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:      addr,
		snapshot:  snapshot,
		profileID: profileID,
		logger:    logger.Named("debug"),
		started:   time.Now(),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.serveHealth)
	r.Get("/session", s.serveSession)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.started).Seconds(),
	})
}

func (s *Server) serveSession(w http.ResponseWriter, _ *http.Request) {
	v := View(s.snapshot())
	v.Profile = s.profileID
	writeJSON(w, v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("debug server listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
