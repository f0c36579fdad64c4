// Package kujo relays simulation snapshots to remote observers over server-sent events.
package kujo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo/notify"
	"nyiyui.ca/hato/shingo/sim"
)

const streamSnapshot = "snapshot"

type Conf struct {
	// HistorySize is how many recent snapshots are kept for GET /snapshot/{tick}.
	HistorySize    int
	AllowedOrigins []string
}

type Server struct {
	// Session identifies this run, so observers can tell a restart from a gap.
	Session uuid.UUID

	s       *sse.Server
	history *lru.Cache[int64, []byte]
	handler http.Handler
}

func NewServer(conf Conf) (*Server, error) {
	if conf.HistorySize <= 0 {
		conf.HistorySize = 1
	}
	history, err := lru.New[int64, []byte](conf.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	s := &Server{
		Session: uuid.New(),
		s:       sse.New(),
		history: history,
	}
	s.s.AutoReplay = false
	s.s.CreateStream(streamSnapshot)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", s.s.ServeHTTP)
	mux.HandleFunc("GET /snapshot/{tick}", s.handleSnapshot)
	mux.HandleFunc("GET /session", s.handleSession)
	s.handler = cors.New(cors.Options{
		AllowedOrigins: conf.AllowedOrigins,
	}).Handler(mux)
	return s, nil
}

// Publish records a snapshot and sends it to every connected observer.
func (s *Server) Publish(snap sim.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %d: %w", snap.Tick, err)
	}
	s.history.Add(snap.Tick, data)
	s.s.TryPublish(streamSnapshot, &sse.Event{
		ID:   []byte(strconv.FormatInt(snap.Tick, 10)),
		Data: data,
	})
	return nil
}

// Run forwards snapshots from m until ctx is done.
func (s *Server) Run(ctx context.Context, m *notify.Multiplexer[sim.Snapshot]) error {
	ch := make(chan sim.Snapshot, 1)
	m.Subscribe("kujo", ch)
	defer m.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			s.s.Close()
			return nil
		case snap := <-ch:
			if err := s.Publish(snap); err != nil {
				zap.S().Warnw("kujo: publish", "err", err)
			}
		}
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	tick, err := strconv.ParseInt(r.PathValue("tick"), 10, 64)
	if err != nil {
		http.Error(w, "bad tick", http.StatusBadRequest)
		return
	}
	data, ok := s.history.Get(tick)
	if !ok {
		http.Error(w, "snapshot not in history", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, s.Session)
}

// Ticks returns the ticks held in history, oldest first.
func (s *Server) Ticks() []int64 {
	return s.history.Keys()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
