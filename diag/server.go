// Package diag serves a small read-only HTTP surface for inspecting a
// running gateway: plain-text counters, the active profile, and a JSON
// snapshot of the decoded vehicle state.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"canbox-gateway/gateway"
)

// Server wraps an http.Server bound to the gateway's diagnostics
// surface. All handlers read snapshots; nothing here mutates state.
type Server struct {
	gw  *gateway.Gateway
	log zerolog.Logger
	srv *http.Server
}

func NewServer(addr string, gw *gateway.Gateway, log zerolog.Logger) *Server {
	s := &Server{gw: gw, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/profile", s.handleProfile).Methods(http.MethodGet)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("diagnostics endpoint listening")
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.gw.Metrics()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "profile %s\n", m.Profile)
	fmt.Fprintf(w, "synthetic %v\n", m.Synthetic)
	fmt.Fprintf(w, "paused %v\n", m.Paused)
	fmt.Fprintf(w, "frames_matched %d\n", m.Matched)
	fmt.Fprintf(w, "frames_unmatched %d\n", m.Unmatched)
	fmt.Fprintf(w, "field_faults %d\n", m.FieldFaults)
	fmt.Fprintf(w, "frames_seen %v\n", m.FramesSeen)
	fmt.Fprintf(w, "last_frame_age_ms %d\n", m.LastFrameAgeMS)
}

func (s *Server) handleProfile(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, s.gw.ProfileName())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.gw.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.log.Debug().Err(err).Msg("state encode failed")
	}
}
