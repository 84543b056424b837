// Package api serves the notes over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/notes"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server is the notes API server.
type Server struct {
	notes  *notes.Service
	router *mux.Router
}

// NewServer returns a server for the given notes service.
func NewServer(svc *notes.Service) *Server {
	s := &Server{
		notes:  svc,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(RequestLogger)

	s.router.HandleFunc("/api/notes", s.handleListNotes).Methods(http.MethodGet)
	s.router.HandleFunc("/api/notes", s.handleCreateNote).Methods(http.MethodPost)
	s.router.HandleFunc("/api/notes/{id:[0-9]+}", s.handleGetNote).Methods(http.MethodGet)
	s.router.HandleFunc("/api/notes/{id:[0-9]+}", s.handleUpdateNote).Methods(http.MethodPut)
	s.router.HandleFunc("/api/notes/{id:[0-9]+}", s.handleDeleteNote).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/users/{id:[0-9]+}", s.handleUserNotes).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/info", handleInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", handleMetrics).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe listens on the given address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("api: failed to listen on %s: %w", address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on the given listener until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Infof("api: listening on %s", ln.Addr())
		err := server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: failed to serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api: failed to shut down: %w", err)
		}
		log.Info("api: stopped")
		return nil
	})
	return group.Wait()
}
