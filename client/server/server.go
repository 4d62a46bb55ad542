package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultListenAddr = "127.0.0.1:41733"
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Updater is the update state exposed to the UI
type Updater interface {
	Update(ctx context.Context)
	IsInProgress() bool
	NotifyProgress()
}

// EventSource serves the UI event stream
type EventSource interface {
	Handler() http.Handler
	Close() error
}

type statusResponse struct {
	InProgress bool `json:"inProgress"`
}

// Server is the local HTTP API the GUI uses to drive and observe updates
type Server struct {
	updater        Updater
	events         EventSource
	allowedOrigins []string

	// attempts started over the API run under baseCtx
	baseCtx  context.Context
	starting atomic.Bool
	wg       sync.WaitGroup
}

func New(updater Updater, events EventSource, allowedOrigins []string) *Server {
	return &Server{
		updater:        updater,
		events:         events,
		allowedOrigins: allowedOrigins,
		baseCtx:        context.Background(),
	}
}

// Router returns the API handler
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/update/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/update/progress", s.handleProgress).Methods(http.MethodPost)
	router.HandleFunc("/update", s.handleUpdate).Methods(http.MethodPost)
	router.Handle("/events", s.events.Handler()).Methods(http.MethodGet)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return corsMiddleware.Handler(router)
}

// ListenAndServe serves the API on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves the API on listener until ctx is done, then waits for running attempts
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.baseCtx = ctx

	httpServer := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithContext(ctx).Infof("status server listening on %s", listener.Addr())
		serveErr <- httpServer.Serve(listener)
	}()

	var merr *multierror.Error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			merr = multierror.Append(merr, err)
		}
	case <-ctx.Done():
		log.WithContext(ctx).Info("shutting down status server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	if err := s.events.Close(); err != nil {
		merr = multierror.Append(merr, err)
	}
	s.wg.Wait()

	return merr.ErrorOrNil()
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{InProgress: s.updater.IsInProgress()})
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	s.updater.NotifyProgress()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdate(w http.ResponseWriter, _ *http.Request) {
	if !s.starting.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, statusResponse{InProgress: true})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.starting.Store(false)
		s.updater.Update(s.baseCtx)
	}()

	writeJSON(w, http.StatusAccepted, statusResponse{InProgress: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("failed to write response: %v", err)
	}
}
