// Package server exposes listing runs, uploads and fetches over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/config"
	"github.com/dl-alexandre/gdrvflow/internal/files"
	"github.com/dl-alexandre/gdrvflow/internal/listing"
	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/metrics"
	"github.com/dl-alexandre/gdrvflow/internal/remote"
	"github.com/dl-alexandre/gdrvflow/internal/resolver"
	"github.com/dl-alexandre/gdrvflow/internal/sink"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/dl-alexandre/gdrvflow/internal/watermark"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Options wires the server to its collaborators. Store and Watermarks are
// required.
type Options struct {
	Store      remote.Store
	Watermarks watermark.Store
	// Sink also receives every batch committed by a run, after the in-memory
	// collector used for the response.
	Sink    listing.Sink
	List    config.ListConfig
	Upload  config.UploadConfig
	Limiter *rate.Limiter
	// ScopeKey maps a root folder to its watermark scope. Defaults to "list:<root>".
	ScopeKey func(rootFolderID string) string
	Metrics  *metrics.Metrics
	Logger   logging.Logger
	Version  string
}

// Server serves the HTTP API. Listing runs for the same scope are serialized
// within the process; cross-process exclusion is the deployment's job.
type Server struct {
	addr     string
	opts     Options
	router   chi.Router
	resolver *resolver.UploadResolver
	files    *files.Manager
	logger   logging.Logger

	mu   sync.Mutex
	runs map[string]*sync.Mutex
}

// New builds a server listening on addr.
func New(addr string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.ScopeKey == nil {
		opts.ScopeKey = func(root string) string { return "list:" + root }
	}
	s := &Server{
		addr:     addr,
		opts:     opts,
		resolver: resolver.NewUploadResolver(opts.Store, opts.Logger, opts.Metrics),
		files:    files.NewManager(opts.Store, opts.Logger),
		logger:   opts.Logger,
		runs:     make(map[string]*sync.Mutex),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(traceMiddleware)
	r.Use(s.recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, utils.NewCLIError("NOT_FOUND", "route not found").Build())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, utils.NewCLIError("METHOD_NOT_ALLOWED", "method not allowed").Build())
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.opts.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.handleRun)
		r.Put("/files/{folderID}/*", s.handleUpload)
		r.Get("/files/{fileID}", s.handleFetch)
		r.Get("/watermarks/{rootFolderID}", s.handleGetWatermark)
		r.Delete("/watermarks/{rootFolderID}", s.handleResetWatermark)
	})
	return r
}

// RunListing performs one incremental run for req under the server's scope
// rules. collect keeps the emitted records for the caller.
func (s *Server) RunListing(ctx context.Context, req listing.Request, collect bool) (*listing.Outcome, []listing.Record, error) {
	scope := s.opts.ScopeKey(req.RootFolderID)
	lock := s.scopeLock(scope)
	if !lock.TryLock() {
		return nil, nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeRunInProgress,
			"a listing run for this scope is already in progress").
			WithContext("scope", scope).
			WithRetryable(true).
			Build())
	}
	defer lock.Unlock()

	collector := &sink.Collector{}
	var target listing.Sink = collector
	if s.opts.Sink != nil {
		if collect {
			target = sink.Tee{collector, s.opts.Sink}
		} else {
			target = s.opts.Sink
		}
	}

	engine, err := listing.NewEngine(s.opts.Store, target, listing.Options{
		Include: s.opts.List.Include,
		Limiter: s.opts.Limiter,
		Logger:  s.logger,
		Metrics: s.opts.Metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	runner := listing.NewRunner(engine, s.opts.Watermarks, s.logger, s.opts.Metrics)
	out, err := runner.Run(ctx, req, scope)
	if !collect {
		return out, nil, err
	}
	return out, collector.Records(), err
}

func (s *Server) scopeLock(scope string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.runs[scope]
	if !ok {
		l = &sync.Mutex{}
		s.runs[scope] = l
	}
	return l
}

// DefaultRequest is the listing request built from the configured list settings.
func (s *Server) DefaultRequest() listing.Request {
	return listing.Request{
		RootFolderID:  s.opts.List.RootFolder,
		FromBeginning: s.opts.List.FromBeginning,
		Recursive:     s.opts.List.Recursive,
		BatchSize:     s.opts.List.BatchSize,
		PageSize:      s.opts.List.PageSize,
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.F("addr", s.addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("HTTP server shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	}
}
