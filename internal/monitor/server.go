package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mkarlberg/studiotether/internal/camera"
	"github.com/mkarlberg/studiotether/internal/catalog"
	"github.com/mkarlberg/studiotether/internal/infrastructure/config"
	"github.com/mkarlberg/studiotether/internal/infrastructure/logging"
	"github.com/mkarlberg/studiotether/internal/preview"
)

// shutdownGrace bounds how long Close waits for in-flight requests
// before the listener is torn down.
const shutdownGrace = 10 * time.Second

// Deps carries everything the server can serve. Logger and Cache are
// mandatory; the rest may be nil, in which case the endpoints backed by
// the missing dependency answer 503 instead of the whole server
// refusing to start.
type Deps struct {
	Config    config.MonitorConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Session   *camera.Session
	Scheduler *camera.Scheduler
	Cache     *preview.Cache
	Ingester  *preview.Ingester
	Catalog   catalog.Repository

	// ExternalHub replaces the server-owned hub when set. The daemon
	// injects a shared hub so it can broadcast session and ingest
	// events without reaching into the server.
	ExternalHub *Hub
	Version     string
}

// Server owns the monitor listener: REST routes, middleware chain and
// the WebSocket hub. Build one with New, open the socket with Start.
type Server struct {
	cfg       config.MonitorConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	session   *camera.Session
	scheduler *camera.Scheduler
	cache     *preview.Cache
	ingester  *preview.Ingester
	catalog   catalog.Repository
	version   string

	hub    *Hub
	frame  frameStore
	server *http.Server
	stop   context.CancelFunc
}

// New wires a server from deps. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("preview cache is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		session:   deps.Session,
		scheduler: deps.Scheduler,
		cache:     deps.Cache,
		ingester:  deps.Ingester,
		catalog:   deps.Catalog,
		version:   deps.Version,
		hub:       deps.ExternalHub,
	}, nil
}

// Start assembles the router and opens the listener in a background
// goroutine, so a port conflict surfaces in the log rather than the
// return value. A hub is created and run here unless one was injected.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("monitor server already started")
	}

	// The derived context lets Close halt the hub independently of the
	// caller's context.
	var runCtx context.Context
	runCtx, s.stop = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(runCtx)
	}

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       secs(s.cfg.Timeouts.Read),
		ReadHeaderTimeout: secs(s.cfg.Timeouts.Read),
		WriteTimeout:      secs(s.cfg.Timeouts.Write),
		IdleTimeout:       secs(s.cfg.Timeouts.Idle),
	}

	s.logger.Info("monitor server listening",
		"address", s.server.Addr,
		"tls", s.cfg.TLS.Enabled,
	)
	go s.serve()

	return nil
}

// serve blocks on the listener until Close. ErrServerClosed is the
// normal exit and not worth a log line.
func (s *Server) serve() {
	var err error
	if s.cfg.TLS.Enabled {
		err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("monitor server failed", "error", err)
	}
}

// Close stops the hub and drains in-flight requests, forcing the
// listener shut after shutdownGrace. Safe to call before Start.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.stop != nil {
		s.stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.logger.Info("monitor server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down monitor server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the listener has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("monitor health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("monitor server not started")
	}
	return nil
}

// secs converts a whole-second config value to a Duration.
func secs(n int) time.Duration { return time.Duration(n) * time.Second }
