// Package api provides the HTTP preview server for gdogen.
//
// It lets editors and dashboards generate code for a device file without
// touching disk, list the accepted sensor types, and follow watch-mode builds
// over a WebSocket event stream.
//
// The server follows the usual lifecycle pattern:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gdogen/internal/build"
	"github.com/nerrad567/gdogen/internal/infrastructure/config"
	"github.com/nerrad567/gdogen/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Event channels broadcast to WebSocket clients.
const (
	ChannelBuildCompleted = "build.completed"
	ChannelBuildFailed    = "build.failed"
)

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.ServerConfig
	Logger   *logging.Logger
	Function string // Name of the generated setup function
	Version  string
}

// Server is the HTTP preview server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.ServerConfig
	logger   *logging.Logger
	function string
	version  string
	server   *http.Server
	hub      *Hub
	cancel   context.CancelFunc // cancels the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, function name)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Function == "" {
		return nil, fmt.Errorf("setup function name is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		function: deps.Function,
		version:  deps.Version,
		hub:      NewHub(deps.Config.WebSocket, deps.Logger),
	}, nil
}

// Start binds the listen address and serves HTTP in a background goroutine.
// The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for the hub lifetime
//
// Returns:
//   - error: If the address cannot be bound (e.g. the port is in use)
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("preview server listening", "address", s.server.Addr)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("preview server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Close gracefully shuts down the server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("preview server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down preview server: %w", err)
	}
	return nil
}

// PublishBuild broadcasts the outcome of a watch-mode pass to subscribed
// WebSocket clients. It is meant to be installed as build.Watcher.OnBuild.
func (s *Server) PublishBuild(res build.Result) {
	if res.Err != nil {
		s.hub.Broadcast(ChannelBuildFailed, map[string]any{
			"problems": problemsFrom(res.Err),
		})
		return
	}
	s.hub.Broadcast(ChannelBuildCompleted, map[string]any{
		"artifacts": res.Artifacts,
		"written":   res.Written,
	})
}
