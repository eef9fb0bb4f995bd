package mcpd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Options configures a Server. Zero values are replaced with defaults by
// NewServer, so callers only set what they need.
type Options struct {
	// Host and Port form the listen address for Start.
	Host string
	Port int

	// Endpoint is the HTTP path serving the protocol.
	Endpoint string

	// SessionTimeout is the idle time after which a session expires.
	SessionTimeout time.Duration

	// SweepInterval is the period of the background session sweeper.
	SweepInterval time.Duration

	// Name and Version identify the server during the initialize handshake.
	Name    string
	Version string

	Logger *slog.Logger
}

var defaultOptions = Options{
	Host:           "127.0.0.1",
	Port:           8080,
	Endpoint:       "/mcp",
	SessionTimeout: 30 * time.Minute,
	SweepInterval:  time.Minute,
	Name:           "mcpd",
	Version:        "0.1.0",
}

// Server exposes registered tools over the Streamable HTTP transport. Create
// one with NewServer, register tools, then either call Start or mount
// Handler on an existing HTTP server. Shutdown must be called to release the
// session sweeper and close open streams.
type Server struct {
	opts     Options
	logger   *slog.Logger
	registry *Registry
	sessions *SessionManager

	transport  *httpTransport
	httpServer *http.Server
}

// NewServer creates a server with the given options, applying defaults for
// zero-valued fields.
func NewServer(opts Options) *Server {
	if opts.Host == "" {
		opts.Host = defaultOptions.Host
	}
	if opts.Port == 0 {
		opts.Port = defaultOptions.Port
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultOptions.Endpoint
	}
	if opts.SessionTimeout == 0 {
		opts.SessionTimeout = defaultOptions.SessionTimeout
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = defaultOptions.SweepInterval
	}
	if opts.Name == "" {
		opts.Name = defaultOptions.Name
	}
	if opts.Version == "" {
		opts.Version = defaultOptions.Version
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	logger := opts.Logger.With(slog.String("component", "mcpd"))
	registry := NewRegistry()
	sessions := NewSessionManager(opts.SessionTimeout, opts.SweepInterval, logger)

	s := &Server{
		opts:     opts,
		logger:   logger,
		registry: registry,
		sessions: sessions,
	}
	s.transport = &httpTransport{
		endpoint:   opts.Endpoint,
		dispatcher: newDispatcher(Info{Name: opts.Name, Version: opts.Version}, registry, logger),
		sessions:   sessions,
		logger:     logger,
	}

	return s
}

// Register adds a tool to the server. Tools are registered at build time,
// before the server starts accepting requests.
func (s *Server) Register(tool Tool) error {
	return s.registry.Register(tool)
}

// Sessions exposes the server's session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Handler returns the HTTP handler serving the protocol endpoint. The
// endpoint accepts POST, GET, DELETE, and permissive CORS preflight; other
// verbs get 405.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", headerSessionID, headerProtocolVersion},
		ExposedHeaders: []string{headerSessionID},
	}))

	r.Post(s.opts.Endpoint, s.transport.handlePost)
	r.Get(s.opts.Endpoint, s.transport.handleSSE)
	r.Delete(s.opts.Endpoint, s.transport.handleDelete)

	return r
}

// Addr returns the listen address derived from the options.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

// Start listens on the configured address and serves until Shutdown. Like
// http.Server.ListenAndServe, it returns http.ErrServerClosed after a clean
// shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	s.logger.Info("server starting",
		slog.String("addr", s.Addr()),
		slog.String("endpoint", s.opts.Endpoint),
		slog.Int("tools", s.registry.Len()))

	return s.httpServer.ListenAndServe()
}

// Shutdown stops the session sweeper, closes all open streams, and clears
// the session table, then stops accepting new connections and drains
// in-flight requests until ctx expires. Streams close first so long-lived
// push connections release before the HTTP server waits on them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessions.Shutdown()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown http server: %w", err)
		}
	}
	return nil
}
