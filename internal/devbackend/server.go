// Package devbackend is an in-memory implementation of the admin REST API.
// It serves every loaded resource definition with JWT auth, tenant
// enforcement and idempotent mutation replay, for local development and
// end-to-end tests of the console.
package devbackend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/config"
	"github.com/pitabwire/console/internal/definition"
	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

const replayCacheSize = 1024

// Server is the dev backend.
type Server struct {
	cfg          config.DevBackendConfig
	tenantHeader string
	logger       *zap.Logger
	metrics      *observability.Metrics
	gatherer     prometheus.Gatherer
	registry     *definition.Registry
	issuer       *issuer
	replays      ReplayStore
	now          func() time.Time

	collections map[string]*collection
	singletons  map[string]*singleton

	mu        sync.Mutex
	passwords map[string]string
	blobs     map[string][]byte
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request metrics and serves them at /metrics.
func WithMetrics(m *observability.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithReplayStore replaces the in-memory idempotency store. A store that
// implements observability.HealthChecker is added to the readiness checks.
func WithReplayStore(store ReplayStore) Option {
	return func(s *Server) { s.replays = store }
}

// WithClock overrides the time source, used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds a server for every descriptor in registry. Requests must
// carry tenantHeader when it is non-empty.
func New(cfg config.DevBackendConfig, tenantHeader string, registry *definition.Registry, opts ...Option) (*Server, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, errors.New("devbackend: no resource definitions")
	}
	replays, err := NewMemoryReplayStore(replayCacheSize)
	if err != nil {
		return nil, fmt.Errorf("devbackend: %w", err)
	}
	s := &Server{
		cfg:          cfg,
		tenantHeader: tenantHeader,
		logger:       zap.NewNop(),
		registry:     registry,
		replays:      replays,
		now:          time.Now,
		collections:  map[string]*collection{},
		singletons:   map[string]*singleton{},
		passwords:    map[string]string{},
		blobs:        map[string][]byte{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.issuer = newIssuer(cfg.SigningKey, cfg.AccessTokenTTL, s.now)

	for _, desc := range registry.All() {
		if desc.Singleton {
			s.singletons[desc.Name] = &singleton{}
			continue
		}
		s.collections[desc.Name] = newCollection(desc.Name, desc.Name == resources.Jobs)
	}
	if cfg.Seed {
		s.seed()
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(Recovery(s.logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware(s.tenantHeader))
	if s.metrics != nil {
		r.Use(s.metrics.MetricsMiddleware)
	}

	health := observability.HandleHealth()
	checks := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return s.registry.Len() > 0 },
	}
	if hc, ok := s.replays.(observability.HealthChecker); ok {
		checks.Checkers = map[string]observability.HealthChecker{"replay_store": hc}
	}
	ready := observability.HandleReady(checks)
	r.Get("/healthz", health)
	r.Get("/readyz", ready)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", observability.Handler(s.gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequestLogging(s.logger))
		r.Get("/healthz", health)
		r.Get("/readyz", ready)

		r.Group(func(r chi.Router) {
			r.Use(RequireTenant(s.tenantHeader))
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)

			r.Group(func(r chi.Router) {
				r.Use(s.issuer.Authenticate)
				r.Use(Idempotency(s.replays, s.tenantHeader, s.logger))
				r.Post("/auth/logout", s.handleLogout)
				r.Get("/auth/me", s.handleMe)
				s.mountExtras(r)
				for _, desc := range s.registry.All() {
					s.mount(r, desc)
				}
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// mount registers the CRUD, form and action routes of one descriptor.
func (s *Server) mount(r chi.Router, desc model.ResourceDescriptor) {
	base := desc.BasePath
	if desc.Singleton {
		r.Get(base, s.getSingleton(desc))
		r.Put(base, s.putSingleton(desc))
		return
	}
	c := s.collections[desc.Name]
	r.Get(base, s.list(desc, c))
	r.Post(base, s.create(desc, c, ""))
	for _, f := range desc.Forms {
		if f.Path != "" {
			r.Post(base+"/"+f.Path, s.create(desc, c, f.ID))
		}
	}
	r.Get(base+"/{id}", s.get(desc, c))
	r.Put(base+"/{id}", s.update(desc, c))
	r.Delete(base+"/{id}", s.remove(desc, c))
	for _, a := range desc.Actions {
		r.Post(base+"/{id}/"+a.Path, s.action(desc, c, a))
	}
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("devbackend: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dev backend listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("dev backend shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("devbackend: shutdown: %w", err)
	}
	return nil
}

// log returns the request scoped logger.
func (s *Server) log(r *http.Request) *zap.Logger {
	return observability.LoggerFrom(r.Context(), s.logger)
}

func (s *Server) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
