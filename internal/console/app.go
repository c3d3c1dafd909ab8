package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/api"
	"github.com/pitabwire/console/internal/auth"
	"github.com/pitabwire/console/internal/config"
	"github.com/pitabwire/console/internal/definition"
	"github.com/pitabwire/console/internal/notify"
	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/internal/query"
	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

// AppOptions are the per-invocation inputs of an App.
type AppOptions struct {
	In  *os.File
	Out io.Writer
	Err io.Writer
	// AssumeYes answers every confirmation with yes.
	AssumeYes bool
	// Store overrides the token file store, for tests.
	Store auth.TokenStore
	// Notifier and Confirmer override the terminal defaults.
	Notifier  notify.Notifier
	Confirmer notify.Confirmer
	Logger    *zap.Logger
}

// App is the wired console: one session, client, cache and registry shared
// by every controller.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
	Registry  *definition.Registry
	Session   *auth.Session
	Client    *api.Client
	Cache     *query.Cache
	Notifier  notify.Notifier
	Confirmer notify.Confirmer
	Out       io.Writer

	shutdownTracing func(context.Context) error
}

// NewApp wires an App from cfg.
func NewApp(ctx context.Context, cfg *config.Config, opts AppOptions) (*App, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = observability.NewLogger(cfg.Observability)
		if err != nil {
			return nil, fmt.Errorf("console: logger: %w", err)
		}
	}

	shutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "console", observability.Version)
	if err != nil {
		return nil, fmt.Errorf("console: tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(reg)

	registry, err := definition.LoadRegistry(cfg.Definitions.Directories)
	if err != nil {
		return nil, fmt.Errorf("console: definitions: %w", err)
	}
	if _, err := resources.Require(registry); err != nil {
		return nil, err
	}
	metrics.SetDefinitionsLoaded(registry.Len())
	logger.Debug("definitions loaded",
		zap.Int("count", registry.Len()),
		zap.String("checksum", registry.Checksum()),
	)

	store := opts.Store
	if store == nil {
		store = auth.NewFileStore(cfg.Auth.TokenFile)
	}
	session, err := auth.NewSession(store, auth.WithLogger(logger), auth.WithMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("console: loading credentials: %w", err)
	}

	client := api.New(cfg.API, cfg.Auth, session, api.WithLogger(logger), api.WithMetrics(metrics))
	cache := query.New(cfg.Cache, query.WithLogger(logger), query.WithMetrics(metrics))

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Multi{notify.NewTerminal(opts.Err, cfg.UI.Color), notify.NewLogNotifier(logger)}
	}
	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = notify.NewConfirmer(opts.AssumeYes, opts.In, os.Stderr)
	}

	return &App{
		Config:          cfg,
		Logger:          logger,
		Metrics:         metrics,
		Gatherer:        reg,
		Registry:        registry,
		Session:         session,
		Client:          client,
		Cache:           cache,
		Notifier:        notifier,
		Confirmer:       confirmer,
		Out:             opts.Out,
		shutdownTracing: shutdown,
	}, nil
}

// Deps returns the controller dependencies backed by the app.
func (a *App) Deps() Deps {
	return Deps{
		Cache:    a.Cache,
		Notifier: a.Notifier,
		Gate:     notify.NewGate(a.Confirmer, a.Logger),
		Logger:   a.Logger,
		Metrics:  a.Metrics,
		PageSize: a.Config.UI.PageSize,
	}
}

// Descriptor looks up a loaded resource.
func (a *App) Descriptor(name string) (model.ResourceDescriptor, error) {
	return a.Registry.Lookup(name)
}

// Login signs in and persists the token pair.
func (a *App) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := a.Client.Login(ctx, model.LoginRequest{Email: email, Password: password})
	if err != nil {
		a.Notifier.Notify(ctx, notify.Error, model.MessageFor(err, "Login failed"))
		return nil, err
	}
	a.Notifier.Notify(ctx, notify.Success, "Signed in")
	return user, nil
}

// Logout ends the session. Local credentials are cleared even when the
// backend call fails.
func (a *App) Logout(ctx context.Context) error {
	err := a.Client.Logout(ctx)
	a.Cache.Clear()
	if err != nil && !errors.Is(err, api.ErrNoSession) {
		a.Logger.Warn("logout request failed", zap.Error(err))
	}
	a.Notifier.Notify(ctx, notify.Info, "Signed out")
	return nil
}

// Ready checks the definitions and the backend.
func (a *App) Ready(ctx context.Context) observability.ReadinessResponse {
	return observability.Ready(ctx, observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return a.Registry.Len() > 0 },
		Checkers: map[string]observability.HealthChecker{
			"backend": observability.HealthCheckFunc(a.Client.HealthCheck),
		},
	})
}

// DumpMetrics writes the collected metrics in the Prometheus text format.
func (a *App) DumpMetrics(w io.Writer) error {
	families, err := a.Gatherer.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, f := range families {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes tracing and the logger.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.shutdownTracing != nil {
		err = a.shutdownTracing(ctx)
	}
	_ = a.Logger.Sync()
	return err
}
