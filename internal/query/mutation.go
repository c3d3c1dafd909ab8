package query

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/notify"
	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/model"
)

// ErrMutationInFlight is returned when Run is called while submitting.
var ErrMutationInFlight = errors.New("query: mutation already submitting")

const (
	defaultSuccessMessage = "Saved successfully"
	defaultFailureMessage = "Something went wrong"
)

// MutationFunc performs the state change.
type MutationFunc func(ctx context.Context) (any, error)

// MutationConfig describes one mutation of one resource.
type MutationConfig struct {
	Resource string
	Kind     model.MutationKind
	// Invalidates lists the cache prefixes marked stale on success.
	Invalidates    []model.QueryKey
	SuccessMessage string
	// FailureMessage is shown when the server supplies none.
	FailureMessage string
}

// ForDescriptor builds the config of a mutation on desc.
func ForDescriptor(desc model.ResourceDescriptor, kind model.MutationKind, extraInvalidates ...string) MutationConfig {
	return MutationConfig{
		Resource:       desc.Name,
		Kind:           kind,
		Invalidates:    desc.InvalidationKeys(extraInvalidates...),
		SuccessMessage: desc.SuccessMessage(kind),
		FailureMessage: desc.FailureMessage(kind),
	}
}

// Outcome is the settled result of one Run.
type Outcome struct {
	Data  any
	Err   error
	State State
	// Message is the notification text that was shown.
	Message string
	// Invalidated counts the cache entries marked stale.
	Invalidated int
}

// OK reports success.
func (o Outcome) OK() bool { return o.State == StateSuccess && o.Err == nil }

// Mutation runs a state change through Idle -> Submitting -> Success|Error ->
// Idle. Every outcome is paired with exactly one notification and errors are
// never propagated as panics or returned errors.
type Mutation struct {
	cfg      MutationConfig
	cache    *Cache
	notifier notify.Notifier
	machine  *Machine
	logger   *zap.Logger
}

// NewMutation returns a mutation that invalidates cache and reports through
// notifier. Both may be nil.
func NewMutation(cache *Cache, notifier notify.Notifier, cfg MutationConfig) *Mutation {
	if notifier == nil {
		notifier = notify.Nop
	}
	if cfg.SuccessMessage == "" {
		cfg.SuccessMessage = defaultSuccessMessage
	}
	if cfg.FailureMessage == "" {
		cfg.FailureMessage = defaultFailureMessage
	}
	logger := zap.NewNop()
	if cache != nil {
		logger = cache.logger
	}
	return &Mutation{
		cfg:      cfg,
		cache:    cache,
		notifier: notifier,
		machine:  NewMutationMachine(cfg.Resource + "/" + string(cfg.Kind)),
		logger:   logger,
	}
}

// Config returns the mutation config.
func (m *Mutation) Config() MutationConfig { return m.cfg }

// State returns the current state.
func (m *Mutation) State() State { return m.machine.State() }

// IsSubmitting reports whether a Run is in progress.
func (m *Mutation) IsSubmitting() bool { return m.machine.State() == StateSubmitting }

// OnTransition registers a state change hook.
func (m *Mutation) OnTransition(fn func(from, to State)) { m.machine.OnTransition(fn) }

// Run executes fn. On success the configured prefixes are invalidated and a
// success notification fires; on error the server message, or the fallback,
// is shown. A Run while already submitting is rejected without notifying.
func (m *Mutation) Run(ctx context.Context, fn MutationFunc) Outcome {
	if !m.machine.transitionFrom(StateIdle, StateSubmitting) {
		return Outcome{Err: ErrMutationInFlight, State: m.machine.State()}
	}

	ctx, span := observability.StartMutationSpan(ctx, m.cfg.Resource, string(m.cfg.Kind))
	start := time.Now()
	data, err := fn(ctx)
	duration := time.Since(start)
	observability.EndSpanWithError(span, err)

	metrics := m.metrics()
	if err != nil {
		_ = m.machine.Transition(StateError)
		msg := model.MessageFor(err, m.cfg.FailureMessage)
		m.notifier.Notify(ctx, notify.Error, msg)
		metrics.RecordMutation(m.cfg.Resource, string(m.cfg.Kind), "error", duration)
		m.logger.Warn("query: mutation failed",
			zap.String("resource", m.cfg.Resource),
			zap.String("kind", string(m.cfg.Kind)),
			zap.Error(err),
		)
		_ = m.machine.Transition(StateIdle)
		return Outcome{Err: err, State: StateError, Message: msg}
	}

	_ = m.machine.Transition(StateSuccess)
	invalidated := 0
	if m.cache != nil {
		invalidated = m.cache.InvalidateAll(m.cfg.Invalidates...)
	}
	m.notifier.Notify(ctx, notify.Success, m.cfg.SuccessMessage)
	metrics.RecordMutation(m.cfg.Resource, string(m.cfg.Kind), "success", duration)
	m.logger.Info("query: mutation succeeded",
		zap.String("resource", m.cfg.Resource),
		zap.String("kind", string(m.cfg.Kind)),
		zap.Int("invalidated", invalidated),
		zap.Duration("duration", duration),
	)
	_ = m.machine.Transition(StateIdle)
	return Outcome{Data: data, State: StateSuccess, Message: m.cfg.SuccessMessage, Invalidated: invalidated}
}

func (m *Mutation) metrics() *observability.Metrics {
	if m.cache == nil {
		return nil
	}
	return m.cache.metrics
}

// Mutate is Run with a typed result.
func Mutate[T any](ctx context.Context, m *Mutation, fn func(context.Context) (T, error)) (T, Outcome) {
	out := m.Run(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	v, _ := out.Data.(T)
	return v, out
}
