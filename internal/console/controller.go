// Package console ties one resource's client, cache, forms, table and
// notifications together. A Controller is what a screen, or a CLI command,
// drives.
package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/api"
	"github.com/pitabwire/console/internal/config"
	"github.com/pitabwire/console/internal/form"
	"github.com/pitabwire/console/internal/metadata"
	"github.com/pitabwire/console/internal/notify"
	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/internal/query"
	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/internal/table"
	"github.com/pitabwire/console/model"
)

var (
	// ErrUnknownAction is returned by Run for an action the resource lacks.
	ErrUnknownAction = errors.New("console: unknown action")
	// ErrActionUnavailable is returned by Run when the action is hidden for
	// the item, e.g. deleting the main location.
	ErrActionUnavailable = errors.New("console: action not available for item")
)

const defaultPageSize = 10

// Deps are the collaborators shared by every controller.
type Deps struct {
	Cache    *query.Cache
	Notifier notify.Notifier
	Gate     *notify.Gate
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	// PageSize applies when neither the call nor the definition sets one.
	PageSize int
	// Query tunes list and detail queries.
	Query query.Options
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = notify.Nop
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Gate == nil {
		d.Gate = notify.NewGate(nil, d.Logger)
	}
	if d.Cache == nil {
		d.Cache = query.New(config.CacheConfig{}, query.WithLogger(d.Logger), query.WithMetrics(d.Metrics))
	}
	if d.PageSize <= 0 {
		d.PageSize = defaultPageSize
	}
	return d
}

// Listing is one loaded page ready for presentation.
type Listing[T any] struct {
	Page       model.Page[T]
	View       table.View[T]
	Pagination table.Pagination
	Key        model.QueryKey
	Cached     bool
}

// Result is the settled outcome of a guarded mutation.
type Result[T any] struct {
	Item    T
	Outcome query.Outcome
	// Confirmed is false when the user declined the confirmation.
	Confirmed bool
}

// Controller drives one collection resource.
type Controller[T any] struct {
	binding resources.Binding[T]
	res     *api.Resource[T]
	deps    Deps
	editor  func(ctx context.Context, f *form.Form) error
}

// ControllerOption configures a Controller.
type ControllerOption[T any] func(*Controller[T])

// WithEditor sets what the Edit row action does with the prefilled form.
// Without one the Edit action is omitted from tables.
func WithEditor[T any](fn func(ctx context.Context, f *form.Form) error) ControllerOption[T] {
	return func(c *Controller[T]) { c.editor = fn }
}

// NewController binds b to client.
func NewController[T any](client *api.Client, b resources.Binding[T], deps Deps, opts ...ControllerOption[T]) *Controller[T] {
	c := &Controller[T]{
		binding: b,
		res:     api.NewResource[T](client, b.Desc),
		deps:    deps.withDefaults(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Descriptor returns the resource descriptor.
func (c *Controller[T]) Descriptor() model.ResourceDescriptor { return c.binding.Desc }

// Resource returns the typed resource client.
func (c *Controller[T]) Resource() *api.Resource[T] { return c.res }

func (c *Controller[T]) name() string { return c.binding.Desc.Name }

// Normalize fills page and page size defaults.
func (c *Controller[T]) Normalize(p api.ListParams) api.ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = c.binding.Desc.PageSize
	}
	if p.PageSize <= 0 {
		p.PageSize = c.deps.PageSize
	}
	return p
}

// ListKey is the cache key of one page: (resource, page, pageSize, search,
// filters...).
func (c *Controller[T]) ListKey(p api.ListParams) model.QueryKey {
	parts := []any{c.name(), p.Page, p.PageSize, p.Search}
	for _, k := range p.FilterKeys() {
		parts = append(parts, k+"="+p.Filters[k])
	}
	return model.Key(parts...)
}

// DetailKey is the cache key of one item. It shares the resource prefix so
// mutations invalidate it with the lists.
func (c *Controller[T]) DetailKey(id string) model.QueryKey {
	return model.Key(c.name(), "detail", id)
}

// Load fetches a page through the cache and builds its table view.
func (c *Controller[T]) Load(ctx context.Context, p api.ListParams) (Listing[T], error) {
	p = c.Normalize(p)
	if err := p.Validate(); err != nil {
		return Listing[T]{}, err
	}
	key := c.ListKey(p)
	page, res, err := query.Get(ctx, c.deps.Cache, key, func(ctx context.Context) (model.Page[T], error) {
		return c.res.List(ctx, p)
	}, c.deps.Query)
	if err != nil {
		return Listing[T]{Key: key}, err
	}
	return Listing[T]{
		Page:       page,
		View:       table.Build(page.Items, c.binding.Columns, c.Actions(), false, c.binding.Desc.EmptyMessage),
		Pagination: table.NewPagination(page.PageNumber, page.PageSize, page.TotalCount),
		Key:        key,
		Cached:     res.Cached,
	}, nil
}

// Loading returns the view shown while the first page loads.
func (c *Controller[T]) Loading() table.View[T] {
	return table.Build[T](nil, c.binding.Columns, c.Actions(), true, c.binding.Desc.EmptyMessage)
}

// Get fetches one item through the cache.
func (c *Controller[T]) Get(ctx context.Context, id string) (T, error) {
	item, _, err := query.Get(ctx, c.deps.Cache, c.DetailKey(id), func(ctx context.Context) (T, error) {
		return c.res.Get(ctx, id)
	}, c.deps.Query)
	return item, err
}

// Actions resolves the row actions wired to this controller.
func (c *Controller[T]) Actions() []model.ActionDescriptor[T] {
	return c.binding.Actions(func(id string) func(context.Context, T) error {
		switch id {
		case metadata.ActionEdit:
			if c.editor == nil {
				return nil
			}
			return func(ctx context.Context, item T) error {
				f, err := c.EditForm(item, "")
				if err != nil {
					return err
				}
				return c.editor(ctx, f)
			}
		case metadata.ActionDelete:
			return func(ctx context.Context, item T) error {
				_, err := c.Delete(ctx, item)
				return err
			}
		default:
			return func(ctx context.Context, item T) error {
				_, err := c.Run(ctx, item, id)
				return err
			}
		}
	})
}

// NewForm returns an empty create form. An empty formID selects the first.
func (c *Controller[T]) NewForm(formID string) (*form.Form, error) {
	return form.FromDescriptor(c.binding.Desc, formID, form.WithMetrics(c.deps.Metrics))
}

// EditForm returns a form prefilled from item that updates it. An empty
// formID prefers a form named "edit".
func (c *Controller[T]) EditForm(item T, formID string) (*form.Form, error) {
	if formID == "" {
		if _, ok := c.binding.Desc.Form(metadata.ActionEdit); ok {
			formID = metadata.ActionEdit
		}
	}
	id := c.ID(item)
	if id == "" {
		return nil, model.NewFieldError(c.binding.Desc.IDField, model.RuleRequired, "item has no id")
	}
	f, err := form.FromDescriptor(c.binding.Desc, formID,
		form.WithMetrics(c.deps.Metrics),
		form.WithKind(model.MutationUpdate),
	)
	if err != nil {
		return nil, err
	}
	f.Reset(model.ToMap(item))
	f.SetTarget(id)
	return f, nil
}

// ID returns the item's identifier.
func (c *Controller[T]) ID(item T) string {
	if e, ok := any(item).(model.Entity); ok {
		return e.EntityID()
	}
	switch v := model.FieldValue(item, c.binding.Desc.IDField).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Save validates f and creates or updates. A validation failure returns the
// *model.ValidationError and sends nothing. Server failures are reported
// through the notifier and carried in the outcome.
func (c *Controller[T]) Save(ctx context.Context, f *form.Form) (T, query.Outcome, error) {
	var zero T
	req, err := f.Submit()
	if err != nil {
		return zero, query.Outcome{}, err
	}
	cfg := c.mutationConfig(req.Kind, req.FormID)
	item, out := query.Mutate(ctx, query.NewMutation(c.deps.Cache, c.deps.Notifier, cfg), func(ctx context.Context) (T, error) {
		if req.Kind == model.MutationUpdate {
			return c.res.Update(ctx, req.ID, req)
		}
		return c.res.Create(ctx, req)
	})
	if out.OK() && req.ID != "" {
		c.deps.Cache.Set(c.DetailKey(req.ID), item)
	}
	return item, out, nil
}

func (c *Controller[T]) mutationConfig(kind model.MutationKind, formID string) query.MutationConfig {
	cfg := query.ForDescriptor(c.binding.Desc, kind)
	if spec, ok := c.binding.Desc.Form(formID); ok {
		if spec.Success != "" {
			cfg.SuccessMessage = spec.Success
		}
		if spec.Failure != "" {
			cfg.FailureMessage = spec.Failure
		}
	}
	return cfg
}

// Delete asks for confirmation and, only when confirmed, deletes item.
func (c *Controller[T]) Delete(ctx context.Context, item T) (Result[T], error) {
	desc := c.binding.Desc
	if !c.visible(metadata.ActionDelete, item) {
		return Result[T]{Item: item}, ErrActionUnavailable
	}
	spec := model.ConfirmSpec{
		Title:   "Delete " + desc.Title(),
		Message: "Are you sure you want to delete this " + desc.Title() + "? This action cannot be undone.",
		Danger:  true,
	}
	if desc.Delete != nil {
		spec = *desc.Delete
	}
	id := c.ID(item)
	m := query.NewMutation(c.deps.Cache, c.deps.Notifier, query.ForDescriptor(desc, model.MutationDelete))
	return c.guard(ctx, item, &spec, func(ctx context.Context) query.Outcome {
		out := m.Run(ctx, func(ctx context.Context) (any, error) {
			return nil, c.res.Remove(ctx, id)
		})
		if out.OK() {
			c.deps.Cache.Remove(c.DetailKey(id))
		}
		return out
	})
}

// Run performs a declared action, asking first when it has a confirmation.
func (c *Controller[T]) Run(ctx context.Context, item T, actionID string) (Result[T], error) {
	spec, ok := c.binding.Desc.Action(actionID)
	if !ok {
		return Result[T]{Item: item}, fmt.Errorf("%w: %s %s", ErrUnknownAction, c.name(), actionID)
	}
	if !c.visible(actionID, item) {
		return Result[T]{Item: item}, fmt.Errorf("%w: %s", ErrActionUnavailable, actionID)
	}

	cfg := query.ForDescriptor(c.binding.Desc, model.MutationAction, spec.Invalidates...)
	if spec.Success != "" {
		cfg.SuccessMessage = spec.Success
	}
	if spec.Failure != "" {
		cfg.FailureMessage = spec.Failure
	}
	id := c.ID(item)
	m := query.NewMutation(c.deps.Cache, c.deps.Notifier, cfg)
	return c.guard(ctx, item, spec.Confirm, func(ctx context.Context) query.Outcome {
		updated, out := query.Mutate(ctx, m, func(ctx context.Context) (*T, error) {
			return c.res.Action(ctx, id, actionID)
		})
		if out.OK() && updated != nil {
			out.Data = *updated
		}
		return out
	})
}

// guard runs fn, behind the confirmation gate when confirm is set.
func (c *Controller[T]) guard(ctx context.Context, item T, confirm *model.ConfirmSpec, fn func(context.Context) query.Outcome) (Result[T], error) {
	result := Result[T]{Item: item}
	run := func(ctx context.Context) error {
		result.Outcome = fn(ctx)
		if v, ok := result.Outcome.Data.(T); ok {
			result.Item = v
		}
		return nil
	}
	if confirm == nil {
		result.Confirmed = true
		return result, run(ctx)
	}

	spec := metadata.Confirmation(*confirm, item)
	ran, err := c.deps.Gate.Guard(ctx, notify.Request{
		Title:        spec.Title,
		Description:  spec.Message,
		ConfirmLabel: spec.Confirm,
		CancelLabel:  spec.Cancel,
		Danger:       spec.Danger,
	}, run)
	result.Confirmed = ran
	return result, err
}

func (c *Controller[T]) visible(actionID string, item T) bool {
	for _, a := range metadata.NewActionProvider[T](c.binding.Desc).ResolveActions(func(string) func(context.Context, T) error {
		return func(context.Context, T) error { return nil }
	}) {
		if a.ID == actionID {
			return a.Visible(item)
		}
	}
	return true
}
