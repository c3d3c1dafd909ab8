package console

import (
	"context"

	"github.com/pitabwire/console/internal/api"
	"github.com/pitabwire/console/internal/form"
	"github.com/pitabwire/console/internal/query"
	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

// SingletonController drives a resource with exactly one instance.
type SingletonController[T any] struct {
	binding resources.Binding[T]
	res     *api.Singleton[T]
	deps    Deps
}

// NewSingletonController binds b to client.
func NewSingletonController[T any](client *api.Client, b resources.Binding[T], deps Deps) *SingletonController[T] {
	return &SingletonController[T]{
		binding: b,
		res:     api.NewSingleton[T](client, b.Desc),
		deps:    deps.withDefaults(),
	}
}

// Descriptor returns the resource descriptor.
func (c *SingletonController[T]) Descriptor() model.ResourceDescriptor { return c.binding.Desc }

// Key is the cache key of the instance.
func (c *SingletonController[T]) Key() model.QueryKey { return model.Key(c.binding.Desc.Name) }

// Get fetches the instance through the cache.
func (c *SingletonController[T]) Get(ctx context.Context) (T, error) {
	item, _, err := query.Get(ctx, c.deps.Cache, c.Key(), c.res.Get, c.deps.Query)
	return item, err
}

// EditForm returns the settings form prefilled from the current instance.
func (c *SingletonController[T]) EditForm(ctx context.Context) (*form.Form, error) {
	item, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	f, err := form.FromDescriptor(c.binding.Desc, "",
		form.WithMetrics(c.deps.Metrics),
		form.WithKind(model.MutationUpdate),
	)
	if err != nil {
		return nil, err
	}
	f.Reset(model.ToMap(item))
	return f, nil
}

// Save validates f and replaces the instance.
func (c *SingletonController[T]) Save(ctx context.Context, f *form.Form) (T, query.Outcome, error) {
	var zero T
	req, err := f.Submit()
	if err != nil {
		return zero, query.Outcome{}, err
	}
	cfg := query.ForDescriptor(c.binding.Desc, model.MutationUpdate)
	item, out := query.Mutate(ctx, query.NewMutation(c.deps.Cache, c.deps.Notifier, cfg), func(ctx context.Context) (T, error) {
		return c.res.Update(ctx, req)
	})
	return item, out, nil
}
