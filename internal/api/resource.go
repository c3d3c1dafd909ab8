package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pitabwire/console/model"
)

// ListParams selects one page of a collection.
type ListParams struct {
	Page     int
	PageSize int
	Search   string
	// Filters are sent as extra query parameters, e.g. parentId for folders.
	Filters map[string]string
}

// Validate enforces page >= 1 and pageSize > 0.
func (p ListParams) Validate() error {
	var problems []model.FieldError
	if p.Page < 1 {
		problems = append(problems, model.FieldError{Field: "page", Code: model.RuleMinLength, Message: "page must be at least 1"})
	}
	if p.PageSize < 1 {
		problems = append(problems, model.FieldError{Field: "pageSize", Code: model.RuleMinLength, Message: "pageSize must be at least 1"})
	}
	if len(problems) > 0 {
		return model.NewValidationError(problems)
	}
	return nil
}

// FilterKeys returns the filter names in sorted order.
func (p ListParams) FilterKeys() []string {
	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resource is the typed accessor for one resource collection.
type Resource[T any] struct {
	client *Client
	desc   model.ResourceDescriptor
}

// NewResource binds desc to client.
func NewResource[T any](client *Client, desc model.ResourceDescriptor) *Resource[T] {
	return &Resource[T]{client: client, desc: desc}
}

// Descriptor returns the resource descriptor.
func (r *Resource[T]) Descriptor() model.ResourceDescriptor { return r.desc }

// Client returns the underlying API client.
func (r *Resource[T]) Client() *Client { return r.client }

func (r *Resource[T]) path(parts ...string) string {
	p := strings.TrimRight(r.desc.BasePath, "/")
	for _, part := range parts {
		if part == "" {
			continue
		}
		p += "/" + url.PathEscape(strings.Trim(part, "/"))
	}
	return p
}

// List fetches one page. Paged endpoints receive page, pageSize and search;
// array endpoints return the whole collection, which is paged client side.
func (r *Resource[T]) List(ctx context.Context, p ListParams) (model.Page[T], error) {
	if err := p.Validate(); err != nil {
		return model.Page[T]{}, err
	}

	q := url.Values{}
	if r.desc.ListStyle != model.ListArray {
		q.Set("page", strconv.Itoa(p.Page))
		q.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	for _, k := range p.FilterKeys() {
		if v := p.Filters[k]; v != "" {
			q.Set(k, v)
		}
	}

	resp, err := r.client.Do(ctx, Call{Resource: r.desc.Name, Method: http.MethodGet, Path: r.path(), Query: q})
	if err != nil {
		return model.Page[T]{}, err
	}
	page, err := decodePage[T](resp.Body(), p)
	if err != nil {
		return model.Page[T]{}, fmt.Errorf("api: decoding %s list: %w", r.desc.Name, err)
	}
	return page, nil
}

// decodePage accepts {items,totalCount}, {data,totalCount} or a bare array.
func decodePage[T any](body []byte, p ListParams) (model.Page[T], error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return model.Page[T]{Items: []T{}, PageNumber: p.Page, PageSize: p.PageSize}, nil
	}
	if trimmed[0] == '[' {
		var all []T
		if err := json.Unmarshal(trimmed, &all); err != nil {
			return model.Page[T]{}, err
		}
		return model.Slice(all, p.Page, p.PageSize).Normalize(), nil
	}

	itemsPath := "items"
	if !gjson.GetBytes(trimmed, itemsPath).Exists() {
		itemsPath = "data"
	}
	var items []T
	if raw := gjson.GetBytes(trimmed, itemsPath); raw.Exists() {
		if err := json.Unmarshal([]byte(raw.Raw), &items); err != nil {
			return model.Page[T]{}, err
		}
	}
	page := model.Page[T]{
		Items:      items,
		TotalCount: int(gjson.GetBytes(trimmed, "totalCount").Int()),
		PageNumber: p.Page,
		PageSize:   p.PageSize,
	}
	return page.Normalize(), nil
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return model.NewFieldError("id", model.RuleRequired, "id is required")
	}
	return nil
}

// Get fetches one item.
func (r *Resource[T]) Get(ctx context.Context, id string) (T, error) {
	var item T
	if err := requireID(id); err != nil {
		return item, err
	}
	_, err := r.client.Do(ctx, Call{Resource: r.desc.Name, Method: http.MethodGet, Path: r.path(id), Result: &item})
	return item, err
}

// Create posts a new item. Forms with their own path post there instead,
// e.g. jobs/deployment.
func (r *Resource[T]) Create(ctx context.Context, req model.MutationRequest) (T, error) {
	var item T
	path := r.path()
	if form, ok := r.desc.Form(req.FormID); ok && form.Path != "" {
		path = r.path(form.Path)
	}
	_, err := r.client.Do(ctx, Call{
		Resource:       r.desc.Name,
		Method:         http.MethodPost,
		Path:           path,
		Body:           req.Body,
		Result:         &item,
		IdempotencyKey: req.IdempotencyKey,
	})
	return item, err
}

// Update replaces an item.
func (r *Resource[T]) Update(ctx context.Context, id string, req model.MutationRequest) (T, error) {
	var item T
	if err := requireID(id); err != nil {
		return item, err
	}
	_, err := r.client.Do(ctx, Call{
		Resource:       r.desc.Name,
		Method:         http.MethodPut,
		Path:           r.path(id),
		Body:           req.Body,
		Result:         &item,
		IdempotencyKey: req.IdempotencyKey,
	})
	return item, err
}

// Remove deletes an item. Removing an already removed id is a RequestError.
func (r *Resource[T]) Remove(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	_, err := r.client.Do(ctx, Call{Resource: r.desc.Name, Method: http.MethodDelete, Path: r.path(id)})
	return err
}

// Action runs a named action, POST {base}/{id}/{path}. The result is nil
// when the backend returns no body.
func (r *Resource[T]) Action(ctx context.Context, id, name string) (*T, error) {
	return r.ActionWith(ctx, id, name, nil)
}

// ActionWith is Action with a request body.
func (r *Resource[T]) ActionWith(ctx context.Context, id, name string, body any) (*T, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, model.NewFieldError("action", model.RuleRequired, "action is required")
	}
	sub := name
	if spec, ok := r.desc.Action(name); ok && spec.Path != "" {
		sub = spec.Path
	}
	resp, err := r.client.Do(ctx, Call{
		Resource: r.desc.Name,
		Method:   http.MethodPost,
		Path:     r.path(id, sub),
		Body:     body,
	})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body())) == 0 {
		return nil, nil
	}
	var item T
	if err := json.Unmarshal(resp.Body(), &item); err != nil {
		return nil, fmt.Errorf("api: decoding %s %s: %w", r.desc.Name, name, err)
	}
	return &item, nil
}

// Singleton is the accessor for a resource that has exactly one instance,
// such as the company profile.
type Singleton[T any] struct {
	client *Client
	desc   model.ResourceDescriptor
}

// NewSingleton binds desc to client.
func NewSingleton[T any](client *Client, desc model.ResourceDescriptor) *Singleton[T] {
	return &Singleton[T]{client: client, desc: desc}
}

// Descriptor returns the resource descriptor.
func (s *Singleton[T]) Descriptor() model.ResourceDescriptor { return s.desc }

// Get fetches the instance.
func (s *Singleton[T]) Get(ctx context.Context) (T, error) {
	var item T
	_, err := s.client.Do(ctx, Call{Resource: s.desc.Name, Method: http.MethodGet, Path: s.desc.BasePath, Result: &item})
	return item, err
}

// Update replaces the instance.
func (s *Singleton[T]) Update(ctx context.Context, req model.MutationRequest) (T, error) {
	var item T
	_, err := s.client.Do(ctx, Call{
		Resource:       s.desc.Name,
		Method:         http.MethodPut,
		Path:           s.desc.BasePath,
		Body:           req.Body,
		Result:         &item,
		IdempotencyKey: req.IdempotencyKey,
	})
	return item, err
}
