package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pitabwire/console/model"
)

// Pages adds the slug endpoints to the pages resource.
type Pages struct {
	*Resource[model.ContentPage]
}

// NewPages binds the pages descriptor.
func NewPages(client *Client, desc model.ResourceDescriptor) *Pages {
	return &Pages{Resource: NewResource[model.ContentPage](client, desc)}
}

// BySlug fetches a page by its slug.
func (p *Pages) BySlug(ctx context.Context, slug string) (model.ContentPage, error) {
	var page model.ContentPage
	if slug == "" {
		return page, model.NewFieldError("slug", model.RuleRequired, "Slug is required")
	}
	_, err := p.client.Do(ctx, Call{
		Resource: p.desc.Name,
		Method:   http.MethodGet,
		Path:     p.path("by-slug", slug),
		Result:   &page,
	})
	return page, err
}

// ValidateSlug asks whether slug is free. excludeID skips the page being
// edited.
func (p *Pages) ValidateSlug(ctx context.Context, slug, excludeID string) (bool, error) {
	q := url.Values{"slug": {slug}}
	if excludeID != "" {
		q.Set("excludePageId", excludeID)
	}
	var res model.SlugValidation
	_, err := p.client.Do(ctx, Call{
		Resource: p.desc.Name,
		Method:   http.MethodGet,
		Path:     p.path("validate-slug"),
		Query:    q,
		Result:   &res,
	})
	return res.IsValid, err
}

// Folders adds the tree endpoint to the folders resource.
type Folders struct {
	*Resource[model.Folder]
}

// NewFolders binds the folders descriptor.
func NewFolders(client *Client, desc model.ResourceDescriptor) *Folders {
	return &Folders{Resource: NewResource[model.Folder](client, desc)}
}

// Tree returns the root folders with their sub folders nested.
func (f *Folders) Tree(ctx context.Context) ([]model.Folder, error) {
	var tree []model.Folder
	_, err := f.client.Do(ctx, Call{
		Resource: f.desc.Name,
		Method:   http.MethodGet,
		Path:     f.path("tree"),
		Result:   &tree,
	})
	if tree == nil {
		tree = []model.Folder{}
	}
	return tree, err
}
