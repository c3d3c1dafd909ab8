// Package resources binds the loaded definitions to the typed entities the
// console manages.
package resources

import (
	"fmt"

	"github.com/pitabwire/console/internal/definition"
	"github.com/pitabwire/console/internal/metadata"
	"github.com/pitabwire/console/model"
)

// Built-in resource names.
const (
	Pages     = "pages"
	Users     = "users"
	Company   = "company"
	Locations = "locations"
	Folders   = "folders"
	Files     = "files"
	Jobs      = "jobs"
)

// Builtin lists the resources every registry must define.
var Builtin = []string{Pages, Users, Company, Locations, Folders, Files, Jobs}

// Binding is one resource definition bound to its entity type.
type Binding[T any] struct {
	Desc    model.ResourceDescriptor
	Columns []model.ColumnDescriptor[T]
}

// Bind builds the definition's columns, followed by extra.
func Bind[T any](desc model.ResourceDescriptor, extra ...model.ColumnDescriptor[T]) Binding[T] {
	return Binding[T]{
		Desc:    desc,
		Columns: append(metadata.Columns[T](desc), extra...),
	}
}

// Actions resolves the row actions with handler.
func (b Binding[T]) Actions(handler metadata.Handler[T]) []model.ActionDescriptor[T] {
	return metadata.NewActionProvider[T](b.Desc).ResolveActions(handler)
}

// BindPages binds the CMS pages resource.
func BindPages(desc model.ResourceDescriptor) Binding[model.ContentPage] {
	return Bind[model.ContentPage](desc)
}

// BindUsers binds users with a leading full name column.
func BindUsers(desc model.ResourceDescriptor) Binding[model.User] {
	b := Bind[model.User](desc)
	name := model.ColumnDescriptor[model.User]{
		Header:   "Name",
		Accessor: model.Derived(func(u model.User) any { return u.DisplayName() }),
	}
	b.Columns = append([]model.ColumnDescriptor[model.User]{name}, b.Columns...)
	return b
}

// BindCompany binds the company singleton.
func BindCompany(desc model.ResourceDescriptor) Binding[model.Company] {
	return Bind[model.Company](desc)
}

// BindLocations binds locations with a primary contact column.
func BindLocations(desc model.ResourceDescriptor) Binding[model.Location] {
	return Bind(desc, model.ColumnDescriptor[model.Location]{
		Header:   "Contact",
		Accessor: model.Derived(func(l model.Location) any { return l.PrimaryContact() }),
	})
}

// BindFolders binds folders.
func BindFolders(desc model.ResourceDescriptor) Binding[model.Folder] {
	return Bind[model.Folder](desc)
}

// BindFiles binds files.
func BindFiles(desc model.ResourceDescriptor) Binding[model.FileEntity] {
	return Bind[model.FileEntity](desc)
}

// BindJobs binds jobs.
func BindJobs(desc model.ResourceDescriptor) Binding[model.Job] {
	return Bind[model.Job](desc)
}

// BindGeneric binds a definition with no Go entity, such as one added in
// an override directory.
func BindGeneric(desc model.ResourceDescriptor) Binding[map[string]any] {
	return Bind[map[string]any](desc)
}

// Require returns the registry's built-in descriptors, failing when one is
// missing.
func Require(reg *definition.Registry) (map[string]model.ResourceDescriptor, error) {
	out := make(map[string]model.ResourceDescriptor, len(Builtin))
	for _, name := range Builtin {
		desc, ok := reg.Get(name)
		if !ok {
			return nil, fmt.Errorf("resources: definition %q not loaded", name)
		}
		out[name] = desc
	}
	return out, nil
}

// IsBuiltin reports whether name has a typed binding.
func IsBuiltin(name string) bool {
	for _, n := range Builtin {
		if n == name {
			return true
		}
	}
	return false
}
