package model

import (
	"fmt"
	"strings"
)

// List styles supported by resource endpoints.
const (
	// ListPaged endpoints accept page/pageSize and return {items, totalCount}.
	ListPaged = "paged"
	// ListArray endpoints return a bare array; paging happens client side.
	ListArray = "array"
)

// FolderTreeKey is the cache key of the folder hierarchy. It is not a
// resource but may be named in invalidation lists.
const FolderTreeKey = "folderTree"

// Rule kinds understood by the form layer.
const (
	RuleRequired  = "required"
	RulePattern   = "pattern"
	RuleMinLength = "min_length"
	RuleMaxLength = "max_length"
	RuleEmail     = "email"
)

// ResourceDescriptor identifies one resource type managed by the console.
// Descriptors are loaded once at startup and never mutated afterwards.
type ResourceDescriptor struct {
	Name         string          `yaml:"name"          json:"name"`
	Singular     string          `yaml:"singular"      json:"singular"`
	Plural       string          `yaml:"plural"        json:"plural"`
	BasePath     string          `yaml:"base_path"     json:"base_path"`
	IDField      string          `yaml:"id_field"      json:"id_field"`
	DisplayField string          `yaml:"display_field" json:"display_field,omitempty"`
	ListStyle    string          `yaml:"list_style"    json:"list_style"`
	Singleton    bool            `yaml:"singleton"     json:"singleton,omitempty"`
	PageSize     int             `yaml:"page_size"     json:"page_size,omitempty"`
	EmptyMessage string          `yaml:"empty_message" json:"empty_message,omitempty"`
	Invalidates  []string        `yaml:"invalidates"   json:"invalidates,omitempty"`
	Forms        []FormSpec      `yaml:"forms"         json:"forms,omitempty"`
	Columns      []ColumnSpec    `yaml:"columns"       json:"columns,omitempty"`
	Actions      []ActionSpec    `yaml:"actions"       json:"actions,omitempty"`
	Delete       *ConfirmSpec    `yaml:"delete"        json:"delete,omitempty"`
	Filters      []string        `yaml:"filters"       json:"filters,omitempty"`

	// DeleteConditions control the visibility of the delete row action.
	DeleteConditions []ConditionSpec `yaml:"delete_conditions" json:"delete_conditions,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// FormSpec declares the fields and nested groups of one form.
type FormSpec struct {
	ID      string      `yaml:"id"      json:"id"`
	Label   string      `yaml:"label"   json:"label,omitempty"`
	Path    string      `yaml:"path"    json:"path,omitempty"`
	Success string      `yaml:"success" json:"success,omitempty"`
	Failure string      `yaml:"failure" json:"failure,omitempty"`
	Fields  []FieldSpec `yaml:"fields"  json:"fields"`
	Groups  []GroupSpec `yaml:"groups"  json:"groups,omitempty"`
}

// FieldSpec declares one form field and its validation rules.
type FieldSpec struct {
	Path    string     `yaml:"path"    json:"path"`
	Label   string     `yaml:"label"   json:"label,omitempty"`
	Type    string     `yaml:"type"    json:"type,omitempty"`
	Default any        `yaml:"default" json:"default,omitempty"`
	Rules   []RuleSpec `yaml:"rules"   json:"rules,omitempty"`
}

// RuleSpec declares a single validation rule.
type RuleSpec struct {
	Kind    string `yaml:"kind"    json:"kind"`
	Value   string `yaml:"value"   json:"value,omitempty"`
	Length  int    `yaml:"length"  json:"length,omitempty"`
	Message string `yaml:"message" json:"message"`
}

// GroupSpec declares a repeatable nested group such as addresses.
type GroupSpec struct {
	Name          string      `yaml:"name"           json:"name"`
	Label         string      `yaml:"label"          json:"label,omitempty"`
	SingleDefault bool        `yaml:"single_default" json:"single_default"`
	MinEntries    int         `yaml:"min_entries"    json:"min_entries"`
	Fields        []FieldSpec `yaml:"fields"         json:"fields"`
}

// ColumnSpec declares a table column backed by a field path.
type ColumnSpec struct {
	Header string `yaml:"header" json:"header"`
	Field  string `yaml:"field"  json:"field"`
	Format string `yaml:"format" json:"format,omitempty"`
}

// ActionSpec declares a resource specific row action, executed as
// POST {base_path}/{id}/{path}.
type ActionSpec struct {
	ID          string          `yaml:"id"          json:"id"`
	Label       string          `yaml:"label"       json:"label"`
	Icon        string          `yaml:"icon"        json:"icon,omitempty"`
	Variant     string          `yaml:"variant"     json:"variant,omitempty"`
	Path        string          `yaml:"path"        json:"path"`
	Success     string          `yaml:"success"     json:"success,omitempty"`
	Failure     string          `yaml:"failure"     json:"failure,omitempty"`
	Confirm     *ConfirmSpec    `yaml:"confirm"     json:"confirm,omitempty"`
	Conditions  []ConditionSpec `yaml:"conditions"  json:"conditions,omitempty"`
	Invalidates []string        `yaml:"invalidates" json:"invalidates,omitempty"`
}

// ConditionSpec controls action visibility from item data.
type ConditionSpec struct {
	Field    string `yaml:"field"    json:"field"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value"    json:"value"`
	Effect   string `yaml:"effect"   json:"effect"`
}

// ConfirmSpec describes a confirmation prompt. Message may reference item
// fields as {field}.
type ConfirmSpec struct {
	Title   string `yaml:"title"   json:"title"`
	Message string `yaml:"message" json:"message"`
	Confirm string `yaml:"confirm" json:"confirm,omitempty"`
	Cancel  string `yaml:"cancel"  json:"cancel,omitempty"`
	Danger  bool   `yaml:"danger"  json:"danger,omitempty"`
}

// Form returns the form with the given ID. An empty or unknown ID falls back
// to the first declared form.
func (d ResourceDescriptor) Form(id string) (FormSpec, bool) {
	for _, f := range d.Forms {
		if f.ID == id {
			return f, true
		}
	}
	if len(d.Forms) > 0 && id == "" {
		return d.Forms[0], true
	}
	return FormSpec{}, false
}

// Action returns the action spec with the given ID.
func (d ResourceDescriptor) Action(id string) (ActionSpec, bool) {
	for _, a := range d.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return ActionSpec{}, false
}

// InvalidationKeys returns the cache prefixes a mutation on this resource
// invalidates. The resource's own name is always included.
func (d ResourceDescriptor) InvalidationKeys(extra ...string) []QueryKey {
	seen := map[string]bool{}
	var keys []QueryKey
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		keys = append(keys, Key(name))
	}
	add(d.Name)
	for _, n := range d.Invalidates {
		add(n)
	}
	for _, n := range extra {
		add(n)
	}
	return keys
}

// singular returns the lower-case noun used in messages.
func (d ResourceDescriptor) singular() string {
	if d.Singular != "" {
		return strings.ToLower(d.Singular)
	}
	return strings.TrimSuffix(strings.ToLower(d.Name), "s")
}

// Title returns the capitalised singular noun, e.g. "Folder".
func (d ResourceDescriptor) Title() string {
	s := d.singular()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// SuccessMessage returns the notification text for a successful mutation.
func (d ResourceDescriptor) SuccessMessage(kind MutationKind) string {
	return fmt.Sprintf("%s %s successfully", d.Title(), kind.PastTense())
}

// FailureMessage returns the fallback text for a failed mutation.
func (d ResourceDescriptor) FailureMessage(kind MutationKind) string {
	return fmt.Sprintf("Failed to %s %s", kind, d.singular())
}
