package model

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Variant is the visual emphasis of an action.
type Variant string

// Action variants.
const (
	VariantPrimary   Variant = "primary"
	VariantSecondary Variant = "secondary"
	VariantDanger    Variant = "danger"
	VariantGhost     Variant = "ghost"
)

// ActionDescriptor declares a row scoped operation. It is stateless and
// shared across every row of a table.
type ActionDescriptor[T any] struct {
	ID      string
	Icon    string
	Label   string
	Variant Variant
	OnClick func(ctx context.Context, item T) error
	// Show, when set, decides whether the action exists for an item. A false
	// result omits the action from the row.
	Show func(item T) bool
}

// Visible reports whether the action applies to item.
func (a ActionDescriptor[T]) Visible(item T) bool {
	return a.Show == nil || a.Show(item)
}

// AccessorKind discriminates the Accessor union.
type AccessorKind int

// Accessor kinds.
const (
	AccessorField AccessorKind = iota
	AccessorDerived
)

// Accessor reads a column value from an item. It is either a named field
// (a JSON path such as "contactDetails.0.email") or a derived function.
type Accessor[T any] struct {
	kind   AccessorKind
	field  string
	derive func(T) any
}

// Field returns an accessor reading the named field.
func Field[T any](name string) Accessor[T] {
	return Accessor[T]{kind: AccessorField, field: name}
}

// Derived returns an accessor computing a value from the whole item.
func Derived[T any](fn func(T) any) Accessor[T] {
	return Accessor[T]{kind: AccessorDerived, derive: fn}
}

// Kind returns the accessor kind.
func (a Accessor[T]) Kind() AccessorKind { return a.kind }

// Name returns the field name for Field accessors.
func (a Accessor[T]) Name() string { return a.field }

// Value extracts the column value from item.
func (a Accessor[T]) Value(item T) any {
	switch a.kind {
	case AccessorDerived:
		if a.derive == nil {
			return nil
		}
		return a.derive(item)
	default:
		return FieldValue(item, a.field)
	}
}

// ColumnDescriptor declares one table column.
type ColumnDescriptor[T any] struct {
	Header   string
	Accessor Accessor[T]
	// Render, when set, converts the accessed value to display text.
	Render func(value any, item T) string
}

// FieldValue reads a dot path from item. Maps are walked directly; any other
// value is looked up through its JSON encoding.
func FieldValue(item any, path string) any {
	if m, ok := item.(map[string]any); ok {
		if v, exists := m[path]; exists {
			return v
		}
	}
	data, err := json.Marshal(item)
	if err != nil {
		return nil
	}
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return nil
	}
	return res.Value()
}

// ToMap converts item to its JSON object form. Non-object values yield nil.
func ToMap(item any) map[string]any {
	if m, ok := item.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(item)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
