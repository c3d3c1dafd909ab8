// Package metadata turns declarative resource definitions into the typed
// column and action descriptors the table presenter consumes.
package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/pitabwire/console/model"
)

// Built-in row action ids.
const (
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// Handler returns the click handler for an action id. Returning nil drops
// the action from the table.
type Handler[T any] func(actionID string) func(ctx context.Context, item T) error

// ActionProvider resolves the row actions of a resource.
type ActionProvider[T any] struct {
	desc model.ResourceDescriptor
}

// NewActionProvider creates an ActionProvider for desc.
func NewActionProvider[T any](desc model.ResourceDescriptor) *ActionProvider[T] {
	return &ActionProvider[T]{desc: desc}
}

// ResolveActions returns Edit (when the resource has an update form), the declared
// actions in order, then Delete (when the resource declares a delete
// confirmation). Conditions become Show predicates evaluated per item.
func (p *ActionProvider[T]) ResolveActions(handler Handler[T]) []model.ActionDescriptor[T] {
	var result []model.ActionDescriptor[T]
	add := func(desc model.ActionDescriptor[T]) {
		desc.OnClick = handler(desc.ID)
		if desc.OnClick == nil {
			return
		}
		result = append(result, desc)
	}

	if p.editable() {
		add(model.ActionDescriptor[T]{ID: ActionEdit, Label: "Edit", Icon: "pencil", Variant: model.VariantGhost})
	}
	for _, spec := range p.desc.Actions {
		variant := model.Variant(spec.Variant)
		if variant == "" {
			variant = model.VariantGhost
		}
		add(model.ActionDescriptor[T]{
			ID:      spec.ID,
			Label:   spec.Label,
			Icon:    spec.Icon,
			Variant: variant,
			Show:    ShowWhen[T](spec.Conditions),
		})
	}
	if p.desc.Delete != nil {
		add(model.ActionDescriptor[T]{
			ID:      ActionDelete,
			Label:   "Delete",
			Icon:    "trash",
			Variant: model.VariantDanger,
			Show:    ShowWhen[T](p.desc.DeleteConditions),
		})
	}

	return result
}

// editable reports whether a form can update rows in place. Forms posting
// to their own path only create.
func (p *ActionProvider[T]) editable() bool {
	if p.desc.Singleton {
		return false
	}
	for _, f := range p.desc.Forms {
		if f.Path == "" {
			return true
		}
	}
	return false
}

// ShowWhen returns a predicate applying conds to an item, or nil when there
// are no conditions.
func ShowWhen[T any](conds []model.ConditionSpec) func(T) bool {
	if len(conds) == 0 {
		return nil
	}
	return func(item T) bool {
		return Visible(conds, model.ToMap(item))
	}
}

// Visible evaluates conditions against item data. A "show" condition hides
// the action when unmet; a "hide" condition hides it when met.
func Visible(conds []model.ConditionSpec, data map[string]any) bool {
	for _, cond := range conds {
		met := evaluateCondition(cond, data)
		switch cond.Effect {
		case "hide":
			if met {
				return false
			}
		case "show":
			if !met {
				return false
			}
		}
	}
	return true
}

// evaluateCondition evaluates a condition against item data. Fields are
// dot paths; a missing field only satisfies not_exists.
func evaluateCondition(cond model.ConditionSpec, data map[string]any) bool {
	fieldVal := model.FieldValue(data, cond.Field)
	exists := fieldVal != nil

	switch cond.Operator {
	case "exists":
		return exists
	case "not_exists":
		return !exists
	}
	if !exists {
		return false
	}

	switch cond.Operator {
	case "eq", "equals", "==":
		return fmt.Sprint(fieldVal) == fmt.Sprint(cond.Value)
	case "neq", "not_equals", "!=":
		return fmt.Sprint(fieldVal) != fmt.Sprint(cond.Value)
	case "in":
		return valueInSlice(fieldVal, cond.Value)
	case "not_in":
		return !valueInSlice(fieldVal, cond.Value)
	default:
		return false
	}
}

// valueInSlice checks if fieldVal matches any value in condValue, which is
// a list or a comma separated string.
func valueInSlice(fieldVal, condValue any) bool {
	fieldStr := fmt.Sprint(fieldVal)

	switch cv := condValue.(type) {
	case []any:
		for _, v := range cv {
			if fmt.Sprint(v) == fieldStr {
				return true
			}
		}
	case []string:
		for _, v := range cv {
			if v == fieldStr {
				return true
			}
		}
	case string:
		for _, v := range strings.Split(cv, ",") {
			if strings.TrimSpace(v) == fieldStr {
				return true
			}
		}
	}
	return false
}
