// Package table turns items, columns and row actions into a view model that
// any renderer can draw. The terminal renderer lives in render.go.
package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pitabwire/console/model"
)

// DefaultEmptyMessage is shown when a table has no rows.
const DefaultEmptyMessage = "No data available"

// LoadingMessage is shown while data is loading.
const LoadingMessage = "Loading..."

// ActionsHeader is the header of the trailing action column.
const ActionsHeader = "Actions"

// State is what a table shows.
type State int

// Table states. Loading and empty are mutually exclusive and take
// precedence over rows.
const (
	StateRows State = iota
	StateLoading
	StateEmpty
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateEmpty:
		return "empty"
	default:
		return "rows"
	}
}

// Row is one rendered item.
type Row[T any] struct {
	Item  T
	Cells []string
	// Actions holds only the actions visible for Item.
	Actions []model.ActionDescriptor[T]
}

// ActionLabels returns the labels of the row's actions.
func (r Row[T]) ActionLabels() []string {
	labels := make([]string, len(r.Actions))
	for i, a := range r.Actions {
		labels[i] = a.Label
	}
	return labels
}

// Action returns the visible action with the given id.
func (r Row[T]) Action(id string) (model.ActionDescriptor[T], bool) {
	for _, a := range r.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return model.ActionDescriptor[T]{}, false
}

// View is the render independent table model.
type View[T any] struct {
	State      State
	Headers    []string
	Rows       []Row[T]
	Message    string
	HasActions bool
}

// Build computes the view for data. When loading is set the view is in the
// loading state regardless of data; otherwise an empty data set yields the
// empty state with emptyMessage, or DefaultEmptyMessage when blank.
func Build[T any](
	data []T,
	columns []model.ColumnDescriptor[T],
	actions []model.ActionDescriptor[T],
	loading bool,
	emptyMessage string,
) View[T] {
	v := View[T]{HasActions: len(actions) > 0}
	v.Headers = make([]string, 0, len(columns)+1)
	for _, c := range columns {
		v.Headers = append(v.Headers, c.Header)
	}
	if v.HasActions {
		v.Headers = append(v.Headers, ActionsHeader)
	}

	switch {
	case loading:
		v.State = StateLoading
		v.Message = LoadingMessage
		return v
	case len(data) == 0:
		v.State = StateEmpty
		v.Message = emptyMessage
		if strings.TrimSpace(v.Message) == "" {
			v.Message = DefaultEmptyMessage
		}
		return v
	}

	v.State = StateRows
	v.Rows = make([]Row[T], 0, len(data))
	for _, item := range data {
		row := Row[T]{Item: item, Cells: make([]string, 0, len(columns))}
		for _, c := range columns {
			row.Cells = append(row.Cells, Cell(c, item))
		}
		for _, a := range actions {
			if a.Visible(item) {
				row.Actions = append(row.Actions, a)
			}
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}

// Cell renders one column of item.
func Cell[T any](c model.ColumnDescriptor[T], item T) string {
	value := c.Accessor.Value(item)
	if c.Render != nil {
		return c.Render(value, item)
	}
	return FormatValue(value)
}

// FormatValue converts an accessed value to display text. Nil renders as
// an empty cell, whole floats drop their fraction and times use RFC 3339.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}
		return FormatValue(*val)
	case fmt.Stringer:
		return val.String()
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = FormatValue(p)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
