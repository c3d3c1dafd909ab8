package metadata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pitabwire/console/model"
)

// Column formats understood in definitions.
const (
	FormatDate    = "date"
	FormatStatus  = "status"
	FormatActive  = "active"
	FormatYesNo   = "yesno"
	FormatRole    = "role"
	FormatBytes   = "bytes"
	FormatPercent = "percent"
)

var roleNames = map[int]string{
	model.RoleCustomer: "Customer",
	model.RoleAdmin:    "Admin",
	model.RoleDev:      "Dev",
}

// Columns builds field columns from the resource's column specs.
func Columns[T any](desc model.ResourceDescriptor) []model.ColumnDescriptor[T] {
	cols := make([]model.ColumnDescriptor[T], 0, len(desc.Columns))
	for _, c := range desc.Columns {
		col := model.ColumnDescriptor[T]{
			Header:   c.Header,
			Accessor: model.Field[T](c.Field),
		}
		if render := Formatter(c.Format); render != nil {
			col.Render = func(v any, _ T) string { return render(v) }
		}
		cols = append(cols, col)
	}
	return cols
}

// Formatter returns the renderer for a column format, or nil for plain
// values.
func Formatter(format string) func(any) string {
	switch format {
	case FormatDate:
		return formatDate
	case FormatStatus:
		return formatStatus
	case FormatActive:
		return func(v any) string {
			if truthy(v) {
				return "Active"
			}
			return "Inactive"
		}
	case FormatYesNo:
		return func(v any) string {
			if truthy(v) {
				return "Yes"
			}
			return "No"
		}
	case FormatRole:
		return formatRole
	case FormatBytes:
		return formatBytes
	case FormatPercent:
		return func(v any) string {
			n, ok := number(v)
			if !ok {
				return ""
			}
			return strconv.FormatInt(int64(n), 10) + "%"
		}
	}
	return nil
}

func formatDate(v any) string {
	var t time.Time
	switch val := v.(type) {
	case time.Time:
		t = val
	case string:
		parsed, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return val
		}
		t = parsed
	default:
		return ""
	}
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

func formatStatus(v any) string {
	s, _ := v.(string)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatRole(v any) string {
	n, ok := number(v)
	if !ok {
		return ""
	}
	if name, ok := roleNames[int(n)]; ok {
		return name
	}
	return fmt.Sprintf("Role %d", int(n))
}

func formatBytes(v any) string {
	n, ok := number(v)
	if !ok {
		return ""
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", int64(n))
	}
	div, exp := float64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", n/div, "KMGTPE"[exp])
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
