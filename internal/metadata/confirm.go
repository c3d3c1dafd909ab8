package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pitabwire/console/model"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// Interpolate replaces {field} placeholders with item values. Unknown
// fields render as empty text.
func Interpolate(template string, data map[string]any) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		path := m[1 : len(m)-1]
		v := model.FieldValue(data, path)
		if v == nil {
			return ""
		}
		return strings.TrimSpace(stringify(v))
	})
}

// Confirmation returns spec with its message interpolated for item.
func Confirmation[T any](spec model.ConfirmSpec, item T) model.ConfirmSpec {
	data := model.ToMap(item)
	spec.Title = Interpolate(spec.Title, data)
	spec.Message = Interpolate(spec.Message, data)
	return spec
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
