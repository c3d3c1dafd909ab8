package definition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pitabwire/console/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Errors joins validation errors into one error, or nil.
func Errors(errs []VError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid definitions:\n  %s", strings.Join(msgs, "\n  "))
}

// Validator validates descriptors structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all descriptors. Invalidation prefixes must name a known
// resource or one of the extra cache keys.
func (v *Validator) Validate(defs []model.ResourceDescriptor, extraKeys ...string) []VError {
	known := make(map[string]bool, len(defs)+len(extraKeys))
	for _, k := range extraKeys {
		known[k] = true
	}
	for _, d := range defs {
		known[d.Name] = true
	}

	var errs []VError
	seen := make(map[string]string, len(defs))
	for i, def := range defs {
		prefix := fmt.Sprintf("resources[%d]", i)
		if def.Name != "" {
			prefix = fmt.Sprintf("resources[%s]", def.Name)
			if first, dup := seen[def.Name]; dup {
				errs = append(errs, VError{
					Path:    prefix + ".name",
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("resource %q already defined in %s", def.Name, first),
				})
			}
			seen[def.Name] = def.SourceFile
		}
		errs = append(errs, v.validateResource(prefix, def, known)...)
	}
	return errs
}

var validListStyles = map[string]bool{
	model.ListPaged: true, model.ListArray: true,
}

func (v *Validator) validateResource(prefix string, def model.ResourceDescriptor, known map[string]bool) []VError {
	var errs []VError

	if def.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if def.BasePath == "" {
		errs = append(errs, VError{Path: prefix + ".base_path", Code: "REQUIRED", Message: "base_path is required"})
	} else if !strings.HasPrefix(def.BasePath, "/") {
		errs = append(errs, VError{Path: prefix + ".base_path", Code: "INVALID", Message: "base_path must start with /"})
	}
	if !def.Singleton && !validListStyles[def.ListStyle] {
		errs = append(errs, VError{Path: prefix + ".list_style", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid list_style %q", def.ListStyle)})
	}
	if def.PageSize < 0 || def.PageSize > 200 {
		errs = append(errs, VError{Path: prefix + ".page_size", Code: "RANGE", Message: "page_size must be 0-200"})
	}
	for i, name := range def.Invalidates {
		if !known[name] {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.invalidates[%d]", prefix, i),
				Code:    "REF_NOT_FOUND",
				Message: fmt.Sprintf("resource %q not found", name),
			})
		}
	}

	formIDs := make(map[string]bool)
	for i, f := range def.Forms {
		fp := fmt.Sprintf("%s.forms[%d]", prefix, i)
		if formIDs[f.ID] {
			errs = append(errs, VError{Path: fp + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("form %q defined twice", f.ID)})
		}
		formIDs[f.ID] = true
		errs = append(errs, v.validateForm(fp, f)...)
	}
	for i, c := range def.Columns {
		cp := fmt.Sprintf("%s.columns[%d]", prefix, i)
		if c.Header == "" {
			errs = append(errs, VError{Path: cp + ".header", Code: "REQUIRED", Message: "header is required"})
		}
		if c.Field == "" {
			errs = append(errs, VError{Path: cp + ".field", Code: "REQUIRED", Message: "field is required"})
		}
	}

	actionIDs := make(map[string]bool)
	for i, a := range def.Actions {
		ap := fmt.Sprintf("%s.actions[%d]", prefix, i)
		if actionIDs[a.ID] {
			errs = append(errs, VError{Path: ap + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("action %q defined twice", a.ID)})
		}
		actionIDs[a.ID] = true
		errs = append(errs, v.validateAction(ap, a, known)...)
	}

	if def.Delete != nil {
		errs = append(errs, v.validateConfirm(prefix+".delete", *def.Delete)...)
	}
	for i, c := range def.DeleteConditions {
		errs = append(errs, v.validateCondition(fmt.Sprintf("%s.delete_conditions[%d]", prefix, i), c)...)
	}

	return errs
}

func (v *Validator) validateForm(prefix string, f model.FormSpec) []VError {
	var errs []VError

	if f.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if len(f.Fields) == 0 && len(f.Groups) == 0 {
		errs = append(errs, VError{Path: prefix + ".fields", Code: "REQUIRED", Message: "at least one field is required"})
	}
	errs = append(errs, v.validateFields(prefix+".fields", f.Fields)...)

	for i, g := range f.Groups {
		gp := fmt.Sprintf("%s.groups[%d]", prefix, i)
		if g.Name == "" {
			errs = append(errs, VError{Path: gp + ".name", Code: "REQUIRED", Message: "name is required"})
		} else if strings.Contains(g.Name, ".") {
			errs = append(errs, VError{Path: gp + ".name", Code: "INVALID", Message: "group name must not contain dots"})
		}
		if g.MinEntries < 0 {
			errs = append(errs, VError{Path: gp + ".min_entries", Code: "RANGE", Message: "min_entries must not be negative"})
		}
		if len(g.Fields) == 0 {
			errs = append(errs, VError{Path: gp + ".fields", Code: "REQUIRED", Message: "at least one field is required"})
		}
		errs = append(errs, v.validateFields(gp+".fields", g.Fields)...)
	}

	return errs
}

var validFieldTypes = map[string]bool{
	"": true, "string": true, "int": true, "integer": true, "number": true, "bool": true, "boolean": true,
}

func (v *Validator) validateFields(prefix string, fields []model.FieldSpec) []VError {
	var errs []VError
	paths := make(map[string]bool, len(fields))
	for i, f := range fields {
		fp := fmt.Sprintf("%s[%d]", prefix, i)
		if f.Path == "" {
			errs = append(errs, VError{Path: fp + ".path", Code: "REQUIRED", Message: "path is required"})
		} else if paths[f.Path] {
			errs = append(errs, VError{Path: fp + ".path", Code: "DUPLICATE", Message: fmt.Sprintf("field %q declared twice", f.Path)})
		}
		paths[f.Path] = true
		if !validFieldTypes[f.Type] {
			errs = append(errs, VError{Path: fp + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid field type %q", f.Type)})
		}
		for j, r := range f.Rules {
			errs = append(errs, v.validateRule(fmt.Sprintf("%s.rules[%d]", fp, j), r)...)
		}
	}
	return errs
}

func (v *Validator) validateRule(prefix string, r model.RuleSpec) []VError {
	var errs []VError

	if r.Message == "" {
		errs = append(errs, VError{Path: prefix + ".message", Code: "REQUIRED", Message: "message is required"})
	}
	switch r.Kind {
	case model.RuleRequired, model.RuleEmail:
	case model.RulePattern:
		if r.Value == "" {
			errs = append(errs, VError{Path: prefix + ".value", Code: "REQUIRED", Message: "pattern value is required"})
		} else if _, err := regexp.Compile(r.Value); err != nil {
			errs = append(errs, VError{Path: prefix + ".value", Code: "INVALID", Message: fmt.Sprintf("invalid pattern: %v", err)})
		}
	case model.RuleMinLength, model.RuleMaxLength:
		if r.Length <= 0 {
			errs = append(errs, VError{Path: prefix + ".length", Code: "RANGE", Message: "length must be positive"})
		}
	case "":
		errs = append(errs, VError{Path: prefix + ".kind", Code: "REQUIRED", Message: "kind is required"})
	default:
		errs = append(errs, VError{Path: prefix + ".kind", Code: "INVALID_ENUM", Message: fmt.Sprintf("unknown rule kind %q", r.Kind)})
	}

	return errs
}

var validVariants = map[model.Variant]bool{
	"": true, model.VariantPrimary: true, model.VariantSecondary: true, model.VariantDanger: true, model.VariantGhost: true,
}

func (v *Validator) validateAction(prefix string, a model.ActionSpec, known map[string]bool) []VError {
	var errs []VError

	if a.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if a.Label == "" {
		errs = append(errs, VError{Path: prefix + ".label", Code: "REQUIRED", Message: "label is required"})
	}
	if a.Path == "" {
		errs = append(errs, VError{Path: prefix + ".path", Code: "REQUIRED", Message: "path is required"})
	} else if strings.HasPrefix(a.Path, "/") {
		errs = append(errs, VError{Path: prefix + ".path", Code: "INVALID", Message: "path is relative to the item and must not start with /"})
	}
	if !validVariants[model.Variant(a.Variant)] {
		errs = append(errs, VError{Path: prefix + ".variant", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid variant %q", a.Variant)})
	}
	for i, c := range a.Conditions {
		errs = append(errs, v.validateCondition(fmt.Sprintf("%s.conditions[%d]", prefix, i), c)...)
	}
	for i, name := range a.Invalidates {
		if !known[name] {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.invalidates[%d]", prefix, i),
				Code:    "REF_NOT_FOUND",
				Message: fmt.Sprintf("resource %q not found", name),
			})
		}
	}
	if a.Confirm != nil {
		errs = append(errs, v.validateConfirm(prefix+".confirm", *a.Confirm)...)
	}

	return errs
}

var validOperators = map[string]bool{
	"eq": true, "equals": true, "==": true,
	"neq": true, "not_equals": true, "!=": true,
	"in": true, "not_in": true, "exists": true, "not_exists": true,
}

var validEffects = map[string]bool{"show": true, "hide": true}

func (v *Validator) validateCondition(prefix string, c model.ConditionSpec) []VError {
	var errs []VError

	if c.Field == "" {
		errs = append(errs, VError{Path: prefix + ".field", Code: "REQUIRED", Message: "field is required"})
	}
	if !validOperators[c.Operator] {
		errs = append(errs, VError{Path: prefix + ".operator", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid operator %q", c.Operator)})
	}
	if !validEffects[c.Effect] {
		errs = append(errs, VError{Path: prefix + ".effect", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid effect %q", c.Effect)})
	}

	return errs
}

func (v *Validator) validateConfirm(prefix string, c model.ConfirmSpec) []VError {
	var errs []VError

	if c.Title == "" {
		errs = append(errs, VError{Path: prefix + ".title", Code: "REQUIRED", Message: "title is required"})
	}
	if c.Message == "" {
		errs = append(errs, VError{Path: prefix + ".message", Code: "REQUIRED", Message: "message is required"})
	}

	return errs
}
