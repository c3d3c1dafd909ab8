// Package form binds field values to validation rules and turns a valid
// form into a model.MutationRequest. It never performs I/O: the caller
// decides what to do with the request.
package form

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/model"
)

// ErrUnknownField is returned when setting a path that was never registered.
var ErrUnknownField = errors.New("form: unknown field")

// Field declares a form field, top level or inside a group.
type Field struct {
	Path string
	// Type drives coercion of string input: int, number, bool or string.
	Type    string
	Default any
	Rules   []Rule
}

// Form holds the values of one create or edit form.
type Form struct {
	mu         sync.Mutex
	resource   string
	formID     string
	kind       model.MutationKind
	target     string
	fields     []Field
	values     map[string]any
	groups     map[string]*groupList
	groupOrder []string
	nextID     GroupID
	errors     map[string]string
	metrics    *observability.Metrics
	newKey     func() string
}

// Option configures a Form.
type Option func(*Form)

// WithKind sets the mutation kind of the built request.
func WithKind(k model.MutationKind) Option {
	return func(f *Form) { f.kind = k }
}

// WithFormID sets the form id carried in the request.
func WithFormID(id string) Option {
	return func(f *Form) { f.formID = id }
}

// WithMetrics counts validation failures.
func WithMetrics(m *observability.Metrics) Option {
	return func(f *Form) { f.metrics = m }
}

// WithKeyGenerator replaces the idempotency key generator.
func WithKeyGenerator(fn func() string) Option {
	return func(f *Form) { f.newKey = fn }
}

// New returns an empty create form for resource.
func New(resource string, opts ...Option) *Form {
	f := &Form{
		resource: resource,
		kind:     model.MutationCreate,
		values:   map[string]any{},
		groups:   map[string]*groupList{},
		errors:   map[string]string{},
		newKey:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FromSpec builds a form from its declarative spec.
func FromSpec(resource string, spec model.FormSpec, opts ...Option) (*Form, error) {
	f := New(resource, append([]Option{WithFormID(spec.ID)}, opts...)...)
	for _, fs := range spec.Fields {
		fld, err := fieldFromSpec(fs)
		if err != nil {
			return nil, fmt.Errorf("form %s: %w", spec.ID, err)
		}
		f.RegisterField(fld)
	}
	for _, gs := range spec.Groups {
		fields := make([]Field, 0, len(gs.Fields))
		for _, fs := range gs.Fields {
			fld, err := fieldFromSpec(fs)
			if err != nil {
				return nil, fmt.Errorf("form %s: group %s: %w", spec.ID, gs.Name, err)
			}
			fields = append(fields, fld)
		}
		f.RegisterGroup(gs.Name, gs.SingleDefault, gs.MinEntries, fields...)
	}
	return f, nil
}

// FromDescriptor builds the form formID of desc. An empty id picks the first
// declared form.
func FromDescriptor(desc model.ResourceDescriptor, formID string, opts ...Option) (*Form, error) {
	spec, ok := desc.Form(formID)
	if !ok {
		return nil, fmt.Errorf("form: resource %q has no form %q", desc.Name, formID)
	}
	return FromSpec(desc.Name, spec, opts...)
}

func fieldFromSpec(fs model.FieldSpec) (Field, error) {
	rules, err := RulesFromSpec(fs.Rules)
	if err != nil {
		return Field{}, fmt.Errorf("field %s: %w", fs.Path, err)
	}
	return Field{Path: fs.Path, Type: fs.Type, Default: fs.Default, Rules: rules}, nil
}

// Binding is a handle on one registered field.
type Binding struct {
	form *Form
	path string
}

// Path returns the field path.
func (b Binding) Path() string { return b.path }

// Set stores v.
func (b Binding) Set(v any) error { return b.form.Set(b.path, v) }

// Value returns the current value.
func (b Binding) Value() any { return b.form.Value(b.path) }

// Error returns the field's validation message, if any.
func (b Binding) Error() string { return b.form.Error(b.path) }

// Register declares a string field with rules.
func (f *Form) Register(path string, rules ...Rule) Binding {
	return f.RegisterField(Field{Path: path, Rules: rules})
}

// RegisterField declares a field. Registering a path again replaces it.
func (f *Form) RegisterField(fld Field) Binding {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.fieldIndex(fld.Path); i >= 0 {
		f.fields[i] = fld
	} else {
		f.fields = append(f.fields, fld)
	}
	f.values[fld.Path] = fld.Default
	return Binding{form: f, path: fld.Path}
}

func (f *Form) fieldIndex(path string) int {
	return slices.IndexFunc(f.fields, func(fld Field) bool { return fld.Path == path })
}

// RegisterGroup declares a repeatable group and creates its first
// minEntries entries. With singleDefault exactly one entry is the default.
func (f *Form) RegisterGroup(name string, singleDefault bool, minEntries int, fields ...Field) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &groupList{
		name:          name,
		singleDefault: singleDefault,
		minEntries:    minEntries,
		fields:        fields,
		arena:         map[GroupID]*Group{},
	}
	if _, exists := f.groups[name]; !exists {
		f.groupOrder = append(f.groupOrder, name)
	}
	f.groups[name] = l
	for len(l.order) < minEntries {
		f.appendLocked(l, nil)
	}
}

func (f *Form) group(name string) (*groupList, error) {
	l, ok := f.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, name)
	}
	return l, nil
}

func (f *Form) appendLocked(l *groupList, values map[string]any) GroupID {
	f.nextID++
	id := f.nextID
	g := &Group{ID: id, Values: l.defaults()}
	for k, v := range values {
		if k == "isDefault" {
			continue
		}
		g.Values[k] = v
	}
	g.IsDefault = l.singleDefault && len(l.order) == 0
	l.arena[id] = g
	l.order = append(l.order, id)
	if isDefault, _ := values["isDefault"].(bool); isDefault {
		f.setDefaultLocked(l, id)
	}
	return id
}

// AppendGroup adds an entry to group name. The first entry of a
// single-default group becomes the default.
func (f *Form) AppendGroup(name string, values map[string]any) (GroupID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.group(name)
	if err != nil {
		return 0, err
	}
	return f.appendLocked(l, values), nil
}

// RemoveGroup removes entry id. The last entry cannot be removed. Removing
// the default entry makes the first remaining entry the default.
func (f *Form) RemoveGroup(name string, id GroupID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.group(name)
	if err != nil {
		return err
	}
	return f.removeLocked(l, name, id)
}

// RemoveGroupAt removes the entry at index.
func (f *Form) RemoveGroupAt(name string, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.group(name)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(l.order) {
		return fmt.Errorf("%w: %s.%d", ErrGroupNotFound, name, index)
	}
	return f.removeLocked(l, name, l.order[index])
}

func (f *Form) removeLocked(l *groupList, name string, id GroupID) error {
	idx := l.index(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s #%d", ErrGroupNotFound, name, id)
	}
	if len(l.order) <= max(l.minEntries, 1) {
		return fmt.Errorf("%w of %s", ErrLastGroup, name)
	}
	wasDefault := l.arena[id].IsDefault
	delete(l.arena, id)
	l.order = slices.Delete(l.order, idx, idx+1)
	if wasDefault && l.singleDefault {
		l.arena[l.order[0]].IsDefault = true
	}
	return nil
}

// SetDefault marks entry id as the default, clearing the flag elsewhere in
// single-default groups.
func (f *Form) SetDefault(name string, id GroupID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.group(name)
	if err != nil {
		return err
	}
	if l.index(id) < 0 {
		return fmt.Errorf("%w: %s #%d", ErrGroupNotFound, name, id)
	}
	f.setDefaultLocked(l, id)
	return nil
}

func (f *Form) setDefaultLocked(l *groupList, id GroupID) {
	for gid, g := range l.arena {
		if gid == id {
			g.IsDefault = true
		} else if l.singleDefault {
			g.IsDefault = false
		}
	}
}

// Groups returns a copy of the entries of group name in order.
func (f *Form) Groups(name string) []Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.groups[name]
	if !ok {
		return nil
	}
	return l.entries()
}

// SetTarget sets the id of the item an edit form updates.
func (f *Form) SetTarget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = id
	if f.kind == model.MutationCreate {
		f.kind = model.MutationUpdate
	}
}

// splitGroupPath splits "addresses.0.city".
func splitGroupPath(path string) (name string, index int, sub string, ok bool) {
	parts := strings.SplitN(path, ".", 3)
	if len(parts) != 3 {
		return "", 0, "", false
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 {
		return "", 0, "", false
	}
	return parts[0], idx, parts[2], true
}

// Set stores a value by path. Group entries are addressed as
// name.index.field; name.index.isDefault=true makes that entry the default.
// String input is coerced to the field's declared type.
func (f *Form) Set(path string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if i := f.fieldIndex(path); i >= 0 {
		val, err := coerce(f.fields[i].Type, v)
		if err != nil {
			return fmt.Errorf("form: %s: %w", path, err)
		}
		f.values[path] = val
		delete(f.errors, path)
		return nil
	}

	name, idx, sub, ok := splitGroupPath(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	l, ok := f.groups[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	if idx >= len(l.order) {
		return fmt.Errorf("%w: %s.%d", ErrGroupNotFound, name, idx)
	}
	id := l.order[idx]
	if sub == "isDefault" {
		val, err := coerce("bool", v)
		if err != nil {
			return fmt.Errorf("form: %s: %w", path, err)
		}
		switch b, _ := val.(bool); {
		case b:
			f.setDefaultLocked(l, id)
		case l.singleDefault && l.arena[id].IsDefault:
			return fmt.Errorf("%w: %s", ErrClearDefault, path)
		default:
			l.arena[id].IsDefault = false
		}
		return nil
	}
	fld, ok := l.field(sub)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	val, err := coerce(fld.Type, v)
	if err != nil {
		return fmt.Errorf("form: %s: %w", path, err)
	}
	l.arena[id].Values[sub] = val
	delete(f.errors, path)
	return nil
}

// Value returns the value at path, or nil.
func (f *Form) Value(path string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[path]; ok {
		return v
	}
	name, idx, sub, ok := splitGroupPath(path)
	if !ok {
		return nil
	}
	l, ok := f.groups[name]
	if !ok || idx >= len(l.order) {
		return nil
	}
	g := l.arena[l.order[idx]]
	if sub == "isDefault" {
		return g.IsDefault
	}
	return g.Values[sub]
}

// Reset replaces all values, typically with an item loaded for editing.
// Missing fields fall back to their defaults. Group entries are rebuilt and
// their defaults normalized.
func (f *Form) Reset(values map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.values = make(map[string]any, len(f.fields))
	for _, fld := range f.fields {
		f.values[fld.Path] = fld.Default
		if v, ok := lookup(values, fld.Path); ok {
			f.values[fld.Path] = v
		}
	}

	for _, name := range f.groupOrder {
		l := f.groups[name]
		l.order = nil
		l.arena = map[GroupID]*Group{}
		raw, _ := lookup(values, name)
		var loaded []Group
		for _, item := range toMaps(raw) {
			f.nextID++
			g := Group{ID: f.nextID, Values: l.defaults()}
			for k, v := range item {
				if k == "isDefault" {
					g.IsDefault, _ = v.(bool)
					continue
				}
				g.Values[k] = v
			}
			loaded = append(loaded, g)
		}
		if l.singleDefault {
			loaded = NormalizeDefaults(loaded)
		}
		for i := range loaded {
			g := loaded[i]
			l.arena[g.ID] = &g
			l.order = append(l.order, g.ID)
		}
		for len(l.order) < l.minEntries {
			f.appendLocked(l, nil)
		}
	}
	f.errors = map[string]string{}
}

// Validate checks every rule and stores the errors by dot path. The first
// failing rule of each field is reported.
func (f *Form) Validate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateLocked()
}

func (f *Form) validateLocked() error {
	var problems []model.FieldError
	for _, fld := range f.fields {
		if r, bad := firstFailure(fld.Rules, f.values[fld.Path]); bad {
			problems = append(problems, model.FieldError{Field: fld.Path, Code: r.Kind, Message: r.Message})
		}
	}
	for _, name := range f.groupOrder {
		l := f.groups[name]
		if l.singleDefault {
			if err := EnsureSingleDefault(l.entries()); err != nil {
				problems = append(problems, model.FieldError{
					Field:   name,
					Code:    "single_default",
					Message: "Exactly one entry must be marked as default",
				})
			}
		}
		for i, id := range l.order {
			g := l.arena[id]
			for _, gf := range l.fields {
				if r, bad := firstFailure(gf.Rules, g.Values[gf.Path]); bad {
					problems = append(problems, model.FieldError{
						Field:   fmt.Sprintf("%s.%d.%s", name, i, gf.Path),
						Code:    r.Kind,
						Message: r.Message,
					})
				}
			}
		}
	}

	f.errors = make(map[string]string, len(problems))
	for _, p := range problems {
		f.errors[p.Field] = p.Message
	}
	if len(problems) > 0 {
		f.metrics.RecordValidationFailure(f.resource)
		return model.NewValidationError(problems)
	}
	return nil
}

// Errors returns the messages of the last validation keyed by dot path.
func (f *Form) Errors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.errors)
}

// Error returns the message for one path.
func (f *Form) Error(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors[path]
}

// Payload returns the request body: dotted paths become nested objects and
// groups become arrays in entry order.
func (f *Form) Payload() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloadLocked()
}

func (f *Form) payloadLocked() map[string]any {
	body := map[string]any{}
	for _, fld := range f.fields {
		setPath(body, fld.Path, f.values[fld.Path])
	}
	for _, name := range f.groupOrder {
		l := f.groups[name]
		items := make([]any, 0, len(l.order))
		for _, id := range l.order {
			g := l.arena[id]
			entry := maps.Clone(g.Values)
			if l.singleDefault {
				entry["isDefault"] = g.IsDefault
			}
			items = append(items, entry)
		}
		setPath(body, name, items)
	}
	return body
}

// Submit validates and builds the mutation request. Each call carries a
// fresh idempotency key.
func (f *Form) Submit() (model.MutationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.validateLocked(); err != nil {
		return model.MutationRequest{}, err
	}
	return model.MutationRequest{
		Resource:       f.resource,
		Kind:           f.kind,
		FormID:         f.formID,
		ID:             f.target,
		Body:           f.payloadLocked(),
		IdempotencyKey: f.newKey(),
	}, nil
}

// HandleSubmit returns a handler that validates the form and, when valid,
// passes the request to onValid. An invalid form returns its
// *model.ValidationError and onValid is not called.
func (f *Form) HandleSubmit(onValid func(ctx context.Context, req model.MutationRequest) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		req, err := f.Submit()
		if err != nil {
			return err
		}
		return onValid(ctx, req)
	}
}

func coerce(typ string, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	s = strings.TrimSpace(s)
	switch typ {
	case "int", "integer":
		if s == "" {
			return nil, nil
		}
		return strconv.ParseInt(s, 10, 64)
	case "number":
		if s == "" {
			return nil, nil
		}
		return strconv.ParseFloat(s, 64)
	case "bool", "boolean":
		if s == "" {
			return false, nil
		}
		return strconv.ParseBool(s)
	default:
		return v, nil
	}
}

func lookup(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if v, ok := m[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	child, ok := m[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(child, rest)
}

func setPath(m map[string]any, path string, v any) {
	head, rest, found := strings.Cut(path, ".")
	if !found {
		m[path] = v
		return
	}
	child, ok := m[head].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[head] = child
	}
	setPath(child, rest, v)
}

func toMaps(v any) []map[string]any {
	switch items := v.(type) {
	case []map[string]any:
		return items
	case []any:
		out := make([]map[string]any, 0, len(items))
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
