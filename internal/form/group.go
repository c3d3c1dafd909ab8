package form

import (
	"errors"
	"fmt"
	"maps"
)

// Group errors.
var (
	ErrUnknownGroup     = errors.New("form: unknown group")
	ErrGroupNotFound    = errors.New("form: group entry not found")
	ErrLastGroup        = errors.New("form: cannot remove the last entry")
	ErrNoDefault        = errors.New("form: no entry marked default")
	ErrMultipleDefaults = errors.New("form: more than one entry marked default")
	ErrClearDefault     = errors.New("form: the default entry can only be moved by marking another entry default")
)

// GroupID identifies a group entry for its whole lifetime, independent of
// its position.
type GroupID int

// Group is one entry of a repeatable nested group, e.g. one address.
type Group struct {
	ID        GroupID
	Values    map[string]any
	IsDefault bool
}

func (g Group) clone() Group {
	g.Values = maps.Clone(g.Values)
	return g
}

// groupList is the arena for one named group. Entries are addressed by id;
// order only decides the index used in payloads and error paths.
type groupList struct {
	name          string
	singleDefault bool
	minEntries    int
	fields        []Field
	order         []GroupID
	arena         map[GroupID]*Group
}

func (l *groupList) field(path string) (Field, bool) {
	for _, f := range l.fields {
		if f.Path == path {
			return f, true
		}
	}
	return Field{}, false
}

func (l *groupList) entries() []Group {
	out := make([]Group, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.arena[id].clone())
	}
	return out
}

func (l *groupList) index(id GroupID) int {
	for i, gid := range l.order {
		if gid == id {
			return i
		}
	}
	return -1
}

func (l *groupList) defaults() map[string]any {
	values := make(map[string]any, len(l.fields))
	for _, f := range l.fields {
		values[f.Path] = f.Default
	}
	return values
}

// EnsureSingleDefault checks that a non-empty group list has exactly one
// default entry.
func EnsureSingleDefault(groups []Group) error {
	if len(groups) == 0 {
		return nil
	}
	n := 0
	for _, g := range groups {
		if g.IsDefault {
			n++
		}
	}
	switch {
	case n == 0:
		return ErrNoDefault
	case n > 1:
		return fmt.Errorf("%w: %d entries", ErrMultipleDefaults, n)
	}
	return nil
}

// NormalizeDefaults returns a copy of groups with exactly one default: the
// first flagged entry, or the first entry when none is flagged.
func NormalizeDefaults(groups []Group) []Group {
	out := make([]Group, len(groups))
	chosen := -1
	for i, g := range groups {
		out[i] = g.clone()
		if g.IsDefault && chosen < 0 {
			chosen = i
		}
	}
	if chosen < 0 && len(out) > 0 {
		chosen = 0
	}
	for i := range out {
		out[i].IsDefault = i == chosen
	}
	return out
}
