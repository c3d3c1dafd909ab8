package model

import (
	"fmt"
	"strings"
)

// Page is one fetched slice of a resource collection. A Page is superseded,
// never mutated, by the next fetch for the same key.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	PageNumber int `json:"page"`
	PageSize   int `json:"pageSize"`
}

// Normalize enforces len(Items) <= PageSize and TotalCount >= len(Items).
func (p Page[T]) Normalize() Page[T] {
	if p.PageSize > 0 && len(p.Items) > p.PageSize {
		p.Items = p.Items[:p.PageSize]
	}
	if p.TotalCount < len(p.Items) {
		p.TotalCount = len(p.Items)
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	return p
}

// Slice pages an in-memory collection. Used for endpoints that return the
// whole collection as an array.
func Slice[T any](all []T, page, pageSize int) Page[T] {
	start, end := Window(len(all), page, pageSize)
	items := make([]T, end-start)
	copy(items, all[start:end])
	return Page[T]{Items: items, TotalCount: len(all), PageNumber: page, PageSize: pageSize}
}

// Window returns the [start, end) bounds of a 1-based page over n items.
// Pages past the end give an empty window. The bounds are found by
// division so huge pages or page sizes cannot overflow.
func Window(n, page, pageSize int) (start, end int) {
	if n == 0 || page < 1 || pageSize < 1 || page-1 > (n-1)/pageSize {
		return n, n
	}
	start = (page - 1) * pageSize
	return start, start + min(pageSize, n-start)
}

// QueryKey identifies a cached query, e.g. (users, 2, "jane"). Equality is
// structural.
type QueryKey []string

const keySeparator = "\x1f"

// Key builds a QueryKey from arbitrary parts. nil parts become "".
func Key(parts ...any) QueryKey {
	k := make(QueryKey, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case nil:
			k[i] = ""
		case string:
			k[i] = v
		case *int:
			if v != nil {
				k[i] = fmt.Sprint(*v)
			}
		case *int64:
			if v != nil {
				k[i] = fmt.Sprint(*v)
			}
		default:
			k[i] = fmt.Sprint(v)
		}
	}
	return k
}

// String returns the canonical form used as a map key.
func (k QueryKey) String() string {
	return strings.Join(k, keySeparator)
}

// Display returns a human readable form for logs.
func (k QueryKey) Display() string {
	return "[" + strings.Join(k, ", ") + "]"
}

// Equal reports structural equality.
func (k QueryKey) Equal(o QueryKey) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix matches the leading parts of k.
func (k QueryKey) HasPrefix(prefix QueryKey) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// ParseKey reverses String.
func ParseKey(s string) QueryKey {
	if s == "" {
		return QueryKey{}
	}
	return QueryKey(strings.Split(s, keySeparator))
}

// MutationKind names the kind of state change a mutation performs.
type MutationKind string

// Mutation kinds.
const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
	MutationAction MutationKind = "action"
	MutationUpload MutationKind = "upload"
)

// PastTense returns the verb used in success messages.
func (k MutationKind) PastTense() string {
	switch k {
	case MutationCreate:
		return "created"
	case MutationUpdate:
		return "updated"
	case MutationDelete:
		return "deleted"
	case MutationUpload:
		return "uploaded"
	default:
		return "saved"
	}
}

// MutationRequest is a validated resource-shaped payload. The form owns it
// until submission; the resource client discards it after the response.
type MutationRequest struct {
	Resource       string         `json:"resource"`
	Kind           MutationKind   `json:"kind"`
	FormID         string         `json:"form_id,omitempty"`
	ID             string         `json:"id,omitempty"`
	Body           map[string]any `json:"body"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}
