package metadata

import (
	"testing"

	"github.com/pitabwire/console/model"
)

func TestInterpolate(t *testing.T) {
	data := map[string]any{
		"firstName": "Jane",
		"lastName":  "Doe",
		"id":        float64(12),
		"address":   map[string]any{"city": "Springfield"},
	}
	cases := map[string]string{
		`Delete "{firstName} {lastName}"?`: `Delete "Jane Doe"?`,
		"User #{id}":                       "User #12",
		"In {address.city}":                "In Springfield",
		"Missing {nope}.":                  "Missing .",
		"No placeholders":                  "No placeholders",
	}
	for in, want := range cases {
		if got := Interpolate(in, data); got != want {
			t.Errorf("Interpolate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfirmation_user(t *testing.T) {
	spec := model.ConfirmSpec{
		Title:   "Delete User",
		Message: `Are you sure you want to delete "{firstName} {lastName}"? This action cannot be undone.`,
		Danger:  true,
	}
	got := Confirmation(spec, model.User{ID: 5, FirstName: "Jane", LastName: "Doe"})

	want := `Are you sure you want to delete "Jane Doe"? This action cannot be undone.`
	if got.Message != want {
		t.Errorf("Message = %q, want %q", got.Message, want)
	}
	if !got.Danger || got.Title != "Delete User" {
		t.Errorf("spec fields not preserved: %+v", got)
	}
}
