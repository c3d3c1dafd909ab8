package definition

import (
	"strings"
	"testing"

	"github.com/pitabwire/console/model"
)

func validResource() model.ResourceDescriptor {
	return model.ResourceDescriptor{
		Name:        "locations",
		BasePath:    "/company/locations",
		IDField:     "id",
		ListStyle:   model.ListArray,
		PageSize:    10,
		Invalidates: []string{"company"},
		Columns:     []model.ColumnSpec{{Header: "Name", Field: "name"}},
		Forms: []model.FormSpec{{
			ID: "location",
			Fields: []model.FieldSpec{
				{Path: "name", Rules: []model.RuleSpec{{Kind: model.RuleRequired, Message: "Location name is required"}}},
			},
			Groups: []model.GroupSpec{{
				Name: "addresses", SingleDefault: true, MinEntries: 1,
				Fields: []model.FieldSpec{{Path: "city"}},
			}},
		}},
		Actions: []model.ActionSpec{{
			ID: "set-main", Label: "Set as Main", Path: "set-main",
			Conditions: []model.ConditionSpec{{Field: "isMainLocation", Operator: "eq", Value: true, Effect: "hide"}},
		}},
		Delete: &model.ConfirmSpec{Title: "Delete Location", Message: `Delete "{name}"?`},
	}
}

func company() model.ResourceDescriptor {
	return model.ResourceDescriptor{Name: "company", BasePath: "/company", Singleton: true}
}

func hasCode(errs []VError, path, code string) bool {
	for _, e := range errs {
		if e.Path == path && e.Code == code {
			return true
		}
	}
	return false
}

func TestValidate_valid(t *testing.T) {
	errs := NewValidator().Validate([]model.ResourceDescriptor{validResource(), company()})
	if len(errs) != 0 {
		t.Fatalf("Validate() = %v, want no errors", errs)
	}
}

func TestValidate_requiredFields(t *testing.T) {
	errs := NewValidator().Validate([]model.ResourceDescriptor{{}})
	for _, path := range []string{"resources[0].name", "resources[0].base_path"} {
		if !hasCode(errs, path, "REQUIRED") {
			t.Errorf("missing REQUIRED for %s in %v", path, errs)
		}
	}
	if !hasCode(errs, "resources[0].list_style", "INVALID_ENUM") {
		t.Errorf("empty list_style should be rejected for collections: %v", errs)
	}
}

func TestValidate_duplicateNames(t *testing.T) {
	a, b := company(), company()
	a.SourceFile, b.SourceFile = "a.yaml", "b.yaml"
	errs := NewValidator().Validate([]model.ResourceDescriptor{a, b})
	if !hasCode(errs, "resources[company].name", "DUPLICATE") {
		t.Fatalf("expected DUPLICATE, got %v", errs)
	}
	if !strings.Contains(errs[0].Message, "a.yaml") {
		t.Errorf("message %q should name the first file", errs[0].Message)
	}
}

func TestValidate_unknownInvalidation(t *testing.T) {
	d := validResource()
	d.Invalidates = []string{"company", model.FolderTreeKey}

	errs := NewValidator().Validate([]model.ResourceDescriptor{d, company()})
	if !hasCode(errs, "resources[locations].invalidates[1]", "REF_NOT_FOUND") {
		t.Fatalf("expected REF_NOT_FOUND, got %v", errs)
	}

	if errs := NewValidator().Validate([]model.ResourceDescriptor{d, company()}, model.FolderTreeKey); len(errs) != 0 {
		t.Errorf("extra key should be accepted, got %v", errs)
	}
}

func TestValidate_rules(t *testing.T) {
	d := validResource()
	d.Forms[0].Fields = append(d.Forms[0].Fields,
		model.FieldSpec{Path: "slug", Rules: []model.RuleSpec{{Kind: model.RulePattern, Value: "([", Message: "bad"}}},
		model.FieldSpec{Path: "code", Rules: []model.RuleSpec{{Kind: model.RuleMinLength, Message: "short"}}},
		model.FieldSpec{Path: "nick", Rules: []model.RuleSpec{{Kind: "uppercase", Message: "x"}}},
		model.FieldSpec{Path: "bio", Rules: []model.RuleSpec{{Kind: model.RuleRequired}}},
		model.FieldSpec{Path: "name"},
		model.FieldSpec{Path: "age", Type: "date"},
	)

	errs := NewValidator().Validate([]model.ResourceDescriptor{d, company()})
	checks := map[string]string{
		"resources[locations].forms[0].fields[1].rules[0].value":   "INVALID",
		"resources[locations].forms[0].fields[2].rules[0].length":  "RANGE",
		"resources[locations].forms[0].fields[3].rules[0].kind":    "INVALID_ENUM",
		"resources[locations].forms[0].fields[4].rules[0].message": "REQUIRED",
		"resources[locations].forms[0].fields[5].path":             "DUPLICATE",
		"resources[locations].forms[0].fields[6].type":             "INVALID_ENUM",
	}
	for path, code := range checks {
		if !hasCode(errs, path, code) {
			t.Errorf("missing %s at %s", code, path)
		}
	}
}

func TestValidate_groups(t *testing.T) {
	d := validResource()
	d.Forms[0].Groups = append(d.Forms[0].Groups,
		model.GroupSpec{Name: "a.b", MinEntries: -1},
	)

	errs := NewValidator().Validate([]model.ResourceDescriptor{d, company()})
	for path, code := range map[string]string{
		"resources[locations].forms[0].groups[1].name":        "INVALID",
		"resources[locations].forms[0].groups[1].min_entries": "RANGE",
		"resources[locations].forms[0].groups[1].fields":      "REQUIRED",
	} {
		if !hasCode(errs, path, code) {
			t.Errorf("missing %s at %s in %v", code, path, errs)
		}
	}
}

func TestValidate_actions(t *testing.T) {
	d := validResource()
	d.Actions = append(d.Actions,
		model.ActionSpec{ID: "set-main", Label: "Again", Path: "again"},
		model.ActionSpec{ID: "x", Path: "/abs", Variant: "loud",
			Conditions: []model.ConditionSpec{{Operator: "like", Effect: "blink"}},
			Confirm:    &model.ConfirmSpec{},
		},
	)

	errs := NewValidator().Validate([]model.ResourceDescriptor{d, company()})
	for path, code := range map[string]string{
		"resources[locations].actions[1].id":                    "DUPLICATE",
		"resources[locations].actions[2].label":                 "REQUIRED",
		"resources[locations].actions[2].path":                  "INVALID",
		"resources[locations].actions[2].variant":               "INVALID_ENUM",
		"resources[locations].actions[2].conditions[0].field":    "REQUIRED",
		"resources[locations].actions[2].conditions[0].operator": "INVALID_ENUM",
		"resources[locations].actions[2].conditions[0].effect":   "INVALID_ENUM",
		"resources[locations].actions[2].confirm.title":         "REQUIRED",
		"resources[locations].actions[2].confirm.message":       "REQUIRED",
	} {
		if !hasCode(errs, path, code) {
			t.Errorf("missing %s at %s", code, path)
		}
	}
}

func TestValidate_pageSizeRange(t *testing.T) {
	d := validResource()
	d.PageSize = 500
	errs := NewValidator().Validate([]model.ResourceDescriptor{d, company()})
	if !hasCode(errs, "resources[locations].page_size", "RANGE") {
		t.Errorf("expected RANGE, got %v", errs)
	}
}

func TestErrors_joins(t *testing.T) {
	if Errors(nil) != nil {
		t.Error("Errors(nil) should be nil")
	}
	err := Errors([]VError{{Path: "a", Message: "one"}, {Path: "b", Message: "two"}})
	if err == nil || !strings.Contains(err.Error(), "a: one") || !strings.Contains(err.Error(), "b: two") {
		t.Errorf("Errors() = %v", err)
	}
}
