package definition

import (
	"strings"
	"testing"

	"github.com/pitabwire/console/model"
)

func TestLoader_Defaults(t *testing.T) {
	defs, err := NewLoader().Defaults()
	if err != nil {
		t.Fatalf("Defaults() error = %v", err)
	}

	want := []string{"company", "files", "folders", "jobs", "locations", "pages", "users"}
	if len(defs) != len(want) {
		t.Fatalf("Defaults() = %d resources, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("defs[%d].Name = %q, want %q", i, defs[i].Name, name)
		}
		if defs[i].Checksum == "" {
			t.Errorf("%s: checksum should be set", name)
		}
	}
}

func TestLoader_Defaults_validate(t *testing.T) {
	defs, err := NewLoader().Defaults()
	if err != nil {
		t.Fatalf("Defaults() error = %v", err)
	}
	if errs := NewValidator().Validate(defs, model.FolderTreeKey); len(errs) > 0 {
		t.Fatalf("built-in definitions invalid: %v", errs)
	}
}

func TestLoader_Defaults_content(t *testing.T) {
	r, err := LoadRegistry(nil)
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}

	folders, _ := r.Get("folders")
	if got := folders.InvalidationKeys(); len(got) != 2 || got[1].String() != model.FolderTreeKey {
		t.Errorf("folders invalidation keys = %v, want folders and folderTree", got)
	}
	if folders.ListStyle != model.ListArray {
		t.Errorf("folders list style = %q, want array", folders.ListStyle)
	}

	locations, _ := r.Get("locations")
	form, ok := locations.Form("")
	if !ok {
		t.Fatal("locations should declare a form")
	}
	if form.Fields[0].Path != "name" || form.Fields[0].Rules[0].Message != "Location name is required" {
		t.Errorf("location name rule = %+v", form.Fields[0])
	}
	if len(form.Groups) != 2 || !form.Groups[0].SingleDefault || form.Groups[0].MinEntries != 1 {
		t.Errorf("location groups = %+v", form.Groups)
	}
	if len(locations.DeleteConditions) != 1 {
		t.Errorf("locations delete conditions = %v", locations.DeleteConditions)
	}

	users, _ := r.Get("users")
	if !strings.Contains(users.Delete.Message, "{firstName} {lastName}") {
		t.Errorf("users delete message = %q", users.Delete.Message)
	}
	if users.SuccessMessage(model.MutationDelete) != "User deleted successfully" {
		t.Errorf("users delete success = %q", users.SuccessMessage(model.MutationDelete))
	}

	company, _ := r.Get("company")
	if !company.Singleton || company.ListStyle != "" {
		t.Errorf("company should be a singleton without list style, got %+v", company)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	def, err := NewLoader().LoadFile("testdata/overrides/tags.yml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if def.Name != "tags" {
		t.Errorf("Name = %q, want tags", def.Name)
	}
	if def.IDField != "id" {
		t.Errorf("IDField = %q, want default id", def.IDField)
	}
	if len(def.Forms) != 1 || def.Forms[0].Fields[0].Rules[0].Kind != model.RuleRequired {
		t.Errorf("Forms = %+v", def.Forms)
	}
	if def.Checksum == "" {
		t.Error("Checksum should not be empty")
	}
	if def.SourceFile != "testdata/overrides/tags.yml" {
		t.Errorf("SourceFile = %q", def.SourceFile)
	}
}

func TestLoader_LoadFile_not_found(t *testing.T) {
	_, err := NewLoader().LoadFile("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("LoadFile() with missing file should return error")
	}
}

func TestLoader_LoadFile_invalid_yaml(t *testing.T) {
	_, err := NewLoader().LoadFile("testdata/invalid/bad.yaml")
	if err == nil {
		t.Fatal("LoadFile() with invalid YAML should return error")
	}
}

func TestLoader_LoadFile_unknownField(t *testing.T) {
	_, err := NewLoader().LoadFile("testdata/unknown/typo.yaml")
	if err == nil {
		t.Fatal("LoadFile() with unknown key should return error")
	}
	if !strings.Contains(err.Error(), "pagesize") {
		t.Errorf("error = %v, want mention of pagesize", err)
	}
}

func TestLoader_Load_overrides(t *testing.T) {
	defs, err := NewLoader().Load([]string{"testdata/overrides"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	byName := map[string]model.ResourceDescriptor{}
	for _, d := range defs {
		byName[d.Name] = d
	}
	if len(byName) != 8 {
		t.Fatalf("Load() = %d resources, want 8", len(byName))
	}
	if byName["pages"].BasePath != "/cms/pages" || byName["pages"].PageSize != 25 {
		t.Errorf("pages not overridden: %+v", byName["pages"])
	}
	if _, ok := byName["tags"]; !ok {
		t.Error("tags should be added")
	}
	if byName["users"].BasePath != "/users" {
		t.Error("users default should survive")
	}
}

func TestLoader_Load_duplicateInDirectories(t *testing.T) {
	_, err := NewLoader().Load([]string{"testdata/dup"})
	if err == nil {
		t.Fatal("Load() with duplicate names should return error")
	}
	if !strings.Contains(err.Error(), "widgets") {
		t.Errorf("error = %v, want mention of widgets", err)
	}
}

func TestLoader_LoadAll_missingDirectory(t *testing.T) {
	_, err := NewLoader().LoadAll([]string{"testdata/does-not-exist"})
	if err == nil {
		t.Fatal("LoadAll() with missing directory should return error")
	}
}

func TestMerge_sortedByName(t *testing.T) {
	got := Merge(
		[]model.ResourceDescriptor{{Name: "users"}, {Name: "pages", PageSize: 10}},
		[]model.ResourceDescriptor{{Name: "pages", PageSize: 50}, {Name: "audit"}},
	)
	if len(got) != 3 {
		t.Fatalf("Merge() = %d, want 3", len(got))
	}
	if got[0].Name != "audit" || got[1].Name != "pages" || got[2].Name != "users" {
		t.Errorf("order = %s, %s, %s", got[0].Name, got[1].Name, got[2].Name)
	}
	if got[1].PageSize != 50 {
		t.Errorf("pages.PageSize = %d, want override 50", got[1].PageSize)
	}
}
