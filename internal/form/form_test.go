package form

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/model"
)

func locationSpec() model.FormSpec {
	required := func(msg string) []model.RuleSpec {
		return []model.RuleSpec{{Kind: model.RuleRequired, Message: msg}}
	}
	return model.FormSpec{
		ID: "location",
		Fields: []model.FieldSpec{
			{Path: "name", Rules: required("Location name is required")},
			{Path: "description"},
			{Path: "isActive", Type: "bool", Default: true},
		},
		Groups: []model.GroupSpec{
			{
				Name:          "addresses",
				SingleDefault: true,
				MinEntries:    1,
				Fields: []model.FieldSpec{
					{Path: "street", Rules: required("Street is required")},
					{Path: "city", Rules: required("City is required")},
					{Path: "country", Default: "US"},
				},
			},
		},
	}
}

func newLocationForm(t *testing.T, opts ...Option) *Form {
	t.Helper()
	f, err := FromSpec("locations", locationSpec(), opts...)
	require.NoError(t, err)
	return f
}

func TestHandleSubmit_emptyNameNoCall(t *testing.T) {
	f := newLocationForm(t)

	calls := 0
	submit := f.HandleSubmit(func(context.Context, model.MutationRequest) error {
		calls++
		return nil
	})
	err := submit(context.Background())

	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Location name is required", vErr.Field("name"))
	assert.Zero(t, calls, "invalid form must not reach the submit function")

	errs := f.Errors()
	assert.Equal(t, "Location name is required", errs["name"])
	assert.Equal(t, "Street is required", errs["addresses.0.street"])
	assert.Equal(t, "City is required", errs["addresses.0.city"])
}

func TestHandleSubmit_validBuildsRequest(t *testing.T) {
	f := newLocationForm(t, WithKeyGenerator(func() string { return "key-1" }))
	require.NoError(t, f.Set("name", "HQ"))
	require.NoError(t, f.Set("addresses.0.street", "1 Main St"))
	require.NoError(t, f.Set("addresses.0.city", "Springfield"))

	var got model.MutationRequest
	err := f.HandleSubmit(func(_ context.Context, req model.MutationRequest) error {
		got = req
		return nil
	})(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "locations", got.Resource)
	assert.Equal(t, model.MutationCreate, got.Kind)
	assert.Equal(t, "location", got.FormID)
	assert.Equal(t, "key-1", got.IdempotencyKey)
	assert.Equal(t, "HQ", got.Body["name"])
	assert.Equal(t, true, got.Body["isActive"])

	addresses, ok := got.Body["addresses"].([]any)
	require.True(t, ok)
	require.Len(t, addresses, 1)
	first := addresses[0].(map[string]any)
	assert.Equal(t, "Springfield", first["city"])
	assert.Equal(t, "US", first["country"])
	assert.Equal(t, true, first["isDefault"])
	assert.Empty(t, f.Errors())
}

func TestHandleSubmit_propagatesSubmitError(t *testing.T) {
	f := New("folders")
	f.Register("name", Required("Folder name is required"))
	require.NoError(t, f.Set("name", "Invoices"))

	boom := errors.New("boom")
	err := f.HandleSubmit(func(context.Context, model.MutationRequest) error { return boom })(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSubmit_freshIdempotencyKeys(t *testing.T) {
	f := New("folders")
	f.Register("name")

	a, err := f.Submit()
	require.NoError(t, err)
	b, err := f.Submit()
	require.NoError(t, err)
	assert.NotEmpty(t, a.IdempotencyKey)
	assert.NotEqual(t, a.IdempotencyKey, b.IdempotencyKey)
}

func TestFirstFailingRuleWins(t *testing.T) {
	f := New("pages")
	f.Register("slug",
		Required("Slug is required"),
		MinLength(3, "Slug is too short"),
	)
	require.NoError(t, f.Set("slug", "ab"))
	require.Error(t, f.Validate())
	assert.Equal(t, "Slug is too short", f.Error("slug"))

	require.NoError(t, f.Set("slug", ""))
	require.Error(t, f.Validate())
	assert.Equal(t, "Slug is required", f.Error("slug"))
}

func TestSet_clearsFieldErrorAndRejectsUnknown(t *testing.T) {
	f := New("folders")
	b := f.Register("name", Required("Folder name is required"))
	require.Error(t, f.Validate())
	assert.Equal(t, "Folder name is required", b.Error())

	require.NoError(t, b.Set("Invoices"))
	assert.Empty(t, b.Error())
	assert.Equal(t, "Invoices", b.Value())
	assert.Equal(t, "name", b.Path())

	assert.ErrorIs(t, f.Set("nope", 1), ErrUnknownField)
	assert.ErrorIs(t, f.Set("addresses.0.city", "x"), ErrUnknownField)
}

func TestSet_coercesTypes(t *testing.T) {
	f := New("folders")
	f.RegisterField(Field{Path: "parentFolderId", Type: "int"})
	f.RegisterField(Field{Path: "isPublic", Type: "bool"})
	f.RegisterField(Field{Path: "quota", Type: "number"})

	require.NoError(t, f.Set("parentFolderId", "7"))
	assert.Equal(t, int64(7), f.Value("parentFolderId"))
	require.NoError(t, f.Set("parentFolderId", ""))
	assert.Nil(t, f.Value("parentFolderId"))
	require.NoError(t, f.Set("isPublic", "true"))
	assert.Equal(t, true, f.Value("isPublic"))
	require.NoError(t, f.Set("quota", "1.5"))
	assert.Equal(t, 1.5, f.Value("quota"))

	assert.Error(t, f.Set("parentFolderId", "seven"))
}

func TestPayload_folderWithoutParent(t *testing.T) {
	f := New("folders")
	f.Register("name", Required("Folder name is required"))
	f.RegisterField(Field{Path: "parentFolderId", Type: "int"})
	require.NoError(t, f.Set("name", "Invoices"))

	req, err := f.Submit()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Invoices", "parentFolderId": nil}, req.Body)
}

func TestPayload_nestedPaths(t *testing.T) {
	f := New("pages")
	f.Register("name")
	f.Register("settings.theme")
	require.NoError(t, f.Set("name", "Home"))
	require.NoError(t, f.Set("settings.theme", "dark"))

	body := f.Payload()
	assert.Equal(t, map[string]any{"theme": "dark"}, body["settings"])
}

func TestGroups_appendAndDefault(t *testing.T) {
	f := newLocationForm(t)
	first := f.Groups("addresses")[0].ID

	second, err := f.AppendGroup("addresses", map[string]any{"city": "Shelbyville"})
	require.NoError(t, err)

	groups := f.Groups("addresses")
	require.Len(t, groups, 2)
	assert.True(t, groups[0].IsDefault)
	assert.False(t, groups[1].IsDefault)
	assert.Equal(t, "Shelbyville", groups[1].Values["city"])
	assert.Equal(t, "US", groups[1].Values["country"], "field defaults fill unset values")

	require.NoError(t, f.SetDefault("addresses", second))
	groups = f.Groups("addresses")
	assert.False(t, groups[0].IsDefault)
	assert.True(t, groups[1].IsDefault)
	assert.NoError(t, EnsureSingleDefault(groups))

	require.NoError(t, f.Set("addresses.0.isDefault", "true"))
	groups = f.Groups("addresses")
	assert.Equal(t, first, groups[0].ID)
	assert.True(t, groups[0].IsDefault)
	assert.Equal(t, true, f.Value("addresses.0.isDefault"))
	assert.Equal(t, false, f.Value("addresses.1.isDefault"))
}

func TestGroups_appendFlaggedDefault(t *testing.T) {
	f := newLocationForm(t)
	_, err := f.AppendGroup("addresses", map[string]any{"isDefault": true})
	require.NoError(t, err)

	groups := f.Groups("addresses")
	assert.False(t, groups[0].IsDefault)
	assert.True(t, groups[1].IsDefault)
}

func TestGroups_cannotRemoveLast(t *testing.T) {
	f := newLocationForm(t)
	only := f.Groups("addresses")[0].ID

	err := f.RemoveGroup("addresses", only)
	assert.ErrorIs(t, err, ErrLastGroup)
	assert.Len(t, f.Groups("addresses"), 1)
}

func TestGroups_removeDefaultRedesignates(t *testing.T) {
	f := newLocationForm(t)
	first := f.Groups("addresses")[0].ID
	second, _ := f.AppendGroup("addresses", nil)
	third, _ := f.AppendGroup("addresses", nil)

	require.NoError(t, f.RemoveGroup("addresses", first))

	groups := f.Groups("addresses")
	require.Len(t, groups, 2)
	assert.Equal(t, second, groups[0].ID)
	assert.True(t, groups[0].IsDefault, "first remaining entry becomes default")
	assert.Equal(t, third, groups[1].ID)
	assert.NoError(t, EnsureSingleDefault(groups))
}

func TestGroups_removeAtKeepsStableIDs(t *testing.T) {
	f := newLocationForm(t)
	_, _ = f.AppendGroup("addresses", map[string]any{"city": "B"})
	third, _ := f.AppendGroup("addresses", map[string]any{"city": "C"})

	require.NoError(t, f.RemoveGroupAt("addresses", 1))
	groups := f.Groups("addresses")
	require.Len(t, groups, 2)
	assert.Equal(t, third, groups[1].ID)
	assert.Equal(t, "C", f.Value("addresses.1.city"), "index paths follow order, ids stay")

	assert.ErrorIs(t, f.RemoveGroupAt("addresses", 5), ErrGroupNotFound)
	assert.ErrorIs(t, f.RemoveGroup("addresses", 999), ErrGroupNotFound)
	_, err := f.AppendGroup("phones", nil)
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestGroups_clearingDefaultIsRejected(t *testing.T) {
	f := newLocationForm(t)
	_, err := f.AppendGroup("addresses", nil)
	require.NoError(t, err)

	err = f.Set("addresses.0.isDefault", "false")
	assert.ErrorIs(t, err, ErrClearDefault)
	assert.Equal(t, true, f.Value("addresses.0.isDefault"), "default is unchanged")

	assert.NoError(t, f.Set("addresses.1.isDefault", false), "clearing a non-default entry is a no-op")
	assert.NoError(t, EnsureSingleDefault(f.Groups("addresses")))
}

func TestGroups_concurrentRemoveAtEachRemoveOneEntry(t *testing.T) {
	f := newLocationForm(t)
	const removals = 30
	for i := 0; i < removals; i++ {
		_, err := f.AppendGroup("addresses", nil)
		require.NoError(t, err)
	}

	errs := make(chan error, removals)
	var wg sync.WaitGroup
	for i := 0; i < removals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.RemoveGroupAt("addresses", 0)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	groups := f.Groups("addresses")
	assert.Len(t, groups, 1)
	assert.NoError(t, EnsureSingleDefault(groups))
}

func TestGroups_errorPathsUseIndex(t *testing.T) {
	f := newLocationForm(t)
	require.NoError(t, f.Set("name", "HQ"))
	require.NoError(t, f.Set("addresses.0.street", "1 Main"))
	require.NoError(t, f.Set("addresses.0.city", "Springfield"))
	_, _ = f.AppendGroup("addresses", map[string]any{"street": "2 Side"})

	err := f.Validate()
	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, map[string]string{"addresses.1.city": "City is required"}, f.Errors())
}

func TestReset_fromItem(t *testing.T) {
	f := newLocationForm(t)
	f.Reset(map[string]any{
		"id":   float64(4),
		"name": "Depot",
		"addresses": []any{
			map[string]any{"id": float64(10), "street": "a", "city": "x", "isDefault": true},
			map[string]any{"id": float64(11), "street": "b", "city": "y", "isDefault": true},
		},
	})

	assert.Equal(t, "Depot", f.Value("name"))
	assert.Equal(t, true, f.Value("isActive"), "missing field falls back to default")

	groups := f.Groups("addresses")
	require.Len(t, groups, 2)
	assert.True(t, groups[0].IsDefault)
	assert.False(t, groups[1].IsDefault, "duplicate defaults are normalized")

	body := f.Payload()
	addresses := body["addresses"].([]any)
	assert.Equal(t, float64(11), addresses[1].(map[string]any)["id"], "nested ids survive for updates")
}

func TestReset_emptyKeepsMinEntries(t *testing.T) {
	f := newLocationForm(t)
	_, _ = f.AppendGroup("addresses", nil)
	f.Reset(nil)

	groups := f.Groups("addresses")
	require.Len(t, groups, 1)
	assert.True(t, groups[0].IsDefault)
}

func TestSetTarget_makesUpdate(t *testing.T) {
	f := New("users")
	f.Register("firstName")
	f.SetTarget("12")

	req, err := f.Submit()
	require.NoError(t, err)
	assert.Equal(t, model.MutationUpdate, req.Kind)
	assert.Equal(t, "12", req.ID)
}

func TestEnsureSingleDefault(t *testing.T) {
	assert.NoError(t, EnsureSingleDefault(nil))
	assert.NoError(t, EnsureSingleDefault([]Group{{ID: 1, IsDefault: true}, {ID: 2}}))
	assert.ErrorIs(t, EnsureSingleDefault([]Group{{ID: 1}, {ID: 2}}), ErrNoDefault)
	assert.ErrorIs(t, EnsureSingleDefault([]Group{{ID: 1, IsDefault: true}, {ID: 2, IsDefault: true}}), ErrMultipleDefaults)
}

func TestNormalizeDefaults(t *testing.T) {
	in := []Group{{ID: 1}, {ID: 2, IsDefault: true}, {ID: 3, IsDefault: true}}
	out := NormalizeDefaults(in)
	assert.False(t, out[0].IsDefault)
	assert.True(t, out[1].IsDefault)
	assert.False(t, out[2].IsDefault)
	assert.True(t, in[2].IsDefault, "input is not mutated")

	out = NormalizeDefaults([]Group{{ID: 1}, {ID: 2}})
	assert.True(t, out[0].IsDefault)
	assert.Empty(t, NormalizeDefaults(nil))
}

func TestFromDescriptor(t *testing.T) {
	desc := model.ResourceDescriptor{Name: "locations", Forms: []model.FormSpec{locationSpec()}}

	f, err := FromDescriptor(desc, "")
	require.NoError(t, err)
	assert.Len(t, f.Groups("addresses"), 1)

	_, err = FromDescriptor(desc, "missing")
	assert.Error(t, err)

	desc.Forms[0].Fields[0].Rules = []model.RuleSpec{{Kind: model.RulePattern, Value: "("}}
	_, err = FromDescriptor(desc, "location")
	assert.Error(t, err)
}

func TestValidate_countsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.InitMetrics(reg)
	f := newLocationForm(t, WithMetrics(m))

	_ = f.Validate()
	_ = f.Validate()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ValidationFailuresTotal.WithLabelValues("locations")))
}
