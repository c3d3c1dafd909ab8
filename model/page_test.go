package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage_Normalize(t *testing.T) {
	p := Page[int]{Items: []int{1, 2, 3, 4}, TotalCount: 2, PageNumber: 1, PageSize: 3}.Normalize()
	assert.Len(t, p.Items, 3)
	assert.Equal(t, 3, p.TotalCount)

	empty := Page[int]{PageNumber: 1, PageSize: 10}.Normalize()
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalCount)
}

func TestSlice(t *testing.T) {
	all := make([]int, 23)
	for i := range all {
		all[i] = i + 1
	}

	third := Slice(all, 3, 10)
	assert.Equal(t, []int{21, 22, 23}, third.Items)
	assert.Equal(t, 23, third.TotalCount)
	assert.Equal(t, 3, third.PageNumber)

	beyond := Slice(all, 5, 10)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 23, beyond.TotalCount)
}

func TestSlice_hugeBoundsDoNotOverflow(t *testing.T) {
	all := []int{1, 2, 3}

	tests := []struct {
		name           string
		page, pageSize int
		want           []int
	}{
		{name: "first page of max size", page: 1, pageSize: math.MaxInt, want: []int{1, 2, 3}},
		{name: "second page of max size", page: 2, pageSize: math.MaxInt, want: []int{}},
		{name: "max page", page: math.MaxInt, pageSize: 2, want: []int{}},
		{name: "max page and size", page: math.MaxInt, pageSize: math.MaxInt, want: []int{}},
		{name: "last partial page", page: 2, pageSize: 2, want: []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Slice(all, tt.page, tt.pageSize)
			assert.Equal(t, tt.want, p.Items)
			assert.Equal(t, 3, p.TotalCount)
			assert.Equal(t, tt.pageSize, p.PageSize)
		})
	}
}

func TestWindow(t *testing.T) {
	start, end := Window(0, 1, 10)
	assert.Equal(t, [2]int{0, 0}, [2]int{start, end})
	start, end = Window(10, 2, 5)
	assert.Equal(t, [2]int{5, 10}, [2]int{start, end})
	start, end = Window(10, 3, 5)
	assert.Equal(t, [2]int{10, 10}, [2]int{start, end})
	start, end = Window(10, 0, 5)
	assert.Equal(t, [2]int{10, 10}, [2]int{start, end}, "invalid page is empty")
}

func TestQueryKey_structuralEquality(t *testing.T) {
	a := Key("users", 2, "jane")
	b := Key("users", "2", "jane")
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.String(), b.String())
	assert.False(t, a.Equal(Key("users", 2)))
}

func TestQueryKey_HasPrefix(t *testing.T) {
	k := Key("folders", nil)
	assert.True(t, k.HasPrefix(Key("folders")))
	assert.False(t, k.HasPrefix(Key("folderTree")))
	assert.False(t, Key("folderTree").HasPrefix(Key("folders")))
	assert.True(t, k.HasPrefix(QueryKey{}))
}

func TestQueryKey_nilPointerPart(t *testing.T) {
	var parent *int64
	assert.Equal(t, QueryKey{"folders", ""}, Key("folders", parent))
	id := int64(7)
	assert.Equal(t, QueryKey{"folders", "7"}, Key("folders", &id))
}

func TestParseKey_roundTrip(t *testing.T) {
	k := Key("pages", 1, "")
	assert.True(t, ParseKey(k.String()).Equal(k))
}

func TestResourceDescriptor_messages(t *testing.T) {
	d := ResourceDescriptor{Name: "folders", Singular: "folder", Invalidates: []string{"folderTree"}}
	assert.Equal(t, "Folder created successfully", d.SuccessMessage(MutationCreate))
	assert.Equal(t, "Failed to create folder", d.FailureMessage(MutationCreate))
	assert.Equal(t, "Folder deleted successfully", d.SuccessMessage(MutationDelete))

	keys := d.InvalidationKeys("folders")
	require.Len(t, keys, 2)
	assert.Equal(t, Key("folders"), keys[0])
	assert.Equal(t, Key("folderTree"), keys[1])
}

func TestResourceDescriptor_Form(t *testing.T) {
	d := ResourceDescriptor{Forms: []FormSpec{{ID: "create"}, {ID: "update"}}}

	f, ok := d.Form("update")
	require.True(t, ok)
	assert.Equal(t, "update", f.ID)

	f, ok = d.Form("")
	require.True(t, ok)
	assert.Equal(t, "create", f.ID)

	_, ok = d.Form("missing")
	assert.False(t, ok)
}

func TestAccessor_FieldAndDerived(t *testing.T) {
	loc := Location{
		Name: "HQ",
		ContactDetails: []ContactDetails{
			{Email: "hq@example.com", IsDefault: true},
		},
	}

	name := Field[Location]("name")
	assert.Equal(t, AccessorField, name.Kind())
	assert.Equal(t, "HQ", name.Value(loc))

	nested := Field[Location]("contactDetails.0.email")
	assert.Equal(t, "hq@example.com", nested.Value(loc))

	contact := Derived(func(l Location) any { return l.PrimaryContact() })
	assert.Equal(t, AccessorDerived, contact.Kind())
	assert.Equal(t, "hq@example.com", contact.Value(loc))
	assert.Equal(t, "No contact", contact.Value(Location{}))
}

func TestActionDescriptor_Visible(t *testing.T) {
	always := ActionDescriptor[Location]{Label: "Edit"}
	assert.True(t, always.Visible(Location{}))

	notMain := ActionDescriptor[Location]{Label: "Delete", Show: func(l Location) bool { return !l.IsMainLocation }}
	assert.False(t, notMain.Visible(Location{IsMainLocation: true}))
	assert.True(t, notMain.Visible(Location{}))
}

func TestUser_DisplayName(t *testing.T) {
	assert.Equal(t, "Jane Doe", User{FirstName: "Jane", LastName: "Doe"}.DisplayName())
}
