package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/models"
)

func TestRouteIsTotal(t *testing.T) {
	for _, kind := range []models.Kind{models.KindDocument, models.KindNote} {
		for _, c := range models.Categories {
			p, err := Route(kind, c)
			require.NoError(t, err, "%s/%s", kind, c)
			assert.NotEmpty(t, p.Bucket)
			assert.NotEmpty(t, p.Folder)

			// Every routed folder must be scanned by the catalog and map back
			// to the same category.
			assert.Contains(t, Partitions(), p)
			got, ok := CategoryForFolder(p.Folder)
			require.True(t, ok, "folder %s has no category", p.Folder)
			assert.Equal(t, c, got)
		}
	}
}

func TestRouteTable(t *testing.T) {
	cases := []struct {
		kind models.Kind
		cat  models.Category
		want string
	}{
		{models.KindDocument, models.CategoryLocationsRooms, "epic-scheduling/Locations_Rooms"},
		{models.KindDocument, models.CategoryGeneralTips, "other-content/General_Tips"},
		{models.KindDocument, models.CategoryPreps, "other-content/Preps"},
		{models.KindDocument, models.CategoryOther, "other-content/Other"},
		{models.KindNote, models.CategoryScheduling, "epic-scheduling/Scheduling_Notes"},
		{models.KindNote, models.CategoryOther, "other-content/Other_Notes"},
	}
	for _, tc := range cases {
		p, err := Route(tc.kind, tc.cat)
		require.NoError(t, err)
		assert.Equal(t, tc.want, p.String())
	}
}

func TestRouteUnknownCategory(t *testing.T) {
	_, err := Route(models.KindDocument, models.Category("Radiology"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = RouteDocument("Radiology", "pdf", "a.pdf")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRouteDocument(t *testing.T) {
	a, err := RouteDocument("Locations/Rooms", "csv", "rooms_2024.csv")
	require.NoError(t, err)
	assert.Equal(t, "epic-scheduling/Locations_Rooms", a.Partition.String())
	assert.Equal(t, models.CategoryLocationsRooms, a.Category)
	assert.Equal(t, "epic-scheduling/Locations_Rooms/rooms_2024.csv", a.Path())
	assert.True(t, NeedsTransform(a))
	assert.False(t, Indexable(a))

	a, err = RouteDocument("general-tips", ".PDF", "Tips.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryGeneralTips, a.Category)
	assert.False(t, NeedsTransform(a))
	assert.True(t, Indexable(a))
}

func TestCheckExtension(t *testing.T) {
	assert.NoError(t, CheckExtension("csv", "rooms.CSV"))
	assert.NoError(t, CheckExtension(".Pdf", "x.pdf"))

	for _, tc := range []struct{ declared, name string }{
		{"pdf", "rooms.csv"},
		{"", "rooms.csv"},
		{"csv", "rooms"},
		{"csv", "rooms.csv.pdf"},
	} {
		err := CheckExtension(tc.declared, tc.name)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%q vs %q", tc.declared, tc.name)
	}
}

func TestCheckName(t *testing.T) {
	assert.NoError(t, CheckName("rooms 2024 (final).csv"))
	for _, name := range []string{"", "  ", "a/b.csv", `a\b.csv`, "../x.csv", ".hidden", "bad\x00.csv"} {
		assert.ErrorIs(t, CheckName(name), apperr.ErrValidation, "name %q", name)
	}
}

func TestNoteFileName(t *testing.T) {
	n := &models.Note{Title: "MRI down: room 2!", Category: models.CategoryGeneralTips}
	assert.Equal(t, "MRI_down__room_2_.json", NoteFileName(n))

	n = &models.Note{Title: "Closed", Category: models.CategoryScheduling, Location: "1176 5TH AVE"}
	assert.Equal(t, "LOC_1176_5TH_AVE__Closed.json", NoteFileName(n))

	a, err := RouteNote(n)
	require.NoError(t, err)
	assert.Equal(t, "epic-scheduling/Scheduling_Notes", a.Partition.String())
	assert.Equal(t, models.KindNote, a.Kind)
}

func TestKindForName(t *testing.T) {
	assert.Equal(t, models.KindNote, KindForName("x.JSON"))
	assert.Equal(t, models.KindDocument, KindForName("x.pdf"))
	assert.Equal(t, models.KindDocument, KindForName("rooms_2024.parquet"))
}
