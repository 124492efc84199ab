package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"Locations/Rooms": CategoryLocationsRooms,
		"locations-rooms": CategoryLocationsRooms,
		"Locations_Rooms": CategoryLocationsRooms,
		"general tips":    CategoryGeneralTips,
		"GENERAL-TIPS":    CategoryGeneralTips,
		"preps":           CategoryPreps,
		"Scheduling":      CategoryScheduling,
		"other":           CategoryOther,
	}
	for in, want := range cases {
		got, ok := ParseCategory(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "radiology", "/"} {
		_, ok := ParseCategory(in)
		assert.False(t, ok, in)
	}
}

func TestNoteValidate(t *testing.T) {
	n := Note{Title: "t", Content: "c", Category: CategoryScheduling}
	assert.Error(t, n.Validate(), "scheduling note without location")

	n.Location = "MSM"
	assert.NoError(t, n.Validate())
	assert.NoError(t, n.Validate("MSM", "MSB"))
	assert.Error(t, n.Validate("MSB"))

	assert.Error(t, (&Note{Content: "c", Category: CategoryOther}).Validate())
	assert.Error(t, (&Note{Title: "t", Category: CategoryOther}).Validate())
	assert.Error(t, (&Note{Title: "t", Content: "c", Category: "Radiology"}).Validate())
	assert.NoError(t, (&Note{Title: "t", Content: "c", Category: CategoryOther}).Validate("MSM"))
}

func TestNoteValidateWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	n := Note{Title: "t", Content: "c", Category: CategoryPreps, EffectiveStart: &start, EffectiveEnd: &end}
	assert.Error(t, n.Validate())

	end = start.AddDate(0, 0, 5)
	assert.NoError(t, n.Validate())
	assert.True(t, n.ActiveOn(start))
	assert.True(t, n.ActiveOn(end))
	assert.False(t, n.ActiveOn(start.AddDate(0, 0, -1)))
	assert.False(t, n.ActiveOn(end.AddDate(0, 0, 1)))
}

func TestNoteEncodeDecode(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := Note{Title: "Prep", Content: "Fast 4h", Category: CategoryPreps, CreatedAt: created}
	data, err := n.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "Prep"`)
	assert.NotContains(t, string(data), "location")

	back, err := DecodeNote(data)
	require.NoError(t, err)
	assert.Equal(t, n.Title, back.Title)
	assert.Equal(t, n.Category, back.Category)
	assert.Equal(t, "Prep\n\nFast 4h", back.Text())
}
