package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kbsync/internal/models"
	"github.com/starford/kbsync/internal/storage"
	"github.com/starford/kbsync/internal/testutil"
)

var (
	rooms = models.Partition{Bucket: "epic-scheduling", Folder: "Locations_Rooms"}
	sched = models.Partition{Bucket: "epic-scheduling", Folder: "Scheduling_Notes"}
	tips  = models.Partition{Bucket: "other-content", Folder: "General_Tips"}
	notes = models.Partition{Bucket: "other-content", Folder: "Other_Notes"}
)

func seed(t *testing.T, s *storage.FS, p models.Partition, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := s.Put(context.Background(), p, n, []byte("x"), storage.PutOptions{})
		require.NoError(t, err)
	}
}

func TestList_TagsKindAndCategory(t *testing.T) {
	_, store := testutil.TestStore(t)
	seed(t, store, rooms, "rooms_2024.csv", "rooms_2024.parquet", "canonical_rooms.parquet")
	seed(t, store, sched, "LOC_MSM__Parking.json", "epic_guide.pdf")
	seed(t, store, notes, "Wifi.json")
	seed(t, store, tips, ".emptyFolderPlaceholder")

	r := New(store, WithHidden("canonical_rooms.parquet"))
	entries, err := r.List(context.Background())
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{
		"rooms_2024.csv", "rooms_2024.parquet",
		"LOC_MSM__Parking.json", "epic_guide.pdf",
		"Wifi.json",
	}, names)

	byName := map[string]models.CatalogEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.Equal(t, models.CategoryLocationsRooms, byName["rooms_2024.parquet"].Category)
	assert.Equal(t, models.KindDocument, byName["rooms_2024.parquet"].Kind)
	assert.Equal(t, models.KindNote, byName["LOC_MSM__Parking.json"].Kind)
	assert.Equal(t, models.CategoryScheduling, byName["epic_guide.pdf"].Category)
	assert.Equal(t, models.CategoryOther, byName["Wifi.json"].Category)
	assert.Equal(t, "epic-scheduling/Locations_Rooms/rooms_2024.csv", byName["rooms_2024.csv"].Path)
	assert.Equal(t, "/files/epic-scheduling/Locations_Rooms/rooms_2024.csv", byName["rooms_2024.csv"].URL)
}

func TestList_Idempotent(t *testing.T) {
	_, store := testutil.TestStore(t)
	seed(t, store, rooms, "b.csv", "a.csv")
	seed(t, store, tips, "tips.md")
	r := New(store)

	first, err := r.List(context.Background())
	require.NoError(t, err)
	second, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

type flakyLister struct {
	storage.Provider
	broken models.Partition
}

func (f flakyLister) List(ctx context.Context, p models.Partition) ([]storage.ObjectInfo, error) {
	if p == f.broken {
		return nil, errors.New("bucket unavailable")
	}
	return f.Provider.List(ctx, p)
}

func TestList_PartialFailure(t *testing.T) {
	_, store := testutil.TestStore(t)
	seed(t, store, rooms, "a.csv")
	seed(t, store, tips, "tips.md")

	r := New(flakyLister{Provider: store, broken: tips})
	entries, err := r.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other-content/General_Tips")
	require.Len(t, entries, 1)
	assert.Equal(t, "a.csv", entries[0].Name)
}

func sample() []models.CatalogEntry {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return []models.CatalogEntry{
		{Name: "rooms_2024.csv", Kind: models.KindDocument, Category: models.CategoryLocationsRooms, UpdatedAt: now},
		{Name: "LOC_MSM__Parking.json", Kind: models.KindNote, Category: models.CategoryScheduling, UpdatedAt: now},
		{Name: "MRI_prep.pdf", Kind: models.KindDocument, Category: models.CategoryPreps, UpdatedAt: now},
		{Name: "Wifi.json", Kind: models.KindNote, Category: models.CategoryOther, UpdatedAt: now},
	}
}

func TestFilter(t *testing.T) {
	entries := sample()
	cases := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"zero matches all", Filter{}, []string{"rooms_2024.csv", "LOC_MSM__Parking.json", "MRI_prep.pdf", "Wifi.json"}},
		{"kind", Filter{Kind: models.KindNote}, []string{"LOC_MSM__Parking.json", "Wifi.json"}},
		{"category", Filter{Category: models.CategoryPreps}, []string{"MRI_prep.pdf"}},
		{"query name", Filter{Query: "parking"}, []string{"LOC_MSM__Parking.json"}},
		{"query category", Filter{Query: "locations"}, []string{"rooms_2024.csv"}},
		{"combined", Filter{Query: "json", Kind: models.KindNote, Category: models.CategoryOther}, []string{"Wifi.json"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var got []string
			for _, e := range c.filter.Apply(entries) {
				got = append(got, e.Name)
			}
			assert.Equal(t, c.want, got)
		})
	}
	assert.Equal(t, sample(), entries, "Apply must not mutate its input")
}

func TestNewFilter(t *testing.T) {
	f, err := NewFilter(" mri ", "documents", "general-tips")
	require.NoError(t, err)
	assert.Equal(t, Filter{Query: "mri", Kind: models.KindDocument, Category: models.CategoryGeneralTips}, f)

	f, err = NewFilter("", "all", "All")
	require.NoError(t, err)
	assert.Equal(t, Filter{}, f)

	_, err = NewFilter("", "video", "")
	assert.Error(t, err)
	_, err = NewFilter("", "", "billing")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sample())
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Documents)
	assert.Equal(t, 2, s.Notes)
	assert.Equal(t, 1, s.ByCategory[models.CategoryPreps])
}
