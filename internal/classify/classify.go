// Package classify maps incoming artifacts to storage partitions.
//
// The routing table is the single source of truth for folder names: the
// upload path and the catalog listing path both go through it.
package classify

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/models"
)

// Bucket names.
const (
	BucketScheduling = "epic-scheduling"
	BucketContent    = "other-content"
)

// Folder names.
const (
	FolderLocationsRooms  = "Locations_Rooms"
	FolderSchedulingNotes = "Scheduling_Notes"
	FolderGeneralTips     = "General_Tips"
	FolderPreps           = "Preps"
	FolderOther           = "Other"
	FolderOtherNotes      = "Other_Notes"
)

type routeKey struct {
	kind     models.Kind
	category models.Category
}

var routes = map[routeKey]models.Partition{
	{models.KindDocument, models.CategoryLocationsRooms}: {Bucket: BucketScheduling, Folder: FolderLocationsRooms},
	{models.KindDocument, models.CategoryScheduling}:     {Bucket: BucketScheduling, Folder: FolderSchedulingNotes},
	{models.KindDocument, models.CategoryGeneralTips}:    {Bucket: BucketContent, Folder: FolderGeneralTips},
	{models.KindDocument, models.CategoryPreps}:          {Bucket: BucketContent, Folder: FolderPreps},
	{models.KindDocument, models.CategoryOther}:          {Bucket: BucketContent, Folder: FolderOther},

	{models.KindNote, models.CategoryLocationsRooms}: {Bucket: BucketScheduling, Folder: FolderLocationsRooms},
	{models.KindNote, models.CategoryScheduling}:     {Bucket: BucketScheduling, Folder: FolderSchedulingNotes},
	{models.KindNote, models.CategoryGeneralTips}:    {Bucket: BucketContent, Folder: FolderGeneralTips},
	{models.KindNote, models.CategoryPreps}:          {Bucket: BucketContent, Folder: FolderPreps},
	{models.KindNote, models.CategoryOther}:          {Bucket: BucketContent, Folder: FolderOtherNotes},
}

// folderCategories is the inverse used when listing.
var folderCategories = map[string]models.Category{
	FolderLocationsRooms:  models.CategoryLocationsRooms,
	FolderSchedulingNotes: models.CategoryScheduling,
	FolderGeneralTips:     models.CategoryGeneralTips,
	FolderPreps:           models.CategoryPreps,
	FolderOther:           models.CategoryOther,
	FolderOtherNotes:      models.CategoryOther,
}

// partitionOrder is the order in which the catalog scans partitions.
var partitionOrder = []models.Partition{
	{Bucket: BucketScheduling, Folder: FolderLocationsRooms},
	{Bucket: BucketScheduling, Folder: FolderSchedulingNotes},
	{Bucket: BucketContent, Folder: FolderGeneralTips},
	{Bucket: BucketContent, Folder: FolderPreps},
	{Bucket: BucketContent, Folder: FolderOther},
	{Bucket: BucketContent, Folder: FolderOtherNotes},
}

var tabularExtensions = map[string]bool{
	"csv": true, "tsv": true, "xls": true, "xlsx": true,
}

var unsafeNoteChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Route returns the partition for kind and category.
func Route(kind models.Kind, category models.Category) (models.Partition, error) {
	p, ok := routes[routeKey{kind, category}]
	if !ok {
		return models.Partition{}, apperr.New(apperr.KindValidation, "route", "",
			fmt.Sprintf("no partition for %s in category %q", kind, category))
	}
	return p, nil
}

// RouteDocument validates an uploaded file and returns its artifact description.
// declaredCategory may be a display name or a slug.
func RouteDocument(declaredCategory, declaredExt, filename string) (models.Artifact, error) {
	if err := CheckName(filename); err != nil {
		return models.Artifact{}, err
	}
	category, ok := models.ParseCategory(declaredCategory)
	if !ok {
		return models.Artifact{}, apperr.New(apperr.KindValidation, "route", filename,
			fmt.Sprintf("unknown category %q", declaredCategory))
	}
	if err := CheckExtension(declaredExt, filename); err != nil {
		return models.Artifact{}, err
	}
	p, err := Route(models.KindDocument, category)
	if err != nil {
		return models.Artifact{}, err
	}
	return models.Artifact{
		Name:      filename,
		Kind:      models.KindDocument,
		Category:  category,
		Partition: p,
		Extension: models.Ext(filename),
	}, nil
}

// RouteNote returns the artifact a note is stored as.
func RouteNote(n *models.Note) (models.Artifact, error) {
	p, err := Route(models.KindNote, n.Category)
	if err != nil {
		return models.Artifact{}, err
	}
	return models.Artifact{
		Name:      NoteFileName(n),
		Kind:      models.KindNote,
		Category:  n.Category,
		Partition: p,
		Extension: models.NoteExtension,
		CreatedAt: n.CreatedAt,
	}, nil
}

// CheckExtension rejects a file whose actual extension differs from the
// declared one. Comparison is case-insensitive and ignores a leading dot.
func CheckExtension(declared, filename string) error {
	want := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(declared)), ".")
	got := models.Ext(filename)
	if want == "" {
		return apperr.New(apperr.KindValidation, "route", filename, "declared extension is required")
	}
	if got == "" {
		return apperr.New(apperr.KindValidation, "route", filename, "file has no extension")
	}
	if want != got {
		return apperr.New(apperr.KindValidation, "route", filename,
			fmt.Sprintf("file extension %q does not match declared extension %q", got, want))
	}
	return nil
}

// CheckName rejects names that are not safe as a single object key segment.
func CheckName(name string) error {
	bad := func(msg string) error {
		return apperr.New(apperr.KindValidation, "route", name, msg)
	}
	switch {
	case strings.TrimSpace(name) == "":
		return bad("name is required")
	case strings.ContainsAny(name, `/\`):
		return bad("name must not contain path separators")
	case strings.Contains(name, ".."):
		return bad("name must not contain '..'")
	case strings.HasPrefix(name, "."):
		return bad("name must not start with '.'")
	case len(name) > 255:
		return bad("name is too long")
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return bad("name contains non-printable characters")
		}
	}
	return nil
}

// NoteFileName derives the storage name of a note. Scheduling notes carry
// their location as a LOC_ prefix.
func NoteFileName(n *models.Note) string {
	title := unsafeNoteChars.ReplaceAllString(strings.TrimSpace(n.Title), "_")
	if n.Category == models.CategoryScheduling && n.Location != "" {
		loc := unsafeNoteChars.ReplaceAllString(n.Location, "_")
		return "LOC_" + loc + "__" + title + "." + models.NoteExtension
	}
	return title + "." + models.NoteExtension
}

// Partitions returns every partition the catalog scans, in display order.
func Partitions() []models.Partition {
	out := make([]models.Partition, len(partitionOrder))
	copy(out, partitionOrder)
	return out
}

// CategoryForFolder returns the category of objects found in folder.
func CategoryForFolder(folder string) (models.Category, bool) {
	c, ok := folderCategories[folder]
	return c, ok
}

// KindForName derives the artifact kind from its extension.
func KindForName(name string) models.Kind {
	if models.Ext(name) == models.NoteExtension {
		return models.KindNote
	}
	return models.KindDocument
}

// IsTabular reports whether ext names a spreadsheet-like format.
func IsTabular(ext string) bool {
	return tabularExtensions[strings.TrimPrefix(strings.ToLower(ext), ".")]
}

// NeedsTransform reports whether a stored artifact triggers the columnar
// conversion job.
func NeedsTransform(a models.Artifact) bool {
	return a.Kind == models.KindDocument &&
		a.Category == models.CategoryLocationsRooms &&
		IsTabular(a.Extension)
}

// Indexable reports whether an artifact gets an index record. Tabular
// location uploads and their derived columnar output feed the scheduling
// dataset, not the search index.
func Indexable(a models.Artifact) bool {
	if a.Category == models.CategoryLocationsRooms && a.Kind == models.KindDocument {
		return !IsTabular(a.Extension) && a.Extension != "parquet"
	}
	return true
}
