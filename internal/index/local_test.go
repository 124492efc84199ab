package index

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/models"
)

func testLocal(t *testing.T, opts ...LocalOption) *Local {
	t.Helper()
	l, err := OpenLocal(filepath.Join(t.TempDir(), "index.db"), opts...)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func day(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func doc(path, name string, data string) Document {
	return Document{
		Path:     path,
		Name:     name,
		Kind:     models.KindDocument,
		Category: models.CategoryGeneralTips,
		Priority: PriorityDefault,
		Data:     []byte(data),
	}
}

func noteDoc(t *testing.T, path string, n models.Note) Document {
	t.Helper()
	data, err := n.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return Document{
		Path:           path,
		Name:           filepath.Base(path),
		Kind:           models.KindNote,
		Category:       n.Category,
		Priority:       PriorityNote,
		Data:           data,
		Location:       n.Location,
		EffectiveStart: n.EffectiveStart,
		EffectiveEnd:   n.EffectiveEnd,
	}
}

func TestSchemaCreation(t *testing.T) {
	l := testLocal(t)
	var count int
	if err := l.conn.QueryRow(`SELECT count(*) FROM records`).Scan(&count); err != nil {
		t.Fatalf("records table missing: %v", err)
	}
	if err := l.conn.QueryRow(`SELECT count(*) FROM chunks`).Scan(&count); err != nil {
		t.Fatalf("chunks table missing: %v", err)
	}
}

func TestAddAndRecord(t *testing.T) {
	l := testLocal(t)
	ctx := context.Background()
	d := doc("other-content/General_Tips/intake.md", "intake.md", "---\ntitle: Intake\ntags: [front-desk]\n---\nCheck insurance first.\n")
	if err := l.Add(ctx, d); err != nil {
		t.Fatalf("Add: %v", err)
	}
	rec, err := l.Record(ctx, d.Path)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Title != "Intake" {
		t.Errorf("title = %q, want %q", rec.Title, "Intake")
	}
	if rec.Chunks != 1 || rec.Priority != PriorityDefault {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Tags) != 1 || rec.Tags[0] != "front-desk" {
		t.Errorf("tags = %v", rec.Tags)
	}
}

func TestAddReplacesExactlyOneRecord(t *testing.T) {
	l := testLocal(t)
	ctx := context.Background()
	path := "other-content/Preps/ct.txt"
	if err := l.Add(ctx, doc(path, "ct.txt", strings.Repeat("contrast ", 200))); err != nil {
		t.Fatalf("Add: %v", err)
	}
	first, _ := l.Record(ctx, path)
	if first.Chunks < 2 {
		t.Fatalf("expected several chunks, got %d", first.Chunks)
	}
	if err := l.Add(ctx, doc(path, "ct.txt", "short replacement")); err != nil {
		t.Fatalf("re-Add: %v", err)
	}
	paths, _ := l.Paths(ctx)
	if len(paths) != 1 {
		t.Fatalf("paths = %v, want one", paths)
	}
	second, _ := l.Record(ctx, path)
	if second.Chunks != 1 {
		t.Errorf("chunks = %d, want 1 after replace", second.Chunks)
	}
}

func TestAddUnchangedIsNoop(t *testing.T) {
	l := testLocal(t)
	ctx := context.Background()
	d := doc("other-content/Other/a.txt", "a.txt", "same")
	_ = l.Add(ctx, d)
	first, _ := l.Record(ctx, d.Path)
	time.Sleep(10 * time.Millisecond)
	_ = l.Add(ctx, d)
	second, _ := l.Record(ctx, d.Path)
	if !first.IndexedAt.Equal(second.IndexedAt) {
		t.Errorf("unchanged content was re-indexed")
	}
}

func TestAddBinaryKeepsRecord(t *testing.T) {
	l := testLocal(t)
	ctx := context.Background()
	d := doc("other-content/Preps/scan.pdf", "scan.pdf", "%PDF-1.7 binary")
	if err := l.Add(ctx, d); err != nil {
		t.Fatalf("Add: %v", err)
	}
	rec, err := l.Record(ctx, d.Path)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Chunks != 0 || rec.Title != "scan.pdf" {
		t.Errorf("record = %+v", rec)
	}
}

func TestAddMalformedNoteIsSyncError(t *testing.T) {
	l := testLocal(t)
	d := Document{Path: "other-content/Other_Notes/x.json", Name: "x.json", Kind: models.KindNote, Data: []byte("{")}
	err := l.Add(context.Background(), d)
	if !errors.Is(err, apperr.ErrSync) {
		t.Errorf("err = %v, want sync error", err)
	}
}

func TestRemove(t *testing.T) {
	l := testLocal(t)
	ctx := context.Background()
	d := doc("other-content/Other/del.txt", "del.txt", "bye")
	_ = l.Add(ctx, d)

	if err := l.Remove(ctx, d.Path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := l.Record(ctx, d.Path); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Record after remove err = %v", err)
	}
	var chunks int
	_ = l.conn.QueryRow(`SELECT count(*) FROM chunks`).Scan(&chunks)
	if chunks != 0 {
		t.Errorf("chunks left = %d", chunks)
	}
	if err := l.Remove(ctx, d.Path); err != nil {
		t.Errorf("removing an unknown path should succeed: %v", err)
	}
}

func TestReset(t *testing.T) {
	l := testLocal(t)
	ctx := context.Background()
	_ = l.Add(ctx, doc("a/b/one.txt", "one.txt", "one"))
	_ = l.Add(ctx, doc("a/b/two.txt", "two.txt", "two"))
	if err := l.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	paths, _ := l.Paths(ctx)
	if len(paths) != 0 {
		t.Errorf("paths after reset = %v", paths)
	}
}

func TestSearch_PriorityAndWindow(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	l := testLocal(t, WithNow(func() time.Time { return now }))
	ctx := context.Background()

	_ = l.Add(ctx, doc("other-content/General_Tips/parking.txt", "parking.txt", "parking garage on 98th street"))
	_ = l.Add(ctx, noteDoc(t, "epic-scheduling/Scheduling_Notes/LOC_MSM__Parking.json", models.Note{
		Title: "Parking", Content: "parking moved to the 99th street garage",
		Category: models.CategoryScheduling, Location: "MSM",
		EffectiveStart: day("2024-06-01"), EffectiveEnd: day("2024-06-30"),
	}))
	_ = l.Add(ctx, noteDoc(t, "epic-scheduling/Scheduling_Notes/LOC_MSB__Old.json", models.Note{
		Title: "Old", Content: "parking closed for renovation",
		Category: models.CategoryScheduling, Location: "MSB",
		EffectiveEnd: day("2024-06-14"),
	}))

	results, err := l.Search(ctx, "parking", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2 (expired note excluded): %+v", len(results), results)
	}
	if results[0].Kind != models.KindNote {
		t.Errorf("first hit = %s, want the note to outrank the document", results[0].Path)
	}
	for _, r := range results {
		if strings.Contains(r.Path, "LOC_MSB__Old") {
			t.Errorf("expired note returned: %s", r.Path)
		}
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	l := testLocal(t)
	results, err := l.Search(context.Background(), "  ", 10)
	if err != nil || results != nil {
		t.Errorf("Search(blank) = %v, %v", results, err)
	}
}

type fakeEmbedder struct{}

// vector counts a few keywords so similarity is predictable.
func (fakeEmbedder) vector(s string) []float32 {
	s = strings.ToLower(s)
	return []float32{
		float32(strings.Count(s, "mri")),
		float32(strings.Count(s, "parking")),
		float32(strings.Count(s, "contrast")) + 0.01,
	}
}

func (f fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = f.vector(s)
	}
	return out, nil
}

func (f fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.vector(text), nil
}

func TestSearch_Vector(t *testing.T) {
	l := testLocal(t, WithEmbedder(fakeEmbedder{}))
	ctx := context.Background()
	_ = l.Add(ctx, doc("other-content/Preps/mri.txt", "mri.txt", "MRI prep: remove metal. MRI takes an hour."))
	_ = l.Add(ctx, doc("other-content/General_Tips/parking.txt", "parking.txt", "parking garage"))

	results, err := l.Search(ctx, "mri", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "other-content/Preps/mri.txt" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Distance > 0.01 {
		t.Errorf("distance = %f, want near zero", results[0].Distance)
	}
}

func TestRank(t *testing.T) {
	hits := []SearchResult{
		{Path: "doc", Priority: 3, Distance: 0.5},
		{Path: "note", Priority: 1, Distance: 0.9},
		{Path: "doc", Priority: 3, Distance: 0.2},
		{Path: "mid", Priority: 2, Distance: 0.5},
	}
	got := rank(hits, 10)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// note 0.27, doc 0.2, mid 0.35
	if got[0].Path != "doc" || got[1].Path != "note" || got[2].Path != "mid" {
		t.Errorf("order = %s, %s, %s", got[0].Path, got[1].Path, got[2].Path)
	}
}

func TestNewDocument(t *testing.T) {
	n := models.Note{Title: "T", Content: "C", Category: models.CategoryScheduling, Location: "MSM", EffectiveStart: day("2024-01-01")}
	data, _ := n.Encode()
	a := models.Artifact{Name: "LOC_MSM__T.json", Kind: models.KindNote, Category: models.CategoryScheduling,
		Partition: models.Partition{Bucket: "epic-scheduling", Folder: "Scheduling_Notes"}}
	d, err := NewDocument(a, data, 3)
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	if d.Priority != PriorityNote || d.Location != "MSM" || d.EffectiveStart == nil {
		t.Errorf("document = %+v", d)
	}
	if d.Path != "epic-scheduling/Scheduling_Notes/LOC_MSM__T.json" {
		t.Errorf("path = %q", d.Path)
	}

	a = models.Artifact{Name: "x.pdf", Kind: models.KindDocument, Partition: models.Partition{Bucket: "b", Folder: "f"}}
	if d, _ := NewDocument(a, nil, 0); d.Priority != PriorityDefault {
		t.Errorf("default priority = %d", d.Priority)
	}
	if _, err := NewDocument(a, nil, 7); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}
