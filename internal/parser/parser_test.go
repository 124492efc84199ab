package parser

import (
	"strings"
	"testing"
)

func TestExtract_MarkdownFrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: MRI Prep\ntags:\n  - mri\n  - prep\n---\n# Heading\nFast 4 hours before.\n")
	r, err := Extract("mri.md", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "MRI Prep" {
		t.Errorf("title = %q, want %q", r.Title, "MRI Prep")
	}
	if len(r.Tags) != 2 || r.Tags[0] != "mri" || r.Tags[1] != "prep" {
		t.Errorf("tags = %v, want [mri prep]", r.Tags)
	}
	if r.Text != "# Heading\nFast 4 hours before.\n" {
		t.Errorf("text = %q", r.Text)
	}
}

func TestExtract_MarkdownNoFrontmatter(t *testing.T) {
	r, err := Extract("tips.MD", []byte("# Just a heading\nSome text.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestExtract_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Extract("x.md", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
	if r.Text != string(input) {
		t.Errorf("text = %q, want whole input", r.Text)
	}
}

func TestExtract_Note(t *testing.T) {
	input := []byte(`{"title":"Parking","content":"Use the 98th St garage.","category":"Scheduling","location":"MSM","created_at":"2024-05-01T00:00:00Z"}`)
	r, err := Extract("LOC_MSM__Parking.json", input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Note == nil || r.Note.Location != "MSM" {
		t.Fatalf("note = %+v", r.Note)
	}
	if r.Text != "Parking\n\nUse the 98th St garage." {
		t.Errorf("text = %q", r.Text)
	}
}

func TestExtract_NoteInvalid(t *testing.T) {
	if _, err := Extract("bad.json", []byte("{not json")); err == nil {
		t.Error("expected error for malformed note")
	}
}

func TestExtract_PlainAndBinary(t *testing.T) {
	r, _ := Extract("rooms.csv", []byte("room,floor\nA1,1\n"))
	if r.Title != "rooms" || !strings.Contains(r.Text, "A1,1") {
		t.Errorf("csv result = %+v", r)
	}
	r, _ = Extract("scan.pdf", []byte("%PDF-1.7"))
	if !r.Empty() {
		t.Errorf("expected empty result for pdf, got %q", r.Text)
	}
	r, _ = Extract("bad.txt", []byte{0xff, 0xfe, 0x00})
	if !r.Empty() {
		t.Error("expected empty result for invalid utf-8")
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{
		"tags": []any{"alpha"},
	}
	tags := extractTags("Some text #beta and #alpha again.", fm)
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	title := deriveTitle(map[string]any{"title": "FM Title"}, "# H1 Title\ntext")
	if title != "FM Title" {
		t.Errorf("title = %q, want %q", title, "FM Title")
	}
}

func TestChunk(t *testing.T) {
	text := strings.Repeat("a", 1000)
	chunks := Chunk(text, 600, 80)
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2", len(chunks))
	}
	if len(chunks[0]) != 600 || len(chunks[1]) != 480 {
		t.Errorf("sizes = %d, %d", len(chunks[0]), len(chunks[1]))
	}
}

func TestChunk_Defaults(t *testing.T) {
	chunks := Chunk(strings.Repeat("é", 1200), 0, 0)
	// windows start at 0, 520, 1040
	if len(chunks) != 3 {
		t.Fatalf("len = %d, want 3", len(chunks))
	}
	if got := len([]rune(chunks[0])); got != DefaultChunkSize {
		t.Errorf("first chunk = %d runes", got)
	}
}

func TestChunk_ShortAndBlank(t *testing.T) {
	if got := Chunk("hello", 600, 80); len(got) != 1 || got[0] != "hello" {
		t.Errorf("Chunk(short) = %v", got)
	}
	if got := Chunk("   \n  ", 600, 80); len(got) != 0 {
		t.Errorf("Chunk(blank) = %v", got)
	}
}
