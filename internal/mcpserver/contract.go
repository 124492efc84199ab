package mcpserver

// NoteFormatContract describes the canonical note JSON that the pipeline
// stores and that LLM consumers should produce through save_note.
const NoteFormatContract = `# kbsync Note Format

Notes are stored as UTF-8 JSON objects, one per file, with a ` + "`" + `.json` + "`" + ` extension.

## Fields

` + "```" + `json
{
  "title": "Late arrivals",            // REQUIRED, 1-200 characters
  "content": "Call the front desk.",   // REQUIRED, plain text or Markdown
  "category": "Scheduling",            // REQUIRED, see categories below
  "location": "North Clinic",          // REQUIRED for Scheduling notes, omitted otherwise
  "start_date": "2024-06-01",          // OPTIONAL, first day the note applies
  "end_date": "2024-06-30",            // OPTIONAL, last day the note applies
  "created_at": "2024-05-28T14:03:00Z" // set by the pipeline
}
` + "```" + `

## Categories

- ` + "`" + `Locations/Rooms` + "`" + ` stored under epic-scheduling/Locations_Rooms
- ` + "`" + `Scheduling` + "`" + ` stored under epic-scheduling/Scheduling_Notes
- ` + "`" + `General Tips` + "`" + ` stored under other-content/General_Tips
- ` + "`" + `Preps` + "`" + ` stored under other-content/Preps
- ` + "`" + `Other` + "`" + ` stored under other-content/Other_Notes

## Rules

1. File names are derived from the title. Characters outside ` + "`" + `[A-Za-z0-9_-]` + "`" + ` become ` + "`" + `_` + "`" + `.
2. Scheduling notes are named ` + "`" + `LOC_<location>__<title>.json` + "`" + ` and the location must be a known site.
3. ` + "`" + `end_date` + "`" + ` must not be before ` + "`" + `start_date` + "`" + `. Dates use YYYY-MM-DD.
4. A note outside its date window is kept in the catalog but excluded from search.
5. Notes outrank uploaded documents in search results.
6. Saving a note whose file already exists fails unless ` + "`" + `overwrite` + "`" + ` is true.
`
