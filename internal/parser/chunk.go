package parser

import "strings"

// Default chunking parameters, in runes.
const (
	DefaultChunkSize    = 600
	DefaultChunkOverlap = 80
)

// Chunk splits text into windows of size runes, each overlapping the previous
// one by overlap runes. Windows are trimmed and empty ones dropped. size <= 0
// selects the defaults; an overlap not smaller than size is clamped.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size, overlap = DefaultChunkSize, DefaultChunkOverlap
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}

	runes := []rune(text)
	var out []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
