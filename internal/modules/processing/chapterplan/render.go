package chapterplan

import (
	"fmt"
	"strings"
)

const untitledChapter = "Untitled Chapter"

// Serialize re-normalizes entry text for persistence. The structured
// form is authoritative for programmatic access; Render derives the
// display block from it.
func Serialize(entries []ChapterEntry) []ChapterEntry {
	out := make([]ChapterEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, ChapterEntry{
			Number:  entry.Number,
			Title:   normalizeWhitespace(entry.Title),
			Summary: normalizeWhitespace(entry.Summary),
		})
	}
	return out
}

// Render converts entries into the canonical display block: one header
// line per chapter followed by its summary, sections separated by a
// blank line. Entries whose number never coerced to an integer are
// skipped.
func Render(entries []ChapterEntry) string {
	var b strings.Builder
	for _, entry := range entries {
		if entry.Number == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		title := normalizeWhitespace(entry.Title)
		if title == "" {
			title = untitledChapter
		}
		fmt.Fprintf(&b, "Chapter: Chapter %d — %s", entry.Number, title)
		if summary := normalizeWhitespace(entry.Summary); summary != "" {
			b.WriteString("\n")
			b.WriteString(summary)
		}
	}
	return strings.TrimRight(b.String(), " \t\r\n")
}
