package chapterplan

import (
	"fmt"
	"strings"
)

// Validate checks a parsed entry list against the requested chapter
// count. Checks run in order and the first failure wins: count, then
// duplicate numbers, then the strict 1..N sequence, then title/summary
// completeness. The input is never mutated.
func Validate(entries []ChapterEntry, expectedCount int) (bool, []ChapterEntry, string) {
	if len(entries) != expectedCount {
		return false, entries, fmt.Sprintf("expected %d chapters, found %d", expectedCount, len(entries))
	}

	seen := make(map[int]bool, len(entries))
	for _, entry := range entries {
		if seen[entry.Number] {
			return false, entries, fmt.Sprintf("chapter number %d appears more than once", entry.Number)
		}
		seen[entry.Number] = true
	}

	for i, entry := range entries {
		if entry.Number != i+1 {
			return false, entries, fmt.Sprintf("chapter at position %d is numbered %d, expected %d", i+1, entry.Number, i+1)
		}
	}

	for _, entry := range entries {
		if strings.TrimSpace(entry.Title) == "" || strings.TrimSpace(entry.Summary) == "" {
			return false, entries, fmt.Sprintf("chapter %d needs a title and summary", entry.Number)
		}
	}

	return true, entries, ""
}
