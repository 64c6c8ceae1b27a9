package chapterplan

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// structuredHeaderPattern matches the current chapter header form,
	// e.g. "Chapter: Chapter 3 — The Long Night". Em-dash, en-dash and
	// hyphen separators are all accepted.
	structuredHeaderPattern = regexp.MustCompile(`(?i)^\s*chapter:?\s+chapter\s+(\d+)\s*[—–-]\s*(.*)$`)

	// legacyHeaderPattern matches the older single-header form,
	// e.g. "Chapter 3: The Long Night - The city sleeps.".
	legacyHeaderPattern = regexp.MustCompile(`(?i)^\s*chapter\s+(\d+)\s*:\s*(.*)$`)

	// titleSummarySeparator splits a legacy body once into title and
	// summary at the first dash-like separator.
	titleSummarySeparator = regexp.MustCompile(`\s*[—–-]\s*`)

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Parse converts free-form generated text into ordered chapter entries.
// The structured grammar wins whenever at least one of its headers is
// present anywhere in the input; the legacy grammar is consulted only
// when none is.
func Parse(raw string) ParseResult {
	if strings.TrimSpace(raw) == "" {
		return ParseResult{Grammar: GrammarNone}
	}
	if entries, found := parseStructured(raw); found {
		return ParseResult{Grammar: GrammarStructured, Entries: entries}
	}
	if entries := parseLegacy(raw); len(entries) > 0 {
		return ParseResult{Grammar: GrammarLegacy, Entries: entries}
	}
	return ParseResult{Grammar: GrammarNone}
}

// parseStructured collects sections introduced by structured headers.
// Malformed sections are skipped rather than failing the whole parse;
// found reports whether any header matched at all.
func parseStructured(raw string) (entries []ChapterEntry, found bool) {
	var (
		current *ChapterEntry
		summary []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Summary = normalizeWhitespace(strings.Join(summary, " "))
		entries = append(entries, *current)
		current = nil
		summary = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		if m := structuredHeaderPattern.FindStringSubmatch(line); m != nil {
			found = true
			flush()
			number, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			current = &ChapterEntry{Number: number, Title: normalizeWhitespace(m[2])}
			continue
		}
		if current == nil || strings.TrimSpace(line) == "" {
			continue
		}
		summary = append(summary, line)
	}
	flush()
	return entries, found
}

// parseLegacy collects sections introduced by legacy headers, then
// splits each section body once into title and summary.
func parseLegacy(raw string) []ChapterEntry {
	var (
		entries []ChapterEntry
		number  int
		chunks  []string
		open    bool
	)
	flush := func() {
		if !open {
			return
		}
		title, summary := splitTitleSummary(normalizeWhitespace(strings.Join(chunks, " ")))
		entries = append(entries, ChapterEntry{Number: number, Title: title, Summary: summary})
		open = false
		chunks = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		if m := legacyHeaderPattern.FindStringSubmatch(line); m != nil {
			flush()
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			number = n
			chunks = []string{m[2]}
			open = true
			continue
		}
		if !open || strings.TrimSpace(line) == "" {
			continue
		}
		chunks = append(chunks, line)
	}
	flush()
	return entries
}

func splitTitleSummary(s string) (title, summary string) {
	loc := titleSummarySeparator.FindStringIndex(s)
	if loc == nil {
		return s, ""
	}
	return strings.TrimSpace(s[:loc[0]]), strings.TrimSpace(s[loc[1]:])
}

// normalizeWhitespace collapses every whitespace run, newlines
// included, to a single space and trims the ends.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
