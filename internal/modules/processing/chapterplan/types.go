// Package chapterplan turns free-form model replies into validated,
// ordered chapter outlines and drives the bounded retry loop that asks
// the model to correct its own formatting mistakes.
package chapterplan

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ChapterEntry is one planned chapter: a 1-based number, a title, and
// a short summary.
type ChapterEntry struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// UnmarshalJSON tolerates Number arriving as a JSON number or as a
// numeric string. Anything non-coercible yields 0, which Render skips.
func (e *ChapterEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Number  json.RawMessage `json:"number"`
		Title   string          `json:"title"`
		Summary string          `json:"summary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Number = coerceChapterNumber(raw.Number)
	e.Title = raw.Title
	e.Summary = raw.Summary
	return nil
}

func coerceChapterNumber(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return int(v)
		}
	}
	return 0
}

// Grammar identifies which text layout a parse matched.
type Grammar int

const (
	GrammarNone Grammar = iota
	GrammarLegacy
	GrammarStructured
)

func (g Grammar) String() string {
	switch g {
	case GrammarStructured:
		return "structured"
	case GrammarLegacy:
		return "legacy"
	default:
		return "none"
	}
}

// ParseResult pairs parsed entries with the grammar that produced them.
type ParseResult struct {
	Grammar Grammar
	Entries []ChapterEntry
}

// AttemptRecord captures one generate/parse/validate cycle. Records
// live only for the duration of a Run call and are never persisted.
type AttemptRecord struct {
	Attempt   int
	Prompt    string
	Raw       string
	Entries   []ChapterEntry
	OK        bool
	Message   string
	Elapsed   time.Duration
	DebugLine string
}

// Outcome classifies what a single backend call produced, so "no text"
// is handled as a plain result instead of an error.
type Outcome int

const (
	OutcomeText Outcome = iota
	OutcomeEmpty
	OutcomeError
)

func classifyOutcome(text string, err error) Outcome {
	switch {
	case err != nil:
		return OutcomeError
	case strings.TrimSpace(text) == "":
		return OutcomeEmpty
	default:
		return OutcomeText
	}
}
