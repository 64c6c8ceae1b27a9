package chapterplan

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ChapterRef addresses one planned chapter by act and chapter number.
type ChapterRef struct {
	Act     int `json:"act"`
	Chapter int `json:"chapter"`
}

// ActPlan pairs one act's entries with which chapter numbers already
// have drafted prose.
type ActPlan struct {
	Entries []ChapterEntry
	Drafted map[int]bool
}

// PlanSet is a whole project's chapter planning state, acts 1..3.
type PlanSet struct {
	Acts [ActPlanCount]ActPlan
}

// ActPlanCount mirrors the three-act structure every project uses.
const ActPlanCount = 3

// Load restores entries from the persisted structured form, falling
// back to re-parsing the rendered text when the JSON is unusable. The
// structured cache is a best-effort optimization over always-available
// rendered text.
func Load(serialized []byte, fallbackText string) []ChapterEntry {
	if len(bytes.TrimSpace(serialized)) > 0 {
		var entries []ChapterEntry
		if err := json.Unmarshal(serialized, &entries); err == nil && len(entries) > 0 {
			return Serialize(entries)
		}
	}
	if strings.TrimSpace(fallbackText) != "" {
		return Serialize(Parse(fallbackText).Entries)
	}
	return []ChapterEntry{}
}

// FindLastDrafted returns the last planned chapter, scanning acts 1..3
// then entries in order, that already has drafted prose.
func (p PlanSet) FindLastDrafted() (ChapterRef, bool) {
	var (
		ref   ChapterRef
		found bool
	)
	for i, act := range p.Acts {
		for _, entry := range act.Entries {
			if act.Drafted[entry.Number] {
				ref = ChapterRef{Act: i + 1, Chapter: entry.Number}
				found = true
			}
		}
	}
	return ref, found
}

// FindLastUnfilled returns the last planned chapter without drafted
// prose, in the same scan order.
func (p PlanSet) FindLastUnfilled() (ChapterRef, bool) {
	var (
		ref   ChapterRef
		found bool
	)
	for i, act := range p.Acts {
		for _, entry := range act.Entries {
			if !act.Drafted[entry.Number] {
				ref = ChapterRef{Act: i + 1, Chapter: entry.Number}
				found = true
			}
		}
	}
	return ref, found
}

// FindLastPlanned returns the last planned chapter of the last act
// with any plan at all.
func (p PlanSet) FindLastPlanned() (ChapterRef, bool) {
	var (
		ref   ChapterRef
		found bool
	)
	for i, act := range p.Acts {
		for _, entry := range act.Entries {
			ref = ChapterRef{Act: i + 1, Chapter: entry.Number}
			found = true
		}
	}
	return ref, found
}

// SuggestNextAfterLastDraft proposes which chapter to draft next: the
// first entry after the last drafted chapter, within the same act,
// that has no draft yet. There is no suggestion when the last drafted
// chapter closes out its act.
func (p PlanSet) SuggestNextAfterLastDraft() (ChapterRef, bool) {
	last, ok := p.FindLastDrafted()
	if !ok {
		return ChapterRef{}, false
	}

	act := p.Acts[last.Act-1]
	past := false
	for _, entry := range act.Entries {
		if past && !act.Drafted[entry.Number] {
			return ChapterRef{Act: last.Act, Chapter: entry.Number}, true
		}
		if entry.Number == last.Chapter {
			past = true
		}
	}
	return ChapterRef{}, false
}
