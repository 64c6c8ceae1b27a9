package chapterplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plannedEntries(n int) []ChapterEntry {
	entries := make([]ChapterEntry, 0, n)
	for i := 1; i <= n; i++ {
		entries = append(entries, ChapterEntry{Number: i, Title: "Title", Summary: "Summary."})
	}
	return entries
}

func TestLoad(t *testing.T) {
	t.Run("structured JSON wins over fallback text", func(t *testing.T) {
		serialized := []byte(`[{"number":1,"title":"From JSON","summary":"Stored."}]`)

		entries := Load(serialized, "Chapter: Chapter 9 — From Text\nIgnored.")

		require.Len(t, entries, 1)
		assert.Equal(t, "From JSON", entries[0].Title)
	})

	t.Run("numeric-string numbers still load", func(t *testing.T) {
		serialized := []byte(`[{"number":"2","title":"T","summary":"S"}]`)

		entries := Load(serialized, "")

		require.Len(t, entries, 1)
		assert.Equal(t, 2, entries[0].Number)
	})

	t.Run("bad JSON falls back to re-parsing text", func(t *testing.T) {
		entries := Load([]byte("{nope"), "Chapter: Chapter 1 — From Text\nRecovered.")

		require.Len(t, entries, 1)
		assert.Equal(t, "From Text", entries[0].Title)
		assert.Equal(t, "Recovered.", entries[0].Summary)
	})

	t.Run("empty JSON array falls back to text", func(t *testing.T) {
		entries := Load([]byte("[]"), "Chapter: Chapter 1 — From Text\nRecovered.")

		require.Len(t, entries, 1)
		assert.Equal(t, 1, entries[0].Number)
	})

	t.Run("both empty yields empty slice", func(t *testing.T) {
		assert.Empty(t, Load(nil, ""))
		assert.Empty(t, Load([]byte("  "), "  "))
	})
}

func TestPlanSet_Lookups(t *testing.T) {
	t.Run("last unfilled and next suggestion", func(t *testing.T) {
		set := PlanSet{Acts: [ActPlanCount]ActPlan{
			{Entries: plannedEntries(3), Drafted: map[int]bool{1: true, 2: true}},
			{},
			{},
		}}

		ref, ok := set.FindLastUnfilled()
		require.True(t, ok)
		assert.Equal(t, ChapterRef{Act: 1, Chapter: 3}, ref)

		suggestion, ok := set.SuggestNextAfterLastDraft()
		require.True(t, ok)
		assert.Equal(t, ChapterRef{Act: 1, Chapter: 3}, suggestion)
	})

	t.Run("no suggestion when last draft closes the act", func(t *testing.T) {
		set := PlanSet{Acts: [ActPlanCount]ActPlan{
			{Entries: plannedEntries(3), Drafted: map[int]bool{1: true, 2: true, 3: true}},
			{},
			{},
		}}

		last, ok := set.FindLastDrafted()
		require.True(t, ok)
		assert.Equal(t, ChapterRef{Act: 1, Chapter: 3}, last)

		_, ok = set.SuggestNextAfterLastDraft()
		assert.False(t, ok)
	})

	t.Run("scan keeps the last match across acts", func(t *testing.T) {
		set := PlanSet{Acts: [ActPlanCount]ActPlan{
			{Entries: plannedEntries(2), Drafted: map[int]bool{1: true, 2: true}},
			{Entries: plannedEntries(2), Drafted: map[int]bool{1: true}},
			{},
		}}

		drafted, ok := set.FindLastDrafted()
		require.True(t, ok)
		assert.Equal(t, ChapterRef{Act: 2, Chapter: 1}, drafted)

		unfilled, ok := set.FindLastUnfilled()
		require.True(t, ok)
		assert.Equal(t, ChapterRef{Act: 2, Chapter: 2}, unfilled)

		planned, ok := set.FindLastPlanned()
		require.True(t, ok)
		assert.Equal(t, ChapterRef{Act: 2, Chapter: 2}, planned)
	})

	t.Run("empty set has no matches", func(t *testing.T) {
		var set PlanSet

		_, ok := set.FindLastDrafted()
		assert.False(t, ok)
		_, ok = set.FindLastUnfilled()
		assert.False(t, ok)
		_, ok = set.FindLastPlanned()
		assert.False(t, ok)
		_, ok = set.SuggestNextAfterLastDraft()
		assert.False(t, ok)
	})
}
