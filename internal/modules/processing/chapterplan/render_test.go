package chapterplan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_CanonicalFormat(t *testing.T) {
	entries := []ChapterEntry{
		{Number: 1, Title: "Arrival", Summary: "She steps off the train."},
		{Number: 2, Title: "The Offer", Summary: "A stranger offers a job."},
	}

	want := "Chapter: Chapter 1 — Arrival\n" +
		"She steps off the train.\n" +
		"\n" +
		"Chapter: Chapter 2 — The Offer\n" +
		"A stranger offers a job."

	assert.Equal(t, want, Render(entries))
}

func TestRender_EdgeCases(t *testing.T) {
	t.Run("empty title falls back to Untitled Chapter", func(t *testing.T) {
		out := Render([]ChapterEntry{{Number: 1, Title: "  ", Summary: "S."}})
		assert.Equal(t, "Chapter: Chapter 1 — Untitled Chapter\nS.", out)
	})

	t.Run("zero number is skipped", func(t *testing.T) {
		out := Render([]ChapterEntry{
			{Number: 0, Title: "Ghost", Summary: "Never rendered."},
			{Number: 1, Title: "Real", Summary: "Rendered."},
		})
		assert.Equal(t, "Chapter: Chapter 1 — Real\nRendered.", out)
	})

	t.Run("empty summary omits the summary line", func(t *testing.T) {
		out := Render([]ChapterEntry{{Number: 1, Title: "Real", Summary: " "}})
		assert.Equal(t, "Chapter: Chapter 1 — Real", out)
	})

	t.Run("no entries renders empty", func(t *testing.T) {
		assert.Empty(t, Render(nil))
	})
}

func TestRender_RoundTripLaw(t *testing.T) {
	cases := [][]ChapterEntry{
		{
			{Number: 1, Title: "Arrival", Summary: "She steps off the train into a city she doesn't recognize."},
			{Number: 2, Title: "The Offer", Summary: "A stranger offers her a job she can't refuse."},
		},
		{
			{Number: 1, Title: "One", Summary: "Single chapter act."},
		},
		{
			{Number: 1, Title: "Setup", Summary: "The crew assembles."},
			{Number: 2, Title: "Complication", Summary: "The plan unravels."},
			{Number: 3, Title: "Payoff", Summary: "The vault opens."},
		},
	}

	for _, entries := range cases {
		ok, _, message := Validate(entries, len(entries))
		require.True(t, ok, message)

		rendered := Render(entries)
		reparsed := Parse(rendered)

		require.Equal(t, GrammarStructured, reparsed.Grammar)
		assert.Equal(t, entries, reparsed.Entries)
		assert.Equal(t, rendered, Render(reparsed.Entries))
	}
}

func TestSerialize_NormalizesWhitespace(t *testing.T) {
	entries := []ChapterEntry{{Number: 1, Title: "  The\tTitle ", Summary: "Line one.\nLine two.  "}}

	out := Serialize(entries)

	require.Len(t, out, 1)
	assert.Equal(t, "The Title", out[0].Title)
	assert.Equal(t, "Line one. Line two.", out[0].Summary)
	assert.Equal(t, "  The\tTitle ", entries[0].Title)
}

func TestChapterEntry_UnmarshalJSON(t *testing.T) {
	t.Run("number as JSON number", func(t *testing.T) {
		var e ChapterEntry
		require.NoError(t, json.Unmarshal([]byte(`{"number":3,"title":"T","summary":"S"}`), &e))
		assert.Equal(t, 3, e.Number)
	})

	t.Run("number as numeric string", func(t *testing.T) {
		var e ChapterEntry
		require.NoError(t, json.Unmarshal([]byte(`{"number":"4","title":"T","summary":"S"}`), &e))
		assert.Equal(t, 4, e.Number)
	})

	t.Run("number as float", func(t *testing.T) {
		var e ChapterEntry
		require.NoError(t, json.Unmarshal([]byte(`{"number":5.0,"title":"T","summary":"S"}`), &e))
		assert.Equal(t, 5, e.Number)
	})

	t.Run("non-coercible number yields zero", func(t *testing.T) {
		var e ChapterEntry
		require.NoError(t, json.Unmarshal([]byte(`{"number":"five","title":"T","summary":"S"}`), &e))
		assert.Equal(t, 0, e.Number)
		assert.Equal(t, "T", e.Title)
	})

	t.Run("missing number yields zero", func(t *testing.T) {
		var e ChapterEntry
		require.NoError(t, json.Unmarshal([]byte(`{"title":"T","summary":"S"}`), &e))
		assert.Equal(t, 0, e.Number)
	})
}
