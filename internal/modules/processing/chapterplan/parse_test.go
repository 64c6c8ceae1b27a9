package chapterplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_StructuredGrammar(t *testing.T) {
	text := "Chapter: Chapter 1 — Arrival\n" +
		"She steps off the train into a city she doesn't recognize.\n" +
		"\n" +
		"Chapter: Chapter 2 — The Offer\n" +
		"A stranger offers her a job she can't refuse.\n"

	result := Parse(text)

	require.Equal(t, GrammarStructured, result.Grammar)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, ChapterEntry{Number: 1, Title: "Arrival", Summary: "She steps off the train into a city she doesn't recognize."}, result.Entries[0])
	assert.Equal(t, ChapterEntry{Number: 2, Title: "The Offer", Summary: "A stranger offers her a job she can't refuse."}, result.Entries[1])
}

func TestParse_StructuredJoinsSummaryLines(t *testing.T) {
	text := "Chapter: Chapter 1 — Arrival\n" +
		"First line of summary.\n" +
		"Second   line\twith messy spacing.\n" +
		"\n" +
		"Still the same chapter after a blank line."

	result := Parse(text)

	require.Equal(t, GrammarStructured, result.Grammar)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "First line of summary. Second line with messy spacing. Still the same chapter after a blank line.", result.Entries[0].Summary)
}

func TestParse_StructuredSeparatorAndCaseVariants(t *testing.T) {
	for _, text := range []string{
		"Chapter: Chapter 1 — Title\nSummary.",
		"Chapter: Chapter 1 – Title\nSummary.",
		"Chapter: Chapter 1 - Title\nSummary.",
		"CHAPTER: CHAPTER 1 — Title\nSummary.",
		"chapter chapter 1 — Title\nSummary.",
	} {
		result := Parse(text)
		require.Equal(t, GrammarStructured, result.Grammar, text)
		require.Len(t, result.Entries, 1, text)
		assert.Equal(t, 1, result.Entries[0].Number, text)
		assert.Equal(t, "Title", result.Entries[0].Title, text)
		assert.Equal(t, "Summary.", result.Entries[0].Summary, text)
	}
}

func TestParse_GrammarPrecedence(t *testing.T) {
	t.Run("one structured header wins over legacy lines", func(t *testing.T) {
		text := "Chapter 1: Old Style - Old summary.\n\nChapter: Chapter 2 — New Style\nNew summary."

		result := Parse(text)

		require.Equal(t, GrammarStructured, result.Grammar)
		require.Len(t, result.Entries, 1)
		assert.Equal(t, 2, result.Entries[0].Number)
		assert.Equal(t, "New Style", result.Entries[0].Title)
	})

	t.Run("legacy used only when zero structured headers", func(t *testing.T) {
		text := "Chapter 1: The Start - She begins the journey.\nChapter 2: The Middle - Things go wrong."

		result := Parse(text)

		require.Equal(t, GrammarLegacy, result.Grammar)
		require.Len(t, result.Entries, 2)
		assert.Equal(t, "The Start", result.Entries[0].Title)
		assert.Equal(t, "She begins the journey.", result.Entries[0].Summary)
		assert.Equal(t, "The Middle", result.Entries[1].Title)
		assert.Equal(t, "Things go wrong.", result.Entries[1].Summary)
	})
}

func TestParse_LegacyGrammar(t *testing.T) {
	t.Run("splits once on the first separator", func(t *testing.T) {
		result := Parse("Chapter 1: The Plan - Break in - steal the ledger.")

		require.Len(t, result.Entries, 1)
		assert.Equal(t, "The Plan", result.Entries[0].Title)
		assert.Equal(t, "Break in - steal the ledger.", result.Entries[0].Summary)
	})

	t.Run("no separator leaves summary empty", func(t *testing.T) {
		result := Parse("Chapter 1: Just A Title")

		require.Len(t, result.Entries, 1)
		assert.Equal(t, "Just A Title", result.Entries[0].Title)
		assert.Empty(t, result.Entries[0].Summary)
	})

	t.Run("continuation lines join the body before splitting", func(t *testing.T) {
		result := Parse("Chapter 1: The Plan - Break in\nand steal the ledger.")

		require.Len(t, result.Entries, 1)
		assert.Equal(t, "The Plan", result.Entries[0].Title)
		assert.Equal(t, "Break in and steal the ledger.", result.Entries[0].Summary)
	})
}

func TestParse_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t"} {
		result := Parse(text)
		assert.Equal(t, GrammarNone, result.Grammar)
		assert.Empty(t, result.Entries)
	}
}

func TestParse_NoHeadersAnywhere(t *testing.T) {
	result := Parse("Just some prose the model wrote instead of a chapter list.")

	assert.Equal(t, GrammarNone, result.Grammar)
	assert.Empty(t, result.Entries)
}

func TestParse_StructuredSkipsMalformedSections(t *testing.T) {
	text := "Chapter: Chapter 99999999999999999999 — Too Big\nThis section is dropped.\n\nChapter: Chapter 1 — Fine\nThis one is kept."

	result := Parse(text)

	require.Equal(t, GrammarStructured, result.Grammar)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, 1, result.Entries[0].Number)
	assert.Equal(t, "Fine", result.Entries[0].Title)
}

func TestParse_IgnoresPreambleBeforeFirstHeader(t *testing.T) {
	text := "Here is the chapter plan you asked for:\n\nChapter: Chapter 1 — Arrival\nShe arrives."

	result := Parse(text)

	require.Equal(t, GrammarStructured, result.Grammar)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "She arrives.", result.Entries[0].Summary)
}
