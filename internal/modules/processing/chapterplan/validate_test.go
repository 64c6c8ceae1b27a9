package chapterplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Passes(t *testing.T) {
	entries := []ChapterEntry{
		{Number: 1, Title: "Arrival", Summary: "She arrives."},
		{Number: 2, Title: "The Offer", Summary: "A job offer."},
	}

	ok, out, message := Validate(entries, 2)

	assert.True(t, ok)
	assert.Equal(t, entries, out)
	assert.Empty(t, message)
}

func TestValidate_CountMismatch(t *testing.T) {
	entries := []ChapterEntry{{Number: 1, Title: "A", Summary: "S"}}

	ok, _, message := Validate(entries, 3)

	assert.False(t, ok)
	assert.Equal(t, "expected 3 chapters, found 1", message)
}

func TestValidate_DuplicateNumber(t *testing.T) {
	entries := []ChapterEntry{
		{Number: 1, Title: "A", Summary: "S"},
		{Number: 1, Title: "B", Summary: "S"},
	}

	ok, _, message := Validate(entries, 2)

	assert.False(t, ok)
	assert.Equal(t, "chapter number 1 appears more than once", message)
}

func TestValidate_OutOfOrder(t *testing.T) {
	entries := []ChapterEntry{
		{Number: 2, Title: "B", Summary: "S"},
		{Number: 1, Title: "A", Summary: "S"},
	}

	ok, _, message := Validate(entries, 2)

	assert.False(t, ok)
	assert.Equal(t, "chapter at position 1 is numbered 2, expected 1", message)
}

func TestValidate_MissingTitleOrSummary(t *testing.T) {
	t.Run("blank title", func(t *testing.T) {
		entries := []ChapterEntry{{Number: 1, Title: "   ", Summary: "S"}}

		ok, _, message := Validate(entries, 1)

		assert.False(t, ok)
		assert.Equal(t, "chapter 1 needs a title and summary", message)
	})

	t.Run("blank summary", func(t *testing.T) {
		entries := []ChapterEntry{{Number: 1, Title: "A", Summary: ""}}

		ok, _, message := Validate(entries, 1)

		assert.False(t, ok)
		assert.Equal(t, "chapter 1 needs a title and summary", message)
	})
}

func TestValidate_CheckOrder(t *testing.T) {
	t.Run("count failure wins over duplicates", func(t *testing.T) {
		entries := []ChapterEntry{
			{Number: 1, Title: "A", Summary: "S"},
			{Number: 1, Title: "B", Summary: "S"},
		}

		_, _, message := Validate(entries, 3)

		assert.Contains(t, message, "expected 3 chapters")
	})

	t.Run("duplicates win over sequence", func(t *testing.T) {
		entries := []ChapterEntry{
			{Number: 2, Title: "A", Summary: "S"},
			{Number: 2, Title: "B", Summary: "S"},
		}

		_, _, message := Validate(entries, 2)

		assert.Contains(t, message, "appears more than once")
	})

	t.Run("sequence wins over completeness", func(t *testing.T) {
		entries := []ChapterEntry{
			{Number: 2, Title: "", Summary: ""},
			{Number: 1, Title: "A", Summary: "S"},
		}

		_, _, message := Validate(entries, 2)

		assert.Contains(t, message, "position 1")
	})
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	entries := []ChapterEntry{{Number: 2, Title: " A ", Summary: " S "}}

	Validate(entries, 1)

	assert.Equal(t, " A ", entries[0].Title)
	assert.Equal(t, " S ", entries[0].Summary)
	assert.Equal(t, 2, entries[0].Number)
}
