package chapterplan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReply(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Chapter: Chapter %d — Title %d\nSummary %d.", i, i, i)
	}
	return b.String()
}

func TestEngineRun_FirstReplyValid(t *testing.T) {
	calls := 0
	engine := &Engine{
		Generate: func(ctx context.Context, prompt string) (string, error) {
			calls++
			return validReply(2), nil
		},
		MaxAttempts: 3,
	}

	result, err := engine.Run(context.Background(), PlanRequest{ActNumber: 1, RequestedChapterCount: 2})

	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Equal(t, 1, calls)
	assert.Len(t, result.Trail, 1)
	assert.Len(t, result.DebugLines, 1)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, validReply(2), result.RenderedText)
	assert.True(t, result.Trail[0].OK)
}

func TestEngineRun_RetryCarriesValidatorFeedback(t *testing.T) {
	var prompts []string
	replies := []string{
		"Chapter: Chapter 1 — Only One\nJust one chapter.",
		validReply(2),
	}
	engine := &Engine{
		Generate: func(ctx context.Context, prompt string) (string, error) {
			prompts = append(prompts, prompt)
			reply := replies[0]
			replies = replies[1:]
			return reply, nil
		},
		MaxAttempts: 3,
	}

	result, err := engine.Run(context.Background(), PlanRequest{ActNumber: 1, RequestedChapterCount: 2})

	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "Format Validator Feedback")
	assert.Contains(t, prompts[1], "Format Validator Feedback")
	assert.Contains(t, prompts[1], "expected 2 chapters, found 1")
	assert.Contains(t, prompts[1], "Only One")
	assert.Len(t, result.Trail, 2)
	assert.Len(t, result.DebugLines, 2)
	assert.False(t, result.Trail[0].OK)
	assert.True(t, result.Trail[1].OK)
}

func TestEngineRun_ExhaustsAttempts(t *testing.T) {
	calls := 0
	engine := &Engine{
		Generate: func(ctx context.Context, prompt string) (string, error) {
			calls++
			return "Chapter: Chapter 1 — Partial\nHalf a plan.", nil
		},
		MaxAttempts: 3,
	}

	result, err := engine.Run(context.Background(), PlanRequest{ActNumber: 1, RequestedChapterCount: 2})

	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	assert.Equal(t, 3, calls)
	assert.Len(t, result.Trail, 3)
	assert.Len(t, result.DebugLines, 4)
	assert.Contains(t, result.DebugLines[3], "gave up after 3 attempts")
	assert.Contains(t, result.RenderedText, "Partial")
	require.Len(t, result.Entries, 1)
}

func TestEngineRun_RawFallbackWhenNothingParses(t *testing.T) {
	engine := &Engine{
		Generate: func(ctx context.Context, prompt string) (string, error) {
			return "I cannot help with that.", nil
		},
		MaxAttempts: 2,
	}

	result, err := engine.Run(context.Background(), PlanRequest{ActNumber: 1, RequestedChapterCount: 2})

	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	assert.Equal(t, "I cannot help with that.", result.RenderedText)
	assert.Empty(t, result.Entries)
	assert.Len(t, result.Trail, 2)
}

func TestEngineRun_BackendErrorPropagates(t *testing.T) {
	backendErr := errors.New("rate limited")
	calls := 0
	engine := &Engine{
		Generate: func(ctx context.Context, prompt string) (string, error) {
			calls++
			return "", backendErr
		},
		MaxAttempts: 3,
	}

	result, err := engine.Run(context.Background(), PlanRequest{ActNumber: 1, RequestedChapterCount: 2})

	require.ErrorIs(t, err, backendErr)
	assert.Equal(t, 1, calls)
	assert.Equal(t, PlanResult{}, result)
}

func TestEngineRun_DefaultMaxAttempts(t *testing.T) {
	calls := 0
	engine := &Engine{
		Generate: func(ctx context.Context, prompt string) (string, error) {
			calls++
			return "not a chapter list", nil
		},
	}

	result, err := engine.Run(context.Background(), PlanRequest{ActNumber: 1, RequestedChapterCount: 2})

	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestEngineRun_EmptyReplyCountsAsFailedAttempt(t *testing.T) {
	replies := []string{"", validReply(1)}
	engine := &Engine{
		Generate: func(ctx context.Context, prompt string) (string, error) {
			reply := replies[0]
			replies = replies[1:]
			return reply, nil
		},
		MaxAttempts: 3,
	}

	result, err := engine.Run(context.Background(), PlanRequest{ActNumber: 1, RequestedChapterCount: 1})

	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	require.Len(t, result.Trail, 2)
	assert.Equal(t, "model returned no text", result.Trail[0].Message)
	assert.False(t, result.Trail[0].OK)
}

func TestEngineRun_PromptContents(t *testing.T) {
	var captured string
	engine := &Engine{
		Generate: func(ctx context.Context, prompt string) (string, error) {
			captured = prompt
			return validReply(2), nil
		},
	}

	req := PlanRequest{
		ActNumber:             2,
		StoryContext:          "A heist story set in a flooded city.",
		CharacterContext:      "Mara: tired thief. Juno: her fence.",
		ActOutlines:           [3]string{"Act one setup.", "Act two complications.", "Act three blowoff."},
		PriorActChapterText:   []string{"Chapter: Chapter 1 — Casing\nThey case the bank."},
		RequestedChapterCount: 2,
		AuthorNotes:           "Keep it noir.",
	}

	_, err := engine.Run(context.Background(), req)

	require.NoError(t, err)
	assert.Contains(t, captured, "## Story Outline")
	assert.Contains(t, captured, "A heist story set in a flooded city.")
	assert.Contains(t, captured, "## Act Structure")
	assert.Contains(t, captured, "## Act 2 Focus")
	assert.Contains(t, captured, "Act two complications.")
	assert.Contains(t, captured, "## Characters")
	assert.Contains(t, captured, "Mara: tired thief.")
	assert.Contains(t, captured, "## Chapters Planned So Far")
	assert.Contains(t, captured, "They case the bank.")
	assert.Contains(t, captured, "## Author Notes")
	assert.Contains(t, captured, "Keep it noir.")
	assert.Contains(t, captured, "Plan exactly 2 chapters for act 2")
	assert.Contains(t, captured, "Chapter: Chapter <number> — <title>")
}
