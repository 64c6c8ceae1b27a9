package chapterplan

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GenerateFunc produces model text for a prompt. Implementations may
// block for the length of a model call; ctx carries the deadline.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// DefaultMaxAttempts bounds the generate/validate loop when the caller
// does not pick a limit.
const DefaultMaxAttempts = 3

// Engine drives the bounded generate → parse → validate → re-prompt
// loop that produces one act's chapter plan.
type Engine struct {
	Generate    GenerateFunc
	MaxAttempts int

	// Now overrides the clock in tests.
	Now func() time.Time
}

// PlanRequest carries everything the prompt needs for one act.
type PlanRequest struct {
	ActNumber             int
	StoryContext          string
	CharacterContext      string
	ActOutlines           [3]string
	PriorActChapterText   []string
	RequestedChapterCount int
	AuthorNotes           string
}

// PlanResult is the engine's best available output. Succeeded is false
// when every attempt failed validation; the rendered text then holds
// the last parse (or the raw reply when nothing ever parsed) so the
// caller always has something to show.
type PlanResult struct {
	RenderedText string
	Entries      []ChapterEntry
	Trail        []AttemptRecord
	DebugLines   []string
	Succeeded    bool
}

// Run asks the backend for a chapter list, validates each reply, and
// re-prompts with the validator's complaint until a reply passes or
// attempts run out. Backend errors propagate unchanged; validation
// failure never becomes an error.
func (e *Engine) Run(ctx context.Context, req PlanRequest) (PlanResult, error) {
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var (
		trail       []AttemptRecord
		debugLines  []string
		lastEntries []ChapterEntry
		lastRaw     string
		lastMessage string
	)

	prompt := buildInitialPrompt(req)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := e.now()
		text, err := e.Generate(ctx, prompt)
		elapsed := e.now().Sub(start)

		switch classifyOutcome(text, err) {
		case OutcomeError:
			return PlanResult{}, err
		case OutcomeEmpty:
			record := AttemptRecord{
				Attempt: attempt,
				Prompt:  prompt,
				Message: "model returned no text",
				Elapsed: elapsed,
			}
			record.DebugLine = formatDebugLine(record)
			trail = append(trail, record)
			debugLines = append(debugLines, record.DebugLine)
			lastMessage = record.Message
			prompt = buildRetryPrompt(req, record.Message, lastRaw)
			continue
		}

		raw := strings.TrimSpace(text)
		parsed := Parse(raw)
		ok, entries, message := Validate(parsed.Entries, req.RequestedChapterCount)

		record := AttemptRecord{
			Attempt: attempt,
			Prompt:  prompt,
			Raw:     raw,
			Entries: entries,
			OK:      ok,
			Message: message,
			Elapsed: elapsed,
		}
		record.DebugLine = formatDebugLine(record)
		trail = append(trail, record)
		debugLines = append(debugLines, record.DebugLine)

		if ok {
			serialized := Serialize(entries)
			return PlanResult{
				RenderedText: Render(serialized),
				Entries:      serialized,
				Trail:        trail,
				DebugLines:   debugLines,
				Succeeded:    true,
			}, nil
		}

		lastEntries = entries
		lastRaw = raw
		lastMessage = message
		prompt = buildRetryPrompt(req, message, raw)
	}

	serialized := Serialize(lastEntries)
	rendered := Render(serialized)
	if rendered == "" {
		rendered = lastRaw
	}
	debugLines = append(debugLines, fmt.Sprintf("gave up after %d attempts: %s", maxAttempts, lastMessage))

	return PlanResult{
		RenderedText: rendered,
		Entries:      serialized,
		Trail:        trail,
		DebugLines:   debugLines,
		Succeeded:    false,
	}, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func formatDebugLine(r AttemptRecord) string {
	status := "fail"
	if r.OK {
		status = "ok"
	}
	return fmt.Sprintf("attempt %d: %s in %dms, parsed %d entries from %d chars",
		r.Attempt, status, r.Elapsed.Milliseconds(), len(r.Entries), len(r.Raw))
}
