package act

import (
	"fmt"
	"strings"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
)

const actSystemPrompt = "You are a story-development assistant. " +
	"You write prose outlines for single acts of a novel, in plain text paragraphs or short bullet runs, staying consistent with the material you are given."

// Per-act instruction fragments appended to the generation prompt.
var actFocus = [models.ActCount]string{
	"Establish the everyday world, land the catalytic disruption, and end on the decision that launches the journey.",
	"Track escalating complications and shifting alliances, and hinge the act on a midpoint revelation.",
	"Drive to the climactic confrontation, show what is sacrificed, and settle the transformed status quo.",
}

// buildActPrompt assembles the generation prompt for one act from the
// full stored context: premise, story outline, roster, and the acts
// already written before this one.
func buildActPrompt(proj *models.ProjectModel, act int, outlineText, characters string, prior map[int]string, guidance string) string {
	var b strings.Builder

	b.WriteString("Project title: ")
	b.WriteString(strings.TrimSpace(proj.Title))
	b.WriteString("\n\n")

	if premise := strings.TrimSpace(proj.Premise); premise != "" {
		b.WriteString("Story idea:\n")
		b.WriteString(premise)
		b.WriteString("\n\n")
	}
	if outline := strings.TrimSpace(outlineText); outline != "" {
		b.WriteString("Story outline:\n")
		b.WriteString(ai.TruncateText(outline, 4000))
		b.WriteString("\n\n")
	}
	if characters != "" {
		b.WriteString("Characters:\n")
		b.WriteString(characters)
		b.WriteString("\n\n")
	}
	for prev := 1; prev < act; prev++ {
		text, ok := prior[prev]
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s outline (already written):\n", actLabel(prev))
		b.WriteString(ai.TruncateText(strings.TrimSpace(text), 2000))
		b.WriteString("\n\n")
	}
	if notes := strings.TrimSpace(proj.AuthorNotes); notes != "" {
		b.WriteString("Author notes:\n")
		b.WriteString(notes)
		b.WriteString("\n\n")
	}
	if extra := strings.TrimSpace(guidance); extra != "" {
		b.WriteString("Additional guidance:\n")
		b.WriteString(extra)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Write the outline for %s of this three-act novel. ", actLabel(act))
	b.WriteString(actFocus[act-1])
	b.WriteString(" Stay continuous with the acts already written and keep character motivations consistent.")

	return b.String()
}

// Deterministic per-act structure guides used when no model reply is
// available.
var fallbackActBeats = [models.ActCount][]string{
	{
		"Show the everyday world and the relationships %[2]s will overturn.",
		"Land the catalytic disruption that collides with the protagonist's routine.",
		"Force the decision that launches the journey and locks in the stakes of %[1]s.",
	},
	{
		"Track escalating complications and shifting alliances as the conflict sharpens.",
		"Build to the midpoint revelation sparked by %[2]s.",
		"Spiral toward the low point where outer pressure meets the protagonist's inner doubt.",
	},
	{
		"Stage the climactic confrontation and make the cost of winning concrete.",
		"Show what is sacrificed and how the status quo of %[1]s is transformed.",
		"Close on the emotional resonance that lingers with the reader.",
	},
}

// fallbackActOutline produces a deterministic structure guide for one
// act. Same inputs, same text.
func fallbackActOutline(act int, title, concept string) string {
	titleFragment := strings.TrimSpace(title)
	if titleFragment == "" {
		titleFragment = "the story"
	}
	excerpt := conceptExcerpt(concept)

	var b strings.Builder
	fmt.Fprintf(&b, "%s structure for %s:\n", actLabel(act), titleFragment)
	for _, beat := range fallbackActBeats[act-1] {
		b.WriteString("- ")
		b.WriteString(fmt.Sprintf(beat, titleFragment, excerpt))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// actConcept picks the text the fallback guide is built from: the
// premise when present, otherwise the one-off guidance.
func actConcept(proj *models.ProjectModel, guidance string) string {
	if premise := strings.TrimSpace(proj.Premise); premise != "" {
		return premise
	}
	return strings.TrimSpace(guidance)
}

const fallbackExcerptWords = 22

// conceptExcerpt trims the concept to a quotable fragment.
func conceptExcerpt(concept string) string {
	words := strings.Fields(concept)
	if len(words) == 0 {
		return "your story concept"
	}
	if len(words) <= fallbackExcerptWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:fallbackExcerptWords], " ") + "…"
}

func actLabel(act int) string {
	switch act {
	case 1:
		return "Act I"
	case 2:
		return "Act II"
	default:
		return "Act III"
	}
}
