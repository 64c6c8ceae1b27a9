package outline

import (
	"strings"

	"github.com/neperienx/bookpipeline/internal/models"
)

const outlineSystemPrompt = "You are a story-development assistant. " +
	"You write clear, structured novel outlines in plain text, using section headings followed by bullet points."

// buildOutlinePrompt assembles the generation prompt from the premise,
// the author's standing notes, and any one-off guidance.
func buildOutlinePrompt(proj *models.ProjectModel, guidance string) string {
	var b strings.Builder

	b.WriteString("Project title: ")
	b.WriteString(strings.TrimSpace(proj.Title))
	b.WriteString("\n\n")

	if premise := strings.TrimSpace(proj.Premise); premise != "" {
		b.WriteString("Story idea:\n")
		b.WriteString(premise)
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

	b.WriteString("Write a full story outline for this novel. Use the sections ")
	b.WriteString(`"Premise & Hook", "Act I — Setup & Disruption", "Act II — Escalation & Midpoint" and "Act III — Climax & Resolution", `)
	b.WriteString("each with three or four concrete bullet points covering plot, character stakes, and tone.")

	return b.String()
}

// fallbackConcept picks the text the heuristic outline is built from:
// the premise when present, otherwise the one-off guidance.
func fallbackConcept(proj *models.ProjectModel, guidance string) string {
	if premise := strings.TrimSpace(proj.Premise); premise != "" {
		return premise
	}
	return strings.TrimSpace(guidance)
}
