package draft

import (
	"fmt"
	"strings"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/neperienx/bookpipeline/internal/modules/processing/chapterplan"
)

const draftSystemPrompt = "You are a novelist drafting one chapter at a time. " +
	"You write immersive prose in the established voice of the manuscript, without headings, meta commentary, or notes to the author."

// buildDraftPrompt assembles the prose prompt for one planned chapter:
// premise and outline, the roster, the act outline, the chapter's plan
// entry flanked by its neighbours, and the tail of the prose written
// so far.
func (s *Service) buildDraftPrompt(proj *models.ProjectModel, dto *GenerateDraftDTO, entry chapterplan.ChapterEntry, neighbours planNeighbours) string {
	var b strings.Builder

	b.WriteString("Project title: ")
	b.WriteString(strings.TrimSpace(proj.Title))
	b.WriteString("\n\n")

	if premise := strings.TrimSpace(proj.Premise); premise != "" {
		b.WriteString("Story idea:\n")
		b.WriteString(premise)
		b.WriteString("\n\n")
	}
	if outline := s.latestOutlineText(proj.ID); strings.TrimSpace(outline) != "" {
		b.WriteString("Story outline:\n")
		b.WriteString(ai.TruncateText(strings.TrimSpace(outline), 4000))
		b.WriteString("\n\n")
	}
	if characters := s.characterSummary(proj.ID); characters != "" {
		b.WriteString("Characters:\n")
		b.WriteString(characters)
		b.WriteString("\n\n")
	}
	if actOutline := s.actOutlineText(proj.ID, dto.Act); actOutline != "" {
		fmt.Fprintf(&b, "Act %d outline:\n", dto.Act)
		b.WriteString(ai.TruncateText(actOutline, 2000))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Chapter to draft: Chapter %d — %s\n", entry.Number, entryTitle(entry))
	if summary := strings.TrimSpace(entry.Summary); summary != "" {
		b.WriteString("Planned events:\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if prev := neighbours.Before; prev != nil && strings.TrimSpace(prev.Summary) != "" {
		fmt.Fprintf(&b, "Previous chapter (%d, %s) covers:\n", prev.Number, entryTitle(*prev))
		b.WriteString(strings.TrimSpace(prev.Summary))
		b.WriteString("\n\n")
	}
	if next := neighbours.After; next != nil && strings.TrimSpace(next.Summary) != "" {
		fmt.Fprintf(&b, "Next chapter (%d, %s) will cover:\n", next.Number, entryTitle(*next))
		b.WriteString(strings.TrimSpace(next.Summary))
		b.WriteString("\n\n")
	}
	if tail := s.priorDraftTail(proj.ID, dto.Act, dto.Chapter); tail != "" {
		b.WriteString("The manuscript so far ends with:\n")
		b.WriteString(tail)
		b.WriteString("\n\n")
	}
	if notes := strings.TrimSpace(proj.AuthorNotes); notes != "" {
		b.WriteString("Author notes:\n")
		b.WriteString(notes)
		b.WriteString("\n\n")
	}
	if extra := strings.TrimSpace(dto.Guidance); extra != "" {
		b.WriteString("Additional guidance:\n")
		b.WriteString(extra)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Write the full prose of chapter %d. ", entry.Number)
	b.WriteString("Cover the planned events, pick up smoothly from the manuscript so far, and end in a place that hands off to the next chapter. Return only the chapter text.")

	return b.String()
}

func entryTitle(entry chapterplan.ChapterEntry) string {
	if title := strings.TrimSpace(entry.Title); title != "" {
		return title
	}
	return "Untitled Chapter"
}

func (s *Service) actOutlineText(projectID string, act int) string {
	var row models.ActOutlineModel
	if err := s.db.Where("project_id = ? AND act = ?", projectID, act).First(&row).Error; err != nil {
		return ""
	}
	return strings.TrimSpace(row.Text)
}

func (s *Service) characterSummary(projectID string) string {
	var chars []models.CharacterModel
	if err := s.db.Where("project_id = ?", projectID).
		Order("sort_order ASC, name ASC").Find(&chars).Error; err != nil {
		return ""
	}

	var b strings.Builder
	for _, ch := range chars {
		b.WriteString("- ")
		b.WriteString(ch.Name)
		if ch.Role != "" {
			b.WriteString(" (")
			b.WriteString(ch.Role)
			b.WriteString(")")
		}
		if ch.Goals != "" {
			b.WriteString(": ")
			b.WriteString(ch.Goals)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) latestOutlineText(projectID string) string {
	var v models.OutlineVersionModel
	if err := s.db.Where("project_id = ?", projectID).Order("version DESC").First(&v).Error; err != nil {
		return ""
	}
	return v.Text
}
