package chapterplan

import (
	"fmt"
	"strings"
)

// promptSection is one named block of the generation prompt. Sections
// render in listed order, each under a "## <Name>" header; empty
// bodies are dropped.
type promptSection struct {
	Name string
	Body string
}

func renderSections(sections []promptSection) string {
	var b strings.Builder
	for _, s := range sections {
		body := strings.TrimSpace(s.Body)
		if body == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(s.Name)
		b.WriteString("\n")
		b.WriteString(body)
	}
	return b.String()
}

func buildInitialPrompt(req PlanRequest) string {
	var acts strings.Builder
	for i, outline := range req.ActOutlines {
		body := strings.TrimSpace(outline)
		if body == "" {
			continue
		}
		if acts.Len() > 0 {
			acts.WriteString("\n\n")
		}
		fmt.Fprintf(&acts, "Act %d:\n%s", i+1, body)
	}

	var prior strings.Builder
	for i, text := range req.PriorActChapterText {
		body := strings.TrimSpace(text)
		if body == "" {
			continue
		}
		if prior.Len() > 0 {
			prior.WriteString("\n\n")
		}
		fmt.Fprintf(&prior, "Act %d chapters:\n%s", i+1, body)
	}

	// The focus act's outline is repeated in its own section so the
	// model keeps it front of mind even with a long context.
	actOutline := ""
	if req.ActNumber >= 1 && req.ActNumber <= len(req.ActOutlines) {
		actOutline = req.ActOutlines[req.ActNumber-1]
	}

	sections := []promptSection{
		{Name: "Story Outline", Body: req.StoryContext},
		{Name: "Act Structure", Body: acts.String()},
		{Name: fmt.Sprintf("Act %d Focus", req.ActNumber), Body: actOutline},
		{Name: "Characters", Body: req.CharacterContext},
		{Name: "Chapters Planned So Far", Body: prior.String()},
		{Name: "Author Notes", Body: req.AuthorNotes},
		{Name: "Task", Body: taskInstructions(req)},
	}

	role := fmt.Sprintf("You are a novelist breaking act %d of a three-act novel into chapters.", req.ActNumber)
	return role + "\n\n" + renderSections(sections)
}

func taskInstructions(req PlanRequest) string {
	n := req.RequestedChapterCount
	return fmt.Sprintf(`Plan exactly %d chapters for act %d. Reply with one section per chapter and nothing else, each formatted exactly as:

Chapter: Chapter <number> — <title>
<summary of the chapter in one to three sentences>

Number the chapters 1 through %d in that order, leave one blank line between chapters, and give every chapter both a title and a summary.`, n, req.ActNumber, n)
}

func buildRetryPrompt(req PlanRequest, message, lastRaw string) string {
	feedback := fmt.Sprintf("Your previous reply was rejected by the format validator: %s", message)
	if strings.TrimSpace(lastRaw) != "" {
		feedback += "\n\nYour previous reply was:\n" + lastRaw
	}
	feedback += "\n\nWrite the complete chapter list again with the problem fixed. Do not mention this feedback in your reply."
	return buildInitialPrompt(req) + "\n\n" + renderSections([]promptSection{
		{Name: "Format Validator Feedback", Body: feedback},
	})
}
