package outline

import (
	"fmt"
	"strings"
)

// Heuristic outline layout used when no model reply is available. The
// section names double as the structure the generation prompt asks
// the model for, so generated and fallback outlines look alike.
var fallbackSections = []struct {
	heading string
	bullets []string
}{
	{
		heading: "Premise & Hook",
		bullets: []string{
			"Clarify the core concept driving %[1]s: %[2]s. Name the protagonist, the central conflict, and why the story matters now.",
			"Pin down tone and genre markers for %[1]s, with the emotions or comparable works the opening pages should evoke.",
			"Show the protagonist's status quo and the personal stake that %[2]s puts at risk.",
			"Frame the dramatic question %[1]s must answer, and the force that immediately stands in the way.",
		},
	},
	{
		heading: "Act I — Setup & Disruption",
		bullets: []string{
			"Ground daily life before the disruption, the textures and relationships that %[2]s will overturn.",
			"Introduce supporting characters whose motivations reinforce the protagonist's inertia or foreshadow the rupture.",
			"Land the inciting incident that collides with the protagonist's goal and forces a choice.",
			"Close the act on a point-of-no-return decision that locks in the stakes of %[2]s.",
		},
	},
	{
		heading: "Act II — Escalation & Midpoint",
		bullets: []string{
			"Escalate obstacles that complicate the pursuit, each revealing a deeper layer of theme or world tied to %[2]s.",
			"Track how allies and antagonists shift as the conflict sharpens and the cost of failure grows.",
			"Stage a midpoint reversal that reframes what is truly at stake in %[1]s.",
			"Spiral toward a low point where outer pressure and inner doubt converge on the protagonist's core flaw.",
		},
	},
	{
		heading: "Act III — Climax & Resolution",
		bullets: []string{
			"Stage the final confrontation that makes the protagonist apply what the journey taught them.",
			"Let supporting characters tip the climax, by pivotal aid or by conflicting agendas.",
			"Answer the dramatic question decisively, with the tangible cost of success or failure on the page.",
			"End on a denouement that shows the new normal and how %[1]s has permanently shifted.",
		},
	},
}

const fallbackExcerptWords = 22

// buildFallbackOutline produces a deterministic outline from the story
// concept alone. Same inputs, same text.
func buildFallbackOutline(title, concept string) string {
	titleFragment := strings.TrimSpace(title)
	if titleFragment == "" {
		titleFragment = "the story"
	}
	excerpt := conceptExcerpt(concept)

	var b strings.Builder
	for i, section := range fallbackSections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(section.heading)
		b.WriteString("\n")
		for _, bullet := range section.bullets {
			b.WriteString("- ")
			b.WriteString(fmt.Sprintf(bullet, titleFragment, excerpt))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

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
