package character

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
)

const characterSystemPrompt = "You are a story-development assistant helping a novelist build a character roster. " +
	"When asked for JSON, reply with JSON only."

// characterSeed is one roster entry as the model returns it. Models
// drift on field names, so decoding tolerates the common aliases.
type characterSeed struct {
	Name       string
	Role       string
	Background string
	Goals      string
	Conflict   string
	Notes      string
}

func (cs *characterSeed) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name          string `json:"name"`
		Role          string `json:"role"`
		RoleInStory   string `json:"role_in_story"`
		Background    string `json:"background"`
		Goals         string `json:"goals"`
		CoreDrive     string `json:"core_drive"`
		Conflict      string `json:"conflict"`
		Vulnerability string `json:"hidden_vulnerability"`
		Notes         string `json:"notes"`
		Relationships string `json:"relationship_web"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cs.Name = strings.TrimSpace(raw.Name)
	cs.Role = firstNonEmpty(raw.Role, raw.RoleInStory)
	cs.Background = strings.TrimSpace(raw.Background)
	cs.Goals = firstNonEmpty(raw.Goals, raw.CoreDrive)
	cs.Conflict = firstNonEmpty(raw.Conflict, raw.Vulnerability)
	cs.Notes = firstNonEmpty(raw.Notes, raw.Relationships)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// parseRoster decodes a model reply into seeds, accepting either a
// bare JSON array or a {"characters": [...]} wrapper.
func parseRoster(raw string) []characterSeed {
	var seeds []characterSeed
	if err := ai.DecodeModelJSON(raw, &seeds); err == nil && len(seeds) > 0 {
		return pruneNameless(seeds)
	}

	var wrapper struct {
		Characters []characterSeed `json:"characters"`
	}
	if err := ai.DecodeModelJSON(raw, &wrapper); err == nil {
		return pruneNameless(wrapper.Characters)
	}
	return nil
}

func pruneNameless(seeds []characterSeed) []characterSeed {
	out := seeds[:0]
	for _, seed := range seeds {
		if strings.TrimSpace(seed.Name) != "" {
			out = append(out, seed)
		}
	}
	return out
}

func buildRosterPrompt(proj *models.ProjectModel, outlineText, guidance string) string {
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
		b.WriteString("Current outline:\n")
		b.WriteString(ai.TruncateText(outline, 4000))
		b.WriteString("\n\n")
	}
	if extra := strings.TrimSpace(guidance); extra != "" {
		b.WriteString("Additional guidance:\n")
		b.WriteString(extra)
		b.WriteString("\n\n")
	}

	b.WriteString("Draft a roster of three to five characters for this novel. ")
	b.WriteString("Reply with a JSON array; each element must have the string fields ")
	b.WriteString(`"name", "role", "background", "goals", "conflict" and "notes".`)

	return b.String()
}

func buildAutofillPrompt(proj *models.ProjectModel, ch *models.CharacterModel, field string) string {
	var b strings.Builder

	b.WriteString("Project title: ")
	b.WriteString(strings.TrimSpace(proj.Title))
	b.WriteString("\n\n")

	if premise := strings.TrimSpace(proj.Premise); premise != "" {
		b.WriteString("Story idea:\n")
		b.WriteString(premise)
		b.WriteString("\n\n")
	}

	b.WriteString("Character: ")
	b.WriteString(ch.Name)
	if role := strings.TrimSpace(ch.Role); role != "" {
		b.WriteString(" (")
		b.WriteString(role)
		b.WriteString(")")
	}
	b.WriteString("\n")
	for _, known := range []struct{ label, value string }{
		{"Background", ch.Background},
		{"Goals", ch.Goals},
		{"Conflict", ch.Conflict},
		{"Notes", ch.Notes},
	} {
		if strings.EqualFold(known.label, field) {
			continue
		}
		if v := strings.TrimSpace(known.value); v != "" {
			b.WriteString(known.label)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nWrite the %s for this character in two to four sentences of plain prose. Reply with the text only.", field)
	return b.String()
}

// fallbackRoster is the deterministic starter roster used when the
// model produced nothing usable.
func fallbackRoster(title, premise string) []characterSeed {
	titleFragment := strings.TrimSpace(title)
	if titleFragment == "" {
		titleFragment = "the story"
	}
	excerpt := premiseExcerpt(premise)

	return []characterSeed{
		{
			Name:       "Protagonist",
			Role:       "Central protagonist",
			Background: fmt.Sprintf("Anchors the narrative of %s, shaped by %s.", titleFragment, excerpt),
			Goals:      "Drives the plot by pursuing a deeply personal desire tied to the core premise.",
			Conflict:   "Must confront an escalating internal vulnerability mirrored by external pressure.",
			Notes:      "Track how their relationships shift as the stakes rise; keep their voice distinct.",
		},
		{
			Name:       "Opposition",
			Role:       "Primary antagonistic force",
			Background: "Embodies the counter-argument to the protagonist's worldview, with resources the hero lacks.",
			Goals:      "Seeks to keep control, convinced the protagonist's success would upend the existing order.",
			Conflict:   "Applies pressure through moral compromises that force the protagonist toward decisive action.",
			Notes:      "Mirror the protagonist where possible; parallels heighten the tension.",
		},
		{
			Name:       "Key Ally",
			Role:       "Trusted ally",
			Background: "Knows the protagonist's blind spots and has history that keeps them invested in the journey.",
			Goals:      "Wants the protagonist to succeed but carries a second agenda that can strain loyalty.",
			Conflict:   "Their support is tested when the mission threatens something they protect.",
			Notes:      "Useful for surfacing exposition naturally and for unexpected strategy shifts.",
		},
	}
}

// fallbackFieldText is the deterministic single-field filler.
func fallbackFieldText(field, name, title string) string {
	who := strings.TrimSpace(name)
	if who == "" {
		who = "this character"
	}
	where := strings.TrimSpace(title)
	if where == "" {
		where = "the story"
	}

	switch field {
	case "background":
		return fmt.Sprintf("%s carries a history that quietly steers every choice made in %s; sketch the one event that still echoes.", who, where)
	case "goals":
		return fmt.Sprintf("%s wants something concrete enough to chase on the page, with a private reason the other characters never hear.", who)
	case "conflict":
		return fmt.Sprintf("The pressure on %s keeps rising until their sharpest vulnerability is exposed in front of the people who matter.", who)
	default: // notes
		return fmt.Sprintf("Watch how alliances shift around %s as the plot accelerates; note the scenes where their loyalty is actually tested.", who)
	}
}

const premiseExcerptRunes = 140

func premiseExcerpt(premise string) string {
	trimmed := strings.TrimSpace(premise)
	if trimmed == "" {
		return "an emerging concept"
	}
	runes := []rune(trimmed)
	if len(runes) <= premiseExcerptRunes {
		return trimmed
	}
	return strings.TrimRight(string(runes[:premiseExcerptRunes]), " ") + "…"
}
