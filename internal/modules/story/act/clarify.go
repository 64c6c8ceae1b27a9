package act

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
)

type ClarifyDTO struct {
	// Apply writes the refined premise back onto the project.
	Apply bool `json:"apply"`
}

// ConceptCandidate is a story element the first pass flagged as
// unclear, with the issue a reader would trip over.
type ConceptCandidate struct {
	Name  string `json:"name"`
	Issue string `json:"issue,omitempty"`
}

// ConceptDefinition is a clarified concept after the second pass.
type ConceptDefinition struct {
	Name       string   `json:"name"`
	Issue      string   `json:"issue,omitempty"`
	Definition string   `json:"definition"`
	Examples   []string `json:"examples,omitempty"`
}

// ClarifyResult carries both passes: the clarified concepts and the
// premise with those clarifications folded in.
type ClarifyResult struct {
	Concepts       []ConceptDefinition `json:"concepts"`
	RefinedPremise string              `json:"refined_premise"`
	Applied        bool                `json:"applied"`
	UsedFallback   bool                `json:"used_fallback"`
}

const clarifySystemPrompt = "You are a story-development assistant. " +
	"You reply with strict JSON only, with no prose around it."

// Clarify runs the two-pass concept workflow: pass one flags unclear
// concepts in the latest outline (or the premise when no outline
// exists), pass two writes a working definition for each, and the
// definitions are folded into a refined premise. Either pass falls
// back to a deterministic heuristic when the model fails. With
// dto.Apply the refined premise replaces the stored one.
func (s *Service) Clarify(ctx context.Context, ownerID, projectID string, dto *ClarifyDTO) (*ClarifyResult, error) {
	proj, err := s.ownedProject(ownerID, projectID)
	if err != nil {
		return nil, err
	}

	material := strings.TrimSpace(s.latestOutlineText(projectID))
	if material == "" {
		material = strings.TrimSpace(proj.Premise)
	}
	if material == "" {
		return nil, ErrNoMaterial
	}

	titleFragment := strings.TrimSpace(proj.Title)
	if titleFragment == "" {
		titleFragment = "the project"
	}

	started := time.Now()

	res1, err1 := s.ai.Generate(ctx, ai.PurposeOutline, clarifySystemPrompt, buildIdentifyPrompt(titleFragment, material))
	candidates := parseCandidates(res1.Text)
	usedFallback := false
	if len(candidates) == 0 {
		candidates = fallbackCandidates(material, titleFragment)
		usedFallback = true
	}

	res2, err2 := s.ai.Generate(ctx, ai.PurposeOutline, clarifySystemPrompt, buildDefinePrompt(titleFragment, material, candidates))
	definitions := parseDefinitions(res2.Text)
	if len(definitions) == 0 {
		definitions = fallbackDefinitions(material, candidates, titleFragment)
		usedFallback = true
	}

	concepts := combineConcepts(candidates, definitions)
	refined := foldRefinedPremise(proj.Premise, concepts)

	applied := false
	if dto.Apply && refined != "" {
		if err := s.db.Model(proj).Update("premise", refined).Error; err != nil {
			return nil, err
		}
		applied = true
	}

	model := res2.Model
	if model == "" {
		model = res1.Model
	}
	genErr := err1
	if genErr == nil {
		genErr = err2
	}
	s.logClarify(projectID, !usedFallback, time.Since(started), model, genErr)

	return &ClarifyResult{
		Concepts:       concepts,
		RefinedPremise: refined,
		Applied:        applied,
		UsedFallback:   usedFallback,
	}, nil
}

func (s *Service) logClarify(projectID string, succeeded bool, elapsed time.Duration, model string, genErr error) {
	entry := models.GenerationLogModel{
		ProjectID:  projectID,
		Kind:       models.GenerationKindConcept,
		Succeeded:  succeeded,
		Attempts:   2,
		DurationMS: elapsed.Milliseconds(),
		ModelUsed:  model,
	}
	if genErr != nil {
		entry.ErrorText = genErr.Error()
	}
	_ = s.db.Create(&entry).Error
}

func buildIdentifyPrompt(titleFragment, material string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project title: %s\n\n", titleFragment)
	b.WriteString("Story material:\n")
	b.WriteString(ai.TruncateText(material, 6000))
	b.WriteString("\n\n")
	b.WriteString("List up to five concepts, terms, or story elements in this material a reader would find unclear or underdeveloped. ")
	b.WriteString(`Reply with a JSON array of objects, each with string fields "name" and "issue" describing what needs clarifying.`)
	return b.String()
}

func buildDefinePrompt(titleFragment, material string, candidates []ConceptCandidate) string {
	payload, _ := json.MarshalIndent(map[string]interface{}{"concepts": candidates}, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Project title: %s\n\n", titleFragment)
	b.WriteString("Story material:\n")
	b.WriteString(ai.TruncateText(material, 6000))
	b.WriteString("\n\n")
	b.WriteString("Concepts to clarify:\n")
	b.Write(payload)
	b.WriteString("\n\n")
	b.WriteString("Write a working definition for each concept, grounded in the story material, that resolves the flagged issue. ")
	b.WriteString(`Reply with a JSON array of objects, each with string fields "name" and "definition" plus "examples", a list of one or two concrete story beats showing the concept in action.`)
	return b.String()
}

func parseCandidates(raw string) []ConceptCandidate {
	var seeds []ConceptCandidate
	if err := ai.DecodeModelJSON(raw, &seeds); err != nil {
		var wrapper struct {
			Concepts []ConceptCandidate `json:"concepts"`
		}
		if err := ai.DecodeModelJSON(raw, &wrapper); err != nil {
			return nil
		}
		seeds = wrapper.Concepts
	}

	out := seeds[:0]
	for _, c := range seeds {
		c.Name = strings.TrimSpace(c.Name)
		c.Issue = strings.TrimSpace(c.Issue)
		if c.Name == "" {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// conceptDefinitionSeed tolerates the examples field arriving as a
// JSON list or a single string.
type conceptDefinitionSeed struct {
	Name       string
	Definition string
	Examples   []string
}

func (s *conceptDefinitionSeed) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name       string          `json:"name"`
		Definition string          `json:"definition"`
		Examples   json.RawMessage `json:"examples"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Name = strings.TrimSpace(raw.Name)
	s.Definition = strings.TrimSpace(raw.Definition)
	s.Examples = nil

	if len(raw.Examples) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw.Examples, &list); err == nil {
		for _, e := range list {
			if t := strings.TrimSpace(e); t != "" {
				s.Examples = append(s.Examples, t)
			}
		}
		return nil
	}
	var single string
	if err := json.Unmarshal(raw.Examples, &single); err == nil {
		if t := strings.TrimSpace(single); t != "" {
			s.Examples = []string{t}
		}
	}
	return nil
}

func parseDefinitions(raw string) []conceptDefinitionSeed {
	var seeds []conceptDefinitionSeed
	if err := ai.DecodeModelJSON(raw, &seeds); err != nil {
		var wrapper struct {
			Concepts []conceptDefinitionSeed `json:"concepts"`
		}
		if err := ai.DecodeModelJSON(raw, &wrapper); err != nil {
			return nil
		}
		seeds = wrapper.Concepts
	}

	out := seeds[:0]
	for _, d := range seeds {
		if d.Name == "" || d.Definition == "" {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// combineConcepts merges the definition pass back onto the candidates,
// keeping the first definition per name and carrying the flagged issue
// along.
func combineConcepts(candidates []ConceptCandidate, definitions []conceptDefinitionSeed) []ConceptDefinition {
	issues := make(map[string]string, len(candidates))
	for _, c := range candidates {
		issues[strings.ToLower(c.Name)] = c.Issue
	}

	seen := make(map[string]bool, len(definitions))
	var out []ConceptDefinition
	for _, d := range definitions {
		key := strings.ToLower(d.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ConceptDefinition{
			Name:       d.Name,
			Issue:      issues[key],
			Definition: d.Definition,
			Examples:   d.Examples,
		})
	}
	return out
}

// foldRefinedPremise appends the clarified concepts to the premise as
// a deterministic addendum.
func foldRefinedPremise(premise string, concepts []ConceptDefinition) string {
	base := strings.TrimSpace(premise)
	if len(concepts) == 0 {
		return base
	}

	var b strings.Builder
	if base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}
	b.WriteString("Clarified concepts:\n")
	for _, c := range concepts {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Definition)
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	conceptWordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z'\-]+`)

	conceptStopwords = map[string]bool{
		"about": true, "after": true, "again": true, "among": true,
		"being": true, "first": true, "other": true, "there": true,
		"their": true, "through": true, "under": true, "while": true,
		"world": true,
	}
)

const fallbackCandidateLimit = 5

// fallbackCandidates flags repeated substantive words as concepts when
// the model gave none: words over four letters appearing at least
// twice, most frequent first.
func fallbackCandidates(material, titleFragment string) []ConceptCandidate {
	counts := make(map[string]int)
	var order []string
	for _, word := range conceptWordPattern.FindAllString(material, -1) {
		if len(word) <= 4 {
			continue
		}
		key := strings.ToLower(word)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	var out []ConceptCandidate
	for _, key := range order {
		if counts[key] < 2 || conceptStopwords[key] {
			continue
		}
		name := titleCase(key)
		if name == "" {
			continue
		}
		out = append(out, ConceptCandidate{
			Name:  name,
			Issue: fmt.Sprintf("Clarify how %s functions within the story.", name),
		})
		if len(out) >= fallbackCandidateLimit {
			break
		}
	}

	if len(out) == 0 {
		out = append(out, ConceptCandidate{
			Name:  titleFragment,
			Issue: "Clarify the central concept and the stakes driving the narrative.",
		})
	}
	return out
}

// fallbackDefinitions writes heuristic definitions from the material
// around each candidate.
func fallbackDefinitions(material string, candidates []ConceptCandidate, titleFragment string) []conceptDefinitionSeed {
	if len(candidates) == 0 {
		candidates = fallbackCandidates(material, titleFragment)
	}

	out := make([]conceptDefinitionSeed, 0, len(candidates))
	for _, c := range candidates {
		var definition string
		if snippet := surroundingContext(material, c.Name); snippet != "" {
			definition = fmt.Sprintf(
				"%s represents %s. Expand the outline with sensory detail, clear stakes, and how characters experience this concept moment to moment.",
				c.Name, snippet)
		} else {
			definition = fmt.Sprintf(
				"%s is a pivotal idea in %s. Describe what it looks like, how it changes the world, and why the characters cannot ignore it.",
				c.Name, titleFragment)
		}
		out = append(out, conceptDefinitionSeed{
			Name:       c.Name,
			Definition: definition,
			Examples: []string{
				fmt.Sprintf("A scene where %s forces a difficult choice.", c.Name),
				fmt.Sprintf("An image or sensation that shows %s in action.", c.Name),
			},
		})
	}
	return out
}

// surroundingContext pulls up to 140 characters either side of the
// term's first occurrence, whitespace collapsed.
func surroundingContext(material, term string) string {
	if term == "" {
		return ""
	}
	pattern, err := regexp.Compile(`(?is)(.{0,140}` + regexp.QuoteMeta(term) + `.{0,140})`)
	if err != nil {
		return ""
	}
	match := pattern.FindStringSubmatch(material)
	if match == nil {
		return ""
	}
	return strings.Join(strings.Fields(match[1]), " ")
}

func titleCase(word string) string {
	fields := strings.Fields(strings.ReplaceAll(word, "'", " "))
	for i, f := range fields {
		runes := []rune(f)
		runes[0] = unicode.ToUpper(runes[0])
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}
