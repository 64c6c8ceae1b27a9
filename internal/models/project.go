package models

// Pipeline steps, in order. A project moves forward only when the
// artifacts of its current step exist.
const (
	StepPremise = iota
	StepOutline
	StepCharacters
	StepActs
	StepChapters
	StepDrafts
	StepComplete
)

// StepNames maps pipeline steps to their wire names.
var StepNames = map[int]string{
	StepPremise:    "premise",
	StepOutline:    "outline",
	StepCharacters: "characters",
	StepActs:       "acts",
	StepChapters:   "chapters",
	StepDrafts:     "drafts",
	StepComplete:   "complete",
}

// ProjectModel is a novel-in-progress.
type ProjectModel struct {
	Base
	OwnerID            string `json:"owner_id"             gorm:"index;not null"`
	Title              string `json:"title"                gorm:"not null"`
	Premise            string `json:"premise"              gorm:"type:longtext"`
	AuthorNotes        string `json:"author_notes"         gorm:"type:longtext"`
	TargetChapterCount int    `json:"target_chapter_count" gorm:"default:8"`
	CurrentStep        int    `json:"current_step"         gorm:"default:0"`
}

func (ProjectModel) TableName() string { return "projects" }

// StepName returns the wire name of the project's current step.
func (p *ProjectModel) StepName() string {
	if name, ok := StepNames[p.CurrentStep]; ok {
		return name
	}
	return "premise"
}
