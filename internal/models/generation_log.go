package models

// Generation kinds recorded in the log.
const (
	GenerationKindOutline    = "outline"
	GenerationKindCharacters = "characters"
	GenerationKindConcept    = "concept"
	GenerationKindAct        = "act"
	GenerationKindChapters   = "chapters"
	GenerationKindDraft      = "draft"
)

// GenerationLogModel records one AI generation run, successful or not.
type GenerationLogModel struct {
	Base
	ProjectID  string `json:"project_id" gorm:"index;not null"`
	Kind       string `json:"kind"       gorm:"index;not null"`
	Act        *int   `json:"act,omitempty"`
	Chapter    *int   `json:"chapter,omitempty"`
	Succeeded  bool   `json:"succeeded"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
	ModelUsed  string `json:"model_used"`
	ErrorText  string `json:"error_text,omitempty" gorm:"type:text"`
}

func (GenerationLogModel) TableName() string { return "generation_logs" }
