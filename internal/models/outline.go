package models

// Outline sources.
const (
	OutlineSourceGenerated = "generated"
	OutlineSourceEdited    = "edited"
)

// OutlineVersionModel is one numbered revision of a project's story
// outline. Versions are append-only; the highest version wins.
type OutlineVersionModel struct {
	Base
	ProjectID string `json:"project_id" gorm:"index;uniqueIndex:uk_outline_project_version;not null"`
	Version   int    `json:"version"    gorm:"uniqueIndex:uk_outline_project_version;not null"`
	Text      string `json:"text"       gorm:"type:longtext"`
	Source    string `json:"source"     gorm:"default:'generated'"`
	ModelUsed string `json:"model_used"`
}

func (OutlineVersionModel) TableName() string { return "outline_versions" }
