package models

// CharacterModel is one entry in a project's character roster.
type CharacterModel struct {
	Base
	ProjectID  string `json:"project_id" gorm:"index;uniqueIndex:uk_character_project_name;not null"`
	Name       string `json:"name"       gorm:"uniqueIndex:uk_character_project_name;not null"`
	Role       string `json:"role"`
	Background string `json:"background" gorm:"type:longtext"`
	Goals      string `json:"goals"      gorm:"type:longtext"`
	Conflict   string `json:"conflict"   gorm:"type:longtext"`
	Notes      string `json:"notes"      gorm:"type:longtext"`
	SortOrder  int    `json:"sort_order" gorm:"default:0"`
}

func (CharacterModel) TableName() string { return "characters" }
