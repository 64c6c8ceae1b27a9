package models

// ActCount is the number of acts every project is structured into.
const ActCount = 3

// ActOutlineModel is the prose outline for a single act.
type ActOutlineModel struct {
	Base
	ProjectID string `json:"project_id" gorm:"index;uniqueIndex:uk_act_project_act;not null"`
	Act       int    `json:"act"        gorm:"uniqueIndex:uk_act_project_act;not null"`
	Text      string `json:"text"       gorm:"type:longtext"`
	Source    string `json:"source"     gorm:"default:'generated'"`
	ModelUsed string `json:"model_used"`
}

func (ActOutlineModel) TableName() string { return "act_outlines" }
