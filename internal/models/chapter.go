package models

// ChapterPlanModel is the stored chapter outline for one act. The
// structured entries JSON is authoritative; RenderedText is derived
// from it and kept for display and prompting.
type ChapterPlanModel struct {
	Base
	ProjectID      string `json:"project_id"      gorm:"index;uniqueIndex:uk_plan_project_act;not null"`
	Act            int    `json:"act"             gorm:"uniqueIndex:uk_plan_project_act;not null"`
	EntriesJSON    string `json:"entries_json"    gorm:"type:longtext"`
	RenderedText   string `json:"rendered_text"   gorm:"type:longtext"`
	RequestedCount int    `json:"requested_count"`
	Validated      bool   `json:"validated"`
	Attempts       int    `json:"attempts"`
	ModelUsed      string `json:"model_used"`
}

func (ChapterPlanModel) TableName() string { return "chapter_plans" }
