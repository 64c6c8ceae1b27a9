package models

// ChapterDraftModel is the prose draft of one chapter. Title and
// Summary are snapshots of the chapter-plan entry the draft was
// written from, so later plan edits don't silently reshape old prose.
type ChapterDraftModel struct {
	Base
	ProjectID string `json:"project_id" gorm:"index;uniqueIndex:uk_draft_project_act_chapter;not null"`
	Act       int    `json:"act"        gorm:"uniqueIndex:uk_draft_project_act_chapter;not null"`
	Chapter   int    `json:"chapter"    gorm:"uniqueIndex:uk_draft_project_act_chapter;not null"`
	Title     string `json:"title"`
	Summary   string `json:"summary"    gorm:"type:longtext"`
	Text      string `json:"text"       gorm:"type:longtext"`
	WordCount int    `json:"word_count"`
	ModelUsed string `json:"model_used"`
}

func (ChapterDraftModel) TableName() string { return "chapter_drafts" }
