// Package project manages the novel projects that anchor every other
// story artifact, including the pipeline step each project sits on.
package project

import (
	"errors"
	"fmt"
	"strings"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/chapterplan"
	"github.com/neperienx/bookpipeline/internal/pkg/pagination"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
	"gorm.io/gorm"
)

// ErrPrerequisite marks an advance attempt blocked because the current
// step's artifacts do not exist yet. Handlers map it to 400.
var ErrPrerequisite = errors.New("step prerequisites not met")

type CreateProjectDTO struct {
	Title              string `json:"title" binding:"required"`
	Premise            string `json:"premise"`
	AuthorNotes        string `json:"author_notes"`
	TargetChapterCount int    `json:"target_chapter_count"`
}

type UpdateProjectDTO struct {
	Title              *string `json:"title"`
	Premise            *string `json:"premise"`
	AuthorNotes        *string `json:"author_notes"`
	TargetChapterCount *int    `json:"target_chapter_count"`
}

// StepState reports one pipeline step and whether its artifacts exist.
type StepState struct {
	Step     string `json:"step"`
	Complete bool   `json:"complete"`
}

// ReconciliationView summarizes where drafting stands across the
// project's chapter plans.
type ReconciliationView struct {
	LastDrafted  *chapterplan.ChapterRef `json:"last_drafted,omitempty"`
	LastUnfilled *chapterplan.ChapterRef `json:"last_unfilled,omitempty"`
	LastPlanned  *chapterplan.ChapterRef `json:"last_planned,omitempty"`
	Suggested    *chapterplan.ChapterRef `json:"suggested,omitempty"`
}

// StatusView is the full pipeline picture for one project.
type StatusView struct {
	Step           string             `json:"step"`
	Steps          []StepState        `json:"steps"`
	Reconciliation ReconciliationView `json:"reconciliation"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) List(ownerID string, q pagination.Query) ([]models.ProjectModel, response.Pagination, error) {
	tx := s.db.Model(&models.ProjectModel{}).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC")

	var projects []models.ProjectModel
	pag, err := pagination.Paginate(tx, q, &projects)
	return projects, pag, err
}

func (s *Service) Create(ownerID string, dto *CreateProjectDTO) (*models.ProjectModel, error) {
	proj := models.ProjectModel{
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(dto.Title),
		Premise:     dto.Premise,
		AuthorNotes: dto.AuthorNotes,
		CurrentStep: models.StepPremise,
	}
	if dto.TargetChapterCount > 0 {
		proj.TargetChapterCount = dto.TargetChapterCount
	}
	return &proj, s.db.Create(&proj).Error
}

// GetOwned loads a project only when it belongs to ownerID. Missing and
// foreign projects both come back (nil, nil) so handlers answer 404
// either way.
func (s *Service) GetOwned(ownerID, id string) (*models.ProjectModel, error) {
	var proj models.ProjectModel
	if err := s.db.First(&proj, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &proj, nil
}

func (s *Service) Update(ownerID, id string, dto *UpdateProjectDTO) (*models.ProjectModel, error) {
	proj, err := s.GetOwned(ownerID, id)
	if err != nil || proj == nil {
		return proj, err
	}

	updates := map[string]interface{}{}
	if dto.Title != nil {
		updates["title"] = strings.TrimSpace(*dto.Title)
	}
	if dto.Premise != nil {
		updates["premise"] = *dto.Premise
	}
	if dto.AuthorNotes != nil {
		updates["author_notes"] = *dto.AuthorNotes
	}
	if dto.TargetChapterCount != nil && *dto.TargetChapterCount > 0 {
		updates["target_chapter_count"] = *dto.TargetChapterCount
	}
	if len(updates) == 0 {
		return proj, nil
	}
	return proj, s.db.Model(proj).Updates(updates).Error
}

// Delete removes the project and every artifact hanging off it.
func (s *Service) Delete(ownerID, id string) error {
	proj, err := s.GetOwned(ownerID, id)
	if err != nil {
		return err
	}
	if proj == nil {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, child := range []interface{}{
			&models.OutlineVersionModel{},
			&models.CharacterModel{},
			&models.ActOutlineModel{},
			&models.ChapterPlanModel{},
			&models.ChapterDraftModel{},
			&models.GenerationLogModel{},
		} {
			if err := tx.Where("project_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.ProjectModel{}, "id = ?", id).Error
	})
}

// Status reports the current step, per-step completion, and the
// drafting reconciliation summary.
func (s *Service) Status(ownerID, id string) (*StatusView, error) {
	proj, err := s.GetOwned(ownerID, id)
	if err != nil || proj == nil {
		return nil, err
	}

	flags, err := s.stepCompletion(proj)
	if err != nil {
		return nil, err
	}

	steps := make([]StepState, 0, len(models.StepNames))
	for step := models.StepPremise; step <= models.StepComplete; step++ {
		steps = append(steps, StepState{Step: models.StepNames[step], Complete: flags[step]})
	}

	set, err := s.planSet(id)
	if err != nil {
		return nil, err
	}

	view := &StatusView{Step: proj.StepName(), Steps: steps}
	if ref, ok := set.FindLastDrafted(); ok {
		view.Reconciliation.LastDrafted = &ref
	}
	if ref, ok := set.FindLastUnfilled(); ok {
		view.Reconciliation.LastUnfilled = &ref
	}
	if ref, ok := set.FindLastPlanned(); ok {
		view.Reconciliation.LastPlanned = &ref
	}
	if ref, ok := set.SuggestNextAfterLastDraft(); ok {
		view.Reconciliation.Suggested = &ref
	}
	return view, nil
}

// Advance moves the project to the next pipeline step once the current
// step's artifacts exist.
func (s *Service) Advance(ownerID, id string) (*models.ProjectModel, error) {
	proj, err := s.GetOwned(ownerID, id)
	if err != nil || proj == nil {
		return proj, err
	}
	if proj.CurrentStep >= models.StepComplete {
		return nil, fmt.Errorf("%w: the project is already complete", ErrPrerequisite)
	}

	flags, err := s.stepCompletion(proj)
	if err != nil {
		return nil, err
	}
	if !flags[proj.CurrentStep] {
		return nil, fmt.Errorf("%w: %s", ErrPrerequisite, stepBlockReason(proj.CurrentStep))
	}

	next := proj.CurrentStep + 1
	if err := s.db.Model(proj).Update("current_step", next).Error; err != nil {
		return nil, err
	}
	proj.CurrentStep = next
	return proj, nil
}

// Reset sends the project back to the premise step. Artifacts stay in
// place so nothing generated is lost.
func (s *Service) Reset(ownerID, id string) (*models.ProjectModel, error) {
	proj, err := s.GetOwned(ownerID, id)
	if err != nil || proj == nil {
		return proj, err
	}
	if err := s.db.Model(proj).Update("current_step", models.StepPremise).Error; err != nil {
		return nil, err
	}
	proj.CurrentStep = models.StepPremise
	return proj, nil
}

func (s *Service) stepCompletion(proj *models.ProjectModel) (map[int]bool, error) {
	flags := map[int]bool{
		models.StepPremise:  strings.TrimSpace(proj.Premise) != "",
		models.StepComplete: proj.CurrentStep >= models.StepComplete,
	}

	counts := []struct {
		step  int
		model interface{}
		want  int64
	}{
		{models.StepOutline, &models.OutlineVersionModel{}, 1},
		{models.StepCharacters, &models.CharacterModel{}, 1},
		{models.StepActs, &models.ActOutlineModel{}, models.ActCount},
	}
	for _, c := range counts {
		var n int64
		if err := s.db.Model(c.model).Where("project_id = ?", proj.ID).Count(&n).Error; err != nil {
			return nil, err
		}
		flags[c.step] = n >= c.want
	}

	var validated int64
	if err := s.db.Model(&models.ChapterPlanModel{}).
		Where("project_id = ? AND validated = ?", proj.ID, true).
		Count(&validated).Error; err != nil {
		return nil, err
	}
	flags[models.StepChapters] = validated >= models.ActCount

	set, err := s.planSet(proj.ID)
	if err != nil {
		return nil, err
	}
	_, anyPlanned := set.FindLastPlanned()
	_, anyUnfilled := set.FindLastUnfilled()
	flags[models.StepDrafts] = anyPlanned && !anyUnfilled

	return flags, nil
}

// planSet assembles the reconciliation view of plans and drafts.
func (s *Service) planSet(projectID string) (chapterplan.PlanSet, error) {
	var set chapterplan.PlanSet
	for i := range set.Acts {
		set.Acts[i].Drafted = map[int]bool{}
	}

	var plans []models.ChapterPlanModel
	if err := s.db.Where("project_id = ?", projectID).Find(&plans).Error; err != nil {
		return set, err
	}
	for _, p := range plans {
		if p.Act < 1 || p.Act > chapterplan.ActPlanCount {
			continue
		}
		set.Acts[p.Act-1].Entries = chapterplan.Load([]byte(p.EntriesJSON), p.RenderedText)
	}

	var drafts []models.ChapterDraftModel
	if err := s.db.Select("act", "chapter").Where("project_id = ?", projectID).Find(&drafts).Error; err != nil {
		return set, err
	}
	for _, d := range drafts {
		if d.Act < 1 || d.Act > chapterplan.ActPlanCount {
			continue
		}
		set.Acts[d.Act-1].Drafted[d.Chapter] = true
	}
	return set, nil
}

func stepBlockReason(step int) string {
	switch step {
	case models.StepPremise:
		return "write a premise before moving on"
	case models.StepOutline:
		return "generate or write an outline first"
	case models.StepCharacters:
		return "the character roster is still empty"
	case models.StepActs:
		return fmt.Sprintf("all %d act outlines are required", models.ActCount)
	case models.StepChapters:
		return "every act needs a validated chapter plan"
	case models.StepDrafts:
		return "some planned chapters have no draft yet"
	default:
		return "unknown step"
	}
}
