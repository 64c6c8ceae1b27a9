// Package act manages the per-act prose outlines sitting between the
// story outline and the chapter plans, plus the two-pass concept
// clarification that sharpens a project's premise.
package act

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"gorm.io/gorm"
)

var (
	// ErrProjectNotFound covers both missing projects and projects
	// owned by someone else, so handlers answer 404 either way.
	ErrProjectNotFound = errors.New("project not found")

	// ErrBadAct rejects act numbers outside the fixed three-act frame.
	ErrBadAct = errors.New("act must be between 1 and 3")

	// ErrNoMaterial rejects generation when there is nothing to work from.
	ErrNoMaterial = errors.New("write a premise or generate an outline before working on acts")
)

type EditActDTO struct {
	Text string `json:"text" binding:"required"`
}

type GenerateActsDTO struct {
	// Act targets a single act; zero means all three in order.
	Act int `json:"act"`
	// Guidance is optional extra direction layered on top of the
	// stored story material.
	Guidance string `json:"guidance"`
}

// GenerateResult carries every act outline touched by one generate
// call, in act order, plus whether any of them came from the fallback.
type GenerateResult struct {
	Acts         []models.ActOutlineModel `json:"acts"`
	UsedFallback bool                     `json:"used_fallback"`
}

// generator is the slice of the AI service this package consumes.
type generator interface {
	Generate(ctx context.Context, purpose ai.Purpose, systemPrompt, prompt string) (ai.Result, error)
}

type Service struct {
	db *gorm.DB
	ai generator
}

func NewService(db *gorm.DB, aiSvc generator) *Service {
	return &Service{db: db, ai: aiSvc}
}

// List returns the stored act outlines in act order. Unwritten acts
// are simply absent.
func (s *Service) List(ownerID, projectID string) ([]models.ActOutlineModel, error) {
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}

	var acts []models.ActOutlineModel
	err := s.db.Where("project_id = ?", projectID).Order("act ASC").Find(&acts).Error
	return acts, err
}

// Upsert stores the author's text for one act, replacing whatever the
// model wrote before.
func (s *Service) Upsert(ownerID, projectID string, act int, dto *EditActDTO) (*models.ActOutlineModel, error) {
	if act < 1 || act > models.ActCount {
		return nil, ErrBadAct
	}
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	return s.saveAct(projectID, act, strings.TrimSpace(dto.Text), models.OutlineSourceEdited, "")
}

// Generate writes act outlines with the model, either all three in
// order or a single act when dto.Act is set. Every prompt carries the
// acts already written so later acts continue from earlier ones; a
// failed or empty model call falls back to a deterministic structure
// guide for that act.
func (s *Service) Generate(ctx context.Context, ownerID, projectID string, dto *GenerateActsDTO) (*GenerateResult, error) {
	proj, err := s.ownedProject(ownerID, projectID)
	if err != nil {
		return nil, err
	}

	outlineText := s.latestOutlineText(projectID)
	if strings.TrimSpace(proj.Premise) == "" && outlineText == "" && strings.TrimSpace(dto.Guidance) == "" {
		return nil, ErrNoMaterial
	}

	targets := []int{1, 2, 3}
	if dto.Act != 0 {
		if dto.Act < 1 || dto.Act > models.ActCount {
			return nil, ErrBadAct
		}
		targets = []int{dto.Act}
	}

	characters := s.characterSummary(projectID)
	prior := s.storedActTexts(projectID)

	result := &GenerateResult{}
	for _, act := range targets {
		stored, usedFallback, err := s.generateOne(ctx, proj, act, outlineText, characters, prior, dto.Guidance)
		if err != nil {
			return nil, err
		}
		prior[act] = stored.Text
		result.Acts = append(result.Acts, *stored)
		result.UsedFallback = result.UsedFallback || usedFallback
	}
	return result, nil
}

func (s *Service) generateOne(ctx context.Context, proj *models.ProjectModel, act int, outlineText, characters string, prior map[int]string, guidance string) (*models.ActOutlineModel, bool, error) {
	prompt := buildActPrompt(proj, act, outlineText, characters, prior, guidance)
	started := time.Now()

	res, genErr := s.ai.Generate(ctx, ai.PurposeOutline, actSystemPrompt, prompt)

	text := strings.TrimSpace(res.Text)
	usedFallback := false
	if genErr != nil || text == "" {
		text = fallbackActOutline(act, proj.Title, actConcept(proj, guidance))
		usedFallback = true
	}

	stored, err := s.saveAct(proj.ID, act, text, models.OutlineSourceGenerated, res.Model)
	if err != nil {
		return nil, false, err
	}

	s.logGeneration(proj.ID, act, !usedFallback, time.Since(started), res.Model, genErr)
	return stored, usedFallback, nil
}

func (s *Service) saveAct(projectID string, act int, text, source, model string) (*models.ActOutlineModel, error) {
	var row models.ActOutlineModel
	err := s.db.Where("project_id = ? AND act = ?", projectID, act).First(&row).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"text":       text,
			"source":     source,
			"model_used": model,
		}
		if err := s.db.Model(&row).Updates(updates).Error; err != nil {
			return nil, err
		}
		row.Text, row.Source, row.ModelUsed = text, source, model
		return &row, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.ActOutlineModel{
			ProjectID: projectID,
			Act:       act,
			Text:      text,
			Source:    source,
			ModelUsed: model,
		}
		if err := s.db.Create(&row).Error; err != nil {
			return nil, err
		}
		return &row, nil
	default:
		return nil, err
	}
}

// storedActTexts loads whatever act outlines already exist, keyed by
// act number, so single-act generation still sees its neighbours.
func (s *Service) storedActTexts(projectID string) map[int]string {
	texts := make(map[int]string, models.ActCount)
	var acts []models.ActOutlineModel
	if err := s.db.Where("project_id = ?", projectID).Find(&acts).Error; err != nil {
		return texts
	}
	for _, a := range acts {
		if strings.TrimSpace(a.Text) != "" {
			texts[a.Act] = a.Text
		}
	}
	return texts
}

func (s *Service) characterSummary(projectID string) string {
	var chars []models.CharacterModel
	if err := s.db.Where("project_id = ?", projectID).
		Order("sort_order ASC, name ASC").Find(&chars).Error; err != nil {
		return ""
	}

	var b strings.Builder
	for _, ch := range chars {
		b.WriteString("- ")
		b.WriteString(ch.Name)
		if ch.Role != "" {
			b.WriteString(" (")
			b.WriteString(ch.Role)
			b.WriteString(")")
		}
		if ch.Goals != "" {
			b.WriteString(": ")
			b.WriteString(ch.Goals)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) latestOutlineText(projectID string) string {
	var v models.OutlineVersionModel
	if err := s.db.Where("project_id = ?", projectID).Order("version DESC").First(&v).Error; err != nil {
		return ""
	}
	return v.Text
}

func (s *Service) logGeneration(projectID string, act int, succeeded bool, elapsed time.Duration, model string, genErr error) {
	entry := models.GenerationLogModel{
		ProjectID:  projectID,
		Kind:       models.GenerationKindAct,
		Act:        &act,
		Succeeded:  succeeded,
		Attempts:   1,
		DurationMS: elapsed.Milliseconds(),
		ModelUsed:  model,
	}
	if genErr != nil {
		entry.ErrorText = genErr.Error()
	}
	_ = s.db.Create(&entry).Error
}

func (s *Service) ownedProject(ownerID, projectID string) (*models.ProjectModel, error) {
	var proj models.ProjectModel
	if err := s.db.First(&proj, "id = ? AND owner_id = ?", projectID, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &proj, nil
}
