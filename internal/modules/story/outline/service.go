// Package outline manages a project's story outline as an append-only
// version history, generated by a model or edited by hand.
package outline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/neperienx/bookpipeline/internal/pkg/pagination"
	"github.com/neperienx/bookpipeline/internal/pkg/response"
	"gorm.io/gorm"
)

var (
	// ErrProjectNotFound covers both missing projects and projects
	// owned by someone else, so handlers answer 404 either way.
	ErrProjectNotFound = errors.New("project not found")

	// ErrNoPremise rejects generation when there is nothing to work from.
	ErrNoPremise = errors.New("write a premise or pass guidance before generating an outline")
)

type EditOutlineDTO struct {
	Text string `json:"text" binding:"required"`
}

type GenerateOutlineDTO struct {
	// Guidance is optional extra direction layered on top of the
	// project premise and author notes.
	Guidance string `json:"guidance"`
}

// GenerateResult pairs the stored version with whether the heuristic
// fallback produced it instead of the model.
type GenerateResult struct {
	Version      *models.OutlineVersionModel `json:"version"`
	UsedFallback bool                        `json:"used_fallback"`
}

// generator is the slice of the AI service this package consumes.
type generator interface {
	Generate(ctx context.Context, purpose ai.Purpose, systemPrompt, prompt string) (ai.Result, error)
	GenerateStream(ctx context.Context, purpose ai.Purpose, systemPrompt, prompt string, onToken func(string)) (ai.Result, error)
}

type Service struct {
	db *gorm.DB
	ai generator
}

func NewService(db *gorm.DB, aiSvc generator) *Service {
	return &Service{db: db, ai: aiSvc}
}

func (s *Service) Versions(ownerID, projectID string, q pagination.Query) ([]models.OutlineVersionModel, response.Pagination, error) {
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, response.Pagination{}, err
	}

	tx := s.db.Model(&models.OutlineVersionModel{}).
		Where("project_id = ?", projectID).
		Order("version DESC")

	var versions []models.OutlineVersionModel
	pag, err := pagination.Paginate(tx, q, &versions)
	return versions, pag, err
}

// Latest returns the highest version, or (nil, nil) when the project
// has no outline yet.
func (s *Service) Latest(ownerID, projectID string) (*models.OutlineVersionModel, error) {
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}

	var v models.OutlineVersionModel
	if err := s.db.Where("project_id = ?", projectID).Order("version DESC").First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// Edit stores the author's text as a new version. History is never
// rewritten; the highest version is the live outline.
func (s *Service) Edit(ownerID, projectID string, dto *EditOutlineDTO) (*models.OutlineVersionModel, error) {
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	return s.createVersion(projectID, strings.TrimSpace(dto.Text), models.OutlineSourceEdited, "")
}

// Generate asks the configured model for an outline and stores the
// reply as a new version. A failed or empty model call falls back to
// the deterministic heuristic outline so the author always gets text.
func (s *Service) Generate(ctx context.Context, ownerID, projectID string, dto *GenerateOutlineDTO) (*GenerateResult, error) {
	return s.generate(ctx, ownerID, projectID, dto, nil)
}

// GenerateStream behaves like Generate but forwards model tokens to
// onToken as they arrive. Fallback text is delivered as a single token.
func (s *Service) GenerateStream(ctx context.Context, ownerID, projectID string, dto *GenerateOutlineDTO, onToken func(string)) (*GenerateResult, error) {
	return s.generate(ctx, ownerID, projectID, dto, onToken)
}

func (s *Service) generate(ctx context.Context, ownerID, projectID string, dto *GenerateOutlineDTO, onToken func(string)) (*GenerateResult, error) {
	proj, err := s.ownedProject(ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(proj.Premise) == "" && strings.TrimSpace(dto.Guidance) == "" {
		return nil, ErrNoPremise
	}

	prompt := buildOutlinePrompt(proj, dto.Guidance)
	started := time.Now()

	var (
		res    ai.Result
		genErr error
	)
	if onToken != nil {
		res, genErr = s.ai.GenerateStream(ctx, ai.PurposeOutline, outlineSystemPrompt, prompt, onToken)
	} else {
		res, genErr = s.ai.Generate(ctx, ai.PurposeOutline, outlineSystemPrompt, prompt)
	}

	text := strings.TrimSpace(res.Text)
	usedFallback := false
	if genErr != nil || text == "" {
		text = buildFallbackOutline(proj.Title, fallbackConcept(proj, dto.Guidance))
		usedFallback = true
		if onToken != nil {
			onToken(text)
		}
	}

	version, err := s.createVersion(projectID, text, models.OutlineSourceGenerated, res.Model)
	if err != nil {
		return nil, err
	}

	s.logGeneration(projectID, !usedFallback, time.Since(started), res.Model, genErr)
	return &GenerateResult{Version: version, UsedFallback: usedFallback}, nil
}

func (s *Service) createVersion(projectID, text, source, model string) (*models.OutlineVersionModel, error) {
	var v models.OutlineVersionModel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var max int
		if err := tx.Model(&models.OutlineVersionModel{}).
			Where("project_id = ?", projectID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&max).Error; err != nil {
			return err
		}
		v = models.OutlineVersionModel{
			ProjectID: projectID,
			Version:   max + 1,
			Text:      text,
			Source:    source,
			ModelUsed: model,
		}
		return tx.Create(&v).Error
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Service) logGeneration(projectID string, succeeded bool, elapsed time.Duration, model string, genErr error) {
	entry := models.GenerationLogModel{
		ProjectID:  projectID,
		Kind:       models.GenerationKindOutline,
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
