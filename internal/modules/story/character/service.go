// Package character manages a project's character roster and the
// model-assisted generation that fills it.
package character

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
	// owned by someone else.
	ErrProjectNotFound = errors.New("project not found")

	// ErrBadField rejects autofill requests for fields the roster
	// does not have or that must stay author-written.
	ErrBadField = errors.New("field must be one of background, goals, conflict, notes")

	// ErrEmptyRoster surfaces a model reply that parsed to nothing.
	ErrEmptyRoster = errors.New("the character generator returned an empty roster")
)

type CreateCharacterDTO struct {
	Name       string `json:"name" binding:"required"`
	Role       string `json:"role"`
	Background string `json:"background"`
	Goals      string `json:"goals"`
	Conflict   string `json:"conflict"`
	Notes      string `json:"notes"`
	SortOrder  int    `json:"sort_order"`
}

type UpdateCharacterDTO struct {
	Name       *string `json:"name"`
	Role       *string `json:"role"`
	Background *string `json:"background"`
	Goals      *string `json:"goals"`
	Conflict   *string `json:"conflict"`
	Notes      *string `json:"notes"`
	SortOrder  *int    `json:"sort_order"`
}

type GenerateCharactersDTO struct {
	Guidance string `json:"guidance"`
}

type AutofillDTO struct {
	Field string `json:"field" binding:"required"`
}

// GenerateResult reports what the batch generation did to the roster.
type GenerateResult struct {
	Created      []models.CharacterModel `json:"created"`
	Updated      []models.CharacterModel `json:"updated"`
	UsedFallback bool                    `json:"used_fallback"`
}

// AutofillResult is the refreshed character plus how the text was made.
type AutofillResult struct {
	Character    *models.CharacterModel `json:"character"`
	UsedFallback bool                   `json:"used_fallback"`
}

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

func (s *Service) List(ownerID, projectID string) ([]models.CharacterModel, error) {
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	var chars []models.CharacterModel
	err := s.db.Where("project_id = ?", projectID).
		Order("sort_order ASC, name ASC").
		Find(&chars).Error
	return chars, err
}

func (s *Service) Create(ownerID, projectID string, dto *CreateCharacterDTO) (*models.CharacterModel, error) {
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	ch := models.CharacterModel{
		ProjectID:  projectID,
		Name:       strings.TrimSpace(dto.Name),
		Role:       dto.Role,
		Background: dto.Background,
		Goals:      dto.Goals,
		Conflict:   dto.Conflict,
		Notes:      dto.Notes,
		SortOrder:  dto.SortOrder,
	}
	return &ch, s.db.Create(&ch).Error
}

func (s *Service) Update(ownerID, characterID string, dto *UpdateCharacterDTO) (*models.CharacterModel, error) {
	ch, err := s.ownedCharacter(ownerID, characterID)
	if err != nil || ch == nil {
		return ch, err
	}

	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = strings.TrimSpace(*dto.Name)
	}
	if dto.Role != nil {
		updates["role"] = *dto.Role
	}
	if dto.Background != nil {
		updates["background"] = *dto.Background
	}
	if dto.Goals != nil {
		updates["goals"] = *dto.Goals
	}
	if dto.Conflict != nil {
		updates["conflict"] = *dto.Conflict
	}
	if dto.Notes != nil {
		updates["notes"] = *dto.Notes
	}
	if dto.SortOrder != nil {
		updates["sort_order"] = *dto.SortOrder
	}
	if len(updates) == 0 {
		return ch, nil
	}
	return ch, s.db.Model(ch).Updates(updates).Error
}

func (s *Service) Delete(ownerID, characterID string) error {
	ch, err := s.ownedCharacter(ownerID, characterID)
	if err != nil || ch == nil {
		return err
	}
	return s.db.Delete(ch).Error
}

// GenerateRoster asks the model for a character roster as JSON and
// upserts it into the project by character name. When the model call
// fails or parses to nothing, a deterministic starter roster is used.
func (s *Service) GenerateRoster(ctx context.Context, ownerID, projectID string, dto *GenerateCharactersDTO) (*GenerateResult, error) {
	proj, err := s.ownedProject(ownerID, projectID)
	if err != nil {
		return nil, err
	}

	prompt := buildRosterPrompt(proj, s.latestOutlineText(projectID), dto.Guidance)
	started := time.Now()

	res, genErr := s.ai.Generate(ctx, ai.PurposeCharacters, characterSystemPrompt, prompt)

	var seeds []characterSeed
	usedFallback := false
	if genErr == nil && strings.TrimSpace(res.Text) != "" {
		seeds = parseRoster(res.Text)
	}
	if len(seeds) == 0 {
		seeds = fallbackRoster(proj.Title, proj.Premise)
		usedFallback = true
	}

	result := &GenerateResult{UsedFallback: usedFallback}
	for _, seed := range seeds {
		name := strings.TrimSpace(seed.Name)
		if name == "" {
			continue
		}

		var existing models.CharacterModel
		err := s.db.Where("project_id = ? AND name = ?", projectID, name).First(&existing).Error
		switch {
		case err == nil:
			updates := map[string]interface{}{
				"role":       seed.Role,
				"background": seed.Background,
				"goals":      seed.Goals,
				"conflict":   seed.Conflict,
				"notes":      seed.Notes,
			}
			if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
				return nil, err
			}
			result.Updated = append(result.Updated, existing)
		case errors.Is(err, gorm.ErrRecordNotFound):
			ch := models.CharacterModel{
				ProjectID:  projectID,
				Name:       name,
				Role:       seed.Role,
				Background: seed.Background,
				Goals:      seed.Goals,
				Conflict:   seed.Conflict,
				Notes:      seed.Notes,
			}
			if err := s.db.Create(&ch).Error; err != nil {
				return nil, err
			}
			result.Created = append(result.Created, ch)
		default:
			return nil, err
		}
	}

	if len(result.Created)+len(result.Updated) == 0 {
		return nil, ErrEmptyRoster
	}

	s.logGeneration(projectID, !usedFallback, time.Since(started), res.Model, genErr)
	return result, nil
}

// Autofill fills a single roster field from story context, leaving the
// rest of the character untouched.
func (s *Service) Autofill(ctx context.Context, ownerID, characterID string, dto *AutofillDTO) (*AutofillResult, error) {
	field := strings.ToLower(strings.TrimSpace(dto.Field))
	if !autofillFields[field] {
		return nil, ErrBadField
	}

	ch, err := s.ownedCharacter(ownerID, characterID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}

	var proj models.ProjectModel
	if err := s.db.First(&proj, "id = ?", ch.ProjectID).Error; err != nil {
		return nil, err
	}

	prompt := buildAutofillPrompt(&proj, ch, field)
	started := time.Now()

	res, genErr := s.ai.Generate(ctx, ai.PurposeCharacters, characterSystemPrompt, prompt)
	text := strings.TrimSpace(res.Text)
	usedFallback := false
	if genErr != nil || text == "" {
		text = fallbackFieldText(field, ch.Name, proj.Title)
		usedFallback = true
	}

	if err := s.db.Model(ch).Update(field, text).Error; err != nil {
		return nil, err
	}
	setField(ch, field, text)

	s.logGeneration(ch.ProjectID, !usedFallback, time.Since(started), res.Model, genErr)
	return &AutofillResult{Character: ch, UsedFallback: usedFallback}, nil
}

var autofillFields = map[string]bool{
	"background": true,
	"goals":      true,
	"conflict":   true,
	"notes":      true,
}

func setField(ch *models.CharacterModel, field, value string) {
	switch field {
	case "background":
		ch.Background = value
	case "goals":
		ch.Goals = value
	case "conflict":
		ch.Conflict = value
	case "notes":
		ch.Notes = value
	}
}

func (s *Service) latestOutlineText(projectID string) string {
	var v models.OutlineVersionModel
	if err := s.db.Where("project_id = ?", projectID).Order("version DESC").First(&v).Error; err != nil {
		return ""
	}
	return v.Text
}

func (s *Service) logGeneration(projectID string, succeeded bool, elapsed time.Duration, model string, genErr error) {
	entry := models.GenerationLogModel{
		ProjectID:  projectID,
		Kind:       models.GenerationKindCharacters,
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

// ownedCharacter resolves a character through its project's owner.
// (nil, nil) when either half is missing.
func (s *Service) ownedCharacter(ownerID, characterID string) (*models.CharacterModel, error) {
	var ch models.CharacterModel
	err := s.db.
		Joins("JOIN projects ON projects.id = characters.project_id").
		Where("characters.id = ? AND projects.owner_id = ?", characterID, ownerID).
		First(&ch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ch, nil
}
