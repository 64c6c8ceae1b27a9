// Package draft stores the prose drafts of planned chapters and
// generates them from the accumulated story material.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/gateway/gateway"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/neperienx/bookpipeline/internal/modules/processing/chapterplan"
	"github.com/neperienx/bookpipeline/internal/pkg/taskqueue"
	"gorm.io/gorm"
)

var (
	// ErrProjectNotFound covers both missing projects and projects
	// owned by someone else, so handlers answer 404 either way.
	ErrProjectNotFound = errors.New("project not found")

	// ErrBadAct rejects act numbers outside the fixed three-act frame.
	ErrBadAct = errors.New("act must be between 1 and 3")

	// ErrNotPlanned rejects drafting a chapter the act's plan does not
	// contain.
	ErrNotPlanned = errors.New("that chapter is not in the act's plan")

	// ErrEmptyReply surfaces a model call that produced no prose.
	ErrEmptyReply = errors.New("the model returned no text")

	// ErrQueueUnavailable is returned when queued generation is asked
	// for but no task queue was wired in.
	ErrQueueUnavailable = errors.New("task queue is unavailable")
)

// TaskTypeDraftGenerate names the queued chapter-draft job.
const TaskTypeDraftGenerate = "chapter_draft_generate"

type EditDraftDTO struct {
	Text string `json:"text" binding:"required"`
}

type GenerateDraftDTO struct {
	Act     int `json:"act"     binding:"required"`
	Chapter int `json:"chapter" binding:"required"`
	// Guidance is optional extra direction layered on top of the
	// stored story material.
	Guidance string `json:"guidance"`
}

// GenerateResult pairs the stored draft with the model that wrote it.
type GenerateResult struct {
	Draft     *models.ChapterDraftModel `json:"draft"`
	ModelUsed string                    `json:"model_used"`
}

type draftTaskPayload struct {
	OwnerID   string `json:"owner_id"`
	ProjectID string `json:"project_id"`
	Act       int    `json:"act"`
	Chapter   int    `json:"chapter"`
	Guidance  string `json:"guidance,omitempty"`
}

// generator is the slice of the AI service this package consumes.
type generator interface {
	Generate(ctx context.Context, purpose ai.Purpose, systemPrompt, prompt string) (ai.Result, error)
	GenerateStream(ctx context.Context, purpose ai.Purpose, systemPrompt, prompt string, onToken func(string)) (ai.Result, error)
}

// broadcaster pushes generation lifecycle events to connected editors.
type broadcaster interface {
	BroadcastAdmin(event string, payload interface{})
}

type Service struct {
	db    *gorm.DB
	ai    generator
	hub   broadcaster        // optional
	tasks *taskqueue.Service // optional, queue mode needs it
}

func NewService(db *gorm.DB, aiSvc generator, hub broadcaster, tasks *taskqueue.Service) *Service {
	s := &Service{db: db, ai: aiSvc, hub: hub, tasks: tasks}
	if tasks != nil {
		tasks.RegisterExecutor(TaskTypeDraftGenerate, s.runQueuedDraft)
	}
	return s
}

// List returns a project's drafts in reading order, optionally limited
// to one act.
func (s *Service) List(ownerID, projectID string, act int) ([]models.ChapterDraftModel, error) {
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}

	tx := s.db.Where("project_id = ?", projectID).Order("act ASC, chapter ASC")
	if act > 0 {
		if act > models.ActCount {
			return nil, ErrBadAct
		}
		tx = tx.Where("act = ?", act)
	}

	var drafts []models.ChapterDraftModel
	err := tx.Find(&drafts).Error
	return drafts, err
}

// Get returns one draft, or (nil, nil) when it is missing or owned by
// someone else.
func (s *Service) Get(ownerID, draftID string) (*models.ChapterDraftModel, error) {
	return s.ownedDraft(ownerID, draftID)
}

// Edit replaces a draft's prose and recomputes its word count.
func (s *Service) Edit(ownerID, draftID string, dto *EditDraftDTO) (*models.ChapterDraftModel, error) {
	draft, err := s.ownedDraft(ownerID, draftID)
	if err != nil || draft == nil {
		return draft, err
	}

	text := strings.TrimSpace(dto.Text)
	updates := map[string]interface{}{
		"text":       text,
		"word_count": countWords(text),
	}
	if err := s.db.Model(draft).Updates(updates).Error; err != nil {
		return nil, err
	}
	draft.Text = text
	draft.WordCount = countWords(text)
	return draft, nil
}

// Delete removes one draft. Missing drafts are not an error.
func (s *Service) Delete(ownerID, draftID string) error {
	draft, err := s.ownedDraft(ownerID, draftID)
	if err != nil || draft == nil {
		return err
	}
	return s.db.Delete(draft).Error
}

// Generate writes prose for one planned chapter and upserts the draft.
// The prompt carries the premise and outline, the roster, the act
// outline, the chapter's plan entry with its neighbours, and the tail
// of the prose drafted so far.
func (s *Service) Generate(ctx context.Context, ownerID, projectID string, dto *GenerateDraftDTO) (*GenerateResult, error) {
	return s.generate(ctx, ownerID, projectID, dto, nil)
}

// GenerateStream behaves like Generate but forwards model tokens to
// onToken as they arrive.
func (s *Service) GenerateStream(ctx context.Context, ownerID, projectID string, dto *GenerateDraftDTO, onToken func(string)) (*GenerateResult, error) {
	return s.generate(ctx, ownerID, projectID, dto, onToken)
}

func (s *Service) generate(ctx context.Context, ownerID, projectID string, dto *GenerateDraftDTO, onToken func(string)) (*GenerateResult, error) {
	if dto.Act < 1 || dto.Act > models.ActCount {
		return nil, ErrBadAct
	}
	proj, err := s.ownedProject(ownerID, projectID)
	if err != nil {
		return nil, err
	}

	entry, neighbours, err := s.planEntry(projectID, dto.Act, dto.Chapter)
	if err != nil {
		return nil, err
	}

	prompt := s.buildDraftPrompt(proj, dto, entry, neighbours)
	started := time.Now()
	s.broadcast(gateway.EventGenerationProgress, map[string]interface{}{
		"project_id": proj.ID,
		"kind":       models.GenerationKindDraft,
		"act":        dto.Act,
		"chapter":    dto.Chapter,
		"attempt":    1,
	})

	var res ai.Result
	if onToken != nil {
		res, err = s.ai.GenerateStream(ctx, ai.PurposeDrafts, draftSystemPrompt, prompt, onToken)
	} else {
		res, err = s.ai.Generate(ctx, ai.PurposeDrafts, draftSystemPrompt, prompt)
	}

	text := strings.TrimSpace(res.Text)
	if err == nil && text == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		s.logGeneration(proj.ID, dto.Act, dto.Chapter, false, time.Since(started), res.Model, err)
		s.broadcast(gateway.EventGenerationFailed, map[string]interface{}{
			"project_id": proj.ID,
			"kind":       models.GenerationKindDraft,
			"act":        dto.Act,
			"chapter":    dto.Chapter,
			"error":      err.Error(),
		})
		return nil, err
	}

	draft, err := s.saveDraft(proj.ID, dto.Act, dto.Chapter, entry, text, res.Model)
	if err != nil {
		return nil, err
	}

	s.logGeneration(proj.ID, dto.Act, dto.Chapter, true, time.Since(started), res.Model, nil)
	s.broadcast(gateway.EventGenerationDone, map[string]interface{}{
		"project_id": proj.ID,
		"kind":       models.GenerationKindDraft,
		"act":        dto.Act,
		"chapter":    dto.Chapter,
		"succeeded":  true,
	})

	return &GenerateResult{Draft: draft, ModelUsed: res.Model}, nil
}

// Enqueue registers a background draft task and starts working it
// immediately. One job per (project, act, chapter) is kept in flight.
func (s *Service) Enqueue(ctx context.Context, ownerID, projectID string, dto *GenerateDraftDTO) (*taskqueue.Task, error) {
	if dto.Act < 1 || dto.Act > models.ActCount {
		return nil, ErrBadAct
	}
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	if s.tasks == nil {
		return nil, ErrQueueUnavailable
	}

	payload := draftTaskPayload{
		OwnerID:   ownerID,
		ProjectID: projectID,
		Act:       dto.Act,
		Chapter:   dto.Chapter,
		Guidance:  dto.Guidance,
	}
	dedup := fmt.Sprintf("draft:%s:%d:%d", projectID, dto.Act, dto.Chapter)
	task, err := s.tasks.Enqueue(ctx, TaskTypeDraftGenerate, payload, dedup, projectID)
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Dispatch(task); err != nil {
		return nil, err
	}
	return task, nil
}

// runQueuedDraft adapts a dispatched queue task to the draft generator.
func (s *Service) runQueuedDraft(ctx context.Context, task *taskqueue.Task) {
	var payload draftTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		_ = s.tasks.UpdateStatus(ctx, task.ID, taskqueue.TaskFailed, nil, "invalid task payload")
		return
	}
	s.executeDraftTask(ctx, task.ID, payload)
}

func (s *Service) executeDraftTask(ctx context.Context, taskID string, payload draftTaskPayload) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil || task == nil || task.Status != taskqueue.TaskPending {
		return
	}
	_ = s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskRunning, nil, "")

	dto := &GenerateDraftDTO{Act: payload.Act, Chapter: payload.Chapter, Guidance: payload.Guidance}
	result, err := s.generate(ctx, payload.OwnerID, payload.ProjectID, dto, nil)
	if err != nil {
		_ = s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}
	_ = s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskCompleted, result, "")
}

// planEntry loads the chapter's plan entry plus its neighbours in the
// same act for prompt context.
func (s *Service) planEntry(projectID string, act, chapter int) (chapterplan.ChapterEntry, planNeighbours, error) {
	var none planNeighbours

	var plan models.ChapterPlanModel
	if err := s.db.Where("project_id = ? AND act = ?", projectID, act).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chapterplan.ChapterEntry{}, none, ErrNotPlanned
		}
		return chapterplan.ChapterEntry{}, none, err
	}

	entries := chapterplan.Load([]byte(plan.EntriesJSON), plan.RenderedText)
	for i, entry := range entries {
		if entry.Number != chapter {
			continue
		}
		var n planNeighbours
		if i > 0 {
			prev := entries[i-1]
			n.Before = &prev
		}
		if i+1 < len(entries) {
			next := entries[i+1]
			n.After = &next
		}
		return entry, n, nil
	}
	return chapterplan.ChapterEntry{}, none, ErrNotPlanned
}

type planNeighbours struct {
	Before *chapterplan.ChapterEntry
	After  *chapterplan.ChapterEntry
}

func (s *Service) saveDraft(projectID string, act, chapter int, entry chapterplan.ChapterEntry, text, model string) (*models.ChapterDraftModel, error) {
	var row models.ChapterDraftModel
	err := s.db.Where("project_id = ? AND act = ? AND chapter = ?", projectID, act, chapter).First(&row).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"title":      entry.Title,
			"summary":    entry.Summary,
			"text":       text,
			"word_count": countWords(text),
			"model_used": model,
		}
		if err := s.db.Model(&row).Updates(updates).Error; err != nil {
			return nil, err
		}
		row.Title, row.Summary, row.Text = entry.Title, entry.Summary, text
		row.WordCount, row.ModelUsed = countWords(text), model
		return &row, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.ChapterDraftModel{
			ProjectID: projectID,
			Act:       act,
			Chapter:   chapter,
			Title:     entry.Title,
			Summary:   entry.Summary,
			Text:      text,
			WordCount: countWords(text),
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

// priorDraftTail returns the closing stretch of the nearest draft
// before this chapter in reading order, so new prose can pick up where
// the manuscript left off.
func (s *Service) priorDraftTail(projectID string, act, chapter int) string {
	var prior models.ChapterDraftModel
	err := s.db.Where("project_id = ? AND (act < ? OR (act = ? AND chapter < ?))", projectID, act, act, chapter).
		Order("act DESC, chapter DESC").
		First(&prior).Error
	if err != nil || strings.TrimSpace(prior.Text) == "" {
		return ""
	}
	return ai.TailText(prior.Text, 1500)
}

func (s *Service) broadcast(event string, payload interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastAdmin(event, payload)
}

func (s *Service) logGeneration(projectID string, act, chapter int, succeeded bool, elapsed time.Duration, model string, genErr error) {
	entry := models.GenerationLogModel{
		ProjectID:  projectID,
		Kind:       models.GenerationKindDraft,
		Act:        &act,
		Chapter:    &chapter,
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

// ownedDraft resolves a draft through its project's owner. (nil, nil)
// when either half is missing.
func (s *Service) ownedDraft(ownerID, draftID string) (*models.ChapterDraftModel, error) {
	var draft models.ChapterDraftModel
	err := s.db.Joins("JOIN projects ON projects.id = chapter_drafts.project_id").
		Where("chapter_drafts.id = ? AND projects.owner_id = ?", draftID, ownerID).
		First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &draft, nil
}

var wordPattern = regexp.MustCompile(`\w+[\w'-]*`)

func countWords(text string) int {
	return len(wordPattern.FindAllString(text, -1))
}
