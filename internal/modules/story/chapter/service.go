// Package chapter stores per-act chapter plans and drives the
// generate/validate/retry engine that produces them, immediately or
// through the background task queue.
package chapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neperienx/bookpipeline/internal/config"
	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/gateway/gateway"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/neperienx/bookpipeline/internal/modules/processing/chapterplan"
	redisc "github.com/neperienx/bookpipeline/internal/pkg/redis"
	"github.com/neperienx/bookpipeline/internal/pkg/taskqueue"
	"gorm.io/gorm"
)

var (
	// ErrProjectNotFound covers both missing projects and projects
	// owned by someone else, so handlers answer 404 either way.
	ErrProjectNotFound = errors.New("project not found")

	// ErrBadAct rejects act numbers outside the fixed three-act frame.
	ErrBadAct = errors.New("act must be between 1 and 3")

	// ErrQueueUnavailable is returned when queued generation is asked
	// for but no task queue was wired in.
	ErrQueueUnavailable = errors.New("task queue is unavailable")
)

// ValidationError carries the format validator's complaint about a
// manual plan edit. Handlers answer 422 with the message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TaskTypePlanGenerate names the queued chapter-plan job.
const TaskTypePlanGenerate = "chapter_plan_generate"

const defaultChapterCount = 8

const (
	debugTrailKeyFormat = "bp:chapterplan:debug:%s:%d"
	debugTrailTTL       = time.Hour
)

type EditPlanDTO struct {
	// Entries is the structured form. When empty, Text is parsed with
	// the same grammars the engine accepts.
	Entries []chapterplan.ChapterEntry `json:"entries"`
	Text    string                     `json:"text"`
}

type GeneratePlanDTO struct {
	Act int `json:"act" binding:"required"`
	// Count overrides the project's target chapter count for this act.
	Count int `json:"count"`
	// MaxAttempts overrides the configured retry budget.
	MaxAttempts int `json:"max_attempts"`
}

type GenerateAllDTO struct {
	Count       int `json:"count"`
	MaxAttempts int `json:"max_attempts"`
}

// PlanView is the stored plan decoded for clients: structured entries
// plus the rendered text and how the generation that produced it went.
type PlanView struct {
	Act            int                        `json:"act"`
	Entries        []chapterplan.ChapterEntry `json:"entries"`
	RenderedText   string                     `json:"rendered_text"`
	Validated      bool                       `json:"validated"`
	Attempts       int                        `json:"attempts"`
	RequestedCount int                        `json:"requested_count"`
	ModelUsed      string                     `json:"model_used"`
}

// GenerateOutcome reports one engine run: the stored plan, whether a
// reply ever passed validation, and the per-attempt debug lines.
type GenerateOutcome struct {
	Plan       *PlanView `json:"plan"`
	Succeeded  bool      `json:"succeeded"`
	Attempts   int       `json:"attempts"`
	DebugLines []string  `json:"debug_lines,omitempty"`
}

// GenerateAllResult aggregates the strict 1→2→3 run over every act.
type GenerateAllResult struct {
	Outcomes  []GenerateOutcome `json:"outcomes"`
	Succeeded bool              `json:"succeeded"`
}

type planTaskPayload struct {
	OwnerID     string `json:"owner_id"`
	ProjectID   string `json:"project_id"`
	Act         int    `json:"act"`
	Count       int    `json:"count"`
	MaxAttempts int    `json:"max_attempts"`
}

// generator is the slice of the AI service this package consumes.
type generator interface {
	GeneratorFor(purpose ai.Purpose, systemPrompt string) func(context.Context, string) (string, error)
	ModelFor(purpose ai.Purpose) string
}

// broadcaster pushes generation lifecycle events to connected editors.
type broadcaster interface {
	BroadcastAdmin(event string, payload interface{})
}

// configSource yields the live app configuration.
type configSource interface {
	Get() (*config.FullConfig, error)
}

type Service struct {
	db    *gorm.DB
	ai    generator
	hub   broadcaster        // optional
	tasks *taskqueue.Service // optional, queue mode needs it
	rc    *redisc.Client     // optional, debug trails need it
	cfg   configSource       // optional
}

func NewService(db *gorm.DB, aiSvc generator, hub broadcaster, tasks *taskqueue.Service, rc *redisc.Client, cfg configSource) *Service {
	s := &Service{db: db, ai: aiSvc, hub: hub, tasks: tasks, rc: rc, cfg: cfg}
	if tasks != nil {
		tasks.RegisterExecutor(TaskTypePlanGenerate, s.runQueuedPlan)
	}
	return s
}

// Plan returns the stored plan for one act, or (nil, nil) when that
// act has not been planned yet.
func (s *Service) Plan(ownerID, projectID string, act int) (*PlanView, error) {
	if act < 1 || act > models.ActCount {
		return nil, ErrBadAct
	}
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}

	var row models.ChapterPlanModel
	if err := s.db.Where("project_id = ? AND act = ?", projectID, act).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return planView(&row), nil
}

// Edit replaces one act's plan with author-provided entries, either
// structured or as raw text run through the usual grammars. The edit
// must pass the same validator generated plans do; the entries JSON
// and rendered text are persisted together so they never drift.
func (s *Service) Edit(ownerID, projectID string, act int, dto *EditPlanDTO) (*PlanView, error) {
	if act < 1 || act > models.ActCount {
		return nil, ErrBadAct
	}
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}

	entries := dto.Entries
	if len(entries) == 0 {
		if strings.TrimSpace(dto.Text) == "" {
			return nil, &ValidationError{Message: "provide chapter entries or text"}
		}
		entries = chapterplan.Parse(dto.Text).Entries
		if len(entries) == 0 {
			return nil, &ValidationError{Message: "no chapters could be parsed from the text"}
		}
	}

	ok, entries, message := chapterplan.Validate(entries, len(entries))
	if !ok {
		return nil, &ValidationError{Message: message}
	}

	serialized := chapterplan.Serialize(entries)
	rendered := chapterplan.Render(serialized)

	row, err := s.savePlan(projectID, act, serialized, rendered, len(serialized), true, 0, "")
	if err != nil {
		return nil, err
	}
	return planView(row), nil
}

// Generate runs the bounded engine for one act and stores the result,
// validated or best-effort. Progress is broadcast per attempt.
func (s *Service) Generate(ctx context.Context, ownerID, projectID string, dto *GeneratePlanDTO) (*GenerateOutcome, error) {
	if dto.Act < 1 || dto.Act > models.ActCount {
		return nil, ErrBadAct
	}
	proj, err := s.ownedProject(ownerID, projectID)
	if err != nil {
		return nil, err
	}

	req := s.buildPlanRequest(proj, dto.Act, dto.Count)
	return s.runEngine(ctx, proj, dto.Act, req, s.maxAttempts(dto.MaxAttempts))
}

// GenerateAll plans every act in strict 1→2→3 order, threading each
// act's rendered chapter text into the next act's prompt.
func (s *Service) GenerateAll(ctx context.Context, ownerID, projectID string, dto *GenerateAllDTO) (*GenerateAllResult, error) {
	proj, err := s.ownedProject(ownerID, projectID)
	if err != nil {
		return nil, err
	}

	maxAttempts := s.maxAttempts(dto.MaxAttempts)
	result := &GenerateAllResult{Succeeded: true}

	var prior []string
	for act := 1; act <= models.ActCount; act++ {
		req := s.buildPlanRequest(proj, act, dto.Count)
		req.PriorActChapterText = append([]string(nil), prior...)

		outcome, err := s.runEngine(ctx, proj, act, req, maxAttempts)
		if err != nil {
			return nil, err
		}
		result.Outcomes = append(result.Outcomes, *outcome)
		result.Succeeded = result.Succeeded && outcome.Succeeded
		prior = append(prior, outcome.Plan.RenderedText)
	}
	return result, nil
}

// Enqueue registers a background generation task and starts working it
// immediately. A dedup key per (project, act) keeps one job in flight.
func (s *Service) Enqueue(ctx context.Context, ownerID, projectID string, dto *GeneratePlanDTO) (*taskqueue.Task, error) {
	if dto.Act < 1 || dto.Act > models.ActCount {
		return nil, ErrBadAct
	}
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	if s.tasks == nil {
		return nil, ErrQueueUnavailable
	}

	payload := planTaskPayload{
		OwnerID:     ownerID,
		ProjectID:   projectID,
		Act:         dto.Act,
		Count:       dto.Count,
		MaxAttempts: dto.MaxAttempts,
	}
	dedup := fmt.Sprintf("chapterplan:%s:%d", projectID, dto.Act)
	task, err := s.tasks.Enqueue(ctx, TaskTypePlanGenerate, payload, dedup, projectID)
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Dispatch(task); err != nil {
		return nil, err
	}
	return task, nil
}

// runQueuedPlan adapts a dispatched queue task to the plan engine.
func (s *Service) runQueuedPlan(ctx context.Context, task *taskqueue.Task) {
	var payload planTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		_ = s.tasks.UpdateStatus(ctx, task.ID, taskqueue.TaskFailed, nil, "invalid task payload")
		return
	}
	s.executePlanTask(ctx, task.ID, payload)
}

// executePlanTask works one queued generation. The pending check makes
// a dedup-returned task a no-op instead of a second concurrent run.
func (s *Service) executePlanTask(ctx context.Context, taskID string, payload planTaskPayload) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil || task == nil || task.Status != taskqueue.TaskPending {
		return
	}
	_ = s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskRunning, nil, "")

	proj, err := s.ownedProject(payload.OwnerID, payload.ProjectID)
	if err != nil {
		_ = s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}

	req := s.buildPlanRequest(proj, payload.Act, payload.Count)
	outcome, err := s.runEngine(ctx, proj, payload.Act, req, s.maxAttempts(payload.MaxAttempts))
	if err != nil {
		_ = s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}
	_ = s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskCompleted, outcome, "")
}

// DebugTrail returns the per-attempt lines of the last generation for
// one act, or (nil, nil) once the transient record has expired.
func (s *Service) DebugTrail(ctx context.Context, ownerID, projectID string, act int) ([]string, error) {
	if act < 1 || act > models.ActCount {
		return nil, ErrBadAct
	}
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	if s.rc == nil {
		return nil, nil
	}

	raw, err := s.rc.Get(ctx, fmt.Sprintf(debugTrailKeyFormat, projectID, act))
	if err != nil || raw == "" {
		return nil, err
	}
	var lines []string
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Service) runEngine(ctx context.Context, proj *models.ProjectModel, act int, req chapterplan.PlanRequest, maxAttempts int) (*GenerateOutcome, error) {
	gen := s.ai.GeneratorFor(ai.PurposeChapters, "")

	attempts := 0
	engine := &chapterplan.Engine{
		MaxAttempts: maxAttempts,
		Generate: func(ctx context.Context, prompt string) (string, error) {
			attempts++
			s.broadcast(gateway.EventGenerationProgress, map[string]interface{}{
				"project_id":   proj.ID,
				"kind":         models.GenerationKindChapters,
				"act":          act,
				"attempt":      attempts,
				"max_attempts": maxAttempts,
			})
			return gen(ctx, prompt)
		},
	}

	started := time.Now()
	res, err := engine.Run(ctx, req)
	model := s.ai.ModelFor(ai.PurposeChapters)
	if err != nil {
		s.logGeneration(proj.ID, act, false, attempts, time.Since(started), model, err)
		s.broadcast(gateway.EventGenerationFailed, map[string]interface{}{
			"project_id": proj.ID,
			"kind":       models.GenerationKindChapters,
			"act":        act,
			"error":      err.Error(),
		})
		return nil, err
	}

	row, err := s.savePlan(proj.ID, act, res.Entries, res.RenderedText, req.RequestedChapterCount, res.Succeeded, attempts, model)
	if err != nil {
		return nil, err
	}

	s.storeDebugTrail(ctx, proj.ID, act, res.DebugLines)
	s.logGeneration(proj.ID, act, res.Succeeded, attempts, time.Since(started), model, nil)
	s.broadcast(gateway.EventGenerationDone, map[string]interface{}{
		"project_id": proj.ID,
		"kind":       models.GenerationKindChapters,
		"act":        act,
		"succeeded":  res.Succeeded,
		"attempts":   attempts,
	})

	return &GenerateOutcome{
		Plan:       planView(row),
		Succeeded:  res.Succeeded,
		Attempts:   attempts,
		DebugLines: res.DebugLines,
	}, nil
}

// buildPlanRequest assembles the engine's prompt context from stored
// material: premise and outline, roster, all act outlines, and the
// rendered chapter text of every act before this one.
func (s *Service) buildPlanRequest(proj *models.ProjectModel, act, count int) chapterplan.PlanRequest {
	if count <= 0 {
		count = proj.TargetChapterCount
	}
	if count <= 0 {
		count = defaultChapterCount
	}

	var story strings.Builder
	if premise := strings.TrimSpace(proj.Premise); premise != "" {
		story.WriteString(premise)
	}
	if outline := s.latestOutlineText(proj.ID); outline != "" {
		if story.Len() > 0 {
			story.WriteString("\n\n")
		}
		story.WriteString(ai.TruncateText(outline, 4000))
	}

	var actOutlines [models.ActCount]string
	var rows []models.ActOutlineModel
	if err := s.db.Where("project_id = ?", proj.ID).Find(&rows).Error; err == nil {
		for _, row := range rows {
			if row.Act >= 1 && row.Act <= models.ActCount {
				actOutlines[row.Act-1] = row.Text
			}
		}
	}

	var prior []string
	if act > 1 {
		prior = make([]string, act-1)
		var plans []models.ChapterPlanModel
		if err := s.db.Where("project_id = ? AND act < ?", proj.ID, act).Find(&plans).Error; err == nil {
			for _, plan := range plans {
				if plan.Act >= 1 && plan.Act <= len(prior) {
					prior[plan.Act-1] = plan.RenderedText
				}
			}
		}
	}

	return chapterplan.PlanRequest{
		ActNumber:             act,
		StoryContext:          story.String(),
		CharacterContext:      s.characterSummary(proj.ID),
		ActOutlines:           actOutlines,
		PriorActChapterText:   prior,
		RequestedChapterCount: count,
		AuthorNotes:           proj.AuthorNotes,
	}
}

func (s *Service) savePlan(projectID string, act int, entries []chapterplan.ChapterEntry, rendered string, requested int, validated bool, attempts int, model string) (*models.ChapterPlanModel, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	entriesJSON := string(raw)

	var row models.ChapterPlanModel
	err = s.db.Where("project_id = ? AND act = ?", projectID, act).First(&row).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"entries_json":    entriesJSON,
			"rendered_text":   rendered,
			"requested_count": requested,
			"validated":       validated,
			"attempts":        attempts,
			"model_used":      model,
		}
		if err := s.db.Model(&row).Updates(updates).Error; err != nil {
			return nil, err
		}
		row.EntriesJSON, row.RenderedText = entriesJSON, rendered
		row.RequestedCount, row.Validated = requested, validated
		row.Attempts, row.ModelUsed = attempts, model
		return &row, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.ChapterPlanModel{
			ProjectID:      projectID,
			Act:            act,
			EntriesJSON:    entriesJSON,
			RenderedText:   rendered,
			RequestedCount: requested,
			Validated:      validated,
			Attempts:       attempts,
			ModelUsed:      model,
		}
		if err := s.db.Create(&row).Error; err != nil {
			return nil, err
		}
		return &row, nil
	default:
		return nil, err
	}
}

func (s *Service) storeDebugTrail(ctx context.Context, projectID string, act int, lines []string) {
	if s.rc == nil || len(lines) == 0 {
		return
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return
	}
	_ = s.rc.Set(ctx, fmt.Sprintf(debugTrailKeyFormat, projectID, act), raw, debugTrailTTL)
}

func (s *Service) maxAttempts(requested int) int {
	if requested > 0 {
		return requested
	}
	if s.cfg != nil {
		if cfg, err := s.cfg.Get(); err == nil && cfg.Generation.MaxAttempts > 0 {
			return cfg.Generation.MaxAttempts
		}
	}
	return chapterplan.DefaultMaxAttempts
}

func (s *Service) broadcast(event string, payload interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastAdmin(event, payload)
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

func (s *Service) logGeneration(projectID string, act int, succeeded bool, attempts int, elapsed time.Duration, model string, genErr error) {
	entry := models.GenerationLogModel{
		ProjectID:  projectID,
		Kind:       models.GenerationKindChapters,
		Act:        &act,
		Succeeded:  succeeded,
		Attempts:   attempts,
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

func planView(row *models.ChapterPlanModel) *PlanView {
	return &PlanView{
		Act:            row.Act,
		Entries:        chapterplan.Load([]byte(row.EntriesJSON), row.RenderedText),
		RenderedText:   row.RenderedText,
		Validated:      row.Validated,
		Attempts:       row.Attempts,
		RequestedCount: row.RequestedCount,
		ModelUsed:      row.ModelUsed,
	}
}
