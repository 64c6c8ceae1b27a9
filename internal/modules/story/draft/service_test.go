package draft

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/gateway/gateway"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/neperienx/bookpipeline/internal/modules/processing/chapterplan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubAI struct {
	text    string
	model   string
	err     error
	prompts []string
}

func (f *stubAI) Generate(_ context.Context, _ ai.Purpose, _, prompt string) (ai.Result, error) {
	f.prompts = append(f.prompts, prompt)
	return ai.Result{Text: f.text, Model: f.model}, f.err
}

func (f *stubAI) GenerateStream(ctx context.Context, purpose ai.Purpose, system, prompt string, onToken func(string)) (ai.Result, error) {
	if f.err == nil && f.text != "" && onToken != nil {
		onToken(f.text)
	}
	return f.Generate(ctx, purpose, system, prompt)
}

type stubHub struct {
	events []string
}

func (f *stubHub) BroadcastAdmin(event string, _ interface{}) {
	f.events = append(f.events, event)
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ProjectModel{},
		&models.OutlineVersionModel{},
		&models.CharacterModel{},
		&models.ActOutlineModel{},
		&models.ChapterPlanModel{},
		&models.ChapterDraftModel{},
		&models.GenerationLogModel{},
	))
	return db
}

func seedProject(t *testing.T, db *gorm.DB) *models.ProjectModel {
	t.Helper()
	proj := models.ProjectModel{
		OwnerID: "owner-1",
		Title:   "Tidewrack",
		Premise: "a drowned city",
	}
	require.NoError(t, db.Create(&proj).Error)
	return &proj
}

func seedPlan(t *testing.T, db *gorm.DB, projectID string, act int, entries []chapterplan.ChapterEntry) {
	t.Helper()
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	plan := models.ChapterPlanModel{
		ProjectID:      projectID,
		Act:            act,
		EntriesJSON:    string(raw),
		RenderedText:   chapterplan.Render(entries),
		RequestedCount: len(entries),
		Validated:      true,
	}
	require.NoError(t, db.Create(&plan).Error)
}

func twoChapterPlan() []chapterplan.ChapterEntry {
	return []chapterplan.ChapterEntry{
		{Number: 1, Title: "The Departure", Summary: "Mara leaves the drowned quarter at dawn."},
		{Number: 2, Title: "The Crossing", Summary: "The crew braves the tide gates."},
	}
}

func TestGenerateWritesDraftFromPlanEntry(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	seedPlan(t, db, proj.ID, 1, twoChapterPlan())

	stub := &stubAI{text: "The dawn bells rang over flooded streets.", model: "gpt-4o"}
	hub := &stubHub{}
	svc := NewService(db, stub, hub, nil)

	res, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 1, Chapter: 1})
	require.NoError(t, err)
	require.NotNil(t, res.Draft)

	assert.Equal(t, "The Departure", res.Draft.Title)
	assert.Equal(t, "Mara leaves the drowned quarter at dawn.", res.Draft.Summary)
	assert.Equal(t, "The dawn bells rang over flooded streets.", res.Draft.Text)
	assert.Equal(t, 7, res.Draft.WordCount)
	assert.Equal(t, "gpt-4o", res.Draft.ModelUsed)
	assert.Equal(t, "gpt-4o", res.ModelUsed)

	require.Len(t, stub.prompts, 1)
	prompt := stub.prompts[0]
	assert.Contains(t, prompt, "Chapter to draft: Chapter 1 — The Departure")
	assert.Contains(t, prompt, "Planned events:\nMara leaves the drowned quarter at dawn.")
	assert.Contains(t, prompt, "Next chapter (2, The Crossing) will cover:")
	assert.NotContains(t, prompt, "Previous chapter")

	assert.Equal(t, []string{gateway.EventGenerationProgress, gateway.EventGenerationDone}, hub.events)

	var log models.GenerationLogModel
	require.NoError(t, db.First(&log, "project_id = ?", proj.ID).Error)
	assert.Equal(t, models.GenerationKindDraft, log.Kind)
	require.NotNil(t, log.Act)
	require.NotNil(t, log.Chapter)
	assert.Equal(t, 1, *log.Act)
	assert.Equal(t, 1, *log.Chapter)
	assert.True(t, log.Succeeded)
}

func TestGenerateRejectsUnplannedChapter(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	seedPlan(t, db, proj.ID, 1, twoChapterPlan())
	svc := NewService(db, &stubAI{text: "prose"}, nil, nil)

	// Chapter outside the plan.
	_, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 1, Chapter: 9})
	require.ErrorIs(t, err, ErrNotPlanned)

	// Act with no plan at all.
	_, err = svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 2, Chapter: 1})
	require.ErrorIs(t, err, ErrNotPlanned)

	_, err = svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 4, Chapter: 1})
	require.ErrorIs(t, err, ErrBadAct)

	_, err = svc.Generate(context.Background(), "intruder", proj.ID, &GenerateDraftDTO{Act: 1, Chapter: 1})
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestGenerateUpsertsByChapter(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	seedPlan(t, db, proj.ID, 1, twoChapterPlan())

	stub := &stubAI{text: "First pass prose.", model: "gpt-4o"}
	svc := NewService(db, stub, nil, nil)

	_, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 1, Chapter: 1})
	require.NoError(t, err)

	stub.text = "Second pass, longer and better prose."
	res, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 1, Chapter: 1})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.ChapterDraftModel{}).Where("project_id = ?", proj.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, "Second pass, longer and better prose.", res.Draft.Text)
	assert.Equal(t, 6, res.Draft.WordCount)
}

func TestGeneratePropagatesBackendErrors(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	seedPlan(t, db, proj.ID, 1, twoChapterPlan())

	hub := &stubHub{}
	svc := NewService(db, &stubAI{err: errors.New("provider down")}, hub, nil)

	_, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 1, Chapter: 1})
	require.EqualError(t, err, "provider down")
	assert.Equal(t, []string{gateway.EventGenerationProgress, gateway.EventGenerationFailed}, hub.events)

	var count int64
	require.NoError(t, db.Model(&models.ChapterDraftModel{}).Count(&count).Error)
	assert.Zero(t, count, "no draft stored on failure")

	var log models.GenerationLogModel
	require.NoError(t, db.First(&log, "project_id = ?", proj.ID).Error)
	assert.False(t, log.Succeeded)
	assert.Equal(t, "provider down", log.ErrorText)

	// An empty reply is a failure too; there is no canned prose.
	svc = NewService(db, &stubAI{text: "   "}, nil, nil)
	_, err = svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 1, Chapter: 1})
	require.ErrorIs(t, err, ErrEmptyReply)
}

func TestGenerateThreadsStoredContext(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	seedPlan(t, db, proj.ID, 1, twoChapterPlan())

	require.NoError(t, db.Create(&models.OutlineVersionModel{
		ProjectID: proj.ID, Version: 1, Text: "The city drowned twice.", Source: models.OutlineSourceGenerated,
	}).Error)
	require.NoError(t, db.Create(&models.CharacterModel{
		ProjectID: proj.ID, Name: "Mara", Role: "diver", Goals: "surface alive",
	}).Error)
	require.NoError(t, db.Create(&models.ActOutlineModel{
		ProjectID: proj.ID, Act: 1, Text: "Act one beats.", Source: models.OutlineSourceGenerated,
	}).Error)
	require.NoError(t, db.Create(&models.ChapterDraftModel{
		ProjectID: proj.ID, Act: 1, Chapter: 1,
		Title: "The Departure", Text: "She left before the bells.", WordCount: 5,
	}).Error)

	stub := &stubAI{text: "prose"}
	svc := NewService(db, stub, nil, nil)

	_, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 1, Chapter: 2, Guidance: "slow the pacing"})
	require.NoError(t, err)

	prompt := stub.prompts[0]
	assert.Contains(t, prompt, "Story idea:\na drowned city")
	assert.Contains(t, prompt, "The city drowned twice.")
	assert.Contains(t, prompt, "- Mara (diver): surface alive")
	assert.Contains(t, prompt, "Act 1 outline:\nAct one beats.")
	assert.Contains(t, prompt, "Previous chapter (1, The Departure) covers:")
	assert.Contains(t, prompt, "The manuscript so far ends with:\nShe left before the bells.")
	assert.Contains(t, prompt, "Additional guidance:\nslow the pacing")
}

func TestPriorDraftTailCrossesActs(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	svc := NewService(db, &stubAI{}, nil, nil)

	require.NoError(t, db.Create(&models.ChapterDraftModel{
		ProjectID: proj.ID, Act: 1, Chapter: 8, Text: "Act one closes.",
	}).Error)
	require.NoError(t, db.Create(&models.ChapterDraftModel{
		ProjectID: proj.ID, Act: 2, Chapter: 1, Text: "Act two opens.",
	}).Error)

	assert.Equal(t, "Act two opens.", svc.priorDraftTail(proj.ID, 2, 2))
	assert.Equal(t, "Act one closes.", svc.priorDraftTail(proj.ID, 2, 1))
	assert.Empty(t, svc.priorDraftTail(proj.ID, 1, 1))
}

func TestEditRecomputesWordCount(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	row := models.ChapterDraftModel{
		ProjectID: proj.ID, Act: 1, Chapter: 1,
		Title: "The Departure", Text: "old", WordCount: 1, ModelUsed: "gpt-4o",
	}
	require.NoError(t, db.Create(&row).Error)

	svc := NewService(db, &stubAI{}, nil, nil)
	edited, err := svc.Edit("owner-1", row.ID, &EditDraftDTO{Text: "  Hand-woven nets can't hold the tide.  "})
	require.NoError(t, err)
	require.NotNil(t, edited)

	assert.Equal(t, "Hand-woven nets can't hold the tide.", edited.Text)
	assert.Equal(t, 6, edited.WordCount)
	assert.Equal(t, "gpt-4o", edited.ModelUsed, "manual edits keep the generating model on record")

	// Drafts are reachable only through their project's owner.
	foreign, err := svc.Edit("intruder", row.ID, &EditDraftDTO{Text: "nope"})
	require.NoError(t, err)
	assert.Nil(t, foreign)

	got, err := svc.Get("intruder", row.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListFiltersByAct(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	for _, d := range []models.ChapterDraftModel{
		{ProjectID: proj.ID, Act: 2, Chapter: 1, Text: "b"},
		{ProjectID: proj.ID, Act: 1, Chapter: 2, Text: "a2"},
		{ProjectID: proj.ID, Act: 1, Chapter: 1, Text: "a1"},
	} {
		row := d
		require.NoError(t, db.Create(&row).Error)
	}

	svc := NewService(db, &stubAI{}, nil, nil)

	all, err := svc.List("owner-1", proj.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a1", all[0].Text)
	assert.Equal(t, "a2", all[1].Text)
	assert.Equal(t, "b", all[2].Text)

	actOne, err := svc.List("owner-1", proj.ID, 1)
	require.NoError(t, err)
	assert.Len(t, actOne, 2)

	_, err = svc.List("owner-1", proj.ID, 9)
	require.ErrorIs(t, err, ErrBadAct)

	_, err = svc.List("intruder", proj.ID, 0)
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestDeleteDraft(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	row := models.ChapterDraftModel{ProjectID: proj.ID, Act: 1, Chapter: 1, Text: "gone soon"}
	require.NoError(t, db.Create(&row).Error)

	svc := NewService(db, &stubAI{}, nil, nil)
	require.NoError(t, svc.Delete("owner-1", row.ID))

	var count int64
	require.NoError(t, db.Model(&models.ChapterDraftModel{}).Count(&count).Error)
	assert.Zero(t, count)

	// Deleting a missing or foreign draft is a no-op.
	require.NoError(t, svc.Delete("owner-1", row.ID))
}

func TestGenerateStreamForwardsTokens(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	seedPlan(t, db, proj.ID, 1, twoChapterPlan())
	svc := NewService(db, &stubAI{text: "streamed prose"}, nil, nil)

	var tokens []string
	res, err := svc.GenerateStream(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 1, Chapter: 1}, func(tok string) {
		tokens = append(tokens, tok)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"streamed prose"}, tokens)
	assert.Equal(t, "streamed prose", res.Draft.Text)
}

func TestEnqueueNeedsQueue(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	svc := NewService(db, &stubAI{}, nil, nil)

	_, err := svc.Enqueue(context.Background(), "owner-1", proj.ID, &GenerateDraftDTO{Act: 1, Chapter: 1})
	require.ErrorIs(t, err, ErrQueueUnavailable)
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, countWords(""))
	assert.Equal(t, 0, countWords("   \n\t"))
	assert.Equal(t, 4, countWords("The tide came in."))
	assert.Equal(t, 3, countWords("Hand-woven nets can't"))
	assert.Equal(t, 2, countWords("dawn—bells"), "em dash splits words")
}

func TestPlanEntryFindsNeighbours(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	entries := []chapterplan.ChapterEntry{
		{Number: 1, Title: "One", Summary: "first"},
		{Number: 2, Title: "Two", Summary: "second"},
		{Number: 3, Title: "Three", Summary: "third"},
	}
	seedPlan(t, db, proj.ID, 1, entries)
	svc := NewService(db, &stubAI{}, nil, nil)

	entry, n, err := svc.planEntry(proj.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "Two", entry.Title)
	require.NotNil(t, n.Before)
	require.NotNil(t, n.After)
	assert.Equal(t, 1, n.Before.Number)
	assert.Equal(t, 3, n.After.Number)

	first, n, err := svc.planEntry(proj.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "One", first.Title)
	assert.Nil(t, n.Before)
	require.NotNil(t, n.After)

	_, _, err = svc.planEntry(proj.ID, 1, 4)
	require.ErrorIs(t, err, ErrNotPlanned)
}
