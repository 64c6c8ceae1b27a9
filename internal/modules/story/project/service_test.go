package project

import (
	"encoding/json"
	"testing"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/chapterplan"
	"github.com/neperienx/bookpipeline/internal/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

func entriesJSON(t *testing.T, entries []chapterplan.ChapterEntry) string {
	t.Helper()
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	return string(raw)
}

func TestCreateAndGetOwned(t *testing.T) {
	svc := NewService(testDB(t))

	proj, err := svc.Create("owner-1", &CreateProjectDTO{Title: "  Ash and Ember  ", Premise: "a city of glass"})
	require.NoError(t, err)
	assert.Equal(t, "Ash and Ember", proj.Title)
	assert.Equal(t, models.StepPremise, proj.CurrentStep)
	assert.Equal(t, 8, proj.TargetChapterCount, "model default applies when the DTO omits a count")

	got, err := svc.GetOwned("owner-1", proj.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	foreign, err := svc.GetOwned("owner-2", proj.ID)
	require.NoError(t, err)
	assert.Nil(t, foreign, "another user's project reads as missing")
}

func TestListIsScopedToOwner(t *testing.T) {
	svc := NewService(testDB(t))

	_, err := svc.Create("owner-1", &CreateProjectDTO{Title: "Mine"})
	require.NoError(t, err)
	_, err = svc.Create("owner-2", &CreateProjectDTO{Title: "Theirs"})
	require.NoError(t, err)

	projects, pag, err := svc.List("owner-1", pagination.Query{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Mine", projects[0].Title)
	assert.EqualValues(t, 1, pag.Total)
}

func TestUpdatePartial(t *testing.T) {
	svc := NewService(testDB(t))
	proj, err := svc.Create("owner-1", &CreateProjectDTO{Title: "Working Title", Premise: "old premise"})
	require.NoError(t, err)

	premise := "new premise"
	updated, err := svc.Update("owner-1", proj.ID, &UpdateProjectDTO{Premise: &premise})
	require.NoError(t, err)
	require.NotNil(t, updated)

	got, err := svc.GetOwned("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, "Working Title", got.Title)
	assert.Equal(t, "new premise", got.Premise)
}

func TestAdvanceWalksThePipeline(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	proj, err := svc.Create("owner-1", &CreateProjectDTO{Title: "Pipeline"})
	require.NoError(t, err)

	// No premise yet.
	_, err = svc.Advance("owner-1", proj.ID)
	require.ErrorIs(t, err, ErrPrerequisite)

	premise := "a lighthouse keeper finds a door in the sea"
	_, err = svc.Update("owner-1", proj.ID, &UpdateProjectDTO{Premise: &premise})
	require.NoError(t, err)

	proj, err = svc.Advance("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepOutline, proj.CurrentStep)

	// Outline step blocks until a version exists.
	_, err = svc.Advance("owner-1", proj.ID)
	require.ErrorIs(t, err, ErrPrerequisite)

	require.NoError(t, db.Create(&models.OutlineVersionModel{
		ProjectID: proj.ID, Version: 1, Text: "outline text",
	}).Error)
	proj, err = svc.Advance("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepCharacters, proj.CurrentStep)

	require.NoError(t, db.Create(&models.CharacterModel{
		ProjectID: proj.ID, Name: "Mara",
	}).Error)
	proj, err = svc.Advance("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepActs, proj.CurrentStep)

	// Two of three acts is not enough.
	for act := 1; act <= 2; act++ {
		require.NoError(t, db.Create(&models.ActOutlineModel{
			ProjectID: proj.ID, Act: act, Text: "act text",
		}).Error)
	}
	_, err = svc.Advance("owner-1", proj.ID)
	require.ErrorIs(t, err, ErrPrerequisite)

	require.NoError(t, db.Create(&models.ActOutlineModel{
		ProjectID: proj.ID, Act: 3, Text: "act text",
	}).Error)
	proj, err = svc.Advance("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepChapters, proj.CurrentStep)

	entries := entriesJSON(t, []chapterplan.ChapterEntry{
		{Number: 1, Title: "One", Summary: "s"},
		{Number: 2, Title: "Two", Summary: "s"},
	})
	for act := 1; act <= 3; act++ {
		require.NoError(t, db.Create(&models.ChapterPlanModel{
			ProjectID: proj.ID, Act: act, EntriesJSON: entries, Validated: true, RequestedCount: 2,
		}).Error)
	}
	proj, err = svc.Advance("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepDrafts, proj.CurrentStep)

	// Drafts must cover every planned chapter.
	_, err = svc.Advance("owner-1", proj.ID)
	require.ErrorIs(t, err, ErrPrerequisite)

	for act := 1; act <= 3; act++ {
		for ch := 1; ch <= 2; ch++ {
			require.NoError(t, db.Create(&models.ChapterDraftModel{
				ProjectID: proj.ID, Act: act, Chapter: ch, Text: "prose",
			}).Error)
		}
	}
	proj, err = svc.Advance("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepComplete, proj.CurrentStep)

	_, err = svc.Advance("owner-1", proj.ID)
	require.ErrorIs(t, err, ErrPrerequisite)

	proj, err = svc.Reset("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepPremise, proj.CurrentStep)
}

func TestStatusReconciliation(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	proj, err := svc.Create("owner-1", &CreateProjectDTO{Title: "Recon", Premise: "p"})
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.ChapterPlanModel{
		ProjectID: proj.ID, Act: 1,
		EntriesJSON: entriesJSON(t, []chapterplan.ChapterEntry{
			{Number: 1, Title: "One", Summary: "s"},
			{Number: 2, Title: "Two", Summary: "s"},
			{Number: 3, Title: "Three", Summary: "s"},
		}),
		Validated: true, RequestedCount: 3,
	}).Error)
	require.NoError(t, db.Create(&models.ChapterDraftModel{
		ProjectID: proj.ID, Act: 1, Chapter: 1, Text: "prose",
	}).Error)

	view, err := svc.Status("owner-1", proj.ID)
	require.NoError(t, err)
	require.NotNil(t, view)

	assert.Equal(t, "premise", view.Step)
	require.NotNil(t, view.Reconciliation.LastDrafted)
	assert.Equal(t, chapterplan.ChapterRef{Act: 1, Chapter: 1}, *view.Reconciliation.LastDrafted)
	require.NotNil(t, view.Reconciliation.LastUnfilled)
	assert.Equal(t, chapterplan.ChapterRef{Act: 1, Chapter: 3}, *view.Reconciliation.LastUnfilled)
	require.NotNil(t, view.Reconciliation.LastPlanned)
	assert.Equal(t, chapterplan.ChapterRef{Act: 1, Chapter: 3}, *view.Reconciliation.LastPlanned)
	require.NotNil(t, view.Reconciliation.Suggested)
	assert.Equal(t, chapterplan.ChapterRef{Act: 1, Chapter: 2}, *view.Reconciliation.Suggested)

	var premiseFlag, outlineFlag bool
	for _, st := range view.Steps {
		switch st.Step {
		case "premise":
			premiseFlag = st.Complete
		case "outline":
			outlineFlag = st.Complete
		}
	}
	assert.True(t, premiseFlag)
	assert.False(t, outlineFlag)
}

func TestDeleteRemovesChildren(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	proj, err := svc.Create("owner-1", &CreateProjectDTO{Title: "Doomed"})
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.OutlineVersionModel{ProjectID: proj.ID, Version: 1, Text: "t"}).Error)
	require.NoError(t, db.Create(&models.CharacterModel{ProjectID: proj.ID, Name: "N"}).Error)
	require.NoError(t, db.Create(&models.ChapterDraftModel{ProjectID: proj.ID, Act: 1, Chapter: 1}).Error)

	require.NoError(t, svc.Delete("owner-1", proj.ID))

	got, err := svc.GetOwned("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	var n int64
	require.NoError(t, db.Model(&models.OutlineVersionModel{}).Where("project_id = ?", proj.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&models.CharacterModel{}).Where("project_id = ?", proj.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&models.ChapterDraftModel{}).Where("project_id = ?", proj.ID).Count(&n).Error)
	assert.Zero(t, n)
}
