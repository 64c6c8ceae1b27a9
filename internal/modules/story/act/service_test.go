package act

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubAI struct {
	replies []ai.Result
	errs    []error
	prompts []string
}

func (f *stubAI) Generate(_ context.Context, _ ai.Purpose, _, prompt string) (ai.Result, error) {
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)

	var res ai.Result
	if i < len(f.replies) {
		res = f.replies[i]
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return res, err
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
		&models.GenerationLogModel{},
	))
	return db
}

func seedProject(t *testing.T, db *gorm.DB) *models.ProjectModel {
	t.Helper()
	proj := models.ProjectModel{OwnerID: "owner-1", Title: "Tidewrack", Premise: "a drowned city breathes with the tide"}
	require.NoError(t, db.Create(&proj).Error)
	return &proj
}

func TestUpsertEditsOneAct(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	svc := NewService(db, &stubAI{})

	row, err := svc.Upsert("owner-1", proj.ID, 2, &EditActDTO{Text: "Act two by hand."})
	require.NoError(t, err)
	assert.Equal(t, 2, row.Act)
	assert.Equal(t, models.OutlineSourceEdited, row.Source)

	row, err = svc.Upsert("owner-1", proj.ID, 2, &EditActDTO{Text: "Act two, revised."})
	require.NoError(t, err)
	assert.Equal(t, "Act two, revised.", row.Text)

	var count int64
	require.NoError(t, db.Model(&models.ActOutlineModel{}).Where("project_id = ?", proj.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count, "editing the same act twice keeps one row")

	_, err = svc.Upsert("owner-1", proj.ID, 4, &EditActDTO{Text: "no such act"})
	require.ErrorIs(t, err, ErrBadAct)

	_, err = svc.Upsert("intruder", proj.ID, 1, &EditActDTO{Text: "mine now"})
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestGenerateAllThreadsPriorActs(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	stub := &stubAI{replies: []ai.Result{
		{Text: "Act one prose.", Model: "gpt-4o-mini"},
		{Text: "Act two prose.", Model: "gpt-4o-mini"},
		{Text: "Act three prose.", Model: "gpt-4o-mini"},
	}}
	svc := NewService(db, stub)

	res, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateActsDTO{})
	require.NoError(t, err)

	require.Len(t, res.Acts, 3)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, []int{res.Acts[0].Act, res.Acts[1].Act, res.Acts[2].Act}, []int{1, 2, 3})

	require.Len(t, stub.prompts, 3)
	assert.Contains(t, stub.prompts[1], "Act I outline (already written)")
	assert.Contains(t, stub.prompts[1], "Act one prose.")
	assert.Contains(t, stub.prompts[2], "Act two prose.")
	assert.NotContains(t, stub.prompts[0], "already written")

	var logs []models.GenerationLogModel
	require.NoError(t, db.Where("project_id = ?", proj.ID).Order("act ASC").Find(&logs).Error)
	require.Len(t, logs, 3)
	for i, log := range logs {
		assert.Equal(t, models.GenerationKindAct, log.Kind)
		require.NotNil(t, log.Act)
		assert.Equal(t, i+1, *log.Act)
		assert.True(t, log.Succeeded)
	}
}

func TestGenerateSingleActSeesStoredNeighbours(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	require.NoError(t, db.Create(&models.ActOutlineModel{
		ProjectID: proj.ID, Act: 1, Text: "The stored first act.",
	}).Error)

	stub := &stubAI{replies: []ai.Result{{Text: "Fresh second act."}}}
	svc := NewService(db, stub)

	res, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateActsDTO{Act: 2})
	require.NoError(t, err)
	require.Len(t, res.Acts, 1)
	assert.Equal(t, 2, res.Acts[0].Act)

	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], "The stored first act.")

	_, err = svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateActsDTO{Act: 9})
	require.ErrorIs(t, err, ErrBadAct)
}

func TestGenerateFallsBackPerAct(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	svc := NewService(db, &stubAI{errs: []error{errors.New("provider down")}})

	res, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateActsDTO{Act: 3})
	require.NoError(t, err)

	assert.True(t, res.UsedFallback)
	assert.Contains(t, res.Acts[0].Text, "Act III structure for Tidewrack:")
	assert.Contains(t, res.Acts[0].Text, "emotional resonance")

	var log models.GenerationLogModel
	require.NoError(t, db.First(&log, "project_id = ?", proj.ID).Error)
	assert.False(t, log.Succeeded)
	assert.Equal(t, "provider down", log.ErrorText)
}

func TestGenerateNeedsMaterial(t *testing.T) {
	db := testDB(t)
	proj := models.ProjectModel{OwnerID: "owner-1", Title: "Blank"}
	require.NoError(t, db.Create(&proj).Error)
	svc := NewService(db, &stubAI{})

	_, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateActsDTO{})
	require.ErrorIs(t, err, ErrNoMaterial)

	_, err = svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateActsDTO{Guidance: "a heist in a flooded vault"})
	require.NoError(t, err, "guidance alone is enough material")
}

func TestFallbackActOutlineIsDeterministic(t *testing.T) {
	a := fallbackActOutline(2, "Tidewrack", "a drowned city breathes with the tide")
	b := fallbackActOutline(2, "Tidewrack", "a drowned city breathes with the tide")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "Act II structure for Tidewrack:"))
	assert.Contains(t, a, "midpoint revelation sparked by a drowned city breathes with the tide")
}
