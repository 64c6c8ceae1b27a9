package character

import (
	"context"
	"errors"
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
	text   string
	model  string
	err    error
	prompt string
}

func (f *stubAI) Generate(_ context.Context, _ ai.Purpose, _, prompt string) (ai.Result, error) {
	f.prompt = prompt
	return ai.Result{Text: f.text, Model: f.model}, f.err
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
		&models.GenerationLogModel{},
	))
	return db
}

func seedProject(t *testing.T, db *gorm.DB) *models.ProjectModel {
	t.Helper()
	proj := models.ProjectModel{OwnerID: "owner-1", Title: "Tidewrack", Premise: "a drowned city"}
	require.NoError(t, db.Create(&proj).Error)
	return &proj
}

func TestCRUDAndOwnership(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	svc := NewService(db, &stubAI{})

	ch, err := svc.Create("owner-1", proj.ID, &CreateCharacterDTO{Name: " Mara ", Role: "diver"})
	require.NoError(t, err)
	assert.Equal(t, "Mara", ch.Name)

	_, err = svc.Create("intruder", proj.ID, &CreateCharacterDTO{Name: "Spy"})
	require.ErrorIs(t, err, ErrProjectNotFound)

	role := "salvage diver"
	updated, err := svc.Update("owner-1", ch.ID, &UpdateCharacterDTO{Role: &role})
	require.NoError(t, err)
	require.NotNil(t, updated)

	missing, err := svc.Update("intruder", ch.ID, &UpdateCharacterDTO{Role: &role})
	require.NoError(t, err)
	assert.Nil(t, missing, "foreign characters read as missing")

	chars, err := svc.List("owner-1", proj.ID)
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, "salvage diver", chars[0].Role)

	require.NoError(t, svc.Delete("owner-1", ch.ID))
	chars, err = svc.List("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Empty(t, chars)
}

func TestGenerateRosterUpsertsByName(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	require.NoError(t, db.Create(&models.CharacterModel{
		ProjectID: proj.ID, Name: "Mara", Role: "old role",
	}).Error)

	stub := &stubAI{text: `[
		{"name": "Mara", "role": "diver", "background": "born at sea"},
		{"name": "Iswitch", "role_in_story": "rival", "core_drive": "win the salvage rights"}
	]`, model: "gpt-4o-mini"}
	svc := NewService(db, stub)

	res, err := svc.GenerateRoster(context.Background(), "owner-1", proj.ID, &GenerateCharactersDTO{})
	require.NoError(t, err)

	assert.False(t, res.UsedFallback)
	require.Len(t, res.Updated, 1)
	require.Len(t, res.Created, 1)

	var mara models.CharacterModel
	require.NoError(t, db.First(&mara, "project_id = ? AND name = ?", proj.ID, "Mara").Error)
	assert.Equal(t, "diver", mara.Role)
	assert.Equal(t, "born at sea", mara.Background)

	var rival models.CharacterModel
	require.NoError(t, db.First(&rival, "project_id = ? AND name = ?", proj.ID, "Iswitch").Error)
	assert.Equal(t, "rival", rival.Role, "role_in_story alias is honored")
	assert.Equal(t, "win the salvage rights", rival.Goals, "core_drive alias is honored")
}

func TestGenerateRosterAcceptsWrapperObject(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	stub := &stubAI{text: "```json\n{\"characters\": [{\"name\": \"Keel\", \"role\": \"captain\"}]}\n```"}
	svc := NewService(db, stub)

	res, err := svc.GenerateRoster(context.Background(), "owner-1", proj.ID, &GenerateCharactersDTO{})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "Keel", res.Created[0].Name)
}

func TestGenerateRosterFallsBack(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	svc := NewService(db, &stubAI{err: errors.New("provider down")})

	res, err := svc.GenerateRoster(context.Background(), "owner-1", proj.ID, &GenerateCharactersDTO{})
	require.NoError(t, err)

	assert.True(t, res.UsedFallback)
	require.Len(t, res.Created, 3)
	names := []string{res.Created[0].Name, res.Created[1].Name, res.Created[2].Name}
	assert.Equal(t, []string{"Protagonist", "Opposition", "Key Ally"}, names)

	var log models.GenerationLogModel
	require.NoError(t, db.First(&log, "project_id = ?", proj.ID).Error)
	assert.Equal(t, models.GenerationKindCharacters, log.Kind)
	assert.False(t, log.Succeeded)
}

func TestAutofillSingleField(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	ch := models.CharacterModel{ProjectID: proj.ID, Name: "Mara", Role: "diver", Goals: "surface alive"}
	require.NoError(t, db.Create(&ch).Error)

	stub := &stubAI{text: "She grew up on the drowned piers.", model: "claude"}
	svc := NewService(db, stub)

	res, err := svc.Autofill(context.Background(), "owner-1", ch.ID, &AutofillDTO{Field: "background"})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.False(t, res.UsedFallback)
	assert.Equal(t, "She grew up on the drowned piers.", res.Character.Background)
	assert.Equal(t, "surface alive", res.Character.Goals, "other fields untouched")
	assert.Contains(t, stub.prompt, "Goals: surface alive", "existing fields feed the prompt")
	assert.NotContains(t, stub.prompt, "Background:", "the target field is excluded from context")

	var stored models.CharacterModel
	require.NoError(t, db.First(&stored, "id = ?", ch.ID).Error)
	assert.Equal(t, "She grew up on the drowned piers.", stored.Background)
}

func TestAutofillRejectsUnknownField(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	ch := models.CharacterModel{ProjectID: proj.ID, Name: "Mara"}
	require.NoError(t, db.Create(&ch).Error)
	svc := NewService(db, &stubAI{})

	_, err := svc.Autofill(context.Background(), "owner-1", ch.ID, &AutofillDTO{Field: "name"})
	require.ErrorIs(t, err, ErrBadField)
}

func TestAutofillFallsBack(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	ch := models.CharacterModel{ProjectID: proj.ID, Name: "Mara"}
	require.NoError(t, db.Create(&ch).Error)
	svc := NewService(db, &stubAI{err: errors.New("timeout")})

	res, err := svc.Autofill(context.Background(), "owner-1", ch.ID, &AutofillDTO{Field: "conflict"})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Contains(t, res.Character.Conflict, "Mara")
}

func TestParseRosterShapes(t *testing.T) {
	seeds := parseRoster(`[{"name":"A"},{"name":""},{"name":"B"}]`)
	require.Len(t, seeds, 2, "nameless entries are dropped")

	seeds = parseRoster(`Here you go:
{"characters": [{"name": "C", "hidden_vulnerability": "afraid of depth"}]}`)
	require.Len(t, seeds, 1)
	assert.Equal(t, "afraid of depth", seeds[0].Conflict)

	assert.Nil(t, parseRoster("no json at all"))
}
