package outline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/neperienx/bookpipeline/internal/pkg/pagination"
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
	calls  int
	system string
	prompt string
}

func (f *stubAI) Generate(_ context.Context, _ ai.Purpose, system, prompt string) (ai.Result, error) {
	f.calls++
	f.system, f.prompt = system, prompt
	return ai.Result{Text: f.text, Model: f.model}, f.err
}

func (f *stubAI) GenerateStream(ctx context.Context, purpose ai.Purpose, system, prompt string, onToken func(string)) (ai.Result, error) {
	if f.err == nil && f.text != "" && onToken != nil {
		onToken(f.text)
	}
	return f.Generate(ctx, purpose, system, prompt)
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
		&models.GenerationLogModel{},
	))
	return db
}

func seedProject(t *testing.T, db *gorm.DB, premise string) *models.ProjectModel {
	t.Helper()
	proj := models.ProjectModel{OwnerID: "owner-1", Title: "Tidewrack", Premise: premise}
	require.NoError(t, db.Create(&proj).Error)
	return &proj
}

func TestGenerateStoresVersion(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db, "a lighthouse keeper finds a door in the sea")
	stub := &stubAI{text: "Premise & Hook\n- the door opens", model: "gpt-4o-mini"}
	svc := NewService(db, stub)

	res, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateOutlineDTO{})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.False(t, res.UsedFallback)
	assert.Equal(t, 1, res.Version.Version)
	assert.Equal(t, models.OutlineSourceGenerated, res.Version.Source)
	assert.Equal(t, "gpt-4o-mini", res.Version.ModelUsed)
	assert.Contains(t, stub.prompt, "a lighthouse keeper")
	assert.Contains(t, stub.prompt, "Tidewrack")

	var log models.GenerationLogModel
	require.NoError(t, db.First(&log, "project_id = ?", proj.ID).Error)
	assert.Equal(t, models.GenerationKindOutline, log.Kind)
	assert.True(t, log.Succeeded)
	assert.Equal(t, "gpt-4o-mini", log.ModelUsed)
}

func TestGenerateFallsBackOnError(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db, "a heist in a floating city")
	stub := &stubAI{err: errors.New("provider down")}
	svc := NewService(db, stub)

	res, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateOutlineDTO{})
	require.NoError(t, err)

	assert.True(t, res.UsedFallback)
	for _, heading := range []string{
		"Premise & Hook",
		"Act I — Setup & Disruption",
		"Act II — Escalation & Midpoint",
		"Act III — Climax & Resolution",
	} {
		assert.Contains(t, res.Version.Text, heading)
	}
	assert.Contains(t, res.Version.Text, "a heist in a floating city")

	var log models.GenerationLogModel
	require.NoError(t, db.First(&log, "project_id = ?", proj.ID).Error)
	assert.False(t, log.Succeeded)
	assert.Contains(t, log.ErrorText, "provider down")
}

func TestGenerateFallsBackOnEmptyReply(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db, "premise text")
	svc := NewService(db, &stubAI{text: "   "})

	res, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateOutlineDTO{})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.NotEmpty(t, res.Version.Text)
}

func TestGenerateRequiresPremiseOrGuidance(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db, "")
	svc := NewService(db, &stubAI{text: "ignored"})

	_, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateOutlineDTO{})
	require.ErrorIs(t, err, ErrNoPremise)

	// Guidance alone is enough.
	res, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateOutlineDTO{Guidance: "try a ghost story"})
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
}

func TestGenerateStreamForwardsTokens(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db, "premise")
	svc := NewService(db, &stubAI{text: "streamed outline"})

	var tokens []string
	res, err := svc.GenerateStream(context.Background(), "owner-1", proj.ID, &GenerateOutlineDTO{}, func(tok string) {
		tokens = append(tokens, tok)
	})
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, []string{"streamed outline"}, tokens)
}

func TestEditAppendsVersions(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db, "premise")
	svc := NewService(db, &stubAI{text: "generated text"})

	_, err := svc.Generate(context.Background(), "owner-1", proj.ID, &GenerateOutlineDTO{})
	require.NoError(t, err)

	edited, err := svc.Edit("owner-1", proj.ID, &EditOutlineDTO{Text: "my rewrite"})
	require.NoError(t, err)
	assert.Equal(t, 2, edited.Version)
	assert.Equal(t, models.OutlineSourceEdited, edited.Source)
	assert.Empty(t, edited.ModelUsed)

	latest, err := svc.Latest("owner-1", proj.ID)
	require.NoError(t, err)
	assert.Equal(t, "my rewrite", latest.Text)

	versions, pag, err := svc.Versions("owner-1", proj.ID, pagination.Query{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.EqualValues(t, 2, pag.Total)
	assert.Equal(t, 2, versions[0].Version, "newest first")
}

func TestOwnershipScoping(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db, "premise")
	svc := NewService(db, &stubAI{})

	_, _, err := svc.Versions("intruder", proj.ID, pagination.Query{Page: 1, Size: 10})
	require.ErrorIs(t, err, ErrProjectNotFound)

	_, err = svc.Latest("intruder", proj.ID)
	require.ErrorIs(t, err, ErrProjectNotFound)

	_, err = svc.Edit("intruder", proj.ID, &EditOutlineDTO{Text: "nope"})
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestFallbackOutlineIsDeterministic(t *testing.T) {
	first := buildFallbackOutline("Tidewrack", "a lighthouse keeper finds a door in the sea")
	second := buildFallbackOutline("Tidewrack", "a lighthouse keeper finds a door in the sea")
	assert.Equal(t, first, second)

	lines := strings.Split(first, "\n")
	assert.Equal(t, "Premise & Hook", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "- "))
}

func TestConceptExcerptTruncates(t *testing.T) {
	long := strings.Repeat("word ", 40)
	excerpt := conceptExcerpt(long)
	assert.Equal(t, fallbackExcerptWords, len(strings.Fields(excerpt)))
	assert.True(t, strings.HasSuffix(excerpt, "…"))

	assert.Equal(t, "your story concept", conceptExcerpt("  "))
	assert.Equal(t, "short idea", conceptExcerpt("short idea"))
}

func TestBuildOutlinePromptSections(t *testing.T) {
	proj := &models.ProjectModel{Title: "Tidewrack", Premise: "the premise", AuthorNotes: "keep it bleak"}
	prompt := buildOutlinePrompt(proj, "lean into fog")

	assert.Contains(t, prompt, "Project title: Tidewrack")
	assert.Contains(t, prompt, "Story idea:\nthe premise")
	assert.Contains(t, prompt, "Author notes:\nkeep it bleak")
	assert.Contains(t, prompt, "Additional guidance:\nlean into fog")
	assert.Contains(t, prompt, `"Act II — Escalation & Midpoint"`)

	bare := buildOutlinePrompt(&models.ProjectModel{Title: "Bare"}, "")
	assert.NotContains(t, bare, "Author notes:")
	assert.NotContains(t, bare, "Additional guidance:")
}
