package act

import (
	"context"
	"errors"
	"testing"

	"github.com/neperienx/bookpipeline/internal/models"
	"github.com/neperienx/bookpipeline/internal/modules/processing/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClarifyTwoPass(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)
	require.NoError(t, db.Create(&models.OutlineVersionModel{
		ProjectID: proj.ID, Version: 1,
		Text: "The Tidal Engine wakes beneath the drowned quarter.",
	}).Error)

	stub := &stubAI{replies: []ai.Result{
		{Text: `[{"name": "Tidal Engine", "issue": "its mechanism is never explained"}]`, Model: "gpt-4o-mini"},
		{Text: `[{"name": "Tidal Engine", "definition": "A drowned machine that breathes with the sea.", "examples": ["The engine floods the lower city at dusk."]}]`, Model: "gpt-4o-mini"},
	}}
	svc := NewService(db, stub)

	res, err := svc.Clarify(context.Background(), "owner-1", proj.ID, &ClarifyDTO{})
	require.NoError(t, err)

	assert.False(t, res.UsedFallback)
	require.Len(t, res.Concepts, 1)
	assert.Equal(t, "Tidal Engine", res.Concepts[0].Name)
	assert.Equal(t, "its mechanism is never explained", res.Concepts[0].Issue, "the flagged issue rides along")
	require.Len(t, res.Concepts[0].Examples, 1)

	assert.Contains(t, res.RefinedPremise, proj.Premise)
	assert.Contains(t, res.RefinedPremise, "Clarified concepts:")
	assert.Contains(t, res.RefinedPremise, "- Tidal Engine: A drowned machine that breathes with the sea.")
	assert.False(t, res.Applied)

	require.Len(t, stub.prompts, 2)
	assert.Contains(t, stub.prompts[0], "Tidal Engine wakes")
	assert.Contains(t, stub.prompts[1], `"issue": "its mechanism is never explained"`)

	var stored models.ProjectModel
	require.NoError(t, db.First(&stored, "id = ?", proj.ID).Error)
	assert.Equal(t, proj.Premise, stored.Premise, "premise untouched without apply")

	var log models.GenerationLogModel
	require.NoError(t, db.First(&log, "project_id = ? AND kind = ?", proj.ID, models.GenerationKindConcept).Error)
	assert.True(t, log.Succeeded)
	assert.Equal(t, 2, log.Attempts)
}

func TestClarifyApplyRewritesPremise(t *testing.T) {
	db := testDB(t)
	proj := seedProject(t, db)

	stub := &stubAI{replies: []ai.Result{
		{Text: `[{"name": "Tide", "issue": "vague"}]`},
		{Text: `[{"name": "Tide", "definition": "The city's pulse."}]`},
	}}
	svc := NewService(db, stub)

	res, err := svc.Clarify(context.Background(), "owner-1", proj.ID, &ClarifyDTO{Apply: true})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	var stored models.ProjectModel
	require.NoError(t, db.First(&stored, "id = ?", proj.ID).Error)
	assert.Equal(t, res.RefinedPremise, stored.Premise)
	assert.Contains(t, stored.Premise, "- Tide: The city's pulse.")
}

func TestClarifyFallsBackToHeuristics(t *testing.T) {
	db := testDB(t)
	proj := models.ProjectModel{
		OwnerID: "owner-1",
		Title:   "Lightfall",
		Premise: "The lighthouse keeper guards the lighthouse against storm spirits. The storm spirits circle the lighthouse every night.",
	}
	require.NoError(t, db.Create(&proj).Error)

	down := errors.New("provider down")
	svc := NewService(db, &stubAI{errs: []error{down, down}})

	res, err := svc.Clarify(context.Background(), "owner-1", proj.ID, &ClarifyDTO{})
	require.NoError(t, err)

	assert.True(t, res.UsedFallback)
	require.NotEmpty(t, res.Concepts)
	assert.Equal(t, "Lighthouse", res.Concepts[0].Name, "most repeated substantive word leads")
	assert.Contains(t, res.Concepts[0].Definition, "Lighthouse represents")
	assert.Contains(t, res.Concepts[0].Issue, "Clarify how Lighthouse functions")

	var log models.GenerationLogModel
	require.NoError(t, db.First(&log, "project_id = ? AND kind = ?", proj.ID, models.GenerationKindConcept).Error)
	assert.False(t, log.Succeeded)
	assert.Equal(t, "provider down", log.ErrorText)
}

func TestClarifyNeedsMaterial(t *testing.T) {
	db := testDB(t)
	proj := models.ProjectModel{OwnerID: "owner-1", Title: "Blank"}
	require.NoError(t, db.Create(&proj).Error)
	svc := NewService(db, &stubAI{})

	_, err := svc.Clarify(context.Background(), "owner-1", proj.ID, &ClarifyDTO{})
	require.ErrorIs(t, err, ErrNoMaterial)
}

func TestFallbackCandidates(t *testing.T) {
	material := "The archive beneath the archive hides a cipher. The cipher sings about the archive while there there there."
	got := fallbackCandidates(material, "the project")

	require.NotEmpty(t, got)
	assert.Equal(t, "Archive", got[0].Name)
	for _, c := range got {
		assert.NotEqual(t, "There", c.Name, "stopwords never become candidates")
		assert.NotEqual(t, "About", c.Name)
	}

	got = fallbackCandidates("short words only here", "Fallback Title")
	require.Len(t, got, 1)
	assert.Equal(t, "Fallback Title", got[0].Name)
	assert.Contains(t, got[0].Issue, "central concept")
}

func TestSurroundingContextCollapsesWhitespace(t *testing.T) {
	material := "Before the   storm\n\nthe  harbour bell rang twice."
	got := surroundingContext(material, "harbour bell")
	assert.Equal(t, "Before the storm the harbour bell rang twice.", got)

	assert.Empty(t, surroundingContext(material, "krakens"))
	assert.Empty(t, surroundingContext(material, ""))
}
