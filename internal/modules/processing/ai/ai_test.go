package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	appcfg "github.com/neperienx/bookpipeline/internal/config"
)

func TestAssignmentFor(t *testing.T) {
	cfg := appcfg.AIConfig{
		OutlineModel:   &appcfg.AIModelAssignment{ProviderID: "a"},
		CharacterModel: &appcfg.AIModelAssignment{ProviderID: "b"},
		ChapterModel:   &appcfg.AIModelAssignment{ProviderID: "c"},
		DraftModel:     &appcfg.AIModelAssignment{ProviderID: "d"},
	}

	assert.Equal(t, "a", assignmentFor(cfg, PurposeOutline).ProviderID)
	assert.Equal(t, "b", assignmentFor(cfg, PurposeCharacters).ProviderID)
	assert.Equal(t, "c", assignmentFor(cfg, PurposeChapters).ProviderID)
	assert.Equal(t, "d", assignmentFor(cfg, PurposeDrafts).ProviderID)
	assert.Nil(t, assignmentFor(cfg, Purpose("unknown")))
	assert.Nil(t, assignmentFor(appcfg.AIConfig{}, PurposeOutline))
}

func TestMaxNewTokens(t *testing.T) {
	assert.Equal(t, defaultMaxNewTokens, maxNewTokens(appcfg.GenerationOptions{}))
	assert.Equal(t, defaultMaxNewTokens, maxNewTokens(appcfg.GenerationOptions{MaxNewTokens: -5}))
	assert.Equal(t, 2048, maxNewTokens(appcfg.GenerationOptions{MaxNewTokens: 2048}))
}
