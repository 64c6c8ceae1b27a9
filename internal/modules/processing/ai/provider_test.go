package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "github.com/neperienx/bookpipeline/internal/config"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestSelectAIProvider(t *testing.T) {
	cfg := appcfg.AIConfig{
		Providers: []appcfg.AIProvider{
			{ID: "disabled", Type: "openai", APIKey: "sk-1", Enabled: false},
			{ID: "first", Type: "openai", APIKey: "sk-2", DefaultModel: "gpt-4o-mini", Enabled: true},
			{ID: "claude", Type: "anthropic", APIKey: "sk-3", DefaultModel: "claude-sonnet-4-5", Enabled: true},
		},
	}

	t.Run("assignment picks the named provider", func(t *testing.T) {
		p := selectAIProvider(cfg, &appcfg.AIModelAssignment{ProviderID: "claude"})
		require.NotNil(t, p)
		assert.Equal(t, "claude", p.ID)
		assert.Equal(t, "claude-sonnet-4-5", p.DefaultModel)
	})

	t.Run("assignment model overrides the provider default", func(t *testing.T) {
		p := selectAIProvider(cfg, &appcfg.AIModelAssignment{ProviderID: "claude", Model: "claude-opus-4-1"})
		require.NotNil(t, p)
		assert.Equal(t, "claude-opus-4-1", p.DefaultModel)
		// The stored config must not be mutated by the override.
		assert.Equal(t, "claude-sonnet-4-5", cfg.Providers[2].DefaultModel)
	})

	t.Run("unknown assignment falls back to first enabled", func(t *testing.T) {
		p := selectAIProvider(cfg, &appcfg.AIModelAssignment{ProviderID: "gone"})
		require.NotNil(t, p)
		assert.Equal(t, "first", p.ID)
	})

	t.Run("nil assignment falls back to first enabled", func(t *testing.T) {
		p := selectAIProvider(cfg, nil)
		require.NotNil(t, p)
		assert.Equal(t, "first", p.ID)
	})

	t.Run("disabled providers are never selected", func(t *testing.T) {
		p := selectAIProvider(cfg, &appcfg.AIModelAssignment{ProviderID: "disabled"})
		require.NotNil(t, p)
		assert.Equal(t, "first", p.ID)
	})

	t.Run("no enabled providers yields nil", func(t *testing.T) {
		assert.Nil(t, selectAIProvider(appcfg.AIConfig{}, nil))
	})
}

func TestResolvedModelID(t *testing.T) {
	assert.Equal(t, "custom", resolvedModelID(&appcfg.AIProvider{Type: "openai", DefaultModel: " custom "}))
	assert.Equal(t, defaultOpenAIModel, resolvedModelID(&appcfg.AIProvider{Type: "openai"}))
	assert.Equal(t, defaultOpenAIModel, resolvedModelID(&appcfg.AIProvider{Type: "OpenAI-Compatible"}))
	assert.Equal(t, defaultAnthropicModel, resolvedModelID(&appcfg.AIProvider{Type: "Anthropic"}))
	assert.Equal(t, "", resolvedModelID(nil))
}

func TestCompatibleRequestBody(t *testing.T) {
	t.Run("defaults keep the payload minimal", func(t *testing.T) {
		body := compatibleRequestBody("m", "", "write", appcfg.GenerationOptions{}, false)

		assert.Equal(t, "m", body["model"])
		assert.Equal(t, defaultMaxNewTokens, body["max_tokens"])
		assert.NotContains(t, body, "temperature")
		assert.NotContains(t, body, "top_p")
		assert.NotContains(t, body, "top_k")
		assert.NotContains(t, body, "repetition_penalty")
		assert.NotContains(t, body, "seed")
		assert.NotContains(t, body, "stream")

		messages, ok := body["messages"].([]map[string]string)
		require.True(t, ok)
		require.Len(t, messages, 1)
		assert.Equal(t, "user", messages[0]["role"])
	})

	t.Run("system prompt becomes the first message", func(t *testing.T) {
		body := compatibleRequestBody("m", "you are a novelist", "write", appcfg.GenerationOptions{}, false)
		messages, ok := body["messages"].([]map[string]string)
		require.True(t, ok)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0]["role"])
		assert.Equal(t, "you are a novelist", messages[0]["content"])
	})

	t.Run("sampling parameters are forwarded when set", func(t *testing.T) {
		gen := appcfg.GenerationOptions{
			MaxNewTokens:      900,
			Temperature:       floatPtr(0.7),
			TopP:              floatPtr(0.9),
			TopK:              intPtr(40),
			RepetitionPenalty: floatPtr(1.1),
			PresencePenalty:   floatPtr(0.2),
			FrequencyPenalty:  floatPtr(0.3),
			Seed:              intPtr(42),
		}
		body := compatibleRequestBody("m", "", "write", gen, true)

		assert.Equal(t, 900, body["max_tokens"])
		assert.Equal(t, 0.7, body["temperature"])
		assert.Equal(t, 0.9, body["top_p"])
		assert.Equal(t, 40, body["top_k"])
		assert.Equal(t, 1.1, body["repetition_penalty"])
		assert.Equal(t, 0.2, body["presence_penalty"])
		assert.Equal(t, 0.3, body["frequency_penalty"])
		assert.Equal(t, 42, body["seed"])
		assert.Equal(t, true, body["stream"])
	})
}

func TestDecodeModelJSON(t *testing.T) {
	type roster struct {
		Name string `json:"name"`
	}

	t.Run("plain object", func(t *testing.T) {
		var out roster
		require.NoError(t, DecodeModelJSON(`{"name":"Mira"}`, &out))
		assert.Equal(t, "Mira", out.Name)
	})

	t.Run("fenced object", func(t *testing.T) {
		var out roster
		require.NoError(t, DecodeModelJSON("```json\n{\"name\":\"Mira\"}\n```", &out))
		assert.Equal(t, "Mira", out.Name)
	})

	t.Run("object embedded in prose", func(t *testing.T) {
		var out roster
		require.NoError(t, DecodeModelJSON(`Sure! Here you go: {"name":"Mira"} Hope that helps.`, &out))
		assert.Equal(t, "Mira", out.Name)
	})

	t.Run("fenced array", func(t *testing.T) {
		var out []roster
		require.NoError(t, DecodeModelJSON("```JSON\n[{\"name\":\"Mira\"},{\"name\":\"Tomas\"}]\n```", &out))
		require.Len(t, out, 2)
		assert.Equal(t, "Tomas", out[1].Name)
	})

	t.Run("array embedded in prose", func(t *testing.T) {
		var out []roster
		require.NoError(t, DecodeModelJSON(`The cast list: [{"name":"Mira"}] as requested.`, &out))
		require.Len(t, out, 1)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		var out roster
		assert.Error(t, DecodeModelJSON("I could not produce JSON, sorry.", &out))
	})
}

func TestNormalizeEndpoints(t *testing.T) {
	t.Run("compatible endpoint strips trailing v1", func(t *testing.T) {
		assert.Equal(t, "https://api.openai.com", normalizeOpenAICompatibleEndpoint(""))
		assert.Equal(t, "http://localhost:8080", normalizeOpenAICompatibleEndpoint("http://localhost:8080/v1/"))
		assert.Equal(t, "http://localhost:8080", normalizeOpenAICompatibleEndpoint("http://localhost:8080"))
	})

	t.Run("openai base url gains v1", func(t *testing.T) {
		assert.Equal(t, "", normalizeOpenAIBaseURL(""))
		assert.Equal(t, "https://proxy.example.com/v1", normalizeOpenAIBaseURL("https://proxy.example.com"))
		assert.Equal(t, "https://proxy.example.com/v1", normalizeOpenAIBaseURL("https://proxy.example.com/v1/"))
	})

	t.Run("models endpoints", func(t *testing.T) {
		assert.Equal(t, "https://api.openai.com/v1/models", normalizeOpenAIModelsEndpoint(""))
		assert.Equal(t, "https://api.anthropic.com/v1/models", normalizeAnthropicModelsEndpoint(""))
		assert.Equal(t, "https://openrouter.ai/api/v1/models", normalizeOpenRouterModelsEndpoint(""))
		assert.Equal(t, "https://gw.example.com/v1/models", normalizeOpenAIModelsEndpoint("https://gw.example.com/v1"))
		assert.Equal(t, "https://openrouter.ai/api/v1/models", normalizeOpenRouterModelsEndpoint("https://openrouter.ai/api/v1"))
	})
}

func TestTruncateHelpers(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 10))
	assert.Equal(t, "hel...", TruncateText("hello world", 3))
	assert.Equal(t, "short", TailText("short", 10))
	assert.Equal(t, "...rld", TailText("hello world", 3))

	// Rune-safe on multibyte text.
	assert.Equal(t, "héllo", TruncateText("héllo", 5))
	assert.Equal(t, "hé...", TruncateText("héllo!", 2))
}

func TestParseModelPayloads(t *testing.T) {
	t.Run("openai style", func(t *testing.T) {
		models, err := parseOpenAIStyleModels([]byte(`{"data":[{"id":"gpt-4o"},{"id":"gpt-4o","name":"dup"},{"id":""}]}`))
		require.NoError(t, err)
		models = dedupeModelInfos(models)
		require.Len(t, models, 1)
		assert.Equal(t, "gpt-4o", models[0].ID)
		assert.Equal(t, "gpt-4o", models[0].Name)
	})

	t.Run("anthropic style", func(t *testing.T) {
		models, err := parseAnthropicModels([]byte(`{"data":[{"id":"claude-sonnet-4-5","display_name":"Claude Sonnet 4.5"}]}`))
		require.NoError(t, err)
		require.Len(t, models, 1)
		assert.Equal(t, "Claude Sonnet 4.5", models[0].Name)
	})
}
