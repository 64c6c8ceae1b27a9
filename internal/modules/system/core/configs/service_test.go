package configs

import (
	"encoding/json"
	"testing"

	"github.com/neperienx/bookpipeline/internal/config"
	"github.com/neperienx/bookpipeline/internal/models"
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
	require.NoError(t, db.AutoMigrate(&models.OptionModel{}))
	return db
}

func rawSection(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestGetSeedsDefaults(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	cfg, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, "My Writing Room", cfg.Site.Title)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)

	var opt models.OptionModel
	require.NoError(t, db.Where("name = ?", configKey).First(&opt).Error)
	assert.Contains(t, opt.Value, `"max_attempts":3`)
}

func TestPatchDeepMergesSections(t *testing.T) {
	svc := NewService(testDB(t))

	_, err := svc.Patch(map[string]json.RawMessage{
		"site": rawSection(t, map[string]interface{}{"title": "Tidewrack Drafts"}),
	})
	require.NoError(t, err)

	updated, err := svc.Patch(map[string]json.RawMessage{
		"generation": rawSection(t, map[string]interface{}{"max_attempts": 5}),
	})
	require.NoError(t, err)

	assert.Equal(t, "Tidewrack Drafts", updated.Site.Title)
	assert.Equal(t, "Draft novels one act at a time", updated.Site.Description)
	assert.Equal(t, 5, updated.Generation.MaxAttempts)
	assert.Equal(t, 512, updated.Generation.MaxNewTokens)
	require.NotNil(t, updated.Generation.Temperature)
	assert.InDelta(t, 0.8, *updated.Generation.Temperature, 0.0001)
}

func TestPatchPersistsAcrossReload(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	_, err := svc.Patch(map[string]json.RawMessage{
		"site": rawSection(t, map[string]interface{}{"title": "Night Shift"}),
	})
	require.NoError(t, err)

	svc.Invalidate()
	cfg, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, "Night Shift", cfg.Site.Title)

	fresh := NewService(db)
	cfg, err = fresh.Get()
	require.NoError(t, err)
	assert.Equal(t, "Night Shift", cfg.Site.Title)
}

func TestPatchAcceptsLegacyGenerationKeys(t *testing.T) {
	svc := NewService(testDB(t))

	updated, err := svc.Patch(map[string]json.RawMessage{
		"generation": rawSection(t, map[string]interface{}{
			"max_retries": 7,
			"max_tokens":  2048,
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Generation.MaxAttempts)
	assert.Equal(t, 2048, updated.Generation.MaxNewTokens)
}

func TestPatchAcceptsProviderBaseURLAlias(t *testing.T) {
	svc := NewService(testDB(t))

	updated, err := svc.Patch(map[string]json.RawMessage{
		"ai": rawSection(t, map[string]interface{}{
			"providers": []map[string]interface{}{{
				"id":            "local",
				"name":          "Local",
				"type":          "OpenAI-Compatible",
				"api_key":       "sk-local",
				"base_url":      "https://llm.internal/v1",
				"default_model": "gpt-4o-mini",
				"enabled":       true,
			}},
		}),
	})
	require.NoError(t, err)
	require.Len(t, updated.AI.Providers, 1)
	assert.Equal(t, "https://llm.internal/v1", updated.AI.Providers[0].Endpoint)
}

func TestPatchValidatesModelAssignments(t *testing.T) {
	svc := NewService(testDB(t))

	providers := []map[string]interface{}{
		{"id": "first", "name": "Main", "type": "OpenAI", "api_key": "sk-1", "default_model": "gpt-4o-mini", "enabled": true},
		{"id": "second", "name": "Backup", "type": "Anthropic", "api_key": "sk-2", "default_model": "claude-sonnet-4-5", "enabled": false},
	}

	_, err := svc.Patch(map[string]json.RawMessage{
		"ai": rawSection(t, map[string]interface{}{
			"providers":     providers,
			"outline_model": map[string]interface{}{"provider_id": "ghost", "model": "gpt-4o-mini"},
		}),
	})
	assert.ErrorIs(t, err, errUnknownProviderAssignment)

	// Rejected patches must not stick.
	cfg, err := svc.Get()
	require.NoError(t, err)
	assert.Empty(t, cfg.AI.Providers)

	_, err = svc.Patch(map[string]json.RawMessage{
		"ai": rawSection(t, map[string]interface{}{
			"providers":   providers,
			"draft_model": map[string]interface{}{"provider_id": "second", "model": "claude-sonnet-4-5"},
		}),
	})
	assert.ErrorIs(t, err, errDisabledProviderAssignment)

	updated, err := svc.Patch(map[string]json.RawMessage{
		"ai": rawSection(t, map[string]interface{}{
			"providers":     providers,
			"outline_model": map[string]interface{}{"provider_id": "first", "model": "gpt-4o-mini"},
		}),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.AI.OutlineModel)
	assert.Equal(t, "first", updated.AI.OutlineModel.ProviderID)
}

func TestPatchKeepsMaskedProviderKeys(t *testing.T) {
	svc := NewService(testDB(t))

	_, err := svc.Patch(map[string]json.RawMessage{
		"ai": rawSection(t, map[string]interface{}{
			"providers": []map[string]interface{}{{
				"id":            "first",
				"name":          "Main",
				"type":          "OpenAI",
				"api_key":       "sk-live-123",
				"default_model": "gpt-4o-mini",
				"enabled":       true,
			}},
		}),
	})
	require.NoError(t, err)

	// Round-trip the masked admin view: key stays, rename applies.
	updated, err := svc.Patch(map[string]json.RawMessage{
		"ai": rawSection(t, map[string]interface{}{
			"providers": []map[string]interface{}{{
				"id":            "first",
				"name":          "Renamed",
				"type":          "OpenAI",
				"api_key":       maskedSecret,
				"default_model": "gpt-4o-mini",
				"enabled":       true,
			}},
		}),
	})
	require.NoError(t, err)
	require.Len(t, updated.AI.Providers, 1)
	assert.Equal(t, "Renamed", updated.AI.Providers[0].Name)
	assert.Equal(t, "sk-live-123", updated.AI.Providers[0].APIKey)

	// A masked key on a provider the stored config does not know resolves
	// to empty rather than persisting the placeholder.
	updated, err = svc.Patch(map[string]json.RawMessage{
		"ai": rawSection(t, map[string]interface{}{
			"providers": []map[string]interface{}{{
				"id":            "fresh",
				"name":          "Fresh",
				"type":          "OpenRouter",
				"api_key":       maskedSecret,
				"default_model": "gpt-4o-mini",
				"enabled":       true,
			}},
		}),
	})
	require.NoError(t, err)
	require.Len(t, updated.AI.Providers, 1)
	assert.Equal(t, "", updated.AI.Providers[0].APIKey)
}

func TestPatchKeepsMaskedScalarSecrets(t *testing.T) {
	svc := NewService(testDB(t))

	_, err := svc.Patch(map[string]json.RawMessage{
		"s3_options":   rawSection(t, map[string]interface{}{"secret_access_key": "shhh", "bucket": "books"}),
		"bark_options": rawSection(t, map[string]interface{}{"key": "device-key"}),
	})
	require.NoError(t, err)

	updated, err := svc.Patch(map[string]json.RawMessage{
		"s3_options":   rawSection(t, map[string]interface{}{"secret_access_key": maskedSecret, "region": "us-east-1"}),
		"bark_options": rawSection(t, map[string]interface{}{"key": maskedSecret, "enable": true}),
	})
	require.NoError(t, err)
	assert.Equal(t, "shhh", updated.S3Options.SecretAccessKey)
	assert.Equal(t, "books", updated.S3Options.Bucket)
	assert.Equal(t, "us-east-1", updated.S3Options.Region)
	assert.Equal(t, "device-key", updated.BarkOptions.Key)
	assert.True(t, updated.BarkOptions.Enable)
}

func TestMaskConfigSecrets(t *testing.T) {
	cfg := config.DefaultFullConfig()
	cfg.AI.Providers = []config.AIProvider{
		{ID: "first", APIKey: "sk-live-123"},
		{ID: "second"},
	}
	cfg.S3Options.AccessKeyID = "AKIAEXAMPLE"
	cfg.S3Options.SecretAccessKey = "shhh"
	cfg.BarkOptions.Key = "device-key"

	masked := maskConfigSecrets(cfg)
	assert.Equal(t, maskedSecret, masked.AI.Providers[0].APIKey)
	assert.Equal(t, "", masked.AI.Providers[1].APIKey)
	assert.Equal(t, "AKIAEXAMPLE", masked.S3Options.AccessKeyID)
	assert.Equal(t, maskedSecret, masked.S3Options.SecretAccessKey)
	assert.Equal(t, maskedSecret, masked.BarkOptions.Key)

	// The input is copied, not mutated.
	assert.Equal(t, "sk-live-123", cfg.AI.Providers[0].APIKey)
}

func TestConfigSectionMasksSecrets(t *testing.T) {
	cfg := config.DefaultFullConfig()
	cfg.AI.Providers = []config.AIProvider{{ID: "first", APIKey: "sk-live-123"}}

	section, ok := configSection(cfg, "ai")
	require.True(t, ok)
	raw, err := json.Marshal(section)
	require.NoError(t, err)
	assert.Contains(t, string(raw), maskedSecret)
	assert.NotContains(t, string(raw), "sk-live-123")

	_, ok = configSection(cfg, "missing_section")
	assert.False(t, ok)
}

func TestNormalizeOptionKey(t *testing.T) {
	assert.Equal(t, "s3_options", normalizeOptionKey("s3"))
	assert.Equal(t, "s3_options", normalizeOptionKey("s3Options"))
	assert.Equal(t, "backup_options", normalizeOptionKey("backup"))
	assert.Equal(t, "auth_security", normalizeOptionKey("security"))
	assert.Equal(t, "auth_security", normalizeOptionKey("authSecurity"))
	assert.Equal(t, "bark_options", normalizeOptionKey("bark"))
	assert.Equal(t, "generation", normalizeOptionKey("generation"))
	assert.Equal(t, "custom_section", normalizeOptionKey("customSection"))
}

func TestKeyCaseConversion(t *testing.T) {
	assert.Equal(t, "max_new_tokens", camelToSnakeKey("maxNewTokens"))
	assert.Equal(t, "s3_options", camelToSnakeKey("s3Options"))
	assert.Equal(t, "web_url", camelToSnakeKey("webURL"))
	assert.Equal(t, "maxNewTokens", snakeToCamelKey("max_new_tokens"))
	assert.Equal(t, "maxSizeMB", snakeToCamelKey("max_size_mb"))
	assert.Equal(t, "cacheTTL", snakeToCamelKey("cache_ttl"))
}

func TestNormalizeJSONKeysNested(t *testing.T) {
	body := json.RawMessage(`{"providers":[{"apiKey":"k","defaultModel":"m"}],"outlineModel":{"providerId":"first"}}`)
	normalized, err := normalizeJSONKeys(body, camelToSnakeKey)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(normalized, &decoded))
	providers := decoded["providers"].([]interface{})
	provider := providers[0].(map[string]interface{})
	assert.Equal(t, "k", provider["api_key"])
	assert.Equal(t, "m", provider["default_model"])
	assignment := decoded["outline_model"].(map[string]interface{})
	assert.Equal(t, "first", assignment["provider_id"])

	_, err = normalizeJSONKeys(json.RawMessage(`{"broken`), camelToSnakeKey)
	assert.Error(t, err)
}

func TestDeepMergeJSONArraysReplace(t *testing.T) {
	oldVal := map[string]interface{}{
		"providers": []interface{}{"a", "b"},
		"nested":    map[string]interface{}{"keep": true, "swap": 1.0},
	}
	newVal := map[string]interface{}{
		"providers": []interface{}{"c"},
		"nested":    map[string]interface{}{"swap": 2.0},
	}

	merged := deepMergeJSON(oldVal, newVal).(map[string]interface{})
	assert.Equal(t, []interface{}{"c"}, merged["providers"])
	nested := merged["nested"].(map[string]interface{})
	assert.Equal(t, true, nested["keep"])
	assert.Equal(t, 2.0, nested["swap"])
}

func TestFormSchemaAttachesProviderOptions(t *testing.T) {
	schema, err := loadFormSchemaTemplate()
	require.NoError(t, err)

	uuid := "2f1b0a9c-44d1-4c36-9f10-59c0f1a2b3c4"
	attachAIProviderOptions(schema, config.AIConfig{
		Providers: []config.AIProvider{
			{ID: "first", Name: "Main", Type: "OpenAI"},
			{ID: uuid, Name: uuid, Type: "Anthropic"},
		},
	})

	raw, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"label":"Main (OpenAI)"`)
	assert.Contains(t, string(raw), `"value":"first"`)
	// UUID display names are dropped in favour of the provider type.
	assert.Contains(t, string(raw), `"label":"Anthropic"`)
}

func TestFormatAIProviderLabel(t *testing.T) {
	uuid := "2f1b0a9c-44d1-4c36-9f10-59c0f1a2b3c4"
	assert.Equal(t, "Main (OpenAI)", formatAIProviderLabel(config.AIProvider{ID: "first", Name: "Main", Type: "OpenAI"}))
	assert.Equal(t, "Anthropic", formatAIProviderLabel(config.AIProvider{ID: uuid, Name: uuid, Type: "Anthropic"}))
	assert.Equal(t, "solo", formatAIProviderLabel(config.AIProvider{ID: "solo"}))
	assert.Equal(t, "Unknown", formatAIProviderLabel(config.AIProvider{}))
}
