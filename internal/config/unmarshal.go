package config

import (
	"encoding/json"
	"strings"
)

func (a *AIModelAssignment) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProviderID      string `json:"provider_id"`
		ProviderIDCamel string `json:"providerId"`
		Model           string `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.ProviderID = strings.TrimSpace(raw.ProviderID)
	if a.ProviderID == "" {
		a.ProviderID = strings.TrimSpace(raw.ProviderIDCamel)
	}
	a.Model = strings.TrimSpace(raw.Model)
	return nil
}

func (a *AIConfig) UnmarshalJSON(data []byte) error {
	next := *a
	var raw struct {
		Providers      []AIProvider    `json:"providers"`
		OutlineModel   json.RawMessage `json:"outline_model"`
		CharacterModel json.RawMessage `json:"character_model"`
		ChapterModel   json.RawMessage `json:"chapter_model"`
		DraftModel     json.RawMessage `json:"draft_model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Providers != nil {
		next.Providers = raw.Providers
	}

	var err error
	if len(raw.OutlineModel) > 0 {
		next.OutlineModel, err = parseAIModelAssignment(raw.OutlineModel, next.OutlineModel)
		if err != nil {
			return err
		}
	}
	if len(raw.CharacterModel) > 0 {
		next.CharacterModel, err = parseAIModelAssignment(raw.CharacterModel, next.CharacterModel)
		if err != nil {
			return err
		}
	}
	if len(raw.ChapterModel) > 0 {
		next.ChapterModel, err = parseAIModelAssignment(raw.ChapterModel, next.ChapterModel)
		if err != nil {
			return err
		}
	}
	if len(raw.DraftModel) > 0 {
		next.DraftModel, err = parseAIModelAssignment(raw.DraftModel, next.DraftModel)
		if err != nil {
			return err
		}
	}

	*a = next
	return nil
}

// parseAIModelAssignment accepts either {provider_id, model} objects or a
// bare model-name string left over from earlier config versions.
func parseAIModelAssignment(raw json.RawMessage, fallback *AIModelAssignment) (*AIModelAssignment, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return fallback, nil
	}
	if trimmed == "null" {
		return nil, nil
	}

	var legacyModel string
	if err := json.Unmarshal(raw, &legacyModel); err == nil {
		legacyModel = strings.TrimSpace(legacyModel)
		if legacyModel == "" {
			return nil, nil
		}
		next := &AIModelAssignment{}
		if fallback != nil {
			*next = *fallback
		}
		next.Model = legacyModel
		return next, nil
	}

	next := &AIModelAssignment{}
	if fallback != nil {
		*next = *fallback
	}
	if err := json.Unmarshal(raw, next); err != nil {
		return nil, err
	}
	if strings.TrimSpace(next.ProviderID) == "" && strings.TrimSpace(next.Model) == "" {
		return nil, nil
	}
	return next, nil
}

func (g *GenerationOptions) UnmarshalJSON(data []byte) error {
	next := *g
	var raw struct {
		MaxNewTokens      *int     `json:"max_new_tokens"`
		MaxTokens         *int     `json:"max_tokens"`
		Temperature       *float64 `json:"temperature"`
		TopP              *float64 `json:"top_p"`
		TopK              *int     `json:"top_k"`
		RepetitionPenalty *float64 `json:"repetition_penalty"`
		PresencePenalty   *float64 `json:"presence_penalty"`
		FrequencyPenalty  *float64 `json:"frequency_penalty"`
		Seed              *int     `json:"seed"`
		MaxAttempts       *int     `json:"max_attempts"`
		MaxRetries        *int     `json:"max_retries"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.MaxNewTokens != nil {
		next.MaxNewTokens = *raw.MaxNewTokens
	} else if raw.MaxTokens != nil {
		next.MaxNewTokens = *raw.MaxTokens
	}
	if raw.Temperature != nil {
		next.Temperature = raw.Temperature
	}
	if raw.TopP != nil {
		next.TopP = raw.TopP
	}
	if raw.TopK != nil {
		next.TopK = raw.TopK
	}
	if raw.RepetitionPenalty != nil {
		next.RepetitionPenalty = raw.RepetitionPenalty
	}
	if raw.PresencePenalty != nil {
		next.PresencePenalty = raw.PresencePenalty
	}
	if raw.FrequencyPenalty != nil {
		next.FrequencyPenalty = raw.FrequencyPenalty
	}
	if raw.Seed != nil {
		next.Seed = raw.Seed
	}
	if raw.MaxAttempts != nil {
		next.MaxAttempts = *raw.MaxAttempts
	} else if raw.MaxRetries != nil {
		next.MaxAttempts = *raw.MaxRetries
	}

	*g = next
	return nil
}

func (o *AuthSecurity) UnmarshalJSON(data []byte) error {
	next := *o
	var raw struct {
		DisablePasswordLogin *bool `json:"disable_password_login"`
		AllowRegister        *bool `json:"allow_register"`
		AllowRegistration    *bool `json:"allow_registration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.DisablePasswordLogin != nil {
		next.DisablePasswordLogin = *raw.DisablePasswordLogin
	}
	if raw.AllowRegister != nil {
		next.AllowRegister = *raw.AllowRegister
	} else if raw.AllowRegistration != nil {
		next.AllowRegister = *raw.AllowRegistration
	}

	*o = next
	return nil
}

func (o *BackupOptions) UnmarshalJSON(data []byte) error {
	next := *o
	var raw struct {
		Enable    *bool   `json:"enable"`
		Enabled   *bool   `json:"enabled"`
		Path      *string `json:"path"`
		KeepCount *int    `json:"keep_count"`
		Keep      *int    `json:"keep"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Enable != nil {
		next.Enable = *raw.Enable
	} else if raw.Enabled != nil {
		next.Enable = *raw.Enabled
	}
	if raw.Path != nil {
		next.Path = strings.TrimSpace(*raw.Path)
	}
	if raw.KeepCount != nil {
		next.KeepCount = *raw.KeepCount
	} else if raw.Keep != nil {
		next.KeepCount = *raw.Keep
	}

	*o = next
	return nil
}
