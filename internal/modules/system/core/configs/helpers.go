package configs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/neperienx/bookpipeline/internal/config"
)

func deepMergeJSON(oldVal, newVal interface{}) interface{} {
	oldMap, oldIsMap := oldVal.(map[string]interface{})
	newMap, newIsMap := newVal.(map[string]interface{})
	if oldIsMap && newIsMap {
		out := make(map[string]interface{}, len(oldMap))
		for k, v := range oldMap {
			out[k] = v
		}
		for k, v := range newMap {
			if existing, ok := out[k]; ok {
				out[k] = deepMergeJSON(existing, v)
				continue
			}
			out[k] = v
		}
		return out
	}

	// Arrays should be replaced as a whole.
	if _, ok := newVal.([]interface{}); ok {
		return newVal
	}

	return newVal
}

// maskConfigSecrets returns a copy of cfg with every stored credential
// replaced by the mask placeholder. Empty values stay empty so the admin
// panel can tell "unset" from "set".
func maskConfigSecrets(cfg config.FullConfig) config.FullConfig {
	masked := cfg
	masked.AI.Providers = make([]config.AIProvider, len(cfg.AI.Providers))
	copy(masked.AI.Providers, cfg.AI.Providers)
	for i := range masked.AI.Providers {
		if masked.AI.Providers[i].APIKey != "" {
			masked.AI.Providers[i].APIKey = maskedSecret
		}
	}
	if masked.S3Options.SecretAccessKey != "" {
		masked.S3Options.SecretAccessKey = maskedSecret
	}
	if masked.BarkOptions.Key != "" {
		masked.BarkOptions.Key = maskedSecret
	}
	return masked
}

// restoreMaskedSecrets swaps mask placeholders in a patched config back to
// the currently stored values. Masked keys on providers the current config
// does not know resolve to empty, so the placeholder itself never persists.
func restoreMaskedSecrets(updated, current *config.FullConfig) {
	keysByProviderID := make(map[string]string, len(current.AI.Providers))
	for _, provider := range current.AI.Providers {
		keysByProviderID[provider.ID] = provider.APIKey
	}
	for i := range updated.AI.Providers {
		if updated.AI.Providers[i].APIKey == maskedSecret {
			updated.AI.Providers[i].APIKey = keysByProviderID[updated.AI.Providers[i].ID]
		}
	}
	if updated.S3Options.SecretAccessKey == maskedSecret {
		updated.S3Options.SecretAccessKey = current.S3Options.SecretAccessKey
	}
	if updated.BarkOptions.Key == maskedSecret {
		updated.BarkOptions.Key = current.BarkOptions.Key
	}
}

// validateModelAssignments rejects patches whose per-purpose model
// assignments point at providers that do not exist or are switched off.
func validateModelAssignments(cfg *config.FullConfig) error {
	assignments := []struct {
		name       string
		assignment *config.AIModelAssignment
	}{
		{"outline_model", cfg.AI.OutlineModel},
		{"character_model", cfg.AI.CharacterModel},
		{"chapter_model", cfg.AI.ChapterModel},
		{"draft_model", cfg.AI.DraftModel},
	}
	for _, entry := range assignments {
		if entry.assignment == nil {
			continue
		}
		providerID := strings.TrimSpace(entry.assignment.ProviderID)
		if providerID == "" {
			continue
		}
		provider, ok := findProvider(cfg.AI.Providers, providerID)
		if !ok {
			return fmt.Errorf("%s: %w", entry.name, errUnknownProviderAssignment)
		}
		if !provider.Enabled {
			return fmt.Errorf("%s: %w", entry.name, errDisabledProviderAssignment)
		}
	}
	return nil
}

func findProvider(providers []config.AIProvider, id string) (config.AIProvider, bool) {
	for _, provider := range providers {
		if provider.ID == id {
			return provider, true
		}
	}
	return config.AIProvider{}, false
}

func normalizeConfigSection(key string, v interface{}) interface{} {
	switch key {
	case "generation":
		return normalizeGenerationOptions(v)
	case "ai":
		return normalizeAIConfig(v)
	default:
		return v
	}
}

func normalizeGenerationOptions(v interface{}) interface{} {
	sectionMap, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	if _, exists := sectionMap["max_attempts"]; !exists {
		if legacy, ok := sectionMap["max_retries"]; ok {
			sectionMap["max_attempts"] = legacy
		}
	}
	delete(sectionMap, "max_retries")
	if _, exists := sectionMap["max_new_tokens"]; !exists {
		if legacy, ok := sectionMap["max_tokens"]; ok {
			sectionMap["max_new_tokens"] = legacy
		}
	}
	delete(sectionMap, "max_tokens")
	return sectionMap
}

func normalizeAIConfig(v interface{}) interface{} {
	sectionMap, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	providers, ok := sectionMap["providers"].([]interface{})
	if !ok {
		return sectionMap
	}

	for i, providerRaw := range providers {
		providerMap, ok := providerRaw.(map[string]interface{})
		if !ok {
			continue
		}
		if _, exists := providerMap["endpoint"]; !exists {
			if legacy, ok := providerMap["base_url"]; ok {
				providerMap["endpoint"] = legacy
			}
		}
		delete(providerMap, "base_url")
		providers[i] = providerMap
	}
	sectionMap["providers"] = providers
	return sectionMap
}

func loadFormSchemaTemplate() (map[string]interface{}, error) {
	formSchemaLoadOnce.Do(func() {
		decoded := decodeJSONBytes(formSchemaTemplateRaw)
		if err := json.Unmarshal(decoded, &formSchemaTemplate); err != nil {
			formSchemaLoadErr = err
		}
	})
	if formSchemaLoadErr != nil {
		return nil, formSchemaLoadErr
	}

	raw, err := json.Marshal(formSchemaTemplate)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeJSONBytes(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}

	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})

	if len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
		return utf16ToUTF8(raw[2:], true)
	}

	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		return utf16ToUTF8(raw[2:], false)
	}

	return raw
}

func utf16ToUTF8(raw []byte, littleEndian bool) []byte {
	if len(raw) < 2 {
		return []byte{}
	}
	u16 := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		if littleEndian {
			u16 = append(u16, uint16(raw[i])|uint16(raw[i+1])<<8)
			continue
		}
		u16 = append(u16, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	return []byte(string(utf16.Decode(u16)))
}

func attachAIProviderOptions(schema map[string]interface{}, aiCfg config.AIConfig) {
	options := make([]providerSelectOption, 0, len(aiCfg.Providers))
	seen := map[string]struct{}{}

	addOption := func(id, label string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(label) == "" {
			label = id
		}
		options = append(options, providerSelectOption{Label: label, Value: id})
	}

	for _, provider := range aiCfg.Providers {
		addOption(provider.ID, formatAIProviderLabel(provider))
	}

	// Assignments may point at providers removed from the list; keep them
	// selectable so the admin panel can show what is configured.
	for _, assignment := range []*config.AIModelAssignment{
		aiCfg.OutlineModel,
		aiCfg.CharacterModel,
		aiCfg.ChapterModel,
		aiCfg.DraftModel,
	} {
		if assignment != nil {
			addOption(assignment.ProviderID, assignment.ProviderID)
		}
	}
	if len(options) == 0 {
		return
	}

	groups, ok := schema["groups"].([]interface{})
	if !ok {
		return
	}

	for _, group := range groups {
		groupMap, ok := group.(map[string]interface{})
		if !ok {
			continue
		}
		if strings.TrimSpace(fmt.Sprintf("%v", groupMap["key"])) != "ai" {
			continue
		}

		sections, ok := groupMap["sections"].([]interface{})
		if !ok {
			continue
		}
		for _, section := range sections {
			sectionMap, ok := section.(map[string]interface{})
			if !ok {
				continue
			}
			if strings.TrimSpace(fmt.Sprintf("%v", sectionMap["key"])) != "ai" {
				continue
			}

			fields, ok := sectionMap["fields"].([]interface{})
			if !ok {
				continue
			}
			attachAIProviderOptionsToFields(fields, options)
		}
	}
}

func attachAIProviderOptionsToFields(fields []interface{}, options []providerSelectOption) {
	for _, field := range fields {
		fieldMap, ok := field.(map[string]interface{})
		if !ok {
			continue
		}

		if strings.TrimSpace(fmt.Sprintf("%v", fieldMap["key"])) == "providerId" &&
			strings.TrimSpace(fmt.Sprintf("%v", fieldMap["title"])) == "Provider ID" {
			ui, _ := fieldMap["ui"].(map[string]interface{})
			if ui == nil {
				ui = map[string]interface{}{}
				fieldMap["ui"] = ui
			}

			ui["component"] = "select"
			selectOptions := make([]map[string]interface{}, 0, len(options))
			for _, option := range options {
				selectOptions = append(selectOptions, map[string]interface{}{
					"label": option.Label,
					"value": option.Value,
				})
			}
			ui["options"] = selectOptions
		}

		nestedFields, ok := fieldMap["fields"].([]interface{})
		if !ok {
			continue
		}
		attachAIProviderOptionsToFields(nestedFields, options)
	}
}

func formatAIProviderLabel(provider config.AIProvider) string {
	name := strings.TrimSpace(provider.Name)
	providerType := strings.TrimSpace(provider.Type)
	id := strings.TrimSpace(provider.ID)

	displayName := name
	if providerNameUUIDPattern.MatchString(displayName) {
		displayName = ""
	}

	if displayName != "" && providerType != "" {
		return fmt.Sprintf("%s (%s)", displayName, providerType)
	}
	if displayName != "" {
		return displayName
	}
	if providerType != "" {
		return providerType
	}
	if id != "" {
		return id
	}
	return "Unknown"
}

var optionKeyAliases = map[string]string{
	"site":           "site",
	"url":            "url",
	"auth_security":  "auth_security",
	"security":       "auth_security",
	"ai":             "ai",
	"generation":     "generation",
	"backup_options": "backup_options",
	"backup":         "backup_options",
	"s3_options":     "s3_options",
	"s3":             "s3_options",
	"bark_options":   "bark_options",
	"bark":           "bark_options",
}

func normalizeOptionKey(key string) string {
	snake := camelToSnakeKey(key)
	if alias, ok := optionKeyAliases[snake]; ok {
		return alias
	}
	return snake
}

func normalizeJSONKeys(raw json.RawMessage, keyFn func(string) string) (json.RawMessage, error) {
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid json body")
	}
	normalized := convertMapKeys(data, keyFn)
	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func convertMapKeys(v interface{}, keyFn func(string) string) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[keyFn(k)] = convertMapKeys(child, keyFn)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = convertMapKeys(child, keyFn)
		}
		return out
	case *config.FullConfig:
		if val == nil {
			return nil
		}
		b, _ := json.Marshal(val)
		var m map[string]interface{}
		_ = json.Unmarshal(b, &m)
		return convertMapKeys(m, keyFn)
	case config.FullConfig:
		b, _ := json.Marshal(val)
		var m map[string]interface{}
		_ = json.Unmarshal(b, &m)
		return convertMapKeys(m, keyFn)
	default:
		return val
	}
}

func snakeToCamelKey(s string) string {
	if s == "" {
		return s
	}
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	out := make([]rune, 0, len(s))
	out = append(out, []rune(parts[0])...)
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)
		switch lower {
		case "mb":
			out = append(out, []rune("MB")...)
			continue
		case "ttl":
			out = append(out, []rune("TTL")...)
			continue
		}
		runes := []rune(lower)
		runes[0] = unicode.ToUpper(runes[0])
		out = append(out, runes...)
	}
	return string(out)
}

func camelToSnakeKey(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.TrimSpace(s))
	if len(runes) == 0 {
		return ""
	}
	out := make([]rune, 0, len(runes)+4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower {
					out = append(out, '_')
				}
			}
			out = append(out, unicode.ToLower(r))
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
