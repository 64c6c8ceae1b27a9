package ai

// Purpose selects which per-purpose model assignment a generation call
// resolves against. Each pipeline stage carries its own assignment so an
// operator can point outline work at a cheap model and prose at a strong one.
type Purpose string

const (
	PurposeOutline    Purpose = "outline"
	PurposeCharacters Purpose = "characters"
	PurposeChapters   Purpose = "chapters"
	PurposeDrafts     Purpose = "drafts"
)

// Result is the outcome of a single generation call.
type Result struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type modelInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Created int64  `json:"created,omitempty"`
}

type providerModelsResponse struct {
	ProviderID   string      `json:"providerId"`
	ProviderName string      `json:"providerName"`
	ProviderType string      `json:"providerType"`
	Models       []modelInfo `json:"models"`
	Error        string      `json:"error,omitempty"`
}

// providerView is the masked listing shape; API keys never leave the server.
type providerView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Endpoint     string `json:"endpoint,omitempty"`
	DefaultModel string `json:"defaultModel"`
	Enabled      bool   `json:"enabled"`
	APIKeySet    bool   `json:"apiKeySet"`
}

type fetchModelsDTO struct {
	ProviderID string `json:"providerId"`
	Type       string `json:"type"`
	APIKey     string `json:"apiKey"`
	Endpoint   string `json:"endpoint"`
}

type testConnectionDTO struct {
	ProviderID string `json:"providerId"`
	Type       string `json:"type"`
	APIKey     string `json:"apiKey"`
	Endpoint   string `json:"endpoint"`
	Model      string `json:"model"`
}
