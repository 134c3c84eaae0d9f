package model

import "time"

// CredentialsBlob is an opaque per-source credential bundle. The core never
// inspects these keys; only the owning SourceAdapter parses them at its own
// construction.
type CredentialsBlob map[string]string

// LLMProvider is the closed set of supported LLMStreamer providers.
type LLMProvider string

const (
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderGemini    LLMProvider = "gemini"
	ProviderOllama    LLMProvider = "ollama"
)

// Settings is the per-user configuration object exposed at GET/POST /settings.
type Settings struct {
	LLMProvider     LLMProvider                `json:"llm_provider"`
	LLMModel        string                     `json:"llm_model"`
	LLMAPIKey       string                     `json:"llm_api_key,omitempty"`
	Credentials     map[SourceId]CredentialsBlob `json:"credentials,omitempty"`
	EnableWebSearch bool                       `json:"enable_web_search"`
	UseStreaming    bool                       `json:"use_streaming"`
	EnabledSources  []SourceId                 `json:"enabled_sources"`
}

// Turn is one user/bot exchange persisted to the transcript store.
type Turn struct {
	UserMessage string     `json:"user_message"`
	BotResponse string     `json:"bot_response"`
	Sources     []SourceId `json:"sources"`
	UsedSources []SourceId `json:"used_sources"`
	Timestamp   time.Time  `json:"timestamp"`
}
