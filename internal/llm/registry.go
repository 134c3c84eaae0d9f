package llm

import (
	"fmt"
	"net/http"

	"github.com/connexus-ai/raqa-orchestrator/internal/breaker"
	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// New builds the Streamer for a Settings.LLMProvider choice, wrapped in a
// ResilientStreamer keyed on the provider name so each provider family
// trips its own breaker independently.
func New(provider model.LLMProvider, httpClient *http.Client, gcpProject, gcpLocation string, breakers *breaker.Registry) (Streamer, error) {
	var inner Streamer
	var name ProviderName

	switch provider {
	case model.ProviderGemini:
		name = ProviderGoogleGemini
		inner = NewGeminiStreamer(httpClient, gcpProject, gcpLocation)
	case model.ProviderOpenAI:
		name = ProviderOpenAICompatible
		inner = NewOpenAIStreamer(httpClient)
	case model.ProviderAnthropic:
		name = ProviderAnthropic
		inner = NewAnthropicStreamer(httpClient)
	case model.ProviderOllama:
		name = ProviderOllamaLocal
		inner = NewOllamaStreamer(httpClient)
	default:
		return nil, fmt.Errorf("llm.New: unsupported provider %q", provider)
	}

	return NewResilientStreamer(inner, breakers.For(string(name))), nil
}
