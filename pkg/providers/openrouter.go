package providers

import (
	"github.com/dotsetgreg/wargabot/pkg/config"
)

const (
	defaultOpenRouterAPIBase = "https://openrouter.ai/api/v1"
	defaultGeminiAPIBase     = "https://generativelanguage.googleapis.com/v1beta/openai"
)

func init() {
	RegisterFactory(ProviderOpenRouter, newOpenRouterProvider)
	RegisterFactory(ProviderGemini, newGeminiProvider)
}

func newOpenRouterProvider(cfg *config.Config, cred config.CredentialConfig) (LLMProvider, error) {
	auth := credentialAuth(cred)
	headers := map[string]string{"X-Title": "WargaBot"}
	if cfg != nil && cfg.Assistant.Name != "" {
		headers["X-Title"] = cfg.Assistant.Name
	}
	return newChatCompletionsProvider(
		ProviderOpenRouter,
		apiBaseFor(cfg, cred, defaultOpenRouterAPIBase),
		cred.Proxy,
		auth,
		headers,
	)
}

// Gemini exposes an OpenAI-compatible chat completions surface that accepts
// the API key as a bearer token, or as x-goog-api-key via auth_header.
func newGeminiProvider(cfg *config.Config, cred config.CredentialConfig) (LLMProvider, error) {
	auth := credentialAuth(cred)
	return newChatCompletionsProvider(
		ProviderGemini,
		apiBaseFor(cfg, cred, defaultGeminiAPIBase),
		cred.Proxy,
		auth,
		nil,
	)
}
