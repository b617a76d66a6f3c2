package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/wargabot/pkg/config"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// BuildFunc creates a provider bound to a single credential.
type BuildFunc func(cfg *config.Config, cred config.CredentialConfig) (LLMProvider, error)

var (
	factoryMu       sync.RWMutex
	factories       = map[string]BuildFunc{}
	registrationErr error
)

func RegisterFactory(name string, build BuildFunc) {
	name = strings.ToLower(strings.TrimSpace(name))
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if name == "" {
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: factory name is required"))
		return
	}
	if build == nil {
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: factory build func is required"))
		return
	}
	factories[name] = build
}

func SupportedProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	providers := make([]string, 0, len(factories))
	for name := range factories {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}

// ProviderNameFor resolves the provider for a credential: the credential's
// own provider, else the global default, else OpenRouter.
func ProviderNameFor(cfg *config.Config, cred config.CredentialConfig) string {
	if name := strings.ToLower(strings.TrimSpace(cred.Provider)); name != "" {
		return name
	}
	if cfg != nil {
		if name := strings.ToLower(strings.TrimSpace(cfg.Providers.Provider)); name != "" {
			return name
		}
	}
	return ProviderOpenRouter
}

func CreateProvider(cfg *config.Config, cred config.CredentialConfig) (LLMProvider, error) {
	name := ProviderNameFor(cfg, cred)

	factoryMu.RLock()
	if registrationErr != nil {
		err := registrationErr
		factoryMu.RUnlock()
		return nil, fmt.Errorf("provider registration failed: %w", err)
	}
	build, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q: supported providers are %s", name, strings.Join(SupportedProviders(), ", "))
	}
	return build(cfg, cred)
}

func apiBaseFor(cfg *config.Config, cred config.CredentialConfig, fallback string) string {
	if base := strings.TrimSpace(cred.APIBase); base != "" {
		return base
	}
	if cfg != nil && strings.EqualFold(ProviderNameFor(cfg, cred), strings.TrimSpace(cfg.Providers.Provider)) {
		if base := strings.TrimSpace(cfg.Providers.APIBase); base != "" {
			return base
		}
	}
	return fallback
}

// credentialAuth picks the key source (env or inline) and how the key is
// presented (bearer or named header).
func credentialAuth(cred config.CredentialConfig) AuthStrategy {
	var source TokenSource
	if name := strings.TrimSpace(cred.APIKeyEnv); name != "" {
		source = NewEnvTokenSource(name)
	} else {
		source = NewStaticTokenSource(cred.APIKey, credentialSource(cred))
	}
	if header := strings.TrimSpace(cred.AuthHeader); header != "" {
		return NewHeaderKeyAuth(header, source)
	}
	return NewAPIKeyAuth(source)
}

func credentialSource(cred config.CredentialConfig) string {
	if id := strings.TrimSpace(cred.ID); id != "" {
		return "providers.credentials[" + id + "].api_key"
	}
	return "providers.credentials.api_key"
}
