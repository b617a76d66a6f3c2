package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dotsetgreg/wargabot/pkg/config"
)

type Tier string

const (
	TierBuiltin Tier = "builtin"
	TierUser    Tier = "user"
)

// Credential is one usable API key bound to its provider. The key itself
// stays inside Provider.
type Credential struct {
	ID       string
	Tier     Tier
	Origin   string
	Provider LLMProvider
}

func (c Credential) String() string {
	return c.ID + "(" + string(c.Tier) + ")"
}

// BuildCredentials materializes the configured credentials in planner
// order: builtin (free tier) first, user-supplied last, config order kept
// within a tier. Credentials that cannot be built are reported but do not
// stop the others.
func BuildCredentials(cfg *config.Config) ([]Credential, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var (
		out  []Credential
		errs []error
	)
	for i, cc := range cfg.Providers.Credentials {
		id := strings.TrimSpace(cc.ID)
		if id == "" {
			id = fmt.Sprintf("cred-%d", i+1)
		}
		provider, err := CreateProvider(cfg, cc)
		if err != nil {
			errs = append(errs, fmt.Errorf("credential %s: %w", id, err))
			continue
		}
		out = append(out, Credential{
			ID:       id,
			Tier:     normalizeTier(cc.Tier),
			Origin:   credentialOrigin(id),
			Provider: provider,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return tierRank(out[i].Tier) < tierRank(out[j].Tier)
	})

	if len(out) == 0 {
		errs = append(errs, fmt.Errorf("no usable provider credentials"))
		return nil, errors.Join(errs...)
	}
	return out, errors.Join(errs...)
}

func normalizeTier(raw string) Tier {
	if strings.EqualFold(strings.TrimSpace(raw), string(TierUser)) {
		return TierUser
	}
	return TierBuiltin
}

func tierRank(t Tier) int {
	if t == TierUser {
		return 1
	}
	return 0
}

func credentialOrigin(id string) string {
	if strings.HasPrefix(id, "env-") {
		return "env"
	}
	return "config"
}
