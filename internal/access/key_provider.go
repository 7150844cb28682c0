package access

import (
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/codexbridge/codexbridge/internal/config"
)

// configKeyProviderName identifies the provider backed by the api-keys list
// in the configuration file.
const configKeyProviderName = "config-api-key"

// keyProvider authenticates requests against a fixed API key set. Keys are
// accepted from the Authorization bearer header, the x-api-key header, or the
// key/auth_token query parameters.
type keyProvider struct {
	keys map[string]struct{}
}

// NewKeyProvider builds a provider for the given keys. Returns nil when no
// non-empty keys remain after normalization.
func NewKeyProvider(keys []string) Provider {
	keySet := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		keySet[trimmedKey] = struct{}{}
	}
	if len(keySet) == 0 {
		return nil
	}
	return &keyProvider{keys: keySet}
}

func (p *keyProvider) Identifier() string { return configKeyProviderName }

func (p *keyProvider) Authenticate(_ context.Context, r *http.Request) (*Result, *AuthError) {
	if p == nil || len(p.keys) == 0 {
		return nil, NewNotHandledError()
	}

	authHeader := r.Header.Get("Authorization")
	apiKeyHeader := r.Header.Get("X-Api-Key")
	queryKey := ""
	queryAuthToken := ""
	if r.URL != nil {
		queryKey = r.URL.Query().Get("key")
		queryAuthToken = r.URL.Query().Get("auth_token")
	}
	if authHeader == "" && apiKeyHeader == "" && queryKey == "" && queryAuthToken == "" {
		return nil, NewNoCredentialsError()
	}

	candidates := []struct {
		value  string
		source string
	}{
		{extractBearerToken(authHeader), "authorization"},
		{apiKeyHeader, "x-api-key"},
		{queryKey, "query-key"},
		{queryAuthToken, "query-auth-token"},
	}

	for _, candidate := range candidates {
		if candidate.value == "" {
			continue
		}
		if _, ok := p.keys[candidate.value]; ok {
			return &Result{
				Provider:  p.Identifier(),
				Principal: candidate.value,
				Metadata: map[string]string{
					"source": candidate.source,
				},
			}, nil
		}
	}

	return nil, NewInvalidCredentialError()
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return header
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return header
	}
	return strings.TrimSpace(parts[1])
}

// ApplyConfig rebuilds the manager's provider list from the configuration.
// An empty api-keys list clears all providers, leaving the server open.
func ApplyConfig(manager *Manager, cfg *config.Config) {
	if manager == nil {
		return
	}
	if cfg == nil {
		manager.SetProviders(nil)
		return
	}
	provider := NewKeyProvider(cfg.APIKeys)
	if provider == nil {
		manager.SetProviders(nil)
		log.Debug("request auth disabled: no api-keys configured")
		return
	}
	manager.SetProviders([]Provider{provider})
	log.Debugf("request auth enabled with %d configured api key(s)", len(cfg.APIKeys))
}
