// Package codex provides credential management for the ChatGPT Codex backend.
// It reads the auth.json files written by the Codex CLI, resolves the bearer
// token and account identifier used for upstream requests, and keeps the
// active credentials hot-swappable while the service is running.
package codex

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// TokenData carries the OAuth tokens persisted by the Codex CLI.
type TokenData struct {
	// IDToken is the JWT ID token containing user claims and identity information.
	IDToken string `json:"id_token,omitempty"`
	// AccessToken is the OAuth2 access token used for authenticating API requests.
	AccessToken string `json:"access_token"`
	// AccountID is the ChatGPT account identifier associated with this token.
	AccountID string `json:"account_id"`
	// RefreshToken is used by the CLI to obtain new access tokens; the bridge
	// only carries it through.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Credentials is the resolved authentication material for upstream requests.
type Credentials struct {
	// AccessToken authenticates as a ChatGPT subscription account.
	AccessToken string
	// AccountID accompanies the access token in the chatgpt-account-id header.
	AccountID string
	// APIKey is the platform API key fallback used when no access token exists.
	APIKey string
	// Email identifies the account, for logs only.
	Email string
	// Expire is the access token expiry in RFC 3339, when the ID token carries one.
	Expire string
	// Path is the file these credentials were loaded from.
	Path string
}

// BearerToken returns the value placed in the Authorization header, preferring
// the subscription access token over the API key.
func (c *Credentials) BearerToken() string {
	if c == nil {
		return ""
	}
	if c.AccessToken != "" {
		return c.AccessToken
	}
	return c.APIKey
}

// credentialFile accepts both credential layouts found on disk: the Codex CLI
// auth.json with its nested tokens object, and the flat shape with top-level
// access_token/account_id/api_key fields.
type credentialFile struct {
	OpenAIAPIKey string     `json:"OPENAI_API_KEY"`
	APIKey       string     `json:"api_key"`
	AccessToken  string     `json:"access_token"`
	AccountID    string     `json:"account_id"`
	Email        string     `json:"email"`
	Tokens       *TokenData `json:"tokens"`
}

// LoadFromFile reads and resolves credentials from a single JSON file.
// It returns an error when the file cannot be read or parsed, or when it
// contains neither an access token nor an API key.
func LoadFromFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codex auth: read credential file: %w", err)
	}

	var file credentialFile
	if err = json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("codex auth: parse credential file %s: %w", path, err)
	}

	creds := &Credentials{
		AccessToken: strings.TrimSpace(file.AccessToken),
		AccountID:   strings.TrimSpace(file.AccountID),
		APIKey:      strings.TrimSpace(file.OpenAIAPIKey),
		Email:       strings.TrimSpace(file.Email),
		Path:        path,
	}
	if file.Tokens != nil {
		if token := strings.TrimSpace(file.Tokens.AccessToken); token != "" {
			creds.AccessToken = token
		}
		if account := strings.TrimSpace(file.Tokens.AccountID); account != "" {
			creds.AccountID = account
		}
		// The CLI often leaves account_id and email blank on disk; the ID
		// token carries both, along with the token expiry.
		if file.Tokens.IDToken != "" {
			if claims, errClaims := ParseJWTToken(file.Tokens.IDToken); errClaims == nil {
				if creds.AccountID == "" {
					creds.AccountID = claims.GetAccountID()
				}
				if creds.Email == "" {
					creds.Email = claims.Email
				}
				if claims.Exp > 0 {
					creds.Expire = time.Unix(claims.Exp, 0).Format(time.RFC3339)
				}
			}
		}
	}
	if creds.APIKey == "" {
		creds.APIKey = strings.TrimSpace(file.APIKey)
	}

	if creds.BearerToken() == "" {
		return nil, fmt.Errorf("codex auth: credential file %s contains neither an access token nor an API key", path)
	}
	return creds, nil
}
