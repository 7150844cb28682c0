package codex

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCredentialFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFromFileCodexCLIShape(t *testing.T) {
	dir := t.TempDir()
	path := writeCredentialFile(t, dir, "auth.json",
		`{"OPENAI_API_KEY":"sk-test","tokens":{"access_token":"at-123","account_id":"acct-9","refresh_token":"rt-1"}}`)

	creds, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if creds.AccessToken != "at-123" {
		t.Errorf("expected access token from tokens object, got %q", creds.AccessToken)
	}
	if creds.AccountID != "acct-9" {
		t.Errorf("expected account id from tokens object, got %q", creds.AccountID)
	}
	if creds.APIKey != "sk-test" {
		t.Errorf("expected OPENAI_API_KEY captured, got %q", creds.APIKey)
	}
	if creds.BearerToken() != "at-123" {
		t.Errorf("expected access token preferred over API key, got %q", creds.BearerToken())
	}
}

func TestLoadFromFileFlatShape(t *testing.T) {
	dir := t.TempDir()
	path := writeCredentialFile(t, dir, "creds.json",
		`{"access_token":"at-flat","account_id":"acct-flat"}`)

	creds, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if creds.AccessToken != "at-flat" || creds.AccountID != "acct-flat" {
		t.Errorf("expected flat fields resolved, got %+v", creds)
	}
}

func TestLoadFromFileAccountIDFromIDToken(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"email":"user@example.com","exp":1767225600,"https://api.openai.com/auth":{"chatgpt_account_id":"acct-jwt"}}`))
	idToken := "eyJhbGciOiJSUzI1NiJ9." + payload + ".sig"

	dir := t.TempDir()
	path := writeCredentialFile(t, dir, "auth.json",
		`{"tokens":{"access_token":"at-1","id_token":"`+idToken+`"}}`)

	creds, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if creds.AccountID != "acct-jwt" {
		t.Errorf("expected account id recovered from ID token, got %q", creds.AccountID)
	}
	if creds.Email != "user@example.com" {
		t.Errorf("expected email recovered from ID token, got %q", creds.Email)
	}
	if creds.Expire == "" {
		t.Error("expected token expiry recovered from ID token")
	}
}

func TestLoadFromFileAPIKeyOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeCredentialFile(t, dir, "auth.json", `{"api_key":"sk-only"}`)

	creds, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if creds.BearerToken() != "sk-only" {
		t.Errorf("expected API key as bearer fallback, got %q", creds.BearerToken())
	}
}

func TestLoadFromFileRejectsUnusable(t *testing.T) {
	dir := t.TempDir()
	path := writeCredentialFile(t, dir, "auth.json", `{"tokens":{"account_id":"acct"}}`)

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for credential file without token or key")
	} else if !strings.Contains(err.Error(), "neither an access token nor an API key") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCredentialStorePrefersAuthJSON(t *testing.T) {
	dir := t.TempDir()
	writeCredentialFile(t, dir, "aaa.json", `{"access_token":"other","account_id":"acct-other"}`)
	writeCredentialFile(t, dir, "auth.json", `{"tokens":{"access_token":"canonical","account_id":"acct-canon"}}`)

	store := NewCredentialStore(dir)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	creds, err := store.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if creds.AccessToken != "canonical" {
		t.Errorf("expected auth.json preferred, got credentials from %s", creds.Path)
	}
}

func TestCredentialStoreFallsBackToSortedFiles(t *testing.T) {
	dir := t.TempDir()
	writeCredentialFile(t, dir, "broken.json", `{not json`)
	writeCredentialFile(t, dir, "codex-user.json", `{"access_token":"fallback","account_id":"acct"}`)

	store := NewCredentialStore(dir)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	creds, err := store.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if creds.AccessToken != "fallback" {
		t.Errorf("expected first usable file, got %+v", creds)
	}
}

func TestCredentialStoreKeepsPreviousOnFailedRescan(t *testing.T) {
	dir := t.TempDir()
	path := writeCredentialFile(t, dir, "auth.json", `{"access_token":"keep-me","account_id":"acct"}`)

	store := NewCredentialStore(dir)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Load(); err != nil {
		t.Fatalf("rescan should keep previous credentials, got: %v", err)
	}
	creds, err := store.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if creds.AccessToken != "keep-me" {
		t.Errorf("expected previous credentials retained, got %+v", creds)
	}
}

func TestCredentialStoreEmptyDirErrors(t *testing.T) {
	store := NewCredentialStore(t.TempDir())
	if err := store.Load(); err == nil {
		t.Fatal("expected error for empty auth directory")
	}
	if _, err := store.Current(); err == nil {
		t.Fatal("expected error when no credentials are loaded")
	}
}
