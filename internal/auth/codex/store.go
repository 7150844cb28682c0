package codex

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// AuthFileName is the canonical credential file written by the Codex CLI.
const AuthFileName = "auth.json"

// CredentialStore loads the active upstream credentials from an auth directory
// and keeps them swappable at runtime. Reads are concurrent-safe so in-flight
// requests always observe a consistent credential set.
type CredentialStore struct {
	dir string

	mu      sync.RWMutex
	current *Credentials
}

// NewCredentialStore creates a store over the given auth directory. Call Load
// before serving requests.
func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{dir: dir}
}

// Dir returns the auth directory this store watches.
func (s *CredentialStore) Dir() string {
	return s.dir
}

// Load scans the auth directory and swaps in the first usable credential file.
// The canonical auth.json is preferred; other .json files are considered in
// lexical order. Existing credentials are kept when the rescan finds nothing,
// so a transient empty directory does not take down in-flight traffic.
func (s *CredentialStore) Load() error {
	creds, err := s.scan()
	if err != nil {
		s.mu.RLock()
		hasCurrent := s.current != nil
		s.mu.RUnlock()
		if hasCurrent {
			log.Warnf("credential rescan failed, keeping previous credentials: %v", err)
			return nil
		}
		return err
	}

	s.mu.Lock()
	previous := s.current
	s.current = creds
	s.mu.Unlock()

	if previous == nil || previous.Path != creds.Path || previous.BearerToken() != creds.BearerToken() {
		authType := "oauth"
		if creds.AccessToken == "" {
			authType = "api-key"
		}
		fields := log.Fields{
			"file": filepath.Base(creds.Path),
			"auth": authType,
		}
		if creds.Email != "" {
			fields["account"] = creds.Email
		}
		log.WithFields(fields).Info("codex credentials loaded")
	}
	return nil
}

// Current returns the active credentials, or an error when none are loaded.
func (s *CredentialStore) Current() (*Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, fmt.Errorf("codex auth: no credentials loaded from %s", s.dir)
	}
	return s.current, nil
}

func (s *CredentialStore) scan() (*Credentials, error) {
	canonical := filepath.Join(s.dir, AuthFileName)
	if _, err := os.Stat(canonical); err == nil {
		if creds, errLoad := LoadFromFile(canonical); errLoad == nil {
			return creds, nil
		} else {
			log.Debugf("skipping %s: %v", canonical, errLoad)
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("codex auth: read auth directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || entry.Name() == AuthFileName {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(s.dir, name)
		creds, errLoad := LoadFromFile(path)
		if errLoad != nil {
			log.Debugf("skipping %s: %v", path, errLoad)
			continue
		}
		return creds, nil
	}
	return nil, fmt.Errorf("codex auth: no usable credential file in %s", s.dir)
}
