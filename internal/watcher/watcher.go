// Package watcher watches the config file and the Codex auth directory and
// triggers hot reloads. It supports cross-platform fsnotify event handling.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	codexauth "github.com/codexbridge/codexbridge/internal/auth/codex"
	"github.com/codexbridge/codexbridge/internal/config"
)

const (
	// replaceCheckDelay is a short delay to allow atomic replace (rename) to settle
	// before deciding whether a Remove event indicates a real deletion.
	replaceCheckDelay        = 50 * time.Millisecond
	configReloadDebounce     = 150 * time.Millisecond
	authRemoveDebounceWindow = 1 * time.Second
)

// Watcher manages file watching for the configuration file and the
// authentication directory backing the Codex credential store.
type Watcher struct {
	configPath        string
	authDir           string
	store             *codexauth.CredentialStore
	applyConfig       func(*config.Config)
	watcher           *fsnotify.Watcher
	mu                sync.RWMutex
	lastAuthHashes    map[string]string
	lastRemoveTimes   map[string]time.Time
	lastConfigHash    string
	configReloadMu    sync.Mutex
	configReloadTimer *time.Timer
}

// NewWatcher creates a new file watcher instance. Config changes are delivered
// through applyConfig; auth file changes trigger a rescan of the credential store.
func NewWatcher(configPath, authDir string, store *codexauth.CredentialStore, applyConfig func(*config.Config)) (*Watcher, error) {
	fsWatcher, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}
	return &Watcher{
		configPath:     configPath,
		authDir:        authDir,
		store:          store,
		applyConfig:    applyConfig,
		watcher:        fsWatcher,
		lastAuthHashes: make(map[string]string),
	}, nil
}

// Start begins watching the configuration file and authentication directory.
func (w *Watcher) Start(ctx context.Context) error {
	if errAddConfig := w.watcher.Add(w.configPath); errAddConfig != nil {
		log.Errorf("failed to watch config file %s: %v", w.configPath, errAddConfig)
		return errAddConfig
	}
	log.Debugf("watching config file: %s", w.configPath)

	if errAddAuthDir := w.watcher.Add(w.authDir); errAddAuthDir != nil {
		log.Errorf("failed to watch auth directory %s: %v", w.authDir, errAddAuthDir)
		return errAddAuthDir
	}
	log.Debugf("watching auth directory: %s", w.authDir)

	w.primeAuthHashes()

	go w.processEvents(ctx)
	return nil
}

// Stop stops the file watcher.
func (w *Watcher) Stop() error {
	w.stopConfigReloadTimer()
	return w.watcher.Close()
}

// primeAuthHashes records the hashes of the auth files present at startup so
// touch events without content changes do not trigger credential rescans.
func (w *Watcher) primeAuthHashes() {
	entries, errRead := os.ReadDir(w.authDir)
	if errRead != nil {
		log.WithError(errRead).Debugf("failed to enumerate auth directory %s", w.authDir)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(w.authDir, entry.Name())
		data, errFile := os.ReadFile(path)
		if errFile != nil || len(data) == 0 {
			continue
		}
		sum := sha256.Sum256(data)
		w.lastAuthHashes[w.normalizeAuthPath(path)] = hex.EncodeToString(sum[:])
	}
}
