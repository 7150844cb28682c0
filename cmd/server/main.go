// Package main provides the entry point for the CodexBridge server.
// The server exposes an OpenAI-compatible chat completions API and proxies
// requests to the ChatGPT backend using locally stored Codex CLI credentials.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/codexbridge/codexbridge/internal/api"
	codexauth "github.com/codexbridge/codexbridge/internal/auth/codex"
	"github.com/codexbridge/codexbridge/internal/buildinfo"
	"github.com/codexbridge/codexbridge/internal/config"
	"github.com/codexbridge/codexbridge/internal/logging"
	_ "github.com/codexbridge/codexbridge/internal/translator"
	"github.com/codexbridge/codexbridge/internal/util"
	"github.com/codexbridge/codexbridge/internal/watcher"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

const shutdownTimeout = 10 * time.Second

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// main parses command-line flags, loads configuration and credentials, and
// runs the HTTP server together with the config/auth file watcher until a
// shutdown signal arrives.
func main() {
	fmt.Printf("CodexBridge Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var configPath string
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	configFilePath := configPath
	if configFilePath == "" {
		configFilePath = filepath.Join(wd, "config.yaml")
		bootstrapConfigFile(configFilePath, filepath.Join(wd, "config.example.yaml"))
	}

	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}

	log.Infof("CodexBridge Version: %s, Commit: %s, BuiltAt: %s", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	util.SetLogLevel(cfg)

	resolvedAuthDir, errResolveAuthDir := util.ResolveAuthDir(cfg.AuthDir)
	if errResolveAuthDir != nil {
		log.Errorf("failed to resolve auth directory: %v", errResolveAuthDir)
		return
	}
	cfg.AuthDir = resolvedAuthDir
	if errMkdir := os.MkdirAll(cfg.AuthDir, 0o700); errMkdir != nil {
		log.Errorf("failed to create auth directory %s: %v", cfg.AuthDir, errMkdir)
		return
	}

	store := codexauth.NewCredentialStore(cfg.AuthDir)
	if errLoad := store.Load(); errLoad != nil {
		log.Warnf("no usable Codex credentials in %s: %v", cfg.AuthDir, errLoad)
		log.Warn("run `codex login`, or drop an auth JSON file into the auth directory; the server picks it up without a restart")
	}

	srv := api.NewServer(cfg, store, filepath.Dir(configFilePath))

	fileWatcher, errWatcher := watcher.NewWatcher(configFilePath, cfg.AuthDir, store, srv.ApplyConfig)
	if errWatcher != nil {
		log.Errorf("failed to create file watcher: %v", errWatcher)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Start()
	})
	group.Go(func() error {
		if errStart := fileWatcher.Start(groupCtx); errStart != nil {
			return errStart
		}
		<-groupCtx.Done()
		return fileWatcher.Stop()
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if errWait := group.Wait(); errWait != nil && !errors.Is(errWait, context.Canceled) {
		log.Errorf("server exited with error: %v", errWait)
		os.Exit(1)
	}
	log.Info("codexbridge stopped")
}

// bootstrapConfigFile copies the shipped example configuration into place on
// first run so the server starts with sensible defaults.
func bootstrapConfigFile(dst, example string) {
	if _, errStat := os.Stat(dst); errStat == nil || !errors.Is(errStat, os.ErrNotExist) {
		return
	}
	if _, errStat := os.Stat(example); errStat != nil {
		return
	}
	data, errRead := os.ReadFile(example)
	if errRead != nil {
		log.WithError(errRead).Warn("failed to read example config file")
		return
	}
	if errWrite := os.WriteFile(dst, data, 0o600); errWrite != nil {
		log.WithError(errWrite).Warn("failed to bootstrap config file")
		return
	}
	log.Infof("created %s from %s", dst, example)
}
