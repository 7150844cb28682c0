// Package api provides the HTTP server for the CodexBridge service.
// It wires the Gin engine with logging, recovery, CORS, and request
// authentication middleware, registers the OpenAI-compatible routes, and
// applies configuration reloads to the running server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/codexbridge/codexbridge/internal/access"
	"github.com/codexbridge/codexbridge/internal/api/handlers"
	"github.com/codexbridge/codexbridge/internal/api/handlers/openai"
	"github.com/codexbridge/codexbridge/internal/api/middleware"
	codexauth "github.com/codexbridge/codexbridge/internal/auth/codex"
	"github.com/codexbridge/codexbridge/internal/config"
	"github.com/codexbridge/codexbridge/internal/logging"
	"github.com/codexbridge/codexbridge/internal/registry"
	"github.com/codexbridge/codexbridge/internal/util"
)

// Server hosts the OpenAI-compatible bridge API. It owns the Gin engine, the
// underlying HTTP listener, and the pieces that configuration reloads swap out
// at runtime.
type Server struct {
	engine        *gin.Engine
	httpServer    *http.Server
	baseHandler   *handlers.BaseAPIHandler
	openAIHandler *openai.OpenAIAPIHandler
	accessManager *access.Manager
	requestLogger *logging.FileRequestLogger

	cfgMu sync.RWMutex
	cfg   *config.Config
}

// NewServer creates a fully wired API server for the given configuration and
// credential store. configDir is the directory of the active configuration
// file; request logs keep temp artifacts beside it.
func NewServer(cfg *config.Config, store *codexauth.CredentialStore, configDir string) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	requestLogger := logging.NewFileRequestLogger(cfg.RequestLog, logging.ResolveLogDirectory(cfg), configDir, cfg.ErrorLogsMaxFiles)

	baseHandler := handlers.NewBaseAPIHandlers(cfg, registry.NewRouter(cfg.AllowedModels), store)
	accessManager := access.NewManager()
	access.ApplyConfig(accessManager, cfg)

	s := &Server{
		engine:        gin.New(),
		baseHandler:   baseHandler,
		openAIHandler: openai.NewOpenAIAPIHandler(baseHandler),
		accessManager: accessManager,
		requestLogger: requestLogger,
		cfg:           cfg,
	}

	_ = s.engine.SetTrustedProxies(nil)
	s.engine.Use(
		logging.GinLogrusLogger(),
		logging.GinLogrusRecovery(),
		corsMiddleware(),
		middleware.RequestLoggingMiddleware(requestLogger),
	)
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.engine,
	}
	return s
}

// BaseHandler exposes the shared handler state, primarily for the watcher to
// push configuration updates through.
func (s *Server) BaseHandler() *handlers.BaseAPIHandler { return s.baseHandler }

// registerRoutes declares the HTTP surface. The health probe stays open;
// everything else sits behind request authentication. The unversioned aliases
// serve clients that configure the bare host as their base URL.
func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.openAIHandler.Health)

	authMiddleware := s.authMiddleware()

	s.engine.GET("/models", authMiddleware, s.openAIHandler.OpenAIModels)
	s.engine.POST("/chat/completions", authMiddleware, s.openAIHandler.ChatCompletions)

	v1 := s.engine.Group("/v1")
	v1.Use(authMiddleware)
	{
		v1.GET("/models", s.openAIHandler.OpenAIModels)
		v1.POST("/chat/completions", s.openAIHandler.ChatCompletions)
	}
}

// authMiddleware rejects requests that fail API key authentication. With no
// api-keys configured the access manager allows everything through.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, authErr := s.accessManager.Authenticate(c.Request.Context(), c.Request)
		if authErr != nil {
			c.AbortWithStatusJSON(authErr.HTTPStatusCode(), handlers.ErrorResponse{
				Error: handlers.ErrorDetail{
					Message: authErr.Error(),
					Type:    "authentication_error",
					Code:    "invalid_api_key",
				},
			})
			return
		}
		c.Next()
	}
}

// corsMiddleware answers preflight requests and stamps permissive CORS headers
// on every response. It runs before the handlers so upstream header relay
// never overrides these values.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if requestHeaders := c.GetHeader("Access-Control-Request-Headers"); requestHeaders != "" {
			// Echo whatever the client intends to send, which covers SDK
			// fingerprint headers like x-stainless-os.
			c.Header("Access-Control-Allow-Headers", requestHeaders)
		} else {
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Api-Key")
		}
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Start runs the HTTP listener until Shutdown is called. It blocks and returns
// nil after a graceful shutdown.
func (s *Server) Start() error {
	log.Infof("codexbridge server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Config returns the active configuration snapshot.
func (s *Server) Config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// ApplyConfig installs a new configuration snapshot across the server: model
// router and executor binding, access keys, request logging, log level, and
// log output. The listener port cannot change without a restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.cfgMu.Lock()
	oldCfg := s.cfg
	s.cfg = cfg
	s.cfgMu.Unlock()

	s.baseHandler.UpdateConfig(cfg, registry.NewRouter(cfg.AllowedModels))
	access.ApplyConfig(s.accessManager, cfg)
	s.requestLogger.SetEnabled(cfg.RequestLog)
	s.requestLogger.SetErrorLogsMaxFiles(cfg.ErrorLogsMaxFiles)
	util.SetLogLevel(cfg)
	if oldCfg == nil || oldCfg.LoggingToFile != cfg.LoggingToFile || oldCfg.LogsMaxTotalSizeMB != cfg.LogsMaxTotalSizeMB {
		if err := logging.ConfigureLogOutput(cfg); err != nil {
			log.Errorf("failed to reconfigure log output: %v", err)
		}
	}
	if oldCfg != nil && oldCfg.Port != cfg.Port {
		log.Warnf("port change from %d to %d requires a restart", oldCfg.Port, cfg.Port)
	}
	log.Info("configuration reloaded")
}
