// Package handlers provides core API handler functionality for the CodexBridge server.
// It includes the shared OpenAI-style error envelope, the streaming forwarder with
// keep-alive heartbeats, and the per-request context plumbing that ties client
// disconnects to upstream cancellation and captures payloads for request logging.
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/context"

	codexauth "github.com/codexbridge/codexbridge/internal/auth/codex"
	"github.com/codexbridge/codexbridge/internal/config"
	"github.com/codexbridge/codexbridge/internal/interfaces"
	"github.com/codexbridge/codexbridge/internal/logging"
	"github.com/codexbridge/codexbridge/internal/registry"
	"github.com/codexbridge/codexbridge/internal/runtime/executor"
)

// ErrorResponse represents a standard error response format for the API.
// It contains a single ErrorDetail field.
type ErrorResponse struct {
	// Error contains detailed information about the error that occurred.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail provides specific information about an error that occurred.
// It includes a human-readable message, an error type, the request parameter
// at fault, and an optional stable error code.
type ErrorDetail struct {
	// Message is a human-readable message providing more details about the error.
	Message string `json:"message"`

	// Type is the category of error that occurred (e.g., "invalid_request_error").
	Type string `json:"type"`

	// Param names the request parameter the error refers to, if applicable.
	Param string `json:"param,omitempty"`

	// Code is a short code identifying the error, if applicable.
	Code string `json:"code,omitempty"`
}

const defaultStreamingKeepAliveSeconds = 0

// BuildErrorResponseBody builds an OpenAI-compatible JSON error response body.
// If errText is already valid JSON, it is returned as-is to preserve upstream error payloads.
func BuildErrorResponseBody(status int, errText string) []byte {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	if strings.TrimSpace(errText) == "" {
		errText = http.StatusText(status)
	}

	trimmed := strings.TrimSpace(errText)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return []byte(trimmed)
	}

	errType := "invalid_request_error"
	var code string
	switch status {
	case http.StatusUnauthorized:
		errType = "authentication_error"
		code = "invalid_api_key"
	case http.StatusForbidden:
		errType = "permission_error"
		code = "insufficient_quota"
	case http.StatusTooManyRequests:
		errType = "rate_limit_error"
		code = "rate_limit_exceeded"
	case http.StatusNotFound:
		errType = "invalid_request_error"
		code = "model_not_found"
	default:
		if status >= http.StatusInternalServerError {
			errType = "server_error"
			code = "internal_server_error"
		}
	}

	payload, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{
			Message: errText,
			Type:    errType,
			Code:    code,
		},
	})
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":{"message":%q,"type":"server_error","code":"internal_server_error"}}`, errText))
	}
	return payload
}

// BuildProxyErrorBody builds the terminal error payload written when a stream
// fails after SSE headers are already committed. The shape matches the error
// chunk the response translation emits for in-band upstream failures.
func BuildProxyErrorBody(desc string) []byte {
	payload, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{
			Message: fmt.Sprintf("Proxy error: %s", desc),
			Type:    "proxy_error",
			Code:    "internal_error",
		},
	})
	if err != nil {
		return []byte(`{"error":{"message":"Proxy error: stream failed","type":"proxy_error","code":"internal_error"}}`)
	}
	return payload
}

// StreamingKeepAliveInterval returns the SSE keep-alive interval for this server.
// Returning 0 disables keep-alives (default when unset).
func StreamingKeepAliveInterval(cfg *config.Config) time.Duration {
	seconds := defaultStreamingKeepAliveSeconds
	if cfg != nil {
		seconds = cfg.Streaming.KeepAliveSeconds
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// NewErrorMessage converts an upstream execution failure into an ErrorMessage,
// relaying the upstream HTTP status when the error carries one and falling back
// to 500 otherwise.
func NewErrorMessage(err error) *interfaces.ErrorMessage {
	status := statusFromError(err)
	if status == 0 {
		status = http.StatusInternalServerError
	}
	var addon http.Header
	if headerErr, ok := err.(interface{ Headers() http.Header }); ok && headerErr != nil {
		addon = headerErr.Headers()
	}
	return &interfaces.ErrorMessage{StatusCode: status, Error: err, Addon: addon}
}

func statusFromError(err error) int {
	if err == nil {
		return 0
	}
	if se, ok := err.(interface{ StatusCode() int }); ok && se != nil {
		if code := se.StatusCode(); code > 0 {
			return code
		}
	}
	return 0
}

// BaseAPIHandler contains the dependencies shared by API endpoint handlers:
// the active configuration, the model router, the credential store, and the
// upstream executor. Configuration and router are swapped atomically on reload
// so in-flight requests always observe a consistent snapshot.
type BaseAPIHandler struct {
	// Store serves the active upstream credentials.
	Store *codexauth.CredentialStore

	mu       sync.RWMutex
	cfg      *config.Config
	router   *registry.Router
	executor *executor.CodexExecutor
}

// NewBaseAPIHandlers creates a new API handlers instance over the given
// configuration, model router, and credential store.
func NewBaseAPIHandlers(cfg *config.Config, router *registry.Router, store *codexauth.CredentialStore) *BaseAPIHandler {
	return &BaseAPIHandler{
		Store:    store,
		cfg:      cfg,
		router:   router,
		executor: executor.NewCodexExecutor(cfg),
	}
}

// Config returns the active configuration snapshot.
func (h *BaseAPIHandler) Config() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Router returns the active model router snapshot.
func (h *BaseAPIHandler) Router() *registry.Router {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.router
}

// Executor returns the upstream executor bound to the active configuration.
func (h *BaseAPIHandler) Executor() *executor.CodexExecutor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.executor
}

// UpdateConfig swaps in a new configuration and model router, rebinding the
// executor to the new settings. The watcher calls this when the configuration
// file or the allowlist changes.
func (h *BaseAPIHandler) UpdateConfig(cfg *config.Config, router *registry.Router) {
	h.mu.Lock()
	h.cfg = cfg
	h.router = router
	h.executor = executor.NewCodexExecutor(cfg)
	h.mu.Unlock()
}

// APIHandlerCancelFunc is a function type for canceling an API handler's context.
// It can optionally accept parameters, which are used for logging the response.
type APIHandlerCancelFunc func(params ...interface{})

// GetContextWithCancel creates a new context with cancellation capabilities.
// The Gin context is embedded for downstream layers, the client's request
// context is bridged in so a disconnect cancels upstream work, and the returned
// cancel function captures the final payload for request logging.
//
// Parameters:
//   - c: The Gin context of the current request.
//   - ctx: The parent context (caller values/deadlines are preserved; request context adds cancellation and request ID).
//
// Returns:
//   - context.Context: The new context with cancellation and embedded values.
//   - APIHandlerCancelFunc: A function to cancel the context and log the response.
func (h *BaseAPIHandler) GetContextWithCancel(c *gin.Context, ctx context.Context) (context.Context, APIHandlerCancelFunc) {
	parentCtx := ctx
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	var requestCtx context.Context
	if c != nil && c.Request != nil {
		requestCtx = c.Request.Context()
	}

	if requestCtx != nil && logging.GetRequestID(parentCtx) == "" {
		if requestID := logging.GetRequestID(requestCtx); requestID != "" {
			parentCtx = logging.WithRequestID(parentCtx, requestID)
		} else if requestID := logging.GetGinRequestID(c); requestID != "" {
			parentCtx = logging.WithRequestID(parentCtx, requestID)
		}
	}
	newCtx, cancel := context.WithCancel(parentCtx)
	if requestCtx != nil && requestCtx != parentCtx {
		go func() {
			select {
			case <-requestCtx.Done():
				cancel()
			case <-newCtx.Done():
			}
		}()
	}
	newCtx = context.WithValue(newCtx, "gin", c)
	return newCtx, func(params ...interface{}) {
		if h.Config().RequestLog && len(params) == 1 {
			if existing, exists := c.Get("API_RESPONSE"); exists {
				if existingBytes, ok := existing.([]byte); ok && len(bytes.TrimSpace(existingBytes)) > 0 {
					switch params[0].(type) {
					case error, string:
						cancel()
						return
					}
				}
			}

			var payload []byte
			switch data := params[0].(type) {
			case []byte:
				payload = data
			case error:
				if data != nil {
					payload = []byte(data.Error())
				}
			case string:
				payload = []byte(data)
			}
			if len(payload) > 0 {
				appendAPIResponse(c, payload)
			}
		}

		cancel()
	}
}

// appendAPIResponse preserves any previously captured API response and appends new data.
func appendAPIResponse(c *gin.Context, data []byte) {
	if c == nil || len(data) == 0 {
		return
	}

	// Capture timestamp on first API response
	if _, exists := c.Get("API_RESPONSE_TIMESTAMP"); !exists {
		c.Set("API_RESPONSE_TIMESTAMP", time.Now())
	}

	if existing, exists := c.Get("API_RESPONSE"); exists {
		if existingBytes, ok := existing.([]byte); ok && len(existingBytes) > 0 {
			combined := make([]byte, 0, len(existingBytes)+len(data)+1)
			combined = append(combined, existingBytes...)
			if existingBytes[len(existingBytes)-1] != '\n' {
				combined = append(combined, '\n')
			}
			combined = append(combined, data...)
			c.Set("API_RESPONSE", combined)
			return
		}
	}

	c.Set("API_RESPONSE", bytes.Clone(data))
}

// WriteErrorResponse writes an error message to the response writer using the HTTP status embedded in the message.
func (h *BaseAPIHandler) WriteErrorResponse(c *gin.Context, msg *interfaces.ErrorMessage) {
	status := http.StatusInternalServerError
	if msg != nil && msg.StatusCode > 0 {
		status = msg.StatusCode
	}
	if msg != nil && msg.Addon != nil {
		for key, values := range msg.Addon {
			if len(values) == 0 {
				continue
			}
			c.Writer.Header().Del(key)
			for _, value := range values {
				c.Writer.Header().Add(key, value)
			}
		}
	}

	errText := http.StatusText(status)
	if msg != nil && msg.Error != nil {
		if v := strings.TrimSpace(msg.Error.Error()); v != "" {
			errText = v
		}
	}

	body := BuildErrorResponseBody(status, errText)
	appendAPIResponse(c, body)

	if !c.Writer.Written() {
		c.Writer.Header().Set("Content-Type", "application/json")
	}
	c.Status(status)
	_, _ = c.Writer.Write(body)
}

// LoggingAPIResponseError records an upstream error message in the Gin context
// so the request logging middleware can include it in the log file.
func (h *BaseAPIHandler) LoggingAPIResponseError(ctx context.Context, err *interfaces.ErrorMessage) {
	if h.Config().RequestLog {
		if ginContext, ok := ctx.Value("gin").(*gin.Context); ok {
			if apiResponseErrors, isExist := ginContext.Get("API_RESPONSE_ERROR"); isExist {
				if slicesAPIResponseError, isOk := apiResponseErrors.([]*interfaces.ErrorMessage); isOk {
					slicesAPIResponseError = append(slicesAPIResponseError, err)
					ginContext.Set("API_RESPONSE_ERROR", slicesAPIResponseError)
				}
			} else {
				// Create new response data entry
				ginContext.Set("API_RESPONSE_ERROR", []*interfaces.ErrorMessage{err})
			}
		}
	}
}

// StreamForwardOptions configures how ForwardStream writes chunks, terminal
// errors, and keep-alive heartbeats to the client.
type StreamForwardOptions struct {
	// KeepAliveInterval overrides the configured streaming keep-alive interval.
	// If nil, the configured default is used. If set to <= 0, keep-alives are disabled.
	KeepAliveInterval *time.Duration

	// WriteChunk writes a single data chunk to the response body. It should not flush.
	WriteChunk func(chunk []byte)

	// WriteTerminalError writes an error payload to the response body when streaming
	// fails after headers have already been committed. It should not flush.
	WriteTerminalError func(err error)

	// WriteKeepAlive optionally writes a keep-alive heartbeat. It should not flush.
	// When nil, a standard SSE comment heartbeat is used.
	WriteKeepAlive func()
}

// ForwardStream relays translated chunks to the client until the chunk channel
// closes, a terminal error arrives, or the client disconnects. The translation
// layer owns the [DONE] sentinel, so a clean channel close writes nothing more.
func (h *BaseAPIHandler) ForwardStream(c *gin.Context, flusher http.Flusher, cancel func(error), chunks <-chan executor.StreamChunk, opts StreamForwardOptions) {
	if c == nil {
		return
	}
	if cancel == nil {
		return
	}

	writeChunk := opts.WriteChunk
	if writeChunk == nil {
		writeChunk = func([]byte) {}
	}

	writeKeepAlive := opts.WriteKeepAlive
	if writeKeepAlive == nil {
		writeKeepAlive = func() {
			_, _ = c.Writer.Write([]byte(": keep-alive\n\n"))
		}
	}

	keepAliveInterval := StreamingKeepAliveInterval(h.Config())
	if opts.KeepAliveInterval != nil {
		keepAliveInterval = *opts.KeepAliveInterval
	}
	var keepAlive *time.Ticker
	var keepAliveC <-chan time.Time
	if keepAliveInterval > 0 {
		keepAlive = time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()
		keepAliveC = keepAlive.C
	}

	for {
		select {
		case <-c.Request.Context().Done():
			cancel(c.Request.Context().Err())
			return
		case chunk, ok := <-chunks:
			if !ok {
				flusher.Flush()
				cancel(nil)
				return
			}
			if chunk.Err != nil {
				if opts.WriteTerminalError != nil {
					opts.WriteTerminalError(chunk.Err)
				}
				flusher.Flush()
				cancel(chunk.Err)
				return
			}
			writeChunk(chunk.Payload)
			flusher.Flush()
		case <-keepAliveC:
			writeKeepAlive()
			flusher.Flush()
		}
	}
}
