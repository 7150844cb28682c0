package executor

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	codexauth "github.com/codexbridge/codexbridge/internal/auth/codex"
	"github.com/codexbridge/codexbridge/internal/config"
	"github.com/codexbridge/codexbridge/internal/constant"
	"github.com/codexbridge/codexbridge/internal/registry"
	"github.com/codexbridge/codexbridge/internal/translator/translator"
)

// codexUserAgent mimics the browser profile the backend expects. Requests with
// non-browser agents are answered with interstitial challenge pages.
const codexUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	sseDataPrefix = []byte("data:")
	sseDoneMarker = []byte("[DONE]")
)

// CodexExecutor is a stateless executor for the ChatGPT Codex Responses API.
type CodexExecutor struct {
	cfg *config.Config
}

// NewCodexExecutor creates a new Codex executor.
func NewCodexExecutor(cfg *config.Config) *CodexExecutor { return &CodexExecutor{cfg: cfg} }

// Execute performs a non-streaming chat completion request against the Codex
// backend. The backend replies in SSE framing even for non-streaming calls, so
// the body is aggregated down to its terminal response event before the
// response translation runs.
func (e *CodexExecutor) Execute(ctx context.Context, auth *codexauth.Credentials, req Request) (resp Response, err error) {
	body := buildUpstreamBody(req, false)
	reportTranslatedRequest(ctx, body)
	logPromptTokenEstimate(req.Spec.BaseModel, req.Payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, constant.CodexResponsesURL, bytes.NewReader(body))
	if err != nil {
		return resp, err
	}
	applyCodexHeaders(httpReq, auth)

	httpClient := codexauth.NewChatGPTHttpClient(e.cfg)
	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return resp, err
	}
	reader, err := decodeResponseBody(httpResp.Header.Get("Content-Encoding"), httpResp.Body)
	if err != nil {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("codex executor: close response body error: %v", errClose)
		}
		return resp, err
	}
	defer func() {
		if errClose := reader.Close(); errClose != nil {
			log.Errorf("codex executor: close response body error: %v", errClose)
		}
	}()
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		b, _ := io.ReadAll(reader)
		log.Debugf("codex executor: request error, error status: %d, error message: %s", httpResp.StatusCode, string(b))
		err = statusErr{code: httpResp.StatusCode, msg: string(b)}
		return resp, err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return resp, err
	}
	payload := data
	if isEventStream(httpResp.Header.Get("Content-Type"), data) {
		payload, err = terminalEventPayload(data)
		if err != nil {
			return resp, err
		}
	}
	var param any
	// The response translation gets req.Model, the requested name with any
	// effort suffix, so clients see the identifier they asked for.
	out := translator.ResponseNonStream(ctx, constant.Codex, constant.OpenAI, req.Model, req.Payload, body, payload, &param)
	if out == "" {
		err = statusErr{code: http.StatusBadGateway, msg: "upstream returned an unrecognizable response payload"}
		return resp, err
	}
	resp = Response{Payload: []byte(out), Headers: httpResp.Header.Clone()}
	return resp, nil
}

// ExecuteStream performs a streaming chat completion request against the Codex
// backend. Raw upstream SSE lines are translated record by record; the
// returned channel closes when the upstream stream ends or ctx is canceled.
func (e *CodexExecutor) ExecuteStream(ctx context.Context, auth *codexauth.Credentials, req Request) (_ *StreamResult, err error) {
	body := buildUpstreamBody(req, true)
	reportTranslatedRequest(ctx, body)
	logPromptTokenEstimate(req.Spec.BaseModel, req.Payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, constant.CodexResponsesURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	applyCodexHeaders(httpReq, auth)

	httpClient := codexauth.NewChatGPTHttpClient(e.cfg)
	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	reader, err := decodeResponseBody(httpResp.Header.Get("Content-Encoding"), httpResp.Body)
	if err != nil {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("codex executor: close response body error: %v", errClose)
		}
		return nil, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		b, _ := io.ReadAll(reader)
		log.Debugf("codex executor: request error, error status: %d, error message: %s", httpResp.StatusCode, string(b))
		if errClose := reader.Close(); errClose != nil {
			log.Errorf("codex executor: close response body error: %v", errClose)
		}
		err = statusErr{code: httpResp.StatusCode, msg: string(b)}
		return nil, err
	}
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer func() {
			if errClose := reader.Close(); errClose != nil {
				log.Errorf("codex executor: close response body error: %v", errClose)
			}
		}()
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(nil, 1_048_576) // 1MB
		var param any
		for scanner.Scan() {
			line := scanner.Bytes()
			chunks := translator.Response(ctx, constant.Codex, constant.OpenAI, req.Model, req.Payload, body, bytes.Clone(line), &param)
			for i := range chunks {
				select {
				case out <- StreamChunk{Payload: []byte(chunks[i])}:
				case <-ctx.Done():
					return
				}
			}
		}
		doneChunks := translator.Response(ctx, constant.Codex, constant.OpenAI, req.Model, req.Payload, body, bytes.Clone(sseDoneMarker), &param)
		for i := range doneChunks {
			select {
			case out <- StreamChunk{Payload: []byte(doneChunks[i])}:
			case <-ctx.Done():
				return
			}
		}
		if errScan := scanner.Err(); errScan != nil {
			select {
			case out <- StreamChunk{Err: errScan}:
			case <-ctx.Done():
			}
		}
	}()
	return &StreamResult{Headers: httpResp.Header.Clone(), Chunks: out}, nil
}

// reportTranslatedRequest stores the translated upstream payload on the Gin
// context, when present, so request logs show what was actually sent upstream.
func reportTranslatedRequest(ctx context.Context, body []byte) {
	ginCtx, ok := ctx.Value("gin").(*gin.Context)
	if !ok || ginCtx == nil {
		return
	}
	ginCtx.Set("API_REQUEST", bytes.Clone(body))
}

// buildUpstreamBody translates the inbound chat completions payload into the
// Responses request shape and stamps the resolved reasoning effort onto it.
func buildUpstreamBody(req Request, stream bool) []byte {
	body := translator.Request(constant.OpenAI, constant.Codex, req.Spec.BaseModel, bytes.Clone(req.Payload), stream)
	if req.Spec.Effort == registry.EffortNone {
		return body
	}
	body, err := sjson.SetBytes(body, "reasoning.effort", req.Spec.Effort)
	if err != nil {
		log.Warnf("codex executor: failed to set reasoning effort: %v", err)
	}
	return body
}

// applyCodexHeaders sets the browser-profile and protocol headers the Codex
// backend expects, plus request credentials. Headers match Codex CLI traffic
// for compatibility; each request carries a fresh session id.
func applyCodexHeaders(r *http.Request, auth *codexauth.Credentials) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "text/event-stream")
	r.Header.Set("Accept-Language", "en-US,en;q=0.9")
	r.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	r.Header.Set("User-Agent", codexUserAgent)
	r.Header.Set("Referer", "https://chatgpt.com/")
	r.Header.Set("Origin", "https://chatgpt.com")
	r.Header.Set("Sec-Fetch-Dest", "empty")
	r.Header.Set("Sec-Fetch-Mode", "cors")
	r.Header.Set("Sec-Fetch-Site", "same-origin")
	r.Header.Set("Cache-Control", "no-cache")
	r.Header.Set("Pragma", "no-cache")
	r.Header.Set("DNT", "1")
	r.Header.Set("OpenAI-Beta", "responses=experimental")
	r.Header.Set("originator", "codex_cli_rs")
	r.Header.Set("session_id", uuid.NewString())
	if auth == nil {
		return
	}
	if token := auth.BearerToken(); token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	// The account id pairs with OAuth access tokens only, never API keys.
	if strings.TrimSpace(auth.AccessToken) != "" && strings.TrimSpace(auth.AccountID) != "" {
		r.Header.Set("chatgpt-account-id", auth.AccountID)
	}
}

// isEventStream reports whether an upstream reply uses SSE framing rather than
// a plain JSON document.
func isEventStream(contentType string, data []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/event-stream") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(data), sseDataPrefix)
}

// terminalEventPayload extracts the payload the response translation should
// consume from an aggregated SSE body: the response.completed event itself, or
// the response object of a response.incomplete event. A failed or errored
// stream becomes a bad-gateway error carrying the upstream failure payload.
func terminalEventPayload(data []byte) ([]byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(nil, 1_048_576) // 1MB
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if !bytes.HasPrefix(line, sseDataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(sseDataPrefix):])
		if bytes.Equal(payload, sseDoneMarker) {
			break
		}
		switch gjson.GetBytes(payload, "type").String() {
		case "response.completed":
			return bytes.Clone(payload), nil
		case "response.incomplete":
			if responseResult := gjson.GetBytes(payload, "response"); responseResult.Exists() {
				return []byte(responseResult.Raw), nil
			}
		case "response.failed", "error":
			return nil, statusErr{code: http.StatusBadGateway, msg: string(payload)}
		}
	}
	if errScan := scanner.Err(); errScan != nil {
		return nil, statusErr{code: http.StatusBadGateway, msg: errScan.Error()}
	}
	return nil, statusErr{code: http.StatusBadGateway, msg: "upstream stream ended without a terminal response event"}
}

// decodedBody pairs a decompressing reader with the underlying response body
// so both are released on Close.
type decodedBody struct {
	reader  io.Reader
	closers []io.Closer
}

func (b *decodedBody) Read(p []byte) (int, error) { return b.reader.Read(p) }

func (b *decodedBody) Close() error {
	var firstErr error
	for _, c := range b.closers {
		if errClose := c.Close(); errClose != nil && firstErr == nil {
			firstErr = errClose
		}
	}
	return firstErr
}

// decodeResponseBody wraps the response body with a reader matching its
// Content-Encoding. Setting Accept-Encoding explicitly disables the
// transport's transparent gzip handling, so encoded bodies are decoded here
// for both streaming and aggregated reads.
func decodeResponseBody(contentEncoding string, body io.ReadCloser) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		gzipReader, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("codex executor: failed to create gzip reader: %w", err)
		}
		return &decodedBody{reader: gzipReader, closers: []io.Closer{gzipReader, body}}, nil
	case "deflate":
		flateReader := flate.NewReader(body)
		return &decodedBody{reader: flateReader, closers: []io.Closer{flateReader, body}}, nil
	case "br":
		return &decodedBody{reader: brotli.NewReader(body), closers: []io.Closer{body}}, nil
	case "zstd":
		zstdReader, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("codex executor: failed to create zstd reader: %w", err)
		}
		zstdBody := zstdReader.IOReadCloser()
		return &decodedBody{reader: zstdBody, closers: []io.Closer{zstdBody, body}}, nil
	default:
		return body, nil
	}
}

// logPromptTokenEstimate logs an approximate token count for the inbound
// prompt. The estimate is debug-level observability only and never alters
// request or response payloads.
func logPromptTokenEstimate(model string, payload []byte) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	enc, err := tokenizerForModel(model)
	if err != nil {
		log.Debugf("codex executor: no tokenizer for model %s: %v", model, err)
		return
	}
	count, err := countChatPromptTokens(enc, payload)
	if err != nil {
		log.Debugf("codex executor: token estimate failed for model %s: %v", model, err)
		return
	}
	log.Debugf("codex executor: estimated %d prompt tokens for model %s", count, model)
}
