package openai

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/codexbridge/codexbridge/internal/api/handlers"
	codexauth "github.com/codexbridge/codexbridge/internal/auth/codex"
	"github.com/codexbridge/codexbridge/internal/config"
	"github.com/codexbridge/codexbridge/internal/registry"
)

func newTestOpenAIHandler(t *testing.T, allowed []string) *OpenAIAPIHandler {
	t.Helper()
	base := handlers.NewBaseAPIHandlers(&config.Config{}, registry.NewRouter(allowed), codexauth.NewCredentialStore(t.TempDir()))
	return NewOpenAIAPIHandler(base)
}

func postChatCompletions(t *testing.T, handler *OpenAIAPIHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler.ChatCompletions(c)
	return recorder
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	handler := newTestOpenAIHandler(t, []string{"gpt-5.2"})
	handler.Health(c)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	parsed := gjson.Parse(recorder.Body.String())
	if got := parsed.Get("status").String(); got != "ok" {
		t.Fatalf("status field = %q, want %q", got, "ok")
	}
	if got := parsed.Get("service").String(); got != "codexbridge" {
		t.Fatalf("service field = %q, want %q", got, "codexbridge")
	}
}

func TestOpenAIModels_ListsBaseAndEffortVariants(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/models", nil)

	handler := newTestOpenAIHandler(t, []string{"gpt-5.2", "gpt-5.3-codex"})
	handler.OpenAIModels(c)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	parsed := gjson.Parse(recorder.Body.String())
	if got := parsed.Get("object").String(); got != "list" {
		t.Fatalf("object = %q, want %q", got, "list")
	}

	data := parsed.Get("data").Array()
	if len(data) != 10 {
		t.Fatalf("model count = %d, want 10 (base plus four variants per allowlist entry)", len(data))
	}

	wantIDs := []string{
		"gpt-5.2", "gpt-5.2-low", "gpt-5.2-medium", "gpt-5.2-high", "gpt-5.2-xhigh",
		"gpt-5.3-codex", "gpt-5.3-codex-low", "gpt-5.3-codex-medium", "gpt-5.3-codex-high", "gpt-5.3-codex-xhigh",
	}
	for i, want := range wantIDs {
		if got := data[i].Get("id").String(); got != want {
			t.Fatalf("data[%d].id = %q, want %q", i, got, want)
		}
	}
	if got := data[0].Get("object").String(); got != "model" {
		t.Fatalf("data[0].object = %q, want %q", got, "model")
	}
	if got := data[0].Get("owned_by").String(); got != "openai" {
		t.Fatalf("data[0].owned_by = %q, want %q", got, "openai")
	}

	// Alias suffixes resolve on input but are never advertised.
	for _, entry := range data {
		id := entry.Get("id").String()
		if strings.HasSuffix(id, "-extra-high") || strings.HasSuffix(id, "-extra_high") {
			t.Fatalf("model listing contains alias entry %q", id)
		}
	}
}

func TestChatCompletions_RejectsMalformedJSON(t *testing.T) {
	handler := newTestOpenAIHandler(t, []string{"gpt-5.2"})
	recorder := postChatCompletions(t, handler, `{"model": "gpt-5.2", "messages": [`)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
	parsed := gjson.Parse(recorder.Body.String())
	if got := parsed.Get("error.code").String(); got != "invalid_json" {
		t.Fatalf("error.code = %q, want %q", got, "invalid_json")
	}
	if got := parsed.Get("error.param").String(); got != "body" {
		t.Fatalf("error.param = %q, want %q", got, "body")
	}
	if got := parsed.Get("error.type").String(); got != "invalid_request_error" {
		t.Fatalf("error.type = %q, want %q", got, "invalid_request_error")
	}
}

func TestChatCompletions_RejectsModelNotAllowed(t *testing.T) {
	handler := newTestOpenAIHandler(t, []string{"gpt-5.2", "gpt-5.3-codex"})
	recorder := postChatCompletions(t, handler, `{"model":"o4-mini","messages":[{"role":"user","content":"hi"}]}`)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
	parsed := gjson.Parse(recorder.Body.String())
	if got := parsed.Get("error.code").String(); got != "model_not_allowed" {
		t.Fatalf("error.code = %q, want %q", got, "model_not_allowed")
	}
	if got := parsed.Get("error.param").String(); got != "model" {
		t.Fatalf("error.param = %q, want %q", got, "model")
	}
	want := "Model 'o4-mini' is not allowed by this proxy. Allowed models: gpt-5.2, gpt-5.3-codex"
	if got := parsed.Get("error.message").String(); got != want {
		t.Fatalf("error.message = %q, want %q", got, want)
	}
}

func TestChatCompletions_RejectsUnknownSuffixOnUnknownBase(t *testing.T) {
	// The suffix is only stripped when the remainder is allowlisted, so an
	// unknown base keeps its suffix in the error message.
	handler := newTestOpenAIHandler(t, []string{"gpt-5.2"})
	recorder := postChatCompletions(t, handler, `{"model":"o4-mini-high","messages":[]}`)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
	parsed := gjson.Parse(recorder.Body.String())
	if got := parsed.Get("error.code").String(); got != "model_not_allowed" {
		t.Fatalf("error.code = %q, want %q", got, "model_not_allowed")
	}
	if !strings.Contains(parsed.Get("error.message").String(), "'o4-mini-high'") {
		t.Fatalf("error.message = %q, want full requested identifier", parsed.Get("error.message").String())
	}
}

func TestChatCompletions_NoCredentialsReturns401(t *testing.T) {
	handler := newTestOpenAIHandler(t, []string{"gpt-5.2"})
	recorder := postChatCompletions(t, handler, `{"model":"gpt-5.2","messages":[{"role":"user","content":"hi"}]}`)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	parsed := gjson.Parse(recorder.Body.String())
	if got := parsed.Get("error.type").String(); got != "authentication_error" {
		t.Fatalf("error.type = %q, want %q", got, "authentication_error")
	}
	if got := parsed.Get("error.code").String(); got != "invalid_api_key" {
		t.Fatalf("error.code = %q, want %q", got, "invalid_api_key")
	}
	if !strings.Contains(parsed.Get("error.message").String(), "no credentials") {
		t.Fatalf("error.message = %q, want credential load failure", parsed.Get("error.message").String())
	}
}

func TestChatCompletions_EffortSuffixResolvesBeforeCredentialCheck(t *testing.T) {
	// A 401 rather than a 400 proves the suffixed identifier passed model
	// resolution, including the extra-high alias forms.
	handler := newTestOpenAIHandler(t, []string{"gpt-5.2"})
	for _, model := range []string{"gpt-5.2-high", "gpt-5.2-xhigh", "gpt-5.2-extra-high", "gpt-5.2-extra_high"} {
		recorder := postChatCompletions(t, handler, `{"model":"`+model+`","messages":[]}`)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("model %q: status = %d, want %d", model, recorder.Code, http.StatusUnauthorized)
		}
	}
}

func TestChatCompletions_StreamingModelNotAllowedStaysJSON(t *testing.T) {
	handler := newTestOpenAIHandler(t, []string{"gpt-5.2"})
	recorder := postChatCompletions(t, handler, `{"model":"o4-mini","stream":true,"messages":[]}`)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
	if ct := recorder.Header().Get("Content-Type"); strings.Contains(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q, want a JSON error response, not SSE", ct)
	}
	if got := gjson.Get(recorder.Body.String(), "error.code").String(); got != "model_not_allowed" {
		t.Fatalf("error.code = %q, want %q", got, "model_not_allowed")
	}
}
