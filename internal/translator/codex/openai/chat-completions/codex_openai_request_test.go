package chat_completions

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestConvertRequestWrapsStringContent(t *testing.T) {
	rawJSON := []byte(`{"model":"gpt-5.2-xhigh","messages":[{"role":"user","content":"Hello!"}]}`)
	out := string(ConvertOpenAIRequestToCodex("gpt-5.2", rawJSON, false))

	if got := gjson.Get(out, "model").String(); got != "gpt-5.2" {
		t.Errorf("Expected model 'gpt-5.2', got: %s", got)
	}
	if got := gjson.Get(out, "instructions").String(); got != defaultInstructions {
		t.Errorf("Expected default instructions, got: %s", got)
	}
	if got := gjson.Get(out, "input.#").Int(); got != 1 {
		t.Fatalf("Expected 1 input item, got %d", got)
	}
	if got := gjson.Get(out, "input.0.type").String(); got != "message" {
		t.Errorf("Expected input item type 'message', got: %s", got)
	}
	if got := gjson.Get(out, "input.0.role").String(); got != "user" {
		t.Errorf("Expected input item role 'user', got: %s", got)
	}
	if got := gjson.Get(out, "input.0.content.0.type").String(); got != "input_text" {
		t.Errorf("Expected content part type 'input_text', got: %s", got)
	}
	if got := gjson.Get(out, "input.0.content.0.text").String(); got != "Hello!" {
		t.Errorf("Expected content part text 'Hello!', got: %s", got)
	}
	if got := gjson.Get(out, "store"); !got.Exists() || got.Bool() {
		t.Errorf("Expected store to be false, got: %v", got.Raw)
	}
	if got := gjson.Get(out, "stream"); !got.Exists() || got.Bool() {
		t.Errorf("Expected stream to be false, got: %v", got.Raw)
	}
	// Reasoning configuration is applied later from the resolved effort level.
	if gjson.Get(out, "reasoning").Exists() {
		t.Errorf("Expected no reasoning field, got: %s", gjson.Get(out, "reasoning").Raw)
	}
}

func TestConvertRequestStringAndArrayContentIdentical(t *testing.T) {
	fromString := []byte(`{"model":"gpt-5.2","messages":[{"role":"user","content":"Hello!"}]}`)
	fromArray := []byte(`{"model":"gpt-5.2","messages":[{"role":"user","content":[{"type":"text","text":"Hello!"}]}]}`)

	outString := string(ConvertOpenAIRequestToCodex("gpt-5.2", fromString, false))
	outArray := string(ConvertOpenAIRequestToCodex("gpt-5.2", fromArray, false))

	if gjson.Get(outString, "input").Raw != gjson.Get(outArray, "input").Raw {
		t.Errorf("Expected identical input for string and array content:\n%s\n%s",
			gjson.Get(outString, "input").Raw, gjson.Get(outArray, "input").Raw)
	}
}

func TestConvertRequestLeadingSystemBecomesInstructions(t *testing.T) {
	rawJSON := []byte(`{"model":"gpt-5.2","messages":[
		{"role":"system","content":"Answer in French."},
		{"role":"user","content":"Hi"},
		{"role":"system","content":"Be brief."}
	]}`)
	out := string(ConvertOpenAIRequestToCodex("gpt-5.2", rawJSON, false))

	if got := gjson.Get(out, "instructions").String(); got != "Answer in French." {
		t.Errorf("Expected leading system message as instructions, got: %s", got)
	}
	if got := gjson.Get(out, "input.#").Int(); got != 2 {
		t.Fatalf("Expected 2 input items, got %d", got)
	}
	if got := gjson.Get(out, "input.0.role").String(); got != "user" {
		t.Errorf("Expected first input item role 'user', got: %s", got)
	}
	// Only the leading system message is hoisted; later ones remain input items.
	if got := gjson.Get(out, "input.1.role").String(); got != "system" {
		t.Errorf("Expected second input item role 'system', got: %s", got)
	}
	if got := gjson.Get(out, "input.1.content.0.text").String(); got != "Be brief." {
		t.Errorf("Expected second system message text preserved, got: %s", got)
	}
}

func TestConvertRequestLeadingSystemArrayContent(t *testing.T) {
	rawJSON := []byte(`{"model":"gpt-5.2","messages":[
		{"role":"system","content":[{"type":"text","text":"Answer"},{"type":"text","text":"briefly."}]},
		{"role":"user","content":"Hi"}
	]}`)
	out := string(ConvertOpenAIRequestToCodex("gpt-5.2", rawJSON, false))

	if got := gjson.Get(out, "instructions").String(); got != "Answer briefly." {
		t.Errorf("Expected flattened system text as instructions, got: %s", got)
	}
	if got := gjson.Get(out, "input.#").Int(); got != 1 {
		t.Errorf("Expected 1 input item, got %d", got)
	}
}

func TestConvertRequestUnknownPartPassesThrough(t *testing.T) {
	rawJSON := []byte(`{"model":"gpt-5.2","messages":[{"role":"user","content":[
		{"type":"text","text":"look at this"},
		{"type":"input_image","image_url":"data:image/png;base64,AAAA"}
	]}]}`)
	out := string(ConvertOpenAIRequestToCodex("gpt-5.2", rawJSON, false))

	if got := gjson.Get(out, "input.0.content.#").Int(); got != 2 {
		t.Fatalf("Expected 2 content parts, got %d", got)
	}
	if got := gjson.Get(out, "input.0.content.0.type").String(); got != "input_text" {
		t.Errorf("Expected text part renamed to 'input_text', got: %s", got)
	}
	if got := gjson.Get(out, "input.0.content.1.type").String(); got != "input_image" {
		t.Errorf("Expected unknown part type preserved, got: %s", got)
	}
	if got := gjson.Get(out, "input.0.content.1.image_url").String(); got != "data:image/png;base64,AAAA" {
		t.Errorf("Expected unknown part payload preserved, got: %s", got)
	}
}

func TestConvertRequestToolsPassThrough(t *testing.T) {
	rawJSON := []byte(`{"model":"gpt-5.2","messages":[{"role":"user","content":"hi"}],
		"tools":[{"type":"function","function":{"name":"get_weather","parameters":{"type":"object"}}}]}`)
	out := string(ConvertOpenAIRequestToCodex("gpt-5.2", rawJSON, false))

	if got := gjson.Get(out, "tools.0.function.name").String(); got != "get_weather" {
		t.Errorf("Expected tool declaration passed through, got: %s", gjson.Get(out, "tools").Raw)
	}
	if got := gjson.Get(out, "tool_choice").String(); got != "auto" {
		t.Errorf("Expected tool_choice default 'auto', got: %s", got)
	}
}

func TestConvertRequestToolChoicePassThrough(t *testing.T) {
	rawJSON := []byte(`{"model":"gpt-5.2","messages":[{"role":"user","content":"hi"}],
		"tools":[{"type":"function","function":{"name":"get_weather"}}],
		"tool_choice":{"type":"function","function":{"name":"get_weather"}}}`)
	out := string(ConvertOpenAIRequestToCodex("gpt-5.2", rawJSON, false))

	if got := gjson.Get(out, "tool_choice.function.name").String(); got != "get_weather" {
		t.Errorf("Expected explicit tool_choice passed through, got: %s", gjson.Get(out, "tool_choice").Raw)
	}
}

func TestConvertRequestNoToolsOmitsToolChoice(t *testing.T) {
	rawJSON := []byte(`{"model":"gpt-5.2","messages":[{"role":"user","content":"hi"}]}`)
	out := string(ConvertOpenAIRequestToCodex("gpt-5.2", rawJSON, false))

	if got := gjson.Get(out, "tools").Raw; got != "[]" {
		t.Errorf("Expected empty tools array, got: %s", got)
	}
	if gjson.Get(out, "tool_choice").Exists() {
		t.Errorf("Expected tool_choice omitted without tools, got: %s", gjson.Get(out, "tool_choice").Raw)
	}
}

func TestConvertRequestStreamFlag(t *testing.T) {
	rawJSON := []byte(`{"model":"gpt-5.2","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	out := string(ConvertOpenAIRequestToCodex("gpt-5.2", rawJSON, true))

	if got := gjson.Get(out, "stream"); !got.Exists() || !got.Bool() {
		t.Errorf("Expected stream true, got: %v", got.Raw)
	}
}
