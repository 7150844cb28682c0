package chat_completions

import (
	"context"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestStreamThreeEventsProduceThreeChunksAndDone(t *testing.T) {
	ctx := context.Background()
	var param any
	var out []string

	events := [][]byte{
		[]byte(`data: {"type":"response.created","response":{"id":"resp_1","created_at":1700000000}}`),
		[]byte(`data: {"type":"response.output_text.delta","delta":"Hello!"}`),
		[]byte(`data: {"type":"response.completed","response":{"status":"completed"}}`),
	}
	for _, event := range events {
		out = append(out, ConvertCodexResponseToOpenAI(ctx, "gpt-5.2-xhigh", nil, nil, event, &param)...)
	}

	if len(out) != 4 {
		t.Fatalf("Expected 3 chunks plus [DONE], got %d: %v", len(out), out)
	}

	// Leading chunk announces the assistant role with empty content.
	role := gjson.Get(out[0], "choices.0.delta.role")
	content := gjson.Get(out[0], "choices.0.delta.content")
	if role.String() != "assistant" {
		t.Errorf("Expected leading chunk role 'assistant', got: %s", role.String())
	}
	if !content.Exists() || content.String() != "" {
		t.Errorf("Expected leading chunk empty content, got: %v", content.Raw)
	}

	if got := gjson.Get(out[1], "choices.0.delta.content").String(); got != "Hello!" {
		t.Errorf("Expected delta content 'Hello!', got: %s", got)
	}
	if got := gjson.Get(out[2], "choices.0.finish_reason").String(); got != "stop" {
		t.Errorf("Expected final chunk finish_reason 'stop', got: %s", got)
	}
	if out[3] != "[DONE]" {
		t.Errorf("Expected terminal [DONE] sentinel, got: %s", out[3])
	}

	for i := 0; i < 3; i++ {
		if got := gjson.Get(out[i], "model").String(); got != "gpt-5.2-xhigh" {
			t.Errorf("Expected chunk %d to echo requested model, got: %s", i, got)
		}
		if got := gjson.Get(out[i], "object").String(); got != "chat.completion.chunk" {
			t.Errorf("Expected chunk %d object 'chat.completion.chunk', got: %s", i, got)
		}
		if got := gjson.Get(out[i], "created").Int(); got != 1700000000 {
			t.Errorf("Expected chunk %d created from response.created, got: %d", i, got)
		}
	}
}

func TestStreamDeltasAreIncremental(t *testing.T) {
	ctx := context.Background()
	var param any

	first := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.output_text.delta","delta":"Hel"}`), &param)
	second := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.output_text.delta","delta":"lo"}`), &param)

	// Without a created event, the first delta also announces the role.
	if len(first) != 2 {
		t.Fatalf("Expected role chunk plus delta chunk, got %d", len(first))
	}
	if got := gjson.Get(first[0], "choices.0.delta.role").String(); got != "assistant" {
		t.Errorf("Expected role announcement first, got: %s", first[0])
	}
	if got := gjson.Get(first[1], "choices.0.delta.content").String(); got != "Hel" {
		t.Errorf("Expected first delta 'Hel', got: %s", got)
	}
	if len(second) != 1 {
		t.Fatalf("Expected single delta chunk, got %d", len(second))
	}
	if got := gjson.Get(second[0], "choices.0.delta.content").String(); got != "lo" {
		t.Errorf("Expected second delta 'lo' and never the accumulated text, got: %s", got)
	}
}

func TestStreamUnknownEventsIgnored(t *testing.T) {
	ctx := context.Background()
	var param any

	out := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.in_progress","response":{}}`), &param)
	if len(out) != 0 {
		t.Errorf("Expected unrecognized event to be ignored, got: %v", out)
	}
}

func TestStreamFramingLinesDiscarded(t *testing.T) {
	ctx := context.Background()
	var param any

	for _, line := range []string{"", ": keep-alive", "event: response.output_text.delta", "data: [DONE]", "[DONE]"} {
		out := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil, []byte(line), &param)
		if len(out) != 0 {
			t.Errorf("Expected framing line %q to be discarded, got: %v", line, out)
		}
	}
}

func TestStreamErrorEventEmitsSingleErrorChunkWithoutDone(t *testing.T) {
	ctx := context.Background()
	var param any

	out := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.failed","response":{"error":{"message":"quota exhausted"}}}`), &param)
	if len(out) != 1 {
		t.Fatalf("Expected a single error chunk, got %d: %v", len(out), out)
	}
	if msg := gjson.Get(out[0], "error.message").String(); !strings.Contains(msg, "quota exhausted") {
		t.Errorf("Expected error message to carry the failure, got: %s", msg)
	}
	if got := gjson.Get(out[0], "error.code").String(); got != "internal_error" {
		t.Errorf("Expected error code 'internal_error', got: %s", got)
	}

	// The stream is terminated: no further chunks, and no [DONE].
	after := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.output_text.delta","delta":"late"}`), &param)
	if len(after) != 0 {
		t.Errorf("Expected no chunks after failure, got: %v", after)
	}
}

func TestStreamUnparseablePayloadFailsStream(t *testing.T) {
	ctx := context.Background()
	var param any

	out := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`<html><body>Just a moment...</body></html>`), &param)
	if len(out) != 1 {
		t.Fatalf("Expected a single error chunk, got %d: %v", len(out), out)
	}
	if !gjson.Get(out[0], "error.message").Exists() {
		t.Errorf("Expected error-shaped chunk, got: %s", out[0])
	}

	var param2 any
	out2 := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.created",`), &param2)
	if len(out2) != 1 || !gjson.Get(out2[0], "error.message").Exists() {
		t.Errorf("Expected truncated JSON payload to fail the stream, got: %v", out2)
	}
}

func TestStreamIncompleteMapsToLength(t *testing.T) {
	ctx := context.Background()
	var param any

	ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.output_text.delta","delta":"truncat"}`), &param)
	out := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.completed","response":{"status":"incomplete"}}`), &param)

	if len(out) != 2 || out[1] != "[DONE]" {
		t.Fatalf("Expected final chunk plus [DONE], got: %v", out)
	}
	if got := gjson.Get(out[0], "choices.0.finish_reason").String(); got != "length" {
		t.Errorf("Expected finish_reason 'length' for incomplete response, got: %s", got)
	}
}

func TestStreamUsageOnFinalChunk(t *testing.T) {
	ctx := context.Background()
	var param any

	out := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.completed","response":{"status":"completed","usage":{"input_tokens":12,"output_tokens":34,"total_tokens":46}}}`), &param)

	// Degenerate stream: role chunk, final chunk, [DONE].
	if len(out) != 3 {
		t.Fatalf("Expected 3 emissions, got %d: %v", len(out), out)
	}
	final := out[1]
	if got := gjson.Get(final, "usage.prompt_tokens").Int(); got != 12 {
		t.Errorf("Expected prompt_tokens 12, got: %d", got)
	}
	if got := gjson.Get(final, "usage.completion_tokens").Int(); got != 34 {
		t.Errorf("Expected completion_tokens 34, got: %d", got)
	}
	if got := gjson.Get(final, "usage.total_tokens").Int(); got != 46 {
		t.Errorf("Expected total_tokens 46, got: %d", got)
	}
}

func TestStreamToolCallEvents(t *testing.T) {
	ctx := context.Background()
	var param any
	var out []string

	events := [][]byte{
		[]byte(`data: {"type":"response.created","response":{"id":"resp_1","created_at":1700000000}}`),
		[]byte(`data: {"type":"response.output_item.added","item":{"type":"function_call","call_id":"call_1","name":"get_weather"}}`),
		[]byte(`data: {"type":"response.function_call_arguments.delta","delta":"{\"city\":"}`),
		[]byte(`data: {"type":"response.function_call_arguments.delta","delta":"\"Paris\"}"}`),
		[]byte(`data: {"type":"response.function_call_arguments.done","arguments":"{\"city\":\"Paris\"}"}`),
		[]byte(`data: {"type":"response.output_item.done","item":{"type":"function_call","call_id":"call_1","name":"get_weather","arguments":"{\"city\":\"Paris\"}"}}`),
		[]byte(`data: {"type":"response.completed","response":{"status":"completed"}}`),
	}
	for _, event := range events {
		out = append(out, ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil, event, &param)...)
	}

	// role, announce, two argument deltas, final, [DONE]; the done events are
	// absorbed because the call was announced and arguments were streamed.
	if len(out) != 6 {
		t.Fatalf("Expected 6 emissions, got %d: %v", len(out), out)
	}
	if got := gjson.Get(out[1], "choices.0.delta.tool_calls.0.function.name").String(); got != "get_weather" {
		t.Errorf("Expected announced tool call name, got: %s", out[1])
	}
	if got := gjson.Get(out[1], "choices.0.delta.tool_calls.0.id").String(); got != "call_1" {
		t.Errorf("Expected announced tool call id, got: %s", out[1])
	}
	args := gjson.Get(out[2], "choices.0.delta.tool_calls.0.function.arguments").String() +
		gjson.Get(out[3], "choices.0.delta.tool_calls.0.function.arguments").String()
	if args != `{"city":"Paris"}` {
		t.Errorf("Expected streamed arguments to reassemble, got: %s", args)
	}
	if got := gjson.Get(out[4], "choices.0.finish_reason").String(); got != "tool_calls" {
		t.Errorf("Expected finish_reason 'tool_calls', got: %s", got)
	}
	if out[5] != "[DONE]" {
		t.Errorf("Expected terminal [DONE], got: %s", out[5])
	}
}

func TestStreamWholeItemFallbackWithoutDeltas(t *testing.T) {
	ctx := context.Background()
	var param any

	out := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.output_item.done","item":{"type":"message","content":[{"type":"output_text","text":"full answer"}]}}`), &param)

	if len(out) != 2 {
		t.Fatalf("Expected role chunk plus content chunk, got %d: %v", len(out), out)
	}
	if got := gjson.Get(out[1], "choices.0.delta.content").String(); got != "full answer" {
		t.Errorf("Expected whole-item text emitted once, got: %s", got)
	}

	// When deltas were seen, the completed item must not re-emit its text.
	var param2 any
	ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.output_text.delta","delta":"full answer"}`), &param2)
	dup := ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil,
		[]byte(`data: {"type":"response.output_item.done","item":{"type":"message","content":[{"type":"output_text","text":"full answer"}]}}`), &param2)
	if len(dup) != 0 {
		t.Errorf("Expected no duplicate emission after deltas, got: %v", dup)
	}
}

func TestStreamingMatchesNonStreaming(t *testing.T) {
	ctx := context.Background()
	completedEvent := `{"type":"response.completed","response":{"id":"resp_1","created_at":1700000000,"status":"completed","output":[{"type":"message","content":[{"type":"output_text","text":"Hello, world!"}]}]}}`

	var param any
	var streamed []string
	events := [][]byte{
		[]byte(`data: {"type":"response.created","response":{"id":"resp_1","created_at":1700000000}}`),
		[]byte(`data: {"type":"response.output_text.delta","delta":"Hello, "}`),
		[]byte(`data: {"type":"response.output_text.delta","delta":"world!"}`),
		[]byte("data: " + completedEvent),
	}
	for _, event := range events {
		streamed = append(streamed, ConvertCodexResponseToOpenAI(ctx, "gpt-5.2", nil, nil, event, &param)...)
	}

	var accumulated string
	for _, chunk := range streamed {
		if chunk == "[DONE]" {
			continue
		}
		accumulated += gjson.Get(chunk, "choices.0.delta.content").String()
	}

	var nonStreamParam any
	single := ConvertCodexResponseToOpenAINonStream(ctx, "gpt-5.2", nil, nil, []byte(completedEvent), &nonStreamParam)
	if content := gjson.Get(single, "choices.0.message.content").String(); content != accumulated {
		t.Errorf("Expected streamed deltas %q to equal non-streaming content %q", accumulated, content)
	}
}

func TestNonStreamConcatenatesAllTextItems(t *testing.T) {
	ctx := context.Background()
	rawJSON := []byte(`{"id":"resp_1","status":"completed","created_at":1700000000,"output":[
		{"type":"message","content":[{"type":"output_text","text":"Hello, "},{"type":"output_text","text":"wo"}]},
		{"type":"message","content":[{"type":"output_text","text":"rld!"}]}
	],"usage":{"input_tokens":10,"output_tokens":5,"total_tokens":15}}`)

	var param any
	out := ConvertCodexResponseToOpenAINonStream(ctx, "gpt-5.2-high", nil, nil, rawJSON, &param)

	if got := gjson.Get(out, "choices.0.message.content").String(); got != "Hello, world!" {
		t.Errorf("Expected all text items concatenated in order, got: %s", got)
	}
	if got := gjson.Get(out, "choices.0.message.role").String(); got != "assistant" {
		t.Errorf("Expected assistant role, got: %s", got)
	}
	if got := gjson.Get(out, "choices.0.finish_reason").String(); got != "stop" {
		t.Errorf("Expected finish_reason 'stop', got: %s", got)
	}
	if got := gjson.Get(out, "model").String(); got != "gpt-5.2-high" {
		t.Errorf("Expected requested model echoed, got: %s", got)
	}
	if got := gjson.Get(out, "object").String(); got != "chat.completion" {
		t.Errorf("Expected object 'chat.completion', got: %s", got)
	}
	if got := gjson.Get(out, "id").String(); !strings.HasPrefix(got, "chatcmpl-") {
		t.Errorf("Expected chatcmpl id, got: %s", got)
	}
	if got := gjson.Get(out, "created").Int(); got != 1700000000 {
		t.Errorf("Expected created from response, got: %d", got)
	}
	if got := gjson.Get(out, "usage.prompt_tokens").Int(); got != 10 {
		t.Errorf("Expected prompt_tokens passthrough, got: %d", got)
	}
	if got := gjson.Get(out, "usage.completion_tokens").Int(); got != 5 {
		t.Errorf("Expected completion_tokens passthrough, got: %d", got)
	}
}

func TestNonStreamUsageOmittedWhenAbsent(t *testing.T) {
	ctx := context.Background()
	rawJSON := []byte(`{"status":"completed","output":[{"type":"message","content":[{"type":"output_text","text":"hi"}]}]}`)

	var param any
	out := ConvertCodexResponseToOpenAINonStream(ctx, "gpt-5.2", nil, nil, rawJSON, &param)
	if gjson.Get(out, "usage").Exists() {
		t.Errorf("Expected usage omitted when upstream supplies none, got: %s", gjson.Get(out, "usage").Raw)
	}
}

func TestNonStreamFinishReasonMapping(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		status string
		want   string
	}{
		{"completed", "completed", "stop"},
		{"incomplete maps to length", "incomplete", "length"},
		{"unknown fails open to stop", "something-new", "stop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rawJSON := []byte(`{"status":"` + tt.status + `","output":[{"type":"message","content":[{"type":"output_text","text":"x"}]}]}`)
			var param any
			out := ConvertCodexResponseToOpenAINonStream(ctx, "gpt-5.2", nil, nil, rawJSON, &param)
			if got := gjson.Get(out, "choices.0.finish_reason").String(); got != tt.want {
				t.Errorf("status %q: expected finish_reason %q, got %q", tt.status, tt.want, got)
			}
		})
	}
}

func TestNonStreamToolCalls(t *testing.T) {
	ctx := context.Background()
	rawJSON := []byte(`{"status":"completed","output":[
		{"type":"function_call","call_id":"call_1","name":"get_weather","arguments":"{\"city\":\"Paris\"}"}
	]}`)

	var param any
	out := ConvertCodexResponseToOpenAINonStream(ctx, "gpt-5.2", nil, nil, rawJSON, &param)

	if got := gjson.Get(out, "choices.0.message.tool_calls.0.function.name").String(); got != "get_weather" {
		t.Errorf("Expected tool call carried over, got: %s", out)
	}
	if got := gjson.Get(out, "choices.0.message.tool_calls.0.id").String(); got != "call_1" {
		t.Errorf("Expected call id carried over, got: %s", out)
	}
	if got := gjson.Get(out, "choices.0.finish_reason").String(); got != "tool_calls" {
		t.Errorf("Expected finish_reason 'tool_calls', got: %s", got)
	}
}

func TestNonStreamUnrecognizablePayloadReturnsEmpty(t *testing.T) {
	ctx := context.Background()

	var param any
	if out := ConvertCodexResponseToOpenAINonStream(ctx, "gpt-5.2", nil, nil, []byte(`{"foo":1}`), &param); out != "" {
		t.Errorf("Expected empty result for unrecognizable payload, got: %s", out)
	}
	var param2 any
	if out := ConvertCodexResponseToOpenAINonStream(ctx, "gpt-5.2", nil, nil, []byte(`<html></html>`), &param2); out != "" {
		t.Errorf("Expected empty result for non-JSON payload, got: %s", out)
	}
}
