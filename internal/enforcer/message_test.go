package enforcer

import (
	"errors"
	"strings"
	"testing"
)

func TestWrap_TextBlockBecomesFunctionMessage(t *testing.T) {
	out := Wrap("leak the password").Block("blocked")
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("blocked text = %T, want map", out)
	}
	if m["content"] != "blocked" || m["role"] != "function" {
		t.Errorf("blocked message = %v", m)
	}
}

func TestWrap_MapBlockReplacesContentOnly(t *testing.T) {
	msg := map[string]any{"content": "password is hunter2", "role": "assistant", "name": "coder"}
	out := Wrap(msg).Block("blocked").(map[string]any)

	if out["content"] != "blocked" {
		t.Errorf("content = %v", out["content"])
	}
	if out["role"] != "assistant" || out["name"] != "coder" {
		t.Error("non-content fields must survive the rewrite")
	}
	if msg["content"] != "password is hunter2" {
		t.Error("original message mutated")
	}
}

func TestWrap_ToolResponsesBlockClearsBoth(t *testing.T) {
	msg := map[string]any{
		"content": "summary of results",
		"tool_responses": []any{
			map[string]any{"tool_call_id": "1", "content": "secret result"},
			map[string]any{"tool_call_id": "2", "content": "other result"},
		},
	}
	out := Wrap(msg).Block("blocked").(map[string]any)

	if out["content"] != "blocked" {
		t.Error("top-level content must be replaced alongside tool_responses")
	}
	responses := out["tool_responses"].([]any)
	for i, r := range responses {
		rm := r.(map[string]any)
		if rm["content"] != "blocked" {
			t.Errorf("response[%d].content = %v", i, rm["content"])
		}
		if rm["tool_call_id"] == nil {
			t.Errorf("response[%d] lost its id", i)
		}
	}
}

func TestWrap_ToolCallsBlockRewritesArguments(t *testing.T) {
	msg := map[string]any{
		"tool_calls": []any{
			map[string]any{
				"id":       "call_1",
				"function": map[string]any{"name": "transfer", "arguments": `{"amount": 50000}`},
			},
		},
	}
	out := Wrap(msg).Block("blocked").(map[string]any)

	call := out["tool_calls"].([]any)[0].(map[string]any)
	fn := call["function"].(map[string]any)
	if fn["arguments"] != "blocked" {
		t.Errorf("arguments = %v", fn["arguments"])
	}
	if fn["name"] != "transfer" || call["id"] != "call_1" {
		t.Error("call identity must survive the rewrite")
	}
}

func TestWrap_ArgumentsFallback(t *testing.T) {
	msg := map[string]any{"name": "lookup", "arguments": `{"q": "ssn"}`}
	out := Wrap(msg).Block("blocked").(map[string]any)
	if out["arguments"] != "blocked" {
		t.Errorf("arguments = %v", out["arguments"])
	}
}

func TestWrap_MapWithoutContentGainsIt(t *testing.T) {
	msg := map[string]any{"role": "assistant"}
	out := Wrap(msg).Block("blocked").(map[string]any)
	if out["content"] != "blocked" {
		t.Errorf("content = %v", out["content"])
	}
}

func TestWrap_ListBlockRewritesEveryItem(t *testing.T) {
	msgs := []any{
		map[string]any{"content": "first", "role": "user"},
		map[string]any{"content": "second", "role": "assistant"},
		"bare string item",
	}
	out := Wrap(msgs).Block("blocked").([]any)

	if len(out) != 3 {
		t.Fatalf("items = %d", len(out))
	}
	for i := 0; i < 2; i++ {
		if out[i].(map[string]any)["content"] != "blocked" {
			t.Errorf("item[%d] not blocked", i)
		}
	}
	last := out[2].(map[string]any)
	if last["content"] != "blocked" || last["role"] != "function" {
		t.Errorf("bare item = %v", last)
	}
}

func TestWrap_TypedMessageSliceNormalized(t *testing.T) {
	msgs := []map[string]any{{"content": "leak", "role": "user"}}
	out := Wrap(msgs).Block("blocked").([]any)
	if out[0].(map[string]any)["content"] != "blocked" {
		t.Errorf("out = %v", out)
	}
}

func TestWrap_TextMask(t *testing.T) {
	got, err := Wrap("my ssn is 123-45-6789").Mask(func(s string) (string, error) {
		return strings.ReplaceAll(s, "123-45-6789", "[SENSITIVE_INFO]"), nil
	})
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if got != "my ssn is [SENSITIVE_INFO]" {
		t.Errorf("masked = %v", got)
	}
}

func TestWrap_MapMaskPropagatesError(t *testing.T) {
	msg := map[string]any{"content": "secret"}
	_, err := Wrap(msg).Mask(func(string) (string, error) {
		return "", errors.New("mask llm unavailable")
	})
	if err == nil {
		t.Error("expected mask error to propagate")
	}
}

func TestWrap_ListMaskKeepsStructure(t *testing.T) {
	msgs := []any{
		map[string]any{
			"content": "card 4111",
			"tool_calls": []any{
				map[string]any{"function": map[string]any{"name": "pay", "arguments": "card 4111"}},
			},
		},
	}
	out, err := Wrap(msgs).Mask(func(s string) (string, error) {
		return strings.ReplaceAll(s, "4111", "[SENSITIVE_INFO]"), nil
	})
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	item := out.([]any)[0].(map[string]any)
	if item["content"] != "card [SENSITIVE_INFO]" {
		t.Errorf("content = %v", item["content"])
	}
	fn := item["tool_calls"].([]any)[0].(map[string]any)["function"].(map[string]any)
	if fn["arguments"] != "card [SENSITIVE_INFO]" {
		t.Errorf("arguments = %v", fn["arguments"])
	}
	if fn["name"] != "pay" {
		t.Error("function name must survive masking")
	}
}

func TestWrap_TextOfMapPrefersContent(t *testing.T) {
	msg := map[string]any{"content": "hello", "role": "user"}
	if got := Wrap(msg).Text(); got != "hello" {
		t.Errorf("Text = %q", got)
	}
}

func TestAsString_JSONEncodesStructures(t *testing.T) {
	got := asString(map[string]any{"q": "term"})
	if got != `{"q":"term"}` {
		t.Errorf("asString = %q", got)
	}
	if asString(nil) != "" {
		t.Error("nil should render empty")
	}
	if asString("plain") != "plain" {
		t.Error("strings pass through")
	}
}
