package enforcer

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Messages cross the hook boundary in one of three shapes: a plain string, a
// single map-shaped message, or a list of messages. Envelope implements the
// structure-preserving rewrites (block, mask) once per concrete shape so the
// action code never branches on dynamic types.
type Envelope interface {
	// Text returns the primary textual content used for rule checks.
	Text() string

	// Raw returns the wrapped value unchanged.
	Raw() any

	// Block rewrites the content-bearing fields to the marker while keeping
	// every other field intact.
	Block(marker string) any

	// Mask rewrites each content-bearing field through fn.
	Mask(fn func(string) (string, error)) (any, error)
}

// Wrap selects the envelope for a message value. Anything that is not a map
// or a list is treated as plain text.
func Wrap(v any) Envelope {
	switch m := v.(type) {
	case map[string]any:
		return mapEnvelope{m}
	case []any:
		return listEnvelope{m}
	case []map[string]any:
		// Normalize typed slices to the generic shape.
		items := make([]any, len(m))
		for i, item := range m {
			items[i] = item
		}
		return listEnvelope{items}
	default:
		return textEnvelope{asString(v)}
	}
}

// asString renders a message value for content checks. Maps and lists are
// JSON-encoded so regex rules can see into arguments and nested messages.
func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprint(v)
	}
}

// --- plain text ---

type textEnvelope struct {
	s string
}

func (e textEnvelope) Text() string { return e.s }
func (e textEnvelope) Raw() any     { return e.s }

// Block wraps the marker as a function message so callers expecting a
// map-shaped reply never receive a bare string.
func (e textEnvelope) Block(marker string) any {
	return map[string]any{"content": marker, "role": "function"}
}

func (e textEnvelope) Mask(fn func(string) (string, error)) (any, error) {
	return fn(e.s)
}

// --- single map-shaped message ---

type mapEnvelope struct {
	m map[string]any
}

func (e mapEnvelope) Text() string {
	if c, ok := e.m["content"]; ok {
		return asString(c)
	}
	return asString(e.m)
}

func (e mapEnvelope) Raw() any { return e.m }

// Block replaces the first matching content field. Tool responses also clear
// the top-level content so a paired summary cannot leak the payload.
func (e mapEnvelope) Block(marker string) any {
	out := maps.Clone(e.m)
	switch {
	case hasItems(out, "tool_responses"):
		out["content"] = marker
		out["tool_responses"] = rewriteResponses(out["tool_responses"], func(string) (string, error) {
			return marker, nil
		})
	case hasItems(out, "tool_calls"):
		out["tool_calls"] = rewriteCalls(out["tool_calls"], func(string) (string, error) {
			return marker, nil
		})
	case hasKey(out, "content"):
		out["content"] = marker
	case hasKey(out, "arguments"):
		out["arguments"] = marker
	default:
		out["content"] = marker
	}
	return out
}

func (e mapEnvelope) Mask(fn func(string) (string, error)) (any, error) {
	out := maps.Clone(e.m)
	var err error
	switch {
	case hasItems(out, "tool_responses"):
		if hasKey(out, "content") {
			if out["content"], err = fn(asString(out["content"])); err != nil {
				return nil, err
			}
		}
		out["tool_responses"], err = rewriteResponsesErr(out["tool_responses"], fn)
	case hasItems(out, "tool_calls"):
		out["tool_calls"], err = rewriteCallsErr(out["tool_calls"], fn)
	case hasKey(out, "content"):
		out["content"], err = fn(asString(out["content"]))
	case hasKey(out, "arguments"):
		out["arguments"], err = fn(asString(out["arguments"]))
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- list of messages ---

type listEnvelope struct {
	items []any
}

func (e listEnvelope) Text() string { return asString(e.items) }
func (e listEnvelope) Raw() any     { return e.items }

// Block rewrites every item. Unlike the single-map case, all three fields
// are replaced when present on the same item.
func (e listEnvelope) Block(marker string) any {
	out := make([]any, 0, len(e.items))
	for _, item := range e.items {
		m, ok := item.(map[string]any)
		if !ok {
			out = append(out, map[string]any{"content": marker, "role": "function"})
			continue
		}
		c := maps.Clone(m)
		if hasKey(c, "content") {
			c["content"] = marker
		}
		if hasItems(c, "tool_calls") {
			c["tool_calls"] = rewriteCalls(c["tool_calls"], func(string) (string, error) {
				return marker, nil
			})
		}
		if hasItems(c, "tool_responses") {
			c["tool_responses"] = rewriteResponses(c["tool_responses"], func(string) (string, error) {
				return marker, nil
			})
		}
		out = append(out, c)
	}
	return out
}

func (e listEnvelope) Mask(fn func(string) (string, error)) (any, error) {
	out := make([]any, 0, len(e.items))
	for _, item := range e.items {
		m, ok := item.(map[string]any)
		if !ok {
			masked, err := fn(asString(item))
			if err != nil {
				return nil, err
			}
			out = append(out, map[string]any{"content": masked, "role": "function"})
			continue
		}
		c := maps.Clone(m)
		var err error
		if hasKey(c, "content") {
			if c["content"], err = fn(asString(c["content"])); err != nil {
				return nil, err
			}
		}
		if hasItems(c, "tool_calls") {
			if c["tool_calls"], err = rewriteCallsErr(c["tool_calls"], fn); err != nil {
				return nil, err
			}
		}
		if hasItems(c, "tool_responses") {
			if c["tool_responses"], err = rewriteResponsesErr(c["tool_responses"], fn); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// --- field helpers ---

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func hasItems(m map[string]any, key string) bool {
	items, ok := m[key].([]any)
	return ok && len(items) > 0
}

// rewriteResponses maps fn over tool_responses[*].content.
func rewriteResponsesErr(v any, fn func(string) (string, error)) (any, error) {
	items, _ := v.([]any)
	out := make([]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		c := maps.Clone(m)
		masked, err := fn(asString(c["content"]))
		if err != nil {
			return nil, err
		}
		c["content"] = masked
		out = append(out, c)
	}
	return out, nil
}

func rewriteResponses(v any, fn func(string) (string, error)) any {
	out, _ := rewriteResponsesErr(v, fn)
	return out
}

// rewriteCalls maps fn over tool_calls[*].function.arguments.
func rewriteCallsErr(v any, fn func(string) (string, error)) (any, error) {
	items, _ := v.([]any)
	out := make([]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		c := maps.Clone(m)
		function, _ := c["function"].(map[string]any)
		fc := maps.Clone(function)
		if fc == nil {
			fc = map[string]any{}
		}
		rewritten, err := fn(asString(fc["arguments"]))
		if err != nil {
			return nil, err
		}
		fc["arguments"] = rewritten
		c["function"] = fc
		out = append(out, c)
	}
	return out, nil
}

func rewriteCalls(v any, fn func(string) (string, error)) any {
	out, _ := rewriteCallsErr(v, fn)
	return out
}
