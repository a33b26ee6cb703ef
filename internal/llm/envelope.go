package llm

import (
	"encoding/json"
)

// Strategy is one way of locating the model's text inside a provider envelope.
type Strategy int

const (
	// OutputText reads the top-level "output_text" convenience field.
	OutputText Strategy = iota + 1
	// OutputContent reads output[0].content[0].text.
	OutputContent
	// ChatChoice reads choices[0].message.content (chat completions).
	ChatChoice
)

// DefaultStrategies is the order in which envelopes are probed.
var DefaultStrategies = []Strategy{OutputText, OutputContent, ChatChoice}

func (s Strategy) String() string {
	switch s {
	case OutputText:
		return "output_text"
	case OutputContent:
		return "output[0].content[0].text"
	case ChatChoice:
		return "choices[0].message.content"
	default:
		return "unknown"
	}
}

func (s Strategy) extract(env map[string]any) string {
	switch s {
	case OutputText:
		return stringAt(env, "output_text")
	case OutputContent:
		item := objectAt(firstOf(env["output"]))
		part := objectAt(firstOf(item["content"]))
		return stringAt(part, "text")
	case ChatChoice:
		choice := objectAt(firstOf(env["choices"]))
		msg := objectAt(choice["message"])
		return stringAt(msg, "content")
	}
	return ""
}

// ExtractText returns the first non-empty text found by strategies, in order.
func ExtractText(body []byte, strategies []Strategy) (string, Strategy, error) {
	var env map[string]any
	if err := json.Unmarshal(body, &env); err != nil {
		return "", 0, &MalformedError{Reason: "provider envelope is not a JSON object", Err: err}
	}
	for _, s := range strategies {
		if text := s.extract(env); text != "" {
			return text, s, nil
		}
	}
	return "", 0, &MalformedError{Reason: "provider envelope carries no output text"}
}

func firstOf(v any) any {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil
	}
	return arr[0]
}

func objectAt(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
