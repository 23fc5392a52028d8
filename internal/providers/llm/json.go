package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeJSON extracts the JSON document from a model reply and decodes it
// into out. Replies wrapped in code fences or surrounded by prose are
// accepted; malformed JSON is repaired once before giving up.
func DecodeJSON(raw string, out any) error {
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(cleaned), out)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(cleaned)
	if repairErr != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("decode repaired json: %w", err)
	}
	return nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	} else if start >= 0 {
		text = text[start:]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func promptWithSchema(req Request) string {
	if strings.TrimSpace(req.Schema) == "" {
		return req.Prompt
	}
	return req.Prompt + "\n\nRespond strictly with JSON matching this schema: " + req.Schema
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
