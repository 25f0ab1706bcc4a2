package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/torosent/chatcrank/internal/feeder"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// ChatPayload builds a single-turn, non-streaming chat request body.
func ChatPayload(model, prompt string) (json.RawMessage, error) {
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ModelName returns the "model" field of a chat payload, or "" if absent.
func ModelName(payload json.RawMessage) string {
	return gjson.GetBytes(payload, "model").String()
}

// resolveTargets expands the --model shorthand and fills in payloads and names
// for every target. Relative payload files are resolved against baseDir.
func (c *Config) resolveTargets(baseDir string) error {
	for _, model := range c.Models {
		model = strings.TrimSpace(model)
		if model == "" || c.hasTarget(model) {
			continue
		}
		c.Targets = append(c.Targets, TargetConfig{Name: model, Model: model})
	}

	for i := range c.Targets {
		t := &c.Targets[i]
		if t.PayloadsFile != "" {
			payloads, err := LoadPayloadFile(resolvePath(baseDir, t.PayloadsFile))
			if err != nil {
				return fmt.Errorf("targets[%d]: %w", i, err)
			}
			t.Payloads = append(t.Payloads, payloads...)
		}
		if t.PromptsFile != "" {
			payloads, err := t.datasetPayloads(resolvePath(baseDir, t.PromptsFile))
			if err != nil {
				return fmt.Errorf("targets[%d]: %w", i, err)
			}
			t.Payloads = append(t.Payloads, payloads...)
		}
		if len(t.Payloads) == 0 && t.Model != "" {
			prompt := firstNonEmpty(t.Prompt, c.Prompt, DefaultPrompt)
			payload, err := ChatPayload(t.Model, prompt)
			if err != nil {
				return fmt.Errorf("targets[%d]: %w", i, err)
			}
			t.Payloads = []json.RawMessage{payload}
		}
		if strings.TrimSpace(t.Name) == "" {
			t.Name = firstNonEmpty(t.Model, firstModel(t.Payloads))
		}
		t.Name = strings.TrimSpace(t.Name)
	}
	return nil
}

// datasetPayloads renders one payload per dataset row. Without a template each
// row's "prompt" column becomes a single-turn chat request for the target model.
func (t TargetConfig) datasetPayloads(path string) ([]json.RawMessage, error) {
	records, err := feeder.Load(path)
	if err != nil {
		return nil, err
	}
	if t.PayloadTemplate != "" {
		return feeder.RenderAll(t.PayloadTemplate, records)
	}
	if t.Model == "" {
		return nil, errors.New("prompts_file needs a model or a payload_template")
	}
	payloads := make([]json.RawMessage, 0, len(records))
	for i, rec := range records {
		prompt, ok := rec["prompt"]
		if !ok {
			return nil, fmt.Errorf("%s: record %d has no prompt column", path, i)
		}
		p, err := ChatPayload(t.Model, prompt)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

func resolvePath(baseDir, path string) string {
	if !filepath.IsAbs(path) && baseDir != "" {
		return filepath.Join(baseDir, path)
	}
	return path
}

func (c *Config) hasTarget(name string) bool {
	for _, t := range c.Targets {
		if t.Name == name {
			return true
		}
	}
	return false
}

// LoadPayloadFile reads chat payloads from a YAML or JSON file. The document
// may be a list of payloads, a mapping with a "payloads" list, or a single
// payload object.
func LoadPayloadFile(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payloads file: %w", err)
	}
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse payloads file %s: %w", path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("payloads file %s is empty", path)
	}

	items := []interface{}{doc}
	switch v := doc.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		if list, ok := v["payloads"]; ok {
			nested, ok := list.([]interface{})
			if !ok {
				return nil, fmt.Errorf("payloads file %s: payloads must be a list", path)
			}
			items = nested
		}
	}
	return parsePayloads(items)
}

func parsePayloads(items []interface{}) ([]json.RawMessage, error) {
	payloads := make([]json.RawMessage, 0, len(items))
	for idx, item := range items {
		payload, err := payloadFromValue(item)
		if err != nil {
			return nil, fmt.Errorf("payloads[%d]: %w", idx, err)
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

// payloadFromValue turns a decoded config value into a JSON body. Strings are
// taken as already-encoded JSON.
func payloadFromValue(value interface{}) (json.RawMessage, error) {
	switch v := value.(type) {
	case nil:
		return nil, errors.New("payload cannot be empty")
	case string:
		trimmed := strings.TrimSpace(v)
		if !gjson.Valid(trimmed) {
			return nil, errors.New("payload string is not valid JSON")
		}
		return json.RawMessage(trimmed), nil
	case json.RawMessage:
		return v, nil
	default:
		body, err := json.Marshal(normalizeValue(v))
		if err != nil {
			return nil, err
		}
		return body, nil
	}
}

// normalizeValue converts map[interface{}]interface{} trees, which
// encoding/json cannot marshal, into map[string]interface{}.
func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = normalizeValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}

func firstModel(payloads []json.RawMessage) string {
	for _, p := range payloads {
		if name := ModelName(p); name != "" {
			return name
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
