package feeder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Render replaces every {{field}} in template with the record's value, escaped
// for use inside a JSON string. Placeholders without a matching field are left
// unchanged. The result must be valid JSON.
func Render(template string, record Record) (json.RawMessage, error) {
	result := template
	for key, value := range record {
		result = strings.ReplaceAll(result, "{{"+key+"}}", escapeJSON(value))
	}
	if !gjson.Valid(result) {
		return nil, fmt.Errorf("rendered payload is not valid JSON: %s", result)
	}
	return json.RawMessage(result), nil
}

// RenderAll renders one payload per record.
func RenderAll(template string, records []Record) ([]json.RawMessage, error) {
	payloads := make([]json.RawMessage, 0, len(records))
	for i, rec := range records {
		p, err := Render(template, rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

func escapeJSON(s string) string {
	quoted, _ := json.Marshal(s)
	return string(quoted[1 : len(quoted)-1])
}
