package feeder

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// LoadJSON reads records from a JSON array of flat objects. Non-string values
// are kept in their JSON text form.
func LoadJSON(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: invalid JSON", path)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil, fmt.Errorf("%s: expected a JSON array of objects", path)
	}

	var records []Record
	var parseErr error
	doc.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			parseErr = fmt.Errorf("record %d is not an object", len(records))
			return false
		}
		record := make(Record)
		item.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.String {
				record[key.String()] = value.String()
			} else {
				record[key.String()] = value.Raw
			}
			return true
		})
		if len(record) == 0 {
			parseErr = fmt.Errorf("record %d is empty", len(records))
			return false
		}
		records = append(records, record)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return records, nil
}
