// Package feeder loads prompt datasets (CSV or JSON) and renders each row into
// a chat payload, so a target can replay many distinct prompts.
package feeder

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Record represents a single row of data with named fields.
type Record map[string]string

// ErrEmpty is returned when a dataset holds no data rows.
var ErrEmpty = errors.New("feeder: dataset has no records")

// Load reads a dataset, choosing the format from the file extension.
func Load(path string) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".json":
		return LoadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q (use .csv or .json)", filepath.Ext(path))
	}
}
