// Package config loads chatcrank settings from flags and an optional YAML or
// JSON config file, and resolves the targets and their chat payloads.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// lookupSetting returns the first value found under any of the candidate keys.
// Config file keys arrive lower-cased, so each candidate is also tried in
// lower case.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

// settingsMap reads a nested config section with its keys trimmed and
// lower-cased.
func settingsMap(value interface{}) (map[string]interface{}, error) {
	m, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out, nil
}

// settingDuration reads a duration. Strings use Go duration syntax; bare
// numbers are seconds, matching the "duration: 600" form of older configs.
func settingDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	}
	secs, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// settingStrings reads a list of strings. A lone string is one entry, since
// threshold expressions contain spaces.
func settingStrings(value interface{}) ([]string, error) {
	if s, ok := value.(string); ok {
		return []string{s}, nil
	}
	return cast.ToStringSliceE(value)
}
