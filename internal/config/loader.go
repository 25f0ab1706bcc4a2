package config

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Default returns a Config holding the built-in defaults.
func Default() *Config {
	return &Config{
		Host:        DefaultHost,
		Scheme:      DefaultScheme,
		Port:        DefaultPort,
		Path:        DefaultPath,
		Method:      DefaultMethod,
		Headers:     map[string]string{},
		Concurrency: DefaultConcurrency,
		Duration:    DefaultDuration,
		Timeout:     DefaultTimeout,
		ResultDir:   DefaultResultDir,
		Prompt:      DefaultPrompt,
		Arrival:     ArrivalConfig{Model: ArrivalModelUniform},
		Tracing:     TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Flags take precedence over the config file, which takes precedence over defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	cfg.Scheme = strings.ToLower(strings.TrimSpace(cfg.Scheme))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	baseDir := ""
	if configPath != "" {
		baseDir = filepath.Dir(configPath)
	}
	if err := cfg.resolveTargets(baseDir); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	stringSettings := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"host", "url"}, &cfg.Host},
		{[]string{"scheme"}, &cfg.Scheme},
		{[]string{"path", "api_path"}, &cfg.Path},
		{[]string{"method"}, &cfg.Method},
		{[]string{"api_key", "apikey", "api-key"}, &cfg.APIKey},
		{[]string{"api_key_header", "apikeyheader", "api-key-header"}, &cfg.APIKeyHeader},
		{[]string{"prompt"}, &cfg.Prompt},
		{[]string{"result_dir", "resultdir", "result-dir", "save_path"}, &cfg.ResultDir},
		{[]string{"html_output", "htmloutput", "html-output"}, &cfg.HTMLOutput},
		{[]string{"metrics_addr", "metricsaddr", "metrics-addr"}, &cfg.MetricsAddr},
	}
	for _, s := range stringSettings {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = strings.TrimSpace(val)
	}

	intSettings := []struct {
		keys []string
		dst  *int
	}{
		{[]string{"port"}, &cfg.Port},
		{[]string{"concurrency", "virtual_users", "users"}, &cfg.Concurrency},
		{[]string{"rate"}, &cfg.Rate},
	}
	for _, s := range intSettings {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := cast.ToIntE(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = val
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := settingDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}
	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := settingDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}
	if raw, ok := lookupSetting(settings, "drain_grace", "draingrace", "drain-grace"); ok {
		dur, err := settingDuration(raw)
		if err != nil {
			return fmt.Errorf("drain_grace: %w", err)
		}
		cfg.DrainGrace = dur
	}

	boolSettings := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"json_output", "jsonoutput", "json-output"}, &cfg.JSONOutput},
		{[]string{"dashboard"}, &cfg.Dashboard},
		{[]string{"log_errors", "logerrors", "log-errors"}, &cfg.LogErrors},
		{[]string{"verbose"}, &cfg.Verbose},
		{[]string{"skip_probe", "skipprobe", "skip-probe"}, &cfg.SkipProbe},
	}
	for _, s := range boolSettings {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		*s.dst = val
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := cast.ToStringMapStringE(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			key := http.CanonicalHeaderKey(strings.TrimSpace(k))
			if key == "" {
				return fmt.Errorf("headers: header key cannot be empty")
			}
			cfg.Headers[key] = v
		}
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	} else if raw, ok := lookupSetting(settings, "arrival_model", "arrivalmodel", "arrival-model"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival_model: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := settingStrings(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "models"); ok {
		models, err := settingStrings(raw)
		if err != nil {
			return fmt.Errorf("models: %w", err)
		}
		cfg.Models = models
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	if raw, ok := lookupSetting(settings, "targets"); ok {
		targets, err := parseTargets(raw)
		if err != nil {
			return fmt.Errorf("targets: %w", err)
		}
		cfg.Targets = targets
	}

	return nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	if value == nil {
		return ArrivalConfig{}, nil
	}
	switch v := value.(type) {
	case string:
		return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(v)))}, nil
	default:
		entry, err := settingsMap(value)
		if err != nil {
			return ArrivalConfig{}, err
		}
		raw, ok := lookupSetting(entry, "model")
		if !ok {
			return ArrivalConfig{}, fmt.Errorf("model field is required")
		}
		val, err := cast.ToStringE(raw)
		if err != nil {
			return ArrivalConfig{}, fmt.Errorf("model: %w", err)
		}
		return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(val)))}, nil
	}
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	entry, err := settingsMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	out := base
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, _ := cast.ToStringE(raw)
		out.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, _ := cast.ToStringE(raw)
		out.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "service_name", "servicename", "service-name"); ok {
		val, _ := cast.ToStringE(raw)
		out.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := cast.ToFloat64E(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		out.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		out.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		out.Propagate = &val
	}
	return out, nil
}

func parseTargets(value interface{}) ([]TargetConfig, error) {
	if value == nil {
		return nil, nil
	}
	items, err := cast.ToSliceE(value)
	if err != nil {
		return nil, err
	}
	targets := make([]TargetConfig, 0, len(items))
	for idx, item := range items {
		entry, err := settingsMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		target, err := buildTarget(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func buildTarget(settings map[string]interface{}) (TargetConfig, error) {
	var target TargetConfig
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return TargetConfig{}, fmt.Errorf("name: %w", err)
		}
		target.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "model"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return TargetConfig{}, fmt.Errorf("model: %w", err)
		}
		target.Model = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "prompt"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return TargetConfig{}, fmt.Errorf("prompt: %w", err)
		}
		target.Prompt = val
	}
	if raw, ok := lookupSetting(settings, "payloads_file", "payloadsfile", "payloads-file"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return TargetConfig{}, fmt.Errorf("payloads_file: %w", err)
		}
		target.PayloadsFile = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "prompts_file", "promptsfile", "prompts-file"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return TargetConfig{}, fmt.Errorf("prompts_file: %w", err)
		}
		target.PromptsFile = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "payload_template", "payloadtemplate", "payload-template"); ok {
		// String templates may hold unquoted placeholders, so they are only
		// validated after rendering.
		if str, ok := raw.(string); ok {
			target.PayloadTemplate = strings.TrimSpace(str)
		} else {
			val, err := payloadFromValue(raw)
			if err != nil {
				return TargetConfig{}, fmt.Errorf("payload_template: %w", err)
			}
			target.PayloadTemplate = string(val)
		}
	}
	if raw, ok := lookupSetting(settings, "payloads"); ok {
		items, err := cast.ToSliceE(raw)
		if err != nil {
			return TargetConfig{}, fmt.Errorf("payloads: %w", err)
		}
		payloads, err := parsePayloads(items)
		if err != nil {
			return TargetConfig{}, err
		}
		target.Payloads = payloads
	}
	return target, nil
}
