package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/atmcast/core/metrics"
	"github.com/kilianp07/atmcast/infra/audit"
	"github.com/kilianp07/atmcast/infra/mqtt"
)

type Config struct {
	Dashboard DashboardConfig `json:"dashboard"`
	History   HistoryConfig   `json:"history"`
	HTTP      HTTPConfig      `json:"http"`
	Metrics   metrics.Config  `json:"metrics"`
	MQTT      mqtt.Config     `json:"mqtt"`
	Audit     audit.Config    `json:"audit"`
	Sentry    SentryConfig    `json:"sentry"`
	Log       LogConfig       `json:"log"`
}

// Load reads a YAML or JSON file, applies K_ environment overrides
// (K_DASHBOARD__ATM_ID sets dashboard.atm_id) and validates the result.
// Defaults are set before the file is decoded so explicit zero values survive.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize applies defaults to a Config built in code and validates it.
// Zero values are indistinguishable from unset ones here.
func (c *Config) Finalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	return c.Validate()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	for _, v := range []interface{ Validate() error }{c.Dashboard, c.History, c.HTTP, c.Log} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}
