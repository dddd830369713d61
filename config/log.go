package config

import "fmt"

// LogConfig sets the minimum log level.
type LogConfig struct {
	Level string `json:"level" default:"info"`
}

// Validate checks the level name.
func (c LogConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %s", c.Level)
}
