package config

import (
	"fmt"
	"time"
)

// HTTPConfig configures the dashboard API server.
type HTTPConfig struct {
	Addr           string        `json:"addr" default:":8080"`
	Token          string        `json:"token"`
	AllowedOrigins []string      `json:"allowed_origins"`
	ReadTimeout    time.Duration `json:"read_timeout" default:"10s"`
	WriteTimeout   time.Duration `json:"write_timeout" default:"30s"`
}

// Validate checks mandatory fields.
func (c HTTPConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}
