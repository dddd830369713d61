package metrics

import "github.com/kilianp07/atmcast/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// Port serves /metrics on a dedicated listener when set. Empty means the
	// endpoint is mounted on the dashboard HTTP server.
	Port string `json:"port"`
}
