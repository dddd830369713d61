package config

import "fmt"

// HistoryConfig selects the historical demand feed.
type HistoryConfig struct {
	// Backend is "csv", "sqlite" or "none".
	Backend string `json:"backend" default:"csv"`
	Path    string `json:"path" default:"data/history.csv"`
	// Import loads this CSV file into the sqlite backend at startup.
	Import string `json:"import"`
}

// Validate checks the backend name.
func (c HistoryConfig) Validate() error {
	switch c.Backend {
	case "csv", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("history.path is required")
		}
	case "none":
	default:
		return fmt.Errorf("unknown history backend %s", c.Backend)
	}
	return nil
}
