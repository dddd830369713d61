// Package infra groups the adapters behind the dashboard core: model and
// history storage, metrics exporters, the MQTT alert notifier, the audit
// trail and logging. Adapters import core packages, never the reverse.
package infra
