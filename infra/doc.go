// Package infra holds the adapters that connect routecast to the outside:
// MQTT and AMQP ingestion, the WebSocket subscriber hub, webhook
// notifications, Prometheus and InfluxDB sinks, Sentry and the SQLite
// snapshot. Adapters implement interfaces owned by core and never import
// each other's internals.
package infra
