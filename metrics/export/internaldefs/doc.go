// Package internaldefs holds the metric name/description tables shared by the
// Prometheus and OpenTelemetry exporters.
package internaldefs
