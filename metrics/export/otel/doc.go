// Package otel bridges the recipe's in-process metrics to an OpenTelemetry
// meter through observable instruments.
package otel
