// Package prometheus renders the recipe's in-process metrics in Prometheus
// text exposition format, without depending on a Prometheus client library.
package prometheus
