package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Created sessions."},
	{ID: goSession.MetricSessionVerified, Name: "gosession_session_verified_total", Help: "Successful session verifications."},
	{ID: goSession.MetricVerifyFailure, Name: "gosession_verify_failure_total", Help: "Failed session verifications."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful refresh-chain advances."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: goSession.MetricTokenTheftDetected, Name: "gosession_token_theft_detected_total", Help: "Detected refresh-token reuses."},
	{ID: goSession.MetricSessionRevoked, Name: "gosession_session_revoked_total", Help: "Revoked sessions."},
	{ID: goSession.MetricGrantRefetch, Name: "gosession_grant_refetch_total", Help: "Grant refetches on the verify path."},
	{ID: goSession.MetricGrantMissing, Name: "gosession_grant_missing_total", Help: "Verifications failed by a missing grant."},
	{ID: goSession.MetricHandshakeRefresh, Name: "gosession_handshake_refresh_total", Help: "Handshake snapshot rebuilds."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricVerifyLatency, Name: "gosession_verify_latency_ms", Help: "Session verification latency."},
}

// HistogramBoundSuffix labels the cumulative bucket upper bounds, in
// milliseconds, matching the recipe's internal bucket layout.
var HistogramBoundSuffix = [8]string{"5", "10", "25", "50", "100", "250", "500", "inf"}

// NormalizeBuckets pads or trims a snapshot's bucket slice to the fixed
// bucket count.
func NormalizeBuckets(buckets []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(buckets); i++ {
		out[i] = buckets[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(buckets [8]uint64) [8]uint64 {
	var out [8]uint64
	var sum uint64
	for i, v := range buckets {
		sum += v
		out[i] = sum
	}
	return out
}

// HistogramBounds are the Prometheus le labels for the fixed buckets.
var HistogramBounds = [8]string{"5", "10", "25", "50", "100", "250", "500", "+Inf"}
