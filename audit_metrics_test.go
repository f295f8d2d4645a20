package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestAuditEventsReachSink(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := NewChannelSink(16)
	recipe, err := New().
		WithConfig(sessionTestConfig()).
		WithRedis(rdb).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer recipe.Close()

	session, err := recipe.CreateNewSession(context.Background(), newFakeResponse(), "user-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateNewSession failed: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.EventType != AuditSessionCreated {
			t.Fatalf("expected %s, got %s", AuditSessionCreated, event.EventType)
		}
		if event.UserID != "user-1" || event.SessionHandle != session.GetHandle() {
			t.Fatalf("unexpected event identity %q/%q", event.UserID, event.SessionHandle)
		}
		if !event.Success {
			t.Fatal("creation event must be marked successful")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}

func TestAuditTheftEventEmitted(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := NewChannelSink(16)
	recipe, err := New().
		WithConfig(sessionTestConfig()).
		WithRedis(rdb).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer recipe.Close()

	_, createRes := createTestSession(t, recipe, "user-1", nil)
	if _, err := recipe.RefreshSession(context.Background(), createRes.toRequest(), newFakeResponse()); err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	_, _ = recipe.RefreshSession(context.Background(), createRes.toRequest(), newFakeResponse())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.EventType != AuditTokenTheftDetected {
				continue
			}
			if event.UserID != "user-1" {
				t.Fatalf("theft event for wrong user %q", event.UserID)
			}
			if event.Success {
				t.Fatal("theft event must be marked unsuccessful")
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for theft audit event")
		}
	}
}

func TestJSONWriterSinkEmitsLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		EventType: AuditSessionRevoked,
		UserID:    "user-1",
		Success:   true,
	})

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if decoded["event_type"] != AuditSessionRevoked {
		t.Fatalf("unexpected event_type %v", decoded["event_type"])
	}
}

func TestMetricsCountSessionLifecycle(t *testing.T) {
	recipe, _, done := newTestRecipe(t, sessionTestConfig())
	defer done()
	ctx := context.Background()

	created, res := createTestSession(t, recipe, "user-1", nil)
	if _, err := recipe.GetSession(ctx, res.toRequest(), newFakeResponse(), nil); err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if _, err := recipe.RefreshSession(ctx, res.toRequest(), newFakeResponse()); err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	if _, err := recipe.RevokeSession(ctx, created.GetHandle()); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}

	snapshot := recipe.MetricsSnapshot()
	expectOne := []MetricID{
		MetricSessionCreated,
		MetricSessionVerified,
		MetricRefreshSuccess,
		MetricSessionRevoked,
	}
	for _, id := range expectOne {
		if snapshot.Counters[id] == 0 {
			t.Fatalf("expected counter %d to be non-zero", id)
		}
	}

	buckets := snapshot.Histograms[MetricVerifyLatency]
	var total uint64
	for _, b := range buckets {
		total += b
	}
	if total == 0 {
		t.Fatal("expected at least one verify latency sample")
	}
}

func TestMetricsDisabledSnapshotIsEmpty(t *testing.T) {
	cfg := sessionTestConfig()
	cfg.Metrics.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = false
	recipe, _, done := newTestRecipe(t, cfg)
	defer done()

	createTestSession(t, recipe, "user-1", nil)

	snapshot := recipe.MetricsSnapshot()
	if len(snapshot.Counters) != 0 || len(snapshot.Histograms) != 0 {
		t.Fatalf("expected empty snapshot when metrics are disabled, got %+v", snapshot)
	}
}

func TestAuditDroppedCountsBackpressure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	// A blocking sink with a one-slot buffer forces drops.
	blocking := NewChannelSink(1)
	cfg := sessionTestConfig()
	cfg.Audit.BufferSize = 1
	recipe, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAuditSink(blocking).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer recipe.Close()

	for i := 0; i < 16; i++ {
		createTestSession(t, recipe, "user-1", nil)
	}

	// The sink channel and dispatcher buffer hold at most a few events; with
	// nobody draining, the rest are dropped rather than blocking the hot path.
	deadline := time.Now().Add(2 * time.Second)
	for recipe.AuditDropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected dropped audit events under backpressure")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Unblock the dispatcher so Close can flush and return.
	go func() {
		for range blocking.Events() {
		}
	}()
}
