package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func delta(t *testing.T, collector prometheus.Collector, observe func()) float64 {
	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	after := testutil.ToFloat64(collector)
	return after - before
}

func TestObserveSubmission(t *testing.T) {
	start := time.Now().Add(-time.Second)

	if inc := delta(t, submissionsTotal.WithLabelValues("success"), func() {
		ObserveSubmission("success", start)
	}); inc != 1 {
		t.Fatalf("expected success counter increment, got %v", inc)
	}

	if inc := delta(t, submissionsTotal.WithLabelValues("unknown"), func() {
		ObserveSubmission("", start)
	}); inc != 1 {
		t.Fatalf("expected unknown counter increment, got %v", inc)
	}
}

func TestSetWork(t *testing.T) {
	SetWork(97500)
	if got := testutil.ToFloat64(currentWork); got != 97500 {
		t.Fatalf("work gauge = %v, want 97500", got)
	}
}

func TestObserveBroadcast(t *testing.T) {
	if inc := delta(t, wsRecipientsTotal.WithLabelValues("block"), func() {
		ObserveBroadcast("block", 3)
	}); inc != 3 {
		t.Fatalf("expected recipients to grow by 3, got %v", inc)
	}
}

func TestObserveBridgePublish(t *testing.T) {
	if inc := delta(t, bridgePublishTotal.WithLabelValues("name", "error"), func() {
		ObserveBridgePublish("name", errors.New("boom"))
	}); inc != 1 {
		t.Fatalf("expected bridge error increment, got %v", inc)
	}
	if inc := delta(t, bridgePublishTotal.WithLabelValues("unknown", "success"), func() {
		ObserveBridgePublish("", nil)
	}); inc != 1 {
		t.Fatalf("expected unknown success increment, got %v", inc)
	}
}
