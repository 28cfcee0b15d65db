package scheduler

import (
	"testing"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

func TestBackpressureShouldAcceptBelowThreshold(t *testing.T) {
	b := NewBackpressure(100)
	if !b.ShouldAccept(10) {
		t.Error("ShouldAccept(10) of 100 should be true")
	}
	if b.ShouldAccept(60) {
		t.Error("ShouldAccept(60) of 100 should be false, above the 50% accept threshold")
	}
}

func TestBackpressureShouldThrottleAboveHalfCapacity(t *testing.T) {
	b := NewBackpressure(100)
	if b.ShouldThrottle(40) {
		t.Error("ShouldThrottle(40) of 100 should be false")
	}
	if !b.ShouldThrottle(60) {
		t.Error("ShouldThrottle(60) of 100 should be true, above 50%")
	}
}

func TestBackpressureZeroCapacityNeverThrottles(t *testing.T) {
	b := NewBackpressure(0)
	if !b.ShouldAccept(1000) || b.ShouldThrottle(1000) {
		t.Error("zero-capacity controller should always accept and never throttle")
	}
}

func TestGlobalQueueUsageSumsWorkerDepths(t *testing.T) {
	dag, _, _, _ := linearDAG()
	s := New(dag, Config{}, nil)
	w1 := NewWorkerState(core.NewWorkerID(), core.ResourceBound{}, nil)
	w1.QueueDepth = 3
	w2 := NewWorkerState(core.NewWorkerID(), core.ResourceBound{}, nil)
	w2.QueueDepth = 4
	s.AddWorker(w1)
	s.AddWorker(w2)

	if got := s.GlobalQueueUsage(); got != 7 {
		t.Errorf("GlobalQueueUsage() = %d, want 7", got)
	}
}
