package overlap

import (
	"testing"

	"github.com/cronbox/cronbox-core/internal/domain"
)

func TestDecide_Allow(t *testing.T) {
	r := Decide(domain.OverlapAllow, 5, 1, 0, 0)
	if r.Action != domain.OverlapActionAllow {
		t.Fatalf("expected allow, got %v", r.Action)
	}
	if !r.ShouldExecute() {
		t.Fatal("allow policy must always execute")
	}
}

func TestDecide_SkipAtCapacity(t *testing.T) {
	r := Decide(domain.OverlapSkip, 2, 2, 0, 0)
	if r.Action != domain.OverlapActionSkip {
		t.Fatalf("expected skip, got %v", r.Action)
	}
	if r.ShouldExecute() {
		t.Fatal("skip at capacity must not execute")
	}
}

func TestDecide_SkipUnderCapacity(t *testing.T) {
	r := Decide(domain.OverlapSkip, 1, 2, 0, 0)
	if r.Action != domain.OverlapActionAllow {
		t.Fatalf("expected allow, got %v", r.Action)
	}
}

func TestDecide_QueueWhenAtCapacityButRoom(t *testing.T) {
	r := Decide(domain.OverlapQueue, 2, 2, 1, 5)
	if r.Action != domain.OverlapActionQueue {
		t.Fatalf("expected queue, got %v", r.Action)
	}
	if r.QueuePosition != 2 {
		t.Fatalf("expected position 2, got %d", r.QueuePosition)
	}
}

func TestDecide_QueueFull(t *testing.T) {
	r := Decide(domain.OverlapQueue, 2, 2, 5, 5)
	if r.Action != domain.OverlapActionQueueFull {
		t.Fatalf("expected queue_full, got %v", r.Action)
	}
	if r.SkippedReason() == "" {
		t.Fatal("expected a skipped reason for queue_full")
	}
}

func TestDecide_QueueBelowCapacityAllows(t *testing.T) {
	r := Decide(domain.OverlapQueue, 0, 2, 3, 5)
	if r.Action != domain.OverlapActionAllow {
		t.Fatalf("expected allow, got %v", r.Action)
	}
}
