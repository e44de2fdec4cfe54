// Package overlap implements the C3 per-entity concurrency decision. The
// actual atomicity (increment/decrement, queue push/pop) is enforced by the
// calling repository inside a row-locked transaction (§4.3); this package is
// the pure decision function the repository applies once it holds the lock,
// grounded on original_source/.../test_overlap_service.py's OverlapResult
// shape (should_execute / skipped_reason / queue position).
package overlap

import "github.com/cronbox/cronbox-core/internal/domain"

// Decide returns the action to take for one firing attempt, given the
// entity's policy, its current running count, and (for queue policy) its
// current queue depth.
func Decide(policy domain.OverlapPolicy, running, maxInstances, queueDepth, maxQueueSize int) domain.OverlapResult {
	switch policy {
	case domain.OverlapAllow:
		return domain.OverlapResult{Action: domain.OverlapActionAllow}

	case domain.OverlapSkip:
		if running >= maxInstances {
			return domain.OverlapResult{Action: domain.OverlapActionSkip}
		}
		return domain.OverlapResult{Action: domain.OverlapActionAllow}

	case domain.OverlapQueue:
		if running < maxInstances {
			return domain.OverlapResult{Action: domain.OverlapActionAllow}
		}
		if queueDepth < maxQueueSize {
			return domain.OverlapResult{Action: domain.OverlapActionQueue, QueuePosition: queueDepth + 1}
		}
		return domain.OverlapResult{Action: domain.OverlapActionQueueFull}

	default:
		// Unknown policy: fail closed rather than let an entity run
		// unboundedly.
		return domain.OverlapResult{Action: domain.OverlapActionSkip}
	}
}
