// Package probe implements the C1 uniform probe contract: given
// protocol-specific parameters and a timeout, produce a domain.ProbeResult.
// Each executor is cancellable on timeout and non-blocking from the caller's
// perspective (driven via context.Context like the teacher's
// internal/scheduler.Executor).
package probe

import (
	"context"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// Executor runs one probe of a fixed protocol.
type Executor interface {
	Run(ctx context.Context, timeout time.Duration) domain.ProbeResult
}
