package scheduler

import (
	"context"
	"time"
)

// chainPollBatchCap is 50, not 100, per the lower per-cycle cap chains carry
// in the due-selection protocol (§4.4) — a chain run can itself fan out to
// several HTTP steps, so fewer are claimed per tick than single-probe tasks.
const chainPollBatchCap = 50

func (e *Engine) RunChainPoll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("chain poll started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("chain poll shut down")
			return
		case <-ticker.C:
			e.drainChainPoll(ctx)
		}
	}
}

func (e *Engine) drainChainPoll(ctx context.Context) {
	dispatch := e.dispatchChain(ctx)
	for i := 0; i < chainPollBatchCap; i++ {
		c, _, err := e.Chains.ClaimDue(ctx, e.chainNextFire, dispatch)
		if err != nil {
			e.logger.ErrorContext(ctx, "chain poll claim due failed", "error", err)
			return
		}
		if c == nil {
			return
		}
	}
}
