package telegraph

import (
	"context"
	"time"
)

// RunLoop drives a session from a single goroutine: onTick is called at a
// fixed interval, and every envelope arriving on inbox is passed to
// onMessage in between ticks. It returns when ctx is done or inbox is
// closed.
//
// Late ticks are caught up by calling onTick several times in a row.
func RunLoop(ctx context.Context, interval time.Duration, inbox <-chan Envelope, onTick func(), onMessage func(Envelope)) error {
	if interval <= 0 {
		interval = time.Second / DefaultTickRate
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	var accumulator time.Duration

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-inbox:
			if !ok {
				return nil
			}
			onMessage(env)
		case now := <-ticker.C:
			accumulator += now.Sub(last)
			last = now
			for accumulator >= interval {
				onTick()
				accumulator -= interval
			}
		}
	}
}
