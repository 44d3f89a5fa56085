package monitor

import (
	"context"
	"time"

	"github.com/omni/bridge-orchestrator/logging"
)

// Job runs Func every Interval until ctx is done. Each run gets its own Timeout.
type Job struct {
	logger   logging.Logger
	Interval time.Duration
	Timeout  time.Duration
	Func     func(ctx context.Context) error
}

func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		timeoutCtx, cancel := context.WithTimeout(ctx, j.Timeout)
		start := time.Now()
		err := j.Func(timeoutCtx)
		cancel()
		if err != nil {
			j.logger.WithError(err).Error("failed to process job iteration")
		} else {
			j.logger.WithField("duration", time.Since(start)).Debug("job iteration finished")
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return
		}
	}
}
