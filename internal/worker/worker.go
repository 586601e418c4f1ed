package worker

import (
	"context"
	"sync"
	"time"

	"github.com/veltapay/chainfunnel/internal/observability"
	"github.com/veltapay/chainfunnel/internal/service"
	"go.uber.org/zap"
)

// Runner is a single unit of periodic work.
type Runner interface {
	Run(ctx context.Context) error
}

// Job runs a Runner at a fixed interval under a lease lock so only one
// process instance executes it at a time.
type Job struct {
	name     string
	runner   Runner
	interval time.Duration
	lease    service.Locker
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewJob constructs a job with a default five minute interval.
func NewJob(name string, runner Runner, lease service.Locker) *Job {
	return &Job{
		name:     name,
		runner:   runner,
		interval: 5 * time.Minute,
		lease:    lease,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (j *Job) WithInterval(interval time.Duration) *Job {
	if interval > 0 {
		j.interval = interval
	}
	return j
}

// Start blocks and runs the job at the configured interval.
func (j *Job) Start(ctx context.Context) {
	zap.L().Info("worker starting", zap.String("worker", j.name), zap.Duration("interval", j.interval))
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	j.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("worker context canceled", zap.String("worker", j.name))
			return
		case <-j.stopCh:
			zap.L().Info("worker stop signal received", zap.String("worker", j.name))
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

// Stop stops the running job loop.
func (j *Job) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)
	})
}

// Run starts the job in a goroutine and returns a stop function.
func (j *Job) Run(ctx context.Context) func() {
	go j.Start(ctx)
	return j.Stop
}

func (j *Job) runOnce(ctx context.Context) {
	if j.lease != nil {
		if !j.lease.TryAcquire() {
			zap.L().Debug("worker lease held elsewhere, skipping run", zap.String("worker", j.name))
			observability.IncrementWorkerRun(j.name, "skipped")
			return
		}
		defer j.lease.Release()
	}

	if err := j.runner.Run(ctx); err != nil {
		observability.IncrementWorkerRun(j.name, "failed")
		if service.IsNodeNotAccessible(err) {
			zap.L().Error("worker run aborted, node not accessible", zap.String("worker", j.name), zap.Error(err))
			return
		}
		zap.L().Error("worker run failed", zap.String("worker", j.name), zap.Error(err))
		return
	}
	observability.IncrementWorkerRun(j.name, "success")
}
