// Package resourcemgmt runs the service's periodic background jobs and keeps
// track of them so shutdown can wait for in-flight runs
package resourcemgmt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "background_job_runs_total",
		Help: "Background job runs by job and result",
	}, []string{"job", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "background_job_duration_seconds",
		Help:    "Background job run duration",
		Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
	}, []string{"job"})

	jobsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "background_jobs_in_flight",
		Help: "Background jobs currently running",
	}, []string{"job"})
)

// ErrStopped is returned by Every after Stop
var ErrStopped = errors.New("job runner stopped")

// Job is one run of a periodic task
type Job func(ctx context.Context) error

// JobConfig schedules a Job
type JobConfig struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run; zero means Interval
	Timeout time.Duration
	// RunAtStart runs the job once immediately instead of waiting a full interval
	RunAtStart bool
}

type runState struct {
	started time.Time
}

// JobRunner runs periodic jobs on their own goroutines. A run that is still
// going when its next tick fires makes that tick a no-op.
type JobRunner struct {
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]*runState
	stopped bool
}

// NewJobRunner creates a runner; jobs stop when Stop is called
func NewJobRunner(logger *zap.Logger) *JobRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobRunner{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]*runState),
	}
}

// Every starts running job every cfg.Interval
func (jr *JobRunner) Every(cfg JobConfig, job Job) error {
	if cfg.Interval <= 0 {
		return errors.New("job interval must be positive")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}

	jr.mu.Lock()
	defer jr.mu.Unlock()
	if jr.stopped {
		return ErrStopped
	}

	jr.wg.Add(1)
	go jr.loop(cfg, job)

	jr.logger.Info("Background job scheduled",
		zap.String("job", cfg.Name),
		zap.Duration("interval", cfg.Interval),
		zap.Duration("timeout", cfg.Timeout),
	)
	return nil
}

func (jr *JobRunner) loop(cfg JobConfig, job Job) {
	defer jr.wg.Done()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	if cfg.RunAtStart {
		jr.RunOnce(cfg, job)
	}

	for {
		select {
		case <-jr.ctx.Done():
			return
		case <-ticker.C:
			jr.RunOnce(cfg, job)
		}
	}
}

// RunOnce runs job synchronously unless a run of the same name is in flight.
// It reports whether the job ran.
func (jr *JobRunner) RunOnce(cfg JobConfig, job Job) bool {
	if !jr.begin(cfg.Name) {
		jobRuns.WithLabelValues(cfg.Name, "skipped").Inc()
		jr.logger.Warn("Background job still running, skipping tick", zap.String("job", cfg.Name))
		return false
	}
	defer jr.end(cfg.Name)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = cfg.Interval
	}
	ctx := jr.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(jr.ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := jr.safeRun(ctx, cfg.Name, job)
	jobDuration.WithLabelValues(cfg.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		jobRuns.WithLabelValues(cfg.Name, "error").Inc()
		jr.logger.Error("Background job failed",
			zap.String("job", cfg.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return true
	}
	jobRuns.WithLabelValues(cfg.Name, "success").Inc()
	jr.logger.Debug("Background job finished",
		zap.String("job", cfg.Name),
		zap.Duration("elapsed", time.Since(start)),
	)
	return true
}

// safeRun turns a panicking job into an error so one bad run does not take
// the process down
func (jr *JobRunner) safeRun(ctx context.Context, name string, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			jr.logger.Error("Background job panicked", zap.String("job", name), zap.Any("panic", r))
			err = errors.New("job panicked")
		}
	}()
	return job(ctx)
}

func (jr *JobRunner) begin(name string) bool {
	jr.mu.Lock()
	defer jr.mu.Unlock()
	if _, busy := jr.running[name]; busy {
		return false
	}
	jr.running[name] = &runState{started: time.Now()}
	jobsInFlight.WithLabelValues(name).Inc()
	return true
}

func (jr *JobRunner) end(name string) {
	jr.mu.Lock()
	defer jr.mu.Unlock()
	delete(jr.running, name)
	jobsInFlight.WithLabelValues(name).Dec()
}

// Running returns how long each in-flight job has been running
func (jr *JobRunner) Running() map[string]time.Duration {
	jr.mu.Lock()
	defer jr.mu.Unlock()

	out := make(map[string]time.Duration, len(jr.running))
	for name, st := range jr.running {
		out[name] = time.Since(st.started)
	}
	return out
}

// Stop cancels every job and waits for in-flight runs until ctx is done
func (jr *JobRunner) Stop(ctx context.Context) error {
	jr.mu.Lock()
	jr.stopped = true
	jr.mu.Unlock()

	jr.cancel()

	done := make(chan struct{})
	go func() {
		jr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for name, age := range jr.Running() {
			jr.logger.Warn("Background job did not stop in time", zap.String("job", name), zap.Duration("age", age))
		}
		return ctx.Err()
	}
}
