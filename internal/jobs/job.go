package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds a single run.
const DefaultTimeout = 5 * time.Minute

// Task is one run of a job.
type Task func(ctx context.Context) error

// Config configures a Job.
type Config struct {
	// Type labels logs and metrics, e.g. JobTypeDurationRefresh.
	Type     string
	Interval time.Duration
	// Timeout for each run. Defaults to DefaultTimeout.
	Timeout time.Duration
	// RunOnStart runs the task once before the first tick.
	RunOnStart bool
	Logger     *slog.Logger
	// Metrics may be nil.
	Metrics Reporter
}

// Job runs a Task on a ticker until stopped.
type Job struct {
	config Config
	task   Task

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a stopped job.
func New(config Config, task Task) *Job {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Job{config: config, task: task}
}

// Start launches the job loop in a goroutine. Starting a running job is a no-op.
func (j *Job) Start(ctx context.Context) error {
	if j.config.Interval <= 0 {
		return errors.New("job interval must be positive")
	}

	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the loop to exit and waits for the current run to finish.
func (j *Job) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh, doneCh := j.stopCh, j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning reports whether the loop is active.
func (j *Job) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Job) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	if j.config.RunOnStart {
		_ = j.RunNow(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("job stopping due to context cancellation", "job", j.config.Type)
			return
		case <-j.stopCh:
			j.config.Logger.Info("job stopping due to stop signal", "job", j.config.Type)
			return
		case <-ticker.C:
			_ = j.RunNow(ctx)
		}
	}
}

// RunNow runs the task once with the configured timeout and records the outcome.
func (j *Job) RunNow(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, j.config.Timeout)
	defer cancel()

	start := time.Now()
	err := j.task(ctx)
	duration := time.Since(start).Seconds()

	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		errorType := ErrorTypeTask
		if errors.Is(err, context.DeadlineExceeded) {
			errorType = ErrorTypeTimeout
		}
		j.config.Logger.Error("job failed",
			"job", j.config.Type,
			"error", err,
			"error_type", errorType,
			"duration_seconds", duration)
		if j.config.Metrics != nil {
			j.config.Metrics.IncJobErrors(j.config.Type, errorType)
		}
	}

	if j.config.Metrics != nil {
		j.config.Metrics.IncJobsTotal(j.config.Type, status)
		j.config.Metrics.ObserveJobDuration(j.config.Type, duration)
	}
	return err
}
