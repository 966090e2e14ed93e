package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNoInterval = errors.New("schedule: job interval must be greater than 0")
	ErrNoTasks    = errors.New("schedule: job must have at least one task")
)

// Task is one unit of periodic work. It should return when ctx is done.
type Task func(ctx context.Context) error

type Scheduler struct {
	jobs   []*Job
	mu     sync.RWMutex
	tick   time.Duration
	logger *slog.Logger
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:   make([]*Job, 0),
		tick:   time.Second,
		logger: logger,
	}
}

// WithTick sets how often jobs are checked for being due.
func (scheduler *Scheduler) WithTick(tick time.Duration) *Scheduler {
	scheduler.tick = tick
	return scheduler
}

func (scheduler *Scheduler) AddJob(job *Job) error {
	if err := job.validate(); err != nil {
		return fmt.Errorf("schedule: invalid job %q: %w", job.name, err)
	}

	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	scheduler.jobs = append(scheduler.jobs, job)
	return nil
}

type Job struct {
	tasks             []Task
	interval          time.Duration
	nextExecuteAt     time.Time
	previousExecuteAt time.Time
	name              string
	maxRetries        int
	timeout           time.Duration
	running           atomic.Bool
	mu                sync.RWMutex
}

func NewJob(name string) *Job {
	return &Job{
		name:  name,
		tasks: make([]Task, 0),
	}
}

func (job *Job) WithTasks(tasks ...Task) *Job {
	job.tasks = tasks
	return job
}

func (job *Job) WithInterval(interval time.Duration) *Job {
	job.interval = interval
	return job
}

func (job *Job) WithExecuteAt(executeAt time.Time) *Job {
	job.nextExecuteAt = executeAt
	return job
}

// WithTimeout bounds each task attempt.
func (job *Job) WithTimeout(timeout time.Duration) *Job {
	job.timeout = timeout
	return job
}

// WithRetries retries a failing task up to maxRetries more times.
func (job *Job) WithRetries(maxRetries int) *Job {
	job.maxRetries = maxRetries
	return job
}

func (job *Job) AddTask(task Task) {
	job.tasks = append(job.tasks, task)
}

func (job *Job) Name() string {
	return job.name
}

// PreviousExecuteAt is the start of the last completed run.
func (job *Job) PreviousExecuteAt() time.Time {
	job.mu.RLock()
	defer job.mu.RUnlock()
	return job.previousExecuteAt
}

func (job *Job) validate() error {
	if job.interval <= 0 {
		return ErrNoInterval
	}
	if len(job.tasks) == 0 {
		return ErrNoTasks
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	if job.nextExecuteAt.IsZero() {
		job.nextExecuteAt = time.Now().Add(job.interval)
	}
	return nil
}

// Run checks for due jobs every tick until ctx is done. Jobs run in their
// own goroutine; a job still running when it is due again is skipped.
func (scheduler *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(scheduler.tick)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ticker.C:
			scheduler.mu.RLock()
			jobs := make([]*Job, len(scheduler.jobs))
			copy(jobs, scheduler.jobs)
			scheduler.mu.RUnlock()

			now := time.Now()
			for _, job := range jobs {
				if !job.shouldExecute(now) || !job.running.CompareAndSwap(false, true) {
					continue
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer job.running.Store(false)
					scheduler.executeJob(ctx, job, now)
				}()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (job *Job) shouldExecute(now time.Time) bool {
	job.mu.RLock()
	defer job.mu.RUnlock()
	return !job.nextExecuteAt.After(now)
}

func (job *Job) updateNextExecution(now time.Time) {
	job.mu.Lock()
	defer job.mu.Unlock()
	job.previousExecuteAt = now
	job.nextExecuteAt = now.Add(job.interval)
}

func (scheduler *Scheduler) executeJob(ctx context.Context, job *Job, now time.Time) {
	defer job.updateNextExecution(now)

	for i, task := range job.tasks {
		var err error
		for attempt := 0; attempt <= job.maxRetries; attempt++ {
			if err = scheduler.executeTask(ctx, task, job.timeout); err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
		}
		if err != nil {
			scheduler.logger.ErrorContext(ctx, "task execution failed",
				"job", job.name,
				"task", i,
				"attempts", job.maxRetries+1,
				"error", err)
		}
	}
}

func (scheduler *Scheduler) executeTask(ctx context.Context, task Task, timeout time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("schedule: task panic: %v", r)
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return task(ctx)
}
