package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddJobValidation(t *testing.T) {
	scheduler := NewScheduler(nil)

	err := scheduler.AddJob(NewJob("no-interval").WithTasks(func(context.Context) error { return nil }))
	if !errors.Is(err, ErrNoInterval) {
		t.Errorf("expected ErrNoInterval, got %v", err)
	}

	err = scheduler.AddJob(NewJob("no-tasks").WithInterval(time.Second))
	if !errors.Is(err, ErrNoTasks) {
		t.Errorf("expected ErrNoTasks, got %v", err)
	}
}

func TestRunExecutesDueJobs(t *testing.T) {
	scheduler := NewScheduler(nil).WithTick(5 * time.Millisecond)

	var runs atomic.Int32
	job := NewJob("count").
		WithInterval(10 * time.Millisecond).
		WithExecuteAt(time.Now()).
		WithTasks(func(context.Context) error {
			runs.Add(1)
			return nil
		})
	if err := scheduler.AddJob(job); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := scheduler.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if runs.Load() < 2 {
		t.Errorf("expected the job to run repeatedly, ran %d times", runs.Load())
	}
	if job.PreviousExecuteAt().IsZero() {
		t.Error("expected previous execution time to be recorded")
	}
}

func TestRetriesAndPanics(t *testing.T) {
	scheduler := NewScheduler(nil)

	var attempts atomic.Int32
	job := NewJob("flaky").
		WithInterval(time.Minute).
		WithRetries(2).
		WithTasks(
			func(context.Context) error {
				if attempts.Add(1) < 3 {
					return errors.New("not yet")
				}
				return nil
			},
			func(context.Context) error {
				panic("boom")
			},
		)

	scheduler.executeJob(context.Background(), job, time.Now())

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestTaskTimeout(t *testing.T) {
	scheduler := NewScheduler(nil)

	err := scheduler.executeTask(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 10*time.Millisecond)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
