package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// Task is a long-running loop owned by the Scheduler. Run must return once its
// context is cancelled.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs tasks in their own goroutines under one shared cancellation.
type Scheduler struct {
	tasks  []Task
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errs   *multierror.Error
}

// NewScheduler creates a Scheduler for tasks.
func NewScheduler(tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks}
}

// Start launches every task. Tasks inherit values but not cancellation from ctx:
// they stop on Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.run(runCtx, task)
	}
	logger.Infof("Scheduler started %d task(s).", len(s.tasks))
	return nil
}

func (s *Scheduler) run(ctx context.Context, task Task) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.record(fmt.Errorf("task %s panicked: %v", task.Name, r))
		}
	}()
	if err := task.Run(ctx); err != nil {
		s.record(fmt.Errorf("task %s: %w", task.Name, err))
	}
}

func (s *Scheduler) record(err error) {
	logger.Errorf("%v", err)
	s.mu.Lock()
	s.errs = multierror.Append(s.errs, err)
	s.mu.Unlock()
}

// Stop cancels every task and waits for them, or for ctx to end. The returned
// error collects the task failures.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
	logger.Infof("Scheduler stopped.")

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs.ErrorOrNil()
}
