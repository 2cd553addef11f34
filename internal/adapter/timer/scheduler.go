// Package timer runs scheduled tasks on in-process timers. Pending tasks are
// lost when the process exits; services recover them from their own state
// on startup.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type entry struct {
	timer *time.Timer
}

type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*entry
	funcs   map[string]interfaces.TaskFunc
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
	stopped bool
	logger  logger.Logger
}

func NewScheduler(logger logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		timers: make(map[string]*entry),
		funcs:  make(map[string]interfaces.TaskFunc),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

func (s *Scheduler) Register(kind string, fn interfaces.TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[kind] = fn
}

// Schedule arms a timer for task, replacing any pending timer with the
// same ID.
func (s *Scheduler) Schedule(ctx context.Context, task interfaces.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler stopped")
	}
	if _, ok := s.funcs[task.Kind]; !ok {
		return fmt.Errorf("no handler registered for task kind %q", task.Kind)
	}
	if prev, ok := s.timers[task.ID]; ok {
		prev.timer.Stop()
	}

	e := &entry{}
	e.timer = time.AfterFunc(time.Until(task.RunAt), func() {
		s.fire(e, task)
	})
	s.timers[task.ID] = e
	return nil
}

func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.timers[taskID]; ok {
		e.timer.Stop()
		delete(s.timers, taskID)
	}
	return nil
}

// Stop cancels pending timers and waits for running tasks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.running.Wait()
}

func (s *Scheduler) fire(e *entry, task interfaces.Task) {
	s.mu.Lock()
	// A replaced or cancelled timer may still fire once.
	if s.stopped || s.timers[task.ID] != e {
		s.mu.Unlock()
		return
	}
	delete(s.timers, task.ID)
	fn := s.funcs[task.Kind]
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task_panic", "Recovered from task panic", task.OrderID, map[string]interface{}{
				"task_id": task.ID,
				"kind":    task.Kind,
			}, fmt.Errorf("%v", r))
		}
	}()

	if err := fn(s.ctx, task); err != nil {
		s.logger.Error("task_failed", "Scheduled task failed", task.OrderID, map[string]interface{}{
			"task_id": task.ID,
			"kind":    task.Kind,
		}, err)
	}
}
