package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

// Scheduler keeps tasks until the caller runs them with RunDue or RunAll.
// Tests use it to step through timers deterministically.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]interfaces.Task
	funcs  map[string]interfaces.TaskFunc
	logger logger.Logger
}

func NewScheduler(logger logger.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]interfaces.Task),
		funcs:  make(map[string]interfaces.TaskFunc),
		logger: logger,
	}
}

func (s *Scheduler) Register(kind string, fn interfaces.TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[kind] = fn
}

func (s *Scheduler) Schedule(ctx context.Context, task interfaces.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.tasks)
}

// Pending returns the scheduled tasks ordered by run time.
func (s *Scheduler) Pending() []interfaces.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(interfaces.Task) bool { return true })
}

// RunDue runs every task due at now and returns how many ran.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) int {
	return s.run(ctx, func(t interfaces.Task) bool { return !t.RunAt.After(now) })
}

// RunAll runs every scheduled task regardless of its run time. Tasks
// scheduled while running wait for the next call.
func (s *Scheduler) RunAll(ctx context.Context) int {
	return s.run(ctx, func(interfaces.Task) bool { return true })
}

func (s *Scheduler) run(ctx context.Context, due func(interfaces.Task) bool) int {
	s.mu.Lock()
	batch := s.sorted(due)
	for _, t := range batch {
		delete(s.tasks, t.ID)
	}
	s.mu.Unlock()

	for _, t := range batch {
		s.mu.Lock()
		fn := s.funcs[t.Kind]
		s.mu.Unlock()

		if fn == nil {
			s.logger.Warn("task_unknown_kind", "No handler for task", t.OrderID, map[string]interface{}{
				"task_id": t.ID,
				"kind":    t.Kind,
			})
			continue
		}
		if err := fn(ctx, t); err != nil {
			s.logger.Error("task_failed", "Scheduled task failed", t.OrderID, map[string]interface{}{
				"task_id": t.ID,
				"kind":    t.Kind,
			}, err)
		}
	}
	return len(batch)
}

// sorted must be called with mu held.
func (s *Scheduler) sorted(keep func(interfaces.Task) bool) []interfaces.Task {
	var out []interfaces.Task
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RunAt.Equal(out[j].RunAt) {
			return out[i].RunAt.Before(out[j].RunAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
