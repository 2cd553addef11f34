// Package redis keeps scheduled tasks in Redis so pending timers survive a
// restart. Due tasks are claimed with ZREM; only the instance whose ZREM
// removed the member runs the task.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/config"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
	"github.com/go-redis/redis/v8"
)

const claimBatch = 100

func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// Scheduler stores tasks in a sorted set scored by due time and a hash of
// task bodies. namespace keeps the task kinds of one service apart from
// another's.
type Scheduler struct {
	rdb      *redis.Client
	dueKey   string
	dataKey  string
	interval time.Duration
	logger   logger.Logger

	mu    sync.RWMutex
	funcs map[string]interfaces.TaskFunc

	cancel  context.CancelFunc
	loop    sync.WaitGroup
	running sync.WaitGroup
}

func NewScheduler(rdb *redis.Client, namespace string, interval time.Duration, logger logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		rdb:      rdb,
		dueKey:   "foodsaga:scheduler:" + namespace + ":due",
		dataKey:  "foodsaga:scheduler:" + namespace + ":tasks",
		interval: interval,
		logger:   logger,
		funcs:    make(map[string]interfaces.TaskFunc),
		cancel:   cancel,
	}
	s.loop.Add(1)
	go s.poll(ctx)
	return s
}

func (s *Scheduler) Register(kind string, fn interfaces.TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[kind] = fn
}

func (s *Scheduler) Schedule(ctx context.Context, task interfaces.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.dataKey, task.ID, body)
		pipe.ZAdd(ctx, s.dueKey, &redis.Z{
			Score:  float64(task.RunAt.UnixMilli()),
			Member: task.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to schedule task %s: %w", task.ID, err)
	}
	return nil
}

func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.dueKey, taskID)
		pipe.HDel(ctx, s.dataKey, taskID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cancel task %s: %w", taskID, err)
	}
	return nil
}

// Stop ends polling and waits for running tasks. Pending tasks stay in
// Redis for the next start.
func (s *Scheduler) Stop() {
	s.cancel()
	s.loop.Wait()
	s.running.Wait()
}

func (s *Scheduler) poll(ctx context.Context) {
	defer s.loop.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.claimDue(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduler_poll_failed", "Failed to poll due tasks", "", nil, err)
			}
		}
	}
}

func (s *Scheduler) claimDue(ctx context.Context) error {
	ids, err := s.rdb.ZRangeByScore(ctx, s.dueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: claimBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read due tasks: %w", err)
	}

	for _, id := range ids {
		removed, err := s.rdb.ZRem(ctx, s.dueKey, id).Result()
		if err != nil {
			return fmt.Errorf("failed to claim task %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}

		task, err := s.load(ctx, id)
		if err != nil {
			s.logger.Error("scheduler_task_lost", "Claimed task has no body", "", map[string]interface{}{"task_id": id}, err)
			continue
		}

		s.running.Add(1)
		go s.run(ctx, task)
	}
	return nil
}

func (s *Scheduler) load(ctx context.Context, id string) (interfaces.Task, error) {
	var task interfaces.Task

	body, err := s.rdb.HGet(ctx, s.dataKey, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return task, fmt.Errorf("task %s body missing", id)
		}
		return task, err
	}
	if err := json.Unmarshal(body, &task); err != nil {
		return task, fmt.Errorf("failed to decode task %s: %w", id, err)
	}

	// Keep the body if the task was scheduled again after the claim.
	if err := s.rdb.ZScore(ctx, s.dueKey, id).Err(); errors.Is(err, redis.Nil) {
		s.rdb.HDel(ctx, s.dataKey, id)
	}
	return task, nil
}

func (s *Scheduler) run(ctx context.Context, task interfaces.Task) {
	defer s.running.Done()

	s.mu.RLock()
	fn := s.funcs[task.Kind]
	s.mu.RUnlock()

	if fn == nil {
		s.logger.Warn("task_unknown_kind", "No handler for task", task.OrderID, map[string]interface{}{
			"task_id": task.ID,
			"kind":    task.Kind,
		})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task_panic", "Recovered from task panic", task.OrderID, map[string]interface{}{
				"task_id": task.ID,
			}, fmt.Errorf("%v", r))
		}
	}()

	if err := fn(ctx, task); err != nil {
		s.logger.Error("task_failed", "Scheduled task failed", task.OrderID, map[string]interface{}{
			"task_id": task.ID,
			"kind":    task.Kind,
		}, err)
	}
}
