package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/config"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

// Subscriber runs one consumer group session per Subscribe call. Each
// partition is consumed sequentially by its own goroutine, so messages of one
// order are never handled concurrently.
type Subscriber struct {
	cfg    config.KafkaConfig
	logger logger.Logger

	mu     sync.Mutex
	groups []sarama.ConsumerGroup
	wg     sync.WaitGroup
}

func NewSubscriber(cfg config.KafkaConfig, logger logger.Logger) *Subscriber {
	return &Subscriber{cfg: cfg, logger: logger}
}

func (s *Subscriber) Subscribe(ctx context.Context, topics []string, groupID string, handler interfaces.EventHandler) error {
	saramaConfig := newSaramaConfig(s.cfg)
	saramaConfig.Consumer.Return.Errors = true
	if s.cfg.SessionTimeout > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = s.cfg.SessionTimeout
	} else {
		saramaConfig.Consumer.Group.Session.Timeout = 45 * time.Second
	}
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	if s.cfg.InitialOffset == "newest" {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	group, err := sarama.NewConsumerGroup(s.cfg.Brokers, groupID, saramaConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer group %s: %w", groupID, err)
	}

	s.mu.Lock()
	s.groups = append(s.groups, group)
	s.mu.Unlock()

	h := &groupHandler{groupID: groupID, handler: handler, logger: s.logger}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		for err := range group.Errors() {
			s.logger.Error("consumer_group_error", "Consumer group error", "", map[string]interface{}{
				"group": groupID,
			}, err)
		}
	}()
	go func() {
		defer s.wg.Done()
		for {
			// Consume returns on every rebalance and must be called again.
			if err := group.Consume(ctx, topics, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				s.logger.Error("consume_failed", "Consumer session ended with error", "", map[string]interface{}{
					"group":  groupID,
					"topics": topics,
				}, err)
			}
			if ctx.Err() != nil {
				s.logger.Info("consumer_stopped", "Consumer shutting down", "", map[string]interface{}{
					"group": groupID,
				})
				return
			}
		}
	}()

	s.logger.Info("consumer_started", "Subscribed to topics", "", map[string]interface{}{
		"group":   groupID,
		"topics":  topics,
		"brokers": s.cfg.Brokers,
	})
	return nil
}

// Close leaves every group and waits for in-flight handlers.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	groups := s.groups
	s.groups = nil
	s.mu.Unlock()

	var errs []error
	for _, g := range groups {
		if err := g.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()
	return errors.Join(errs...)
}

type groupHandler struct {
	groupID string
	handler interfaces.EventHandler
	logger  logger.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case m, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handle(session.Context(), m)
			session.MarkMessage(m, "")
		}
	}
}

// handle never lets a handler failure stop the partition.
func (h *groupHandler) handle(ctx context.Context, m *sarama.ConsumerMessage) {
	msg := interfaces.Message{
		Topic:     m.Topic,
		Key:       string(m.Key),
		Value:     m.Value,
		Partition: m.Partition,
		Offset:    m.Offset,
	}
	details := map[string]interface{}{
		"group":     h.groupID,
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("handler_panic", "Recovered from handler panic", msg.Key, details, fmt.Errorf("%v", r))
		}
	}()

	if err := h.handler(ctx, msg); err != nil {
		h.logger.Error("handler_failed", "Failed to handle message", msg.Key, details, err)
	}
}
