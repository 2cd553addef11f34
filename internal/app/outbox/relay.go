package outbox

import (
	"context"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

// Relay publishes the outbox rows one service wrote, in write order.
type Relay struct {
	repo      interfaces.OutboxRepository
	publisher interfaces.EventPublisher
	source    string
	batch     int
	interval  time.Duration
	logger    logger.Logger
}

func NewRelay(
	repo interfaces.OutboxRepository,
	publisher interfaces.EventPublisher,
	source string,
	batch int,
	interval time.Duration,
	logger logger.Logger,
) *Relay {
	if batch <= 0 {
		batch = 100
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Relay{
		repo:      repo,
		publisher: publisher,
		source:    source,
		batch:     batch,
		interval:  interval,
		logger:    logger,
	}
}

// Flush publishes pending events until the outbox is empty or a publish
// fails. The failed event stays pending for the next poll.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.repo.Dispatch(ctx, r.source, r.batch, func(e interfaces.OutboxEvent) error {
			return r.publisher.Publish(ctx, e.Topic, e.Key, e.Payload)
		})
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batch {
			return total, nil
		}
	}
}

// Run polls the outbox until ctx ends, then makes one last flush.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := r.Flush(flushCtx); err != nil {
				r.logger.Warn("outbox_final_flush_failed", "Unpublished events remain in outbox", "", map[string]interface{}{
					"source": r.source,
					"error":  err.Error(),
				})
			}
			cancel()
			return
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil {
				r.logger.Error("outbox_publish_failed", "Failed to publish outbox events", "", map[string]interface{}{
					"source":    r.source,
					"published": n,
				}, err)
				continue
			}
			if n > 0 {
				r.logger.Debug("outbox_published", "Outbox events published", "", map[string]interface{}{
					"source": r.source,
					"count":  n,
				})
			}
		}
	}
}
