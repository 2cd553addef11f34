// Package consumer decodes saga events and dispatches them to the
// application services.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

// Router maps topics to handlers. It is itself an interfaces.EventHandler.
type Router struct {
	routes map[string]interfaces.EventHandler
	logger logger.Logger
}

func NewRouter(logger logger.Logger) *Router {
	return &Router{
		routes: make(map[string]interfaces.EventHandler),
		logger: logger,
	}
}

// On registers fn for topic. Payloads that do not decode into T are logged
// and skipped.
func On[T any](r *Router, topic string, fn func(ctx context.Context, evt T) error) {
	r.routes[topic] = func(ctx context.Context, msg interfaces.Message) error {
		var evt T
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			r.logger.Warn("message_parse_failed", "Skipping malformed message", msg.Key, map[string]interface{}{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
				"error":     err.Error(),
			})
			return nil
		}
		return fn(ctx, evt)
	}
}

// Raw registers a handler that reads the message itself.
func (r *Router) Raw(topic string, h interfaces.EventHandler) {
	r.routes[topic] = h
}

func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for t := range r.routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Handle dispatches msg. Missing references and illegal transitions are
// expected under redelivery and are only logged.
func (r *Router) Handle(ctx context.Context, msg interfaces.Message) error {
	h, ok := r.routes[msg.Topic]
	if !ok {
		r.logger.Debug("message_unrouted", "No handler for topic", msg.Key, map[string]interface{}{
			"topic": msg.Topic,
		})
		return nil
	}

	err := h(ctx, msg)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		r.logger.Warn("message_skipped", err.Error(), msg.Key, map[string]interface{}{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		})
		return nil
	}
	return err
}
