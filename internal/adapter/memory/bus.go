package memory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

var ErrBusClosed = errors.New("bus is closed")

type subscription struct {
	topics   []string
	handlers []interfaces.EventHandler
}

// Bus is an in-process event log. Messages are delivered in publish order,
// one at a time, to one handler of every subscribed group. Members of a
// group split keys by hash the way partitions split them on a broker.
type Bus struct {
	mu     sync.Mutex
	queue  []interfaces.Message
	groups map[string]*subscription
	offset int64
	closed bool
	notify chan struct{}
	logger logger.Logger
}

func NewBus(logger logger.Logger) *Bus {
	return &Bus{
		groups: make(map[string]*subscription),
		notify: make(chan struct{}, 1),
		logger: logger,
	}
}

func (b *Bus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	b.offset++
	b.queue = append(b.queue, interfaces.Message{
		Topic:  topic,
		Key:    key,
		Value:  slices.Clone(payload),
		Offset: b.offset,
	})

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// Subscribe adds handler to groupID. Messages published before the first
// Drain are delivered too.
func (b *Bus) Subscribe(ctx context.Context, topics []string, groupID string, handler interfaces.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	sub, ok := b.groups[groupID]
	if !ok {
		sub = &subscription{topics: slices.Clone(topics)}
		b.groups[groupID] = sub
	}
	for _, t := range topics {
		if !slices.Contains(sub.topics, t) {
			sub.topics = append(sub.topics, t)
		}
	}
	sub.handlers = append(sub.handlers, handler)
	return nil
}

// Drain delivers queued messages until the queue is empty, including
// messages published by the handlers themselves. It returns the number of
// messages taken off the queue.
func (b *Bus) Drain(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		msg, targets, ok := b.next()
		if !ok {
			return n
		}
		n++
		for _, h := range targets {
			b.deliver(ctx, h, msg)
		}
	}
	return n
}

// Run drains the queue whenever something is published until ctx ends.
func (b *Bus) Run(ctx context.Context) {
	for {
		b.Drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-b.notify:
		}
	}
}

// Pending returns the number of undelivered messages.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Bus) next() (interfaces.Message, []interfaces.EventHandler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return interfaces.Message{}, nil, false
	}
	msg := b.queue[0]
	b.queue = b.queue[1:]

	var targets []interfaces.EventHandler
	for _, sub := range b.groups {
		if !slices.Contains(sub.topics, msg.Topic) || len(sub.handlers) == 0 {
			continue
		}
		targets = append(targets, sub.handlers[partition(msg.Key, len(sub.handlers))])
	}
	return msg, targets, true
}

func (b *Bus) deliver(ctx context.Context, h interfaces.EventHandler, msg interfaces.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler_panic", "Recovered from handler panic", msg.Key, map[string]interface{}{
				"topic":  msg.Topic,
				"offset": msg.Offset,
			}, fmt.Errorf("%v", r))
		}
	}()

	if err := h(ctx, msg); err != nil {
		b.logger.Error("handler_failed", "Failed to handle message", msg.Key, map[string]interface{}{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}, err)
	}
}

func partition(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
