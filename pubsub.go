// This file contains the PubSub interface used to relay broadcast frames
// between nodes, and the LocalPubSub implementation: an in-memory
// publish-subscribe system for single-node deployments and tests.
package webui

import (
	"context"
	"sync"
)

// PubSub is the transport used to relay command frames between nodes in a
// multi-node deployment. Local delivery never goes through the PubSub; only
// frames destined for other nodes do.
type PubSub interface {
	// Subscribe registers a handler for messages published on topic.
	Subscribe(topic string, handler func(topic string, data []byte)) error

	// Publish sends data to all subscribers of topic, across all nodes.
	Publish(topic string, data []byte) error

	// Close shuts the PubSub down. Subsequent calls are no-ops.
	Close() error
}

// PubSubMessage is one message in flight through a PubSub implementation.
type PubSubMessage struct {
	Topic string
	Data  []byte
}

type pubsubClosedError struct{}

func (e *pubsubClosedError) Error() string {
	return "pubsub is closed"
}

// LocalPubSub is an in-memory PubSub suitable for single-process setups and
// tests. Each subscription runs in its own goroutine so a slow handler never
// blocks publishers; when a subscription buffer is full the message is
// dropped for that subscriber.
type LocalPubSub struct {
	mu         sync.RWMutex
	subs       map[string][]subscription
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc
	bufferSize int
}

type subscription struct {
	handler func(topic string, data []byte)

	ch     chan PubSubMessage
	cancel context.CancelFunc
}

// NewLocalPubSub creates a local in-memory PubSub. bufferSize sets the
// channel buffer per subscription and defaults to 100 when <= 0.
func NewLocalPubSub(ctx context.Context, bufferSize int) *LocalPubSub {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	pubsubCtx, cancel := context.WithCancel(ctx)

	return &LocalPubSub{
		subs:       make(map[string][]subscription),
		ctx:        pubsubCtx,
		cancel:     cancel,
		bufferSize: bufferSize,
	}
}

func (l *LocalPubSub) Subscribe(topic string, handler func(topic string, data []byte)) error {
	l.mu.Lock()

	defer l.mu.Unlock()

	if l.closed {
		return &pubsubClosedError{}
	}
	subCtx, cancel := context.WithCancel(l.ctx)

	ch := make(chan PubSubMessage, l.bufferSize)

	sub := subscription{
		handler: handler,
		ch:      ch,
		cancel:  cancel,
	}
	l.subs[topic] = append(l.subs[topic], sub)

	go l.runSubscription(subCtx, sub)

	return nil
}

func (l *LocalPubSub) runSubscription(ctx context.Context, sub subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.ch:
			sub.handler(msg.Topic, msg.Data)
		}
	}
}

func (l *LocalPubSub) Publish(topic string, data []byte) error {
	l.mu.RLock()

	defer l.mu.RUnlock()

	if l.closed {
		return &pubsubClosedError{}
	}
	msg := PubSubMessage{
		Topic: topic,
		Data:  data,
	}
	for _, sub := range l.subs[topic] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

func (l *LocalPubSub) Close() error {
	l.mu.Lock()

	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.cancel()

	for _, subs := range l.subs {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	l.subs = make(map[string][]subscription)

	return nil
}
