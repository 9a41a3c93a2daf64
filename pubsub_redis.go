// This file contains the RedisPubSub implementation which relays broadcast
// frames between nodes through Redis channels, for deployments running more
// than one backend process behind a load balancer.
package webui

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub implements PubSub on top of Redis publish/subscribe. Every
// node subscribed to the same topic receives each published frame exactly
// once per subscription.
type RedisPubSub struct {
	client redis.UniversalClient
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	subs   []*redis.PubSub
	wg     sync.WaitGroup
	closed bool
}

// NewRedisPubSub creates a Redis-backed PubSub using the given client. The
// client is pinged once to surface connectivity problems at construction
// time rather than on first publish.
func NewRedisPubSub(ctx context.Context, client redis.UniversalClient) (*RedisPubSub, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, wrapF(err, "failed to reach redis")
	}
	pubsubCtx, cancel := context.WithCancel(ctx)

	return &RedisPubSub{
		client: client,
		ctx:    pubsubCtx,
		cancel: cancel,
	}, nil
}

func (r *RedisPubSub) Subscribe(topic string, handler func(topic string, data []byte)) error {
	r.mu.Lock()

	defer r.mu.Unlock()

	if r.closed {
		return &pubsubClosedError{}
	}
	sub := r.client.Subscribe(r.ctx, topic)

	// Force the subscription onto the wire before returning, so a Publish
	// immediately after Subscribe is not lost.
	if _, err := sub.Receive(r.ctx); err != nil {
		_ = sub.Close()

		return wrapF(err, "failed to subscribe to %s", topic)
	}
	r.subs = append(r.subs, sub)

	r.wg.Add(1)

	go r.runSubscription(sub, handler)

	return nil
}

func (r *RedisPubSub) runSubscription(sub *redis.PubSub, handler func(topic string, data []byte)) {
	defer r.wg.Done()

	ch := sub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (r *RedisPubSub) Publish(topic string, data []byte) error {
	r.mu.Lock()

	closed := r.closed

	r.mu.Unlock()

	if closed {
		return &pubsubClosedError{}
	}
	if err := r.client.Publish(r.ctx, topic, data).Err(); err != nil {
		return wrapF(err, "failed to publish to %s", topic)
	}
	return nil
}

func (r *RedisPubSub) Close() error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return nil
	}
	r.closed = true
	subs := r.subs

	r.subs = nil

	r.mu.Unlock()

	r.cancel()

	var errs error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = addError(errs, err)
		}
	}
	r.wg.Wait()

	return errs
}
