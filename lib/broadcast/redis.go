package broadcast

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	roomPattern    = "deployment-*"
	relayQueueSize = 1024
	publishTimeout = 2 * time.Second
	minRetryDelay  = time.Second
	maxRetryDelay  = 30 * time.Second
)

// RedisRelay publishes events through Redis pub/sub so that every API
// instance can serve live tails, whichever instance runs the attempt.
//
// Publish only queues the event. Run drains the queue in order from a single
// goroutine and keeps a pattern subscription open, re-subscribing after
// connection loss. While Redis cannot be reached events are delivered to the
// local hub directly.
type RedisRelay struct {
	client *redis.Client
	local  *Hub
	log    *logrus.Entry
	onDrop func()

	queue      chan Event
	retry      time.Duration
	subscribed atomic.Bool
	stopped    atomic.Bool
}

// NewRedisRelay wires a Redis client to the local hub. onDrop, if set, is
// called for every event discarded because the queue is full.
func NewRedisRelay(client *redis.Client, local *Hub, log *logrus.Entry, onDrop func()) *RedisRelay {
	return &RedisRelay{
		client: client,
		local:  local,
		log:    log,
		onDrop: onDrop,
		queue:  make(chan Event, relayQueueSize),
		retry:  minRetryDelay,
	}
}

// Publish queues evt for Redis. It never blocks: when the queue is full the
// event is dropped.
func (r *RedisRelay) Publish(evt Event) {
	if r.stopped.Load() {
		r.local.Publish(evt)
		return
	}
	select {
	case r.queue <- evt:
	default:
		if r.onDrop != nil {
			r.onDrop()
		}
		r.log.WithField("deployment_id", evt.DeploymentID).Warn("relay queue full, event dropped")
	}
}

// Run sends queued events and forwards events received from Redis into the
// local hub until ctx ends. Lost subscriptions are re-established with a
// growing delay.
func (r *RedisRelay) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.send(ctx)
	}()
	defer func() {
		<-done
		r.stopped.Store(true)
		r.flush()
	}()

	delay := r.retry
	for {
		received, err := r.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			delay = r.retry
		}
		r.log.WithError(err).WithField("retry_in", delay.String()).Warn("⚠️ Redis subscription lost")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// subscribe holds one pattern subscription until it fails. received reports
// whether the subscription was confirmed by the server.
func (r *RedisRelay) subscribe(ctx context.Context) (received bool, err error) {
	pubsub := r.client.PSubscribe(ctx, roomPattern)
	defer pubsub.Close()
	// ReceiveMessage does not watch ctx; closing the subscription unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
	defer stop()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, err
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.log.WithField("pattern", roomPattern).Info("📡 Relaying deployment events through Redis")

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return true, err
		}
		evt, err := decodeEvent(msg.Payload)
		if err != nil {
			r.log.WithError(err).WithField("channel", msg.Channel).Warn("discarding malformed event")
			continue
		}
		r.local.Publish(evt)
	}
}

func (r *RedisRelay) send(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-r.queue:
			r.forward(ctx, evt)
		}
	}
}

// forward publishes one event. Without a live subscription this instance
// would not hear its own event back, so it is delivered locally as well.
func (r *RedisRelay) forward(ctx context.Context, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		r.log.WithError(err).Error("encode event")
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	err = r.client.Publish(pubCtx, Room(evt.DeploymentID), payload).Err()
	cancel()
	if err != nil {
		r.log.WithError(err).Debug("redis publish failed, delivering locally")
		r.local.Publish(evt)
		return
	}
	if !r.subscribed.Load() {
		r.local.Publish(evt)
	}
}

// flush hands events still queued at shutdown to the local hub.
func (r *RedisRelay) flush() {
	for {
		select {
		case evt := <-r.queue:
			r.local.Publish(evt)
		default:
			return
		}
	}
}

func decodeEvent(payload string) (Event, error) {
	var evt Event
	err := json.Unmarshal([]byte(payload), &evt)
	return evt, err
}
