package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/config"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

// LastUpdateKey mirrors the most recent event so a session that was not
// subscribed at the time can still see what changed last.
const LastUpdateKey = "lastDatabaseUpdate"

// RedisBridge carries events between processes over Redis pub/sub
type RedisBridge struct {
	client    *redis.Client
	pubsub    *redis.PubSub
	channel   string
	origin    string
	listeners *listenerSet
	log       *logger.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRedisBridge connects to Redis and subscribes to channel
func NewRedisBridge(ctx context.Context, cfg config.RedisConfig, channel string, log *logger.Logger) (*RedisBridge, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	pubsub := client.Subscribe(ctx, channel)
	// Wait for the subscription to be confirmed before anything is published
	if _, err := pubsub.Receive(pingCtx); err != nil {
		_ = pubsub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	log = log.WithComponent("notify").WithField("transport", "redis")
	b := &RedisBridge{
		client:    client,
		pubsub:    pubsub,
		channel:   channel,
		origin:    newOrigin(),
		listeners: newListenerSet(log),
		log:       log,
	}

	b.wg.Add(1)
	go b.receive()

	return b, nil
}

func (b *RedisBridge) receive() {
	defer b.wg.Done()
	for msg := range b.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.log.Warning("dropping malformed sync message", "error", err)
			continue
		}
		if env.Action != string(EventDatabaseUpdate) {
			continue
		}
		b.listeners.dispatch(env.Payload)
	}
}

func (b *RedisBridge) Notify(ctx context.Context, e Event) error {
	e = stamp(e, b.origin)
	body, err := json.Marshal(wrap(e))
	if err != nil {
		return err
	}
	last, err := json.Marshal(e)
	if err != nil {
		return err
	}

	pipe := b.client.TxPipeline()
	pipe.Publish(ctx, b.channel, body)
	pipe.Set(ctx, LastUpdateKey, last, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// LastUpdate returns the most recent event published by any session, or
// nil when none has been recorded.
func (b *RedisBridge) LastUpdate(ctx context.Context) (*Event, error) {
	raw, err := b.client.Get(ctx, LastUpdateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (b *RedisBridge) OnUpdate(fn Listener) func() {
	return b.listeners.add(fn)
}

func (b *RedisBridge) Origin() string {
	return b.origin
}

func (b *RedisBridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = errors.Join(b.pubsub.Close(), b.client.Close())
		b.wg.Wait()
		b.listeners.clear()
	})
	return err
}
