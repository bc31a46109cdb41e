package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/weiawesome/focus-room/pkg/log"
)

// RedisPubSub relays events with PUBLISH and (P)SUBSCRIBE. Delivery is at
// most once; instances that are down miss events.
type RedisPubSub struct {
	client     redis.UniversalClient
	ownsClient bool
	logger     zerolog.Logger

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

// NewRedisPubSub dials its own client and closes it on Close.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	r := NewRedisPubSubFromClient(client)
	r.ownsClient = true
	return r, nil
}

// NewRedisPubSubFromClient wraps a client owned by the caller.
func NewRedisPubSubFromClient(client redis.UniversalClient) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		logger: log.L().With().Str("component", "redis_pubsub").Logger(),
		subs:   make(map[string]*redis.PubSub),
	}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.attach(ctx, channel, r.client.Subscribe(ctx, channel))
}

func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.attach(ctx, pattern, r.client.PSubscribe(ctx, pattern))
}

// attach waits for the server to confirm the subscription, so an event
// published right after the call returns is not missed.
func (r *RedisPubSub) attach(ctx context.Context, name string, ps *redis.PubSub) (<-chan *Event, error) {
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", name, err)
	}

	r.mu.Lock()
	if previous := r.subs[name]; previous != nil {
		previous.Close()
	}
	r.subs[name] = ps
	r.mu.Unlock()

	out := make(chan *Event, subscriberBuffer)
	go r.forward(ctx, name, ps, out)
	return out, nil
}

// forward decodes messages from ps into out until ctx ends or ps closes.
func (r *RedisPubSub) forward(ctx context.Context, name string, ps *redis.PubSub, out chan<- *Event) {
	defer close(out)
	in := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			event, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
				continue
			}
			select {
			case out <- event:
			default:
				r.logger.Warn().Str("subscription", name).Str("event_type", event.Type).Msg("subscriber buffer full, event dropped")
			}
		}
	}
}

func (r *RedisPubSub) Unsubscribe(_ context.Context, channel string) error {
	r.mu.Lock()
	ps := r.subs[channel]
	delete(r.subs, channel)
	r.mu.Unlock()

	if ps == nil {
		return nil
	}
	return ps.Close()
}

// Close ends every subscription, and closes the client if this instance
// dialed it.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*redis.PubSub)
	r.mu.Unlock()

	for _, ps := range subs {
		ps.Close()
	}
	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}
