package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weiawesome/focus-room/pkg/log"
)

const (
	kafkaPollMillis  = 500
	kafkaFlushMillis = 5000
)

// channelTopic maps "{prefix}:{id}:{suffix}" to topic "{prefix}-{suffix}"
// with id as the message key, so one room or user stays on one partition.
//
//	"room:R1:signal" -> "room-signal", "R1"
func channelTopic(channel string) (topic, key string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}
	return parts[0] + "-" + strings.ReplaceAll(parts[2], "_", "-"), parts[1], nil
}

// patternTopic maps "{prefix}:*:{suffix}" to the topic carrying every id.
func patternTopic(pattern string) (string, error) {
	parts := strings.Split(pattern, ":")
	if len(parts) != 3 || parts[1] != "*" {
		return "", fmt.Errorf("%w: pattern %q", ErrInvalidChannel, pattern)
	}
	topic, _, err := channelTopic(parts[0] + ":any:" + parts[2])
	return topic, err
}

// groupSafe replaces runes Kafka rejects in group ids.
func groupSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '-'
	}, s)
}

type kafkaSub struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *kafkaSub) stop() {
	s.cancel()
	<-s.done
}

// KafkaPubSub relays events through Kafka topics. Each subscription joins
// its own consumer group so every instance sees every event, the same
// fan-out Redis pub/sub gives.
type KafkaPubSub struct {
	cfg         KafkaConfig
	producer    *kafka.Producer
	groupPrefix string
	logger      zerolog.Logger

	mu   sync.Mutex
	subs map[string]*kafkaSub

	reportsDone chan struct{}
}

func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.GroupID == "" {
		cfg.GroupID = "focus-room"
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 4
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = DefaultTopics
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		cfg:         cfg,
		producer:    producer,
		groupPrefix: cfg.GroupID + "-" + uuid.NewString()[:8],
		logger:      log.L().With().Str("component", "kafka_pubsub").Logger(),
		subs:        make(map[string]*kafkaSub),
		reportsDone: make(chan struct{}),
	}
	go k.watchDeliveries()

	if err := k.createTopics(); err != nil {
		k.logger.Warn().Err(err).Msg("could not create kafka topics")
	}
	return k, nil
}

func (k *KafkaPubSub) createTopics() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("admin client: %w", err)
	}
	defer admin.Close()

	specs := make([]kafka.TopicSpecification, len(k.cfg.Topics))
	for i, name := range k.cfg.Topics {
		specs[i] = kafka.TopicSpecification{Topic: name, NumPartitions: k.cfg.Partitions, ReplicationFactor: 1}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return err
	}
	for _, r := range results {
		switch r.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			k.logger.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("failed to create kafka topic")
		}
	}
	return nil
}

func (k *KafkaPubSub) watchDeliveries() {
	defer close(k.reportsDone)
	for ev := range k.producer.Events() {
		if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			k.logger.Warn().Err(m.TopicPartition.Error).Msg("kafka delivery failed")
		}
	}
}

// Publish is asynchronous. Delivery failures are logged by watchDeliveries.
func (k *KafkaPubSub) Publish(_ context.Context, channel string, event *Event) error {
	topic, key, err := channelTopic(channel)
	if err != nil {
		return err
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", topic, err)
	}
	return nil
}

// Subscribe consumes the channel's topic and keeps only messages keyed by
// the channel's id.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	topic, key, err := channelTopic(channel)
	if err != nil {
		return nil, err
	}
	return k.subscribe(ctx, channel, topic, key)
}

// SubscribePattern consumes every message on the pattern's topic.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	topic, err := patternTopic(pattern)
	if err != nil {
		return nil, err
	}
	return k.subscribe(ctx, pattern, topic, "")
}

func (k *KafkaPubSub) subscribe(ctx context.Context, name, topic, key string) (<-chan *Event, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       k.cfg.Brokers,
		"group.id":                k.groupPrefix + "-" + groupSafe(name),
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := consumer.Subscribe(topic, nil); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSub{cancel: cancel, done: make(chan struct{})}
	out := make(chan *Event, subscriberBuffer)

	k.mu.Lock()
	previous := k.subs[name]
	k.subs[name] = sub
	k.mu.Unlock()
	if previous != nil {
		previous.stop()
	}

	go k.poll(subCtx, sub, consumer, key, out)
	return out, nil
}

// poll owns consumer and closes it, and out, when ctx ends.
func (k *KafkaPubSub) poll(ctx context.Context, sub *kafkaSub, consumer *kafka.Consumer, key string, out chan<- *Event) {
	defer close(sub.done)
	defer close(out)
	defer consumer.Close()

	for ctx.Err() == nil {
		switch e := consumer.Poll(kafkaPollMillis).(type) {
		case *kafka.Message:
			if key != "" && string(e.Key) != key {
				continue
			}
			event, err := decodeEvent(e.Value)
			if err != nil {
				k.logger.Warn().Err(err).Str("topic", *e.TopicPartition.Topic).Msg("dropping malformed kafka event")
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			default:
				k.logger.Warn().Str("event_type", event.Type).Msg("subscriber buffer full, event dropped")
			}
		case kafka.Error:
			k.logger.Error().Str("error", e.String()).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				return
			}
		}
	}
}

func (k *KafkaPubSub) Unsubscribe(_ context.Context, channel string) error {
	k.mu.Lock()
	sub := k.subs[channel]
	delete(k.subs, channel)
	k.mu.Unlock()

	if sub != nil {
		sub.stop()
	}
	return nil
}

// Close stops every subscription, flushes queued messages and closes the
// producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	subs := k.subs
	k.subs = make(map[string]*kafkaSub)
	k.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}

	if remaining := k.producer.Flush(kafkaFlushMillis); remaining > 0 {
		k.logger.Warn().Int("remaining", remaining).Msg("kafka producer closed with undelivered messages")
	}
	k.producer.Close()
	<-k.reportsDone
	return nil
}
