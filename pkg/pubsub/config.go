package pubsub

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTopics are the Kafka topics the channel helpers map to.
var DefaultTopics = []string{"room-signal", "user-events"}

// Config selects the driver. "memory" only reaches clients connected to
// the same process.
type Config struct {
	Driver string      `mapstructure:"driver"` // redis, kafka, memory
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

// RedisConfig is used only when no shared client is passed to NewPubSub.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type KafkaConfig struct {
	Brokers    string   `mapstructure:"brokers"`
	GroupID    string   `mapstructure:"group_id"`
	Partitions int      `mapstructure:"partitions"`
	Topics     []string `mapstructure:"topics"`
}

// NewPubSub builds the configured driver. The redis driver reuses shared
// when it is non-nil, so caches, presence and pub/sub share one pool.
func NewPubSub(cfg Config, shared redis.UniversalClient) (PubSub, error) {
	switch cfg.Driver {
	case "redis", "":
		if shared != nil {
			return NewRedisPubSubFromClient(shared), nil
		}
		return NewRedisPubSub(cfg.Redis)
	case "kafka":
		return NewKafkaPubSub(cfg.Kafka)
	case "memory":
		return NewMemoryPubSub(), nil
	default:
		return nil, fmt.Errorf("unsupported pubsub driver: %s", cfg.Driver)
	}
}
