package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/focus-room/pkg/config"
	"github.com/weiawesome/focus-room/pkg/database"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
	"github.com/weiawesome/focus-room/pkg/storage"
)

type Config struct {
	Server    ServerConfig
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  database.Config
	Redis     RedisConfig
	Cache     CacheConfig
	JWT       JWTConfig       `mapstructure:"jwt"`
	Tiers     TiersConfig
	Rooms     RoomsConfig
	Storage   storage.Config
	PubSub    pubsub.Config   `mapstructure:"pubsub"`
	Messages  MessagesConfig
	Cassandra CassandraConfig
	Search    SearchConfig
	OIDC      OIDCConfig      `mapstructure:"oidc"`
	WebRTC    WebRTCConfig    `mapstructure:"webrtc"`
	IDs       IDsConfig       `mapstructure:"ids"`
	WebSocket WebSocketConfig
	Log       log.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type GRPCConfig struct {
	Enabled bool
	Port    int
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Prefix       string        `mapstructure:"prefix"`
	UserTTL      time.Duration `mapstructure:"user_ttl"`
	DashboardTTL time.Duration `mapstructure:"dashboard_ttl"`
	MessageTTL   time.Duration `mapstructure:"message_ttl"`
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	AccessDuration  time.Duration `mapstructure:"access_duration"`
	RefreshDuration time.Duration `mapstructure:"refresh_duration"`
}

// TierLimit is the entitlement set of one tier.
type TierLimit struct {
	MaxParticipants int  `mapstructure:"max_participants"`
	MaxTodos        int  `mapstructure:"max_todos"` // open todos; 0 means unlimited
	PrivateRooms    bool `mapstructure:"private_rooms"`
	MaxOpenRooms    int  `mapstructure:"max_open_rooms"`
}

type TiersConfig struct {
	Guest   TierLimit
	Free    TierLimit
	Premium TierLimit
}

// For returns the limits of tier. Unknown tiers get the guest limits.
func (t TiersConfig) For(tier string) TierLimit {
	switch tier {
	case "premium":
		return t.Premium
	case "free":
		return t.Free
	default:
		return t.Guest
	}
}

type RoomsConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

type MessagesConfig struct {
	Store         string        `mapstructure:"store"` // "gorm" or "cassandra"
	MaxMediaSize  int64         `mapstructure:"max_media_size"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
	URLExpiry     time.Duration `mapstructure:"url_expiry"`
}

type CassandraConfig struct {
	Hosts       []string
	Keyspace    string
	Consistency string
	Timeout     time.Duration
}

type SearchConfig struct {
	Driver       string   `mapstructure:"driver"` // "sql" or "elasticsearch"
	Addresses    []string `mapstructure:"addresses"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	Index        string   `mapstructure:"index"`
	DefaultLimit int      `mapstructure:"default_limit"`
	MaxLimit     int      `mapstructure:"max_limit"`
}

type OIDCConfig struct {
	IssuerURL    string `mapstructure:"issuer_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// Enabled reports whether single sign-on is configured.
func (c OIDCConfig) Enabled() bool {
	return c.IssuerURL != "" && c.ClientID != ""
}

type WebRTCConfig struct {
	ICEServers []ICEServerConfig `mapstructure:"ice_servers"`
	TurnKeyID  string            `mapstructure:"turn_key_id"`
	TurnKey    string            `mapstructure:"turn_key"`
	TurnTTL    time.Duration     `mapstructure:"turn_ttl"`
}

type ICEServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type IDsConfig struct {
	Entity string `mapstructure:"entity"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	PingCooldown   time.Duration `mapstructure:"ping_cooldown"`
	PresenceTTL    time.Duration `mapstructure:"presence_ttl"`
}

func Load() (*Config, *viper.Viper, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, nil, err
	}

	setDefaults(v)
	bindEnv(v)

	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Decode unmarshals v and fills durations viper left as zero.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 5*time.Second)
	cfg.Cache.UserTTL = parseDuration(v, "cache.user_ttl", 5*time.Minute)
	cfg.Cache.DashboardTTL = parseDuration(v, "cache.dashboard_ttl", time.Minute)
	cfg.Cache.MessageTTL = parseDuration(v, "cache.message_ttl", 10*time.Minute)
	cfg.JWT.AccessDuration = parseDuration(v, "jwt.access_duration", 15*time.Minute)
	cfg.JWT.RefreshDuration = parseDuration(v, "jwt.refresh_duration", 7*24*time.Hour)
	cfg.Messages.PresignExpiry = parseDuration(v, "messages.presign_expiry", 15*time.Minute)
	cfg.Messages.URLExpiry = parseDuration(v, "messages.url_expiry", 24*time.Hour)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.WebSocket.PingCooldown = parseDuration(v, "websocket.ping_cooldown", 3*time.Second)
	cfg.WebSocket.PresenceTTL = parseDuration(v, "websocket.presence_ttl", 2*time.Minute)
	cfg.WebRTC.TurnTTL = parseDuration(v, "webrtc.turn_ttl", 12*time.Hour)
	cfg.Cassandra.Timeout = parseDuration(v, "cassandra.timeout", 5*time.Second)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.port", 9090)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "focus_room")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/focus-room.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.prefix", "focus")
	v.SetDefault("cache.user_ttl", "5m")
	v.SetDefault("cache.dashboard_ttl", "1m")
	v.SetDefault("cache.message_ttl", "10m")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "focus-room")
	v.SetDefault("jwt.access_duration", "15m")
	v.SetDefault("jwt.refresh_duration", "168h")

	v.SetDefault("tiers.guest.max_participants", 4)
	v.SetDefault("tiers.guest.max_todos", 0)
	v.SetDefault("tiers.guest.private_rooms", false)
	v.SetDefault("tiers.guest.max_open_rooms", 0)
	v.SetDefault("tiers.free.max_participants", 4)
	v.SetDefault("tiers.free.max_todos", 50)
	v.SetDefault("tiers.free.private_rooms", false)
	v.SetDefault("tiers.free.max_open_rooms", 3)
	v.SetDefault("tiers.premium.max_participants", 16)
	v.SetDefault("tiers.premium.max_todos", 0)
	v.SetDefault("tiers.premium.private_rooms", true)
	v.SetDefault("tiers.premium.max_open_rooms", 20)
	v.SetDefault("rooms.default_page_size", 20)
	v.SetDefault("rooms.max_page_size", 100)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./data/media")
	v.SetDefault("storage.local.url_prefix", "/media")
	v.SetDefault("storage.s3.region", "us-east-1")

	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "focus-room")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("pubsub.kafka.topics", pubsub.DefaultTopics)

	v.SetDefault("messages.store", "gorm")
	v.SetDefault("messages.max_media_size", 20<<20)
	v.SetDefault("messages.presign_expiry", "15m")
	v.SetDefault("messages.url_expiry", "24h")
	v.SetDefault("cassandra.hosts", []string{"localhost"})
	v.SetDefault("cassandra.keyspace", "focus_room")
	v.SetDefault("cassandra.consistency", "QUORUM")
	v.SetDefault("cassandra.timeout", "5s")

	v.SetDefault("search.driver", "sql")
	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.index", "users")
	v.SetDefault("search.default_limit", 10)
	v.SetDefault("search.max_limit", 50)

	v.SetDefault("webrtc.turn_ttl", "12h")
	v.SetDefault("ids.entity", "uuid")

	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.ping_cooldown", "3s")
	v.SetDefault("websocket.presence_ttl", "2m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "focus-room")
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("grpc.port", "GRPC_PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("messages.store", "MESSAGES_STORE")
	v.BindEnv("cassandra.hosts", "CASSANDRA_HOSTS")
	v.BindEnv("search.driver", "SEARCH_DRIVER")
	v.BindEnv("search.addresses", "ELASTICSEARCH_ADDRESSES")
	v.BindEnv("oidc.issuer_url", "OIDC_ISSUER_URL")
	v.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	v.BindEnv("oidc.client_secret", "OIDC_CLIENT_SECRET")
	v.BindEnv("oidc.redirect_url", "OIDC_REDIRECT_URL")
	v.BindEnv("webrtc.turn_key_id", "CF_TURN_ID")
	v.BindEnv("webrtc.turn_key", "CF_TURN_KEY")
	v.BindEnv("log.level", "LOG_LEVEL")
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
