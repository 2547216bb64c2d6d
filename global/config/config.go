package config

import (
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// AppConfig is the full externally supplied surface of the relay. Core
// logic never reads the environment directly.
type AppConfig struct {
	Port     int    `env:"PORT,default=8080"`
	NodeID   int64  `env:"NODE_ID,default=1"`
	LogLevel string `env:"LOG_LEVEL,default=debug"`

	// Comma-separated Origin allow-list for websocket establishment.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	AuthTimeout  time.Duration `env:"AUTH_TIMEOUT,default=10s"`
	HistoryLimit int           `env:"HISTORY_LIMIT,default=20"`
	JWTSecret    string        `env:"JWT_SECRET,required=true"`

	MongoURI           string `env:"MONGO_URI,default=mongodb://localhost:27017"`
	MongoDatabase      string `env:"MONGO_DATABASE,default=chatrelay"`
	MessagesCollection string `env:"MESSAGES_COLLECTION,default=messages"`
	UsersCollection    string `env:"USERS_COLLECTION,default=users"`

	// Optional recent-message cache. Disabled when addr is empty.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`
	CacheWindow   int    `env:"CACHE_WINDOW,default=200"`

	// Optional cross-node relay bridge. Disabled when servers is empty.
	NatsServers string `env:"NATS_SERVERS"`
	NatsSubject string `env:"NATS_SUBJECT,default=chatrelay.messages"`

	SendQueueSize int `env:"SEND_QUEUE_SIZE,default=256"`
	FanoutWorkers int `env:"FANOUT_WORKERS,default=4"`
	FanoutQueue   int `env:"FANOUT_QUEUE,default=1024"`

	// StrictPersist selects the durability-before-delivery policy: when
	// true a failed append suppresses the broadcast and only the sender
	// is told; when false the relay broadcasts regardless of the append
	// outcome.
	StrictPersist bool `env:"STRICT_PERSIST,default=false"`
}

// Load reads a local .env if present, then the process environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	var c AppConfig
	if _, err := env.UnmarshalFromEnviron(&c); err != nil {
		return nil, err
	}
	c.norm()
	return &c, nil
}

func (c *AppConfig) norm() {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 4
	}
	if c.FanoutQueue <= 0 {
		c.FanoutQueue = 1024
	}
	if c.CacheWindow <= 0 {
		c.CacheWindow = 200
	}
}

// Origins returns the parsed Origin allow-list.
func (c *AppConfig) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Servers returns the parsed NATS server list.
func (c *AppConfig) Servers() []string {
	if strings.TrimSpace(c.NatsServers) == "" {
		return nil
	}
	parts := strings.Split(c.NatsServers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
