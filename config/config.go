package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	RelayBackendMemory = "memory"
	RelayBackendRedis  = "redis"

	OfferStoreMemory = "memory"
	OfferStoreSQLite = "sqlite"
)

// Config is the relay server configuration.
type Config struct {
	Port           string        `yaml:"port" env:"PORT" env-default:"8080"`
	Environment    string        `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000,http://localhost:5173"`
	JWTSecret      string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"change-me-in-production"`
	TokenTTL       time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"24h"`
	Relay          RelayConfig   `yaml:"relay"`
	Redis          RedisConfig   `yaml:"redis"`
}

type RelayConfig struct {
	// Backend selects in-process fan-out or Redis pub/sub across instances.
	Backend          string `yaml:"backend" env:"RELAY_BACKEND" env-default:"memory"`
	SubscriberBuffer int    `yaml:"subscriber_buffer" env:"RELAY_SUBSCRIBER_BUFFER" env-default:"256"`
}

type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// ClientConfig configures one call client process.
type ClientConfig struct {
	Environment        string           `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	ServerURL          string           `yaml:"server_url" env:"CALL_SERVER_URL" env-default:"http://localhost:8080"`
	Username           string           `yaml:"username" env:"CALL_USERNAME"`
	Password           string           `yaml:"password" env:"CALL_PASSWORD"`
	NegotiationTimeout time.Duration    `yaml:"negotiation_timeout" env:"CALL_NEGOTIATION_TIMEOUT" env-default:"60s"`
	WebRTC             WebRTCConfig     `yaml:"webrtc"`
	OfferStore         OfferStoreConfig `yaml:"offer_store"`
}

type WebRTCConfig struct {
	STUNServers    []string `yaml:"stun_servers" env:"STUN_SERVERS" env-separator:"," env-default:"stun:stun.l.google.com:19302"`
	TURNURL        string   `yaml:"turn_url" env:"TURN_URL"`
	TURNUsername   string   `yaml:"turn_username" env:"TURN_USERNAME"`
	TURNCredential string   `yaml:"turn_credential" env:"TURN_CREDENTIAL"`
}

type OfferStoreConfig struct {
	Driver string `yaml:"driver" env:"OFFER_STORE_DRIVER" env-default:"memory"`
	Path   string `yaml:"path" env:"OFFER_STORE_PATH" env-default:".callclient"`
	// TTL of zero keeps a record until it is consumed or superseded.
	TTL time.Duration `yaml:"ttl" env:"OFFER_STORE_TTL" env-default:"0s"`
}

// Load reads the server configuration from CONFIG_PATH (if set) and the
// environment.
func Load() (*Config, error) {
	var cfg Config
	if err := read(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient reads the client configuration the same way as Load.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := read(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func read(cfg any) error {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("read env: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Relay.Backend {
	case RelayBackendMemory, RelayBackendRedis:
	default:
		return fmt.Errorf("unsupported relay backend %q", c.Relay.Backend)
	}
	if c.Relay.SubscriberBuffer <= 0 {
		return fmt.Errorf("relay subscriber buffer must be positive, got %d", c.Relay.SubscriberBuffer)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret is empty")
	}
	return nil
}

func (c *ClientConfig) validate() error {
	switch c.OfferStore.Driver {
	case OfferStoreMemory, OfferStoreSQLite:
	default:
		return fmt.Errorf("unsupported offer store driver %q", c.OfferStore.Driver)
	}
	if c.NegotiationTimeout < 0 {
		return fmt.Errorf("negotiation timeout must not be negative")
	}
	return nil
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}
