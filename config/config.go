// Package config loads typed settings for the portal server and the
// slotwatch client from the environment (and an optional .env file).
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server configures the portal backend.
type Server struct {
	Addr           string        `env:"VDI_ADDR" envDefault:":8000"`
	JWTSecret      string        `env:"VDI_JWT_SECRET" envDefault:"change-me-in-production"`
	JWTExpire      time.Duration `env:"VDI_JWT_EXPIRE" envDefault:"24h"`
	MongoURI       string        `env:"VDI_MONGO_URI"`
	MongoDB        string        `env:"VDI_MONGO_DB" envDefault:"vditaxi"`
	RedisAddr      string        `env:"VDI_REDIS_ADDR"`
	RedisPassword  string        `env:"VDI_REDIS_PASSWORD"`
	ConnectURL     string        `env:"VDI_CONNECT_URL" envDefault:"/guacamole/#/client/%s"`
	SessionMax     time.Duration `env:"VDI_SESSION_MAX" envDefault:"0"`
	ReapInterval   time.Duration `env:"VDI_REAP_INTERVAL" envDefault:"1m"`
	AllowedOrigins []string      `env:"VDI_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	Seed           bool          `env:"VDI_SEED" envDefault:"true"`
}

// Client configures a slot synchronizer.
type Client struct {
	APIURL            string        `env:"VDI_API_URL" envDefault:"http://localhost:8000/api"`
	Token             string        `env:"VDI_TOKEN"`
	PollInterval      time.Duration `env:"VDI_POLL_INTERVAL" envDefault:"30s"`
	ReconnectDelay    time.Duration `env:"VDI_RECONNECT_DELAY" envDefault:"3s"`
	HeartbeatInterval time.Duration `env:"VDI_HEARTBEAT_INTERVAL" envDefault:"30s"`
}

// loadDotEnv reads .env when present. A missing file is not an error.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}
}

func LoadServer() (Server, error) {
	loadDotEnv()
	cfg, err := env.ParseAs[Server]()
	if err != nil {
		return Server{}, fmt.Errorf("parse server config: %w", err)
	}
	if cfg.ReapInterval <= 0 {
		return Server{}, fmt.Errorf("VDI_REAP_INTERVAL must be positive, got %s", cfg.ReapInterval)
	}
	return cfg, nil
}

func LoadClient() (Client, error) {
	loadDotEnv()
	cfg, err := env.ParseAs[Client]()
	if err != nil {
		return Client{}, fmt.Errorf("parse client config: %w", err)
	}
	return cfg, nil
}
