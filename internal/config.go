// Package internal holds process configuration loaded from the
// environment.
package internal

import (
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,default=8080"`
	InstanceID string `env:"INSTANCE_ID,default=node-01"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	NatsURL        string `env:"NATS_URL"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	PublishTimeout    time.Duration `env:"PUBLISH_TIMEOUT,default=5s"`
	PushTimeout       time.Duration `env:"PUSH_TIMEOUT,default=3s"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,default=30s"`

	ConnectionBufferSize int `env:"CONNECTION_BUFFER_SIZE,default=64"`
}

// LoadConfig reads .env if present, then the process environment.
// A missing .env file is not an error; deployments set variables
// directly.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
