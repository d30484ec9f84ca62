// Package e2e holds configuration and helpers for end-to-end scenarios
// exercising the whole pipeline in-process.
package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_LOG_LEVEL raises pipeline verbosity when debugging a scenario
	LogLevel string `envconfig:"E2E_LOG_LEVEL" default:"ERROR"`
	// E2E_WAIT_TIMEOUT bounds how long scenarios wait for async delivery
	WaitTimeout time.Duration `envconfig:"E2E_WAIT_TIMEOUT" default:"2s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
