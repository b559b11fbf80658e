// Package config loads env-tagged configuration structs, reading a local
// .env file once before the first parse.
package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrNilPointer indicates a nil configuration pointer was passed.
	ErrNilPointer = errors.New("config: nil pointer provided")
	// ErrParsingConfig indicates environment variables could not be parsed
	// into the configuration struct.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")
)

var dotenvOnce sync.Once

// Load parses environment variables into the provided struct based on its
// `env` field tags. The default .env file is loaded once per process; a
// missing .env file is not an error.
//
// Example:
//
//	type StoreConfig struct {
//		URL     string        `env:"GATEKIT_REDIS_URL,required"`
//		Timeout time.Duration `env:"GATEKIT_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
//	}
//
//	var cfg StoreConfig
//	if err := config.Load(&cfg); err != nil {
//		// handle error
//	}
func Load[T any](v *T) error {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	if v == nil {
		return ErrNilPointer
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Use for configuration the
// engine cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: failed to load required configuration: %v", err))
	}
}
