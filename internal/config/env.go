package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "LMSERV_"

// FromEnv overlays LMSERV_* variables onto cfg. Unset variables leave fields
// untouched. Lists are comma separated.
func FromEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config from env: %w", err)
	}
	return nil
}
