package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for environment overrides, e.g. AUDIOCLEAN_LOG_LEVEL.
const EnvPrefix = "AUDIOCLEAN"

// envOverrides mirrors the subset of settings that may be supplied through the
// environment. Nil fields were not set and leave the file value untouched.
type envOverrides struct {
	LibraryRoots   []string `envconfig:"LIBRARY_ROOTS"`
	StateDir       *string  `envconfig:"STATE_DIR"`
	QuarantineDir  *string  `envconfig:"QUARANTINE_DIR"`
	LogDir         *string  `envconfig:"LOG_DIR"`
	Workers        *int     `envconfig:"WORKERS"`
	FpcalcBinary   *string  `envconfig:"FPCALC_BINARY"`
	KeepPolicy     *string  `envconfig:"KEEP_POLICY"`
	DedupeStrategy *string  `envconfig:"DEDUPE_STRATEGY"`
	Offline        *bool    `envconfig:"OFFLINE"`
	LogFormat      *string  `envconfig:"LOG_FORMAT"`
	LogLevel       *string  `envconfig:"LOG_LEVEL"`
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	if len(env.LibraryRoots) > 0 {
		c.Paths.LibraryRoots = env.LibraryRoots
	}
	setString(&c.Paths.StateDir, env.StateDir)
	setString(&c.Paths.QuarantineDir, env.QuarantineDir)
	setString(&c.Paths.LogDir, env.LogDir)
	if env.Workers != nil {
		c.Scan.Workers = *env.Workers
	}
	setString(&c.Scan.FpcalcBinary, env.FpcalcBinary)
	setString(&c.Duplicates.KeepPolicy, env.KeepPolicy)
	setString(&c.Planner.DedupeStrategy, env.DedupeStrategy)
	if env.Offline != nil {
		c.Planner.Offline = *env.Offline
	}
	setString(&c.Logging.Format, env.LogFormat)
	setString(&c.Logging.Level, env.LogLevel)
	return nil
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = *value
	}
}
