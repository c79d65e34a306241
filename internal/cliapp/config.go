package cliapp

import (
	"runtime"

	"github.com/caarlos0/env/v6"
)

// EnvConfig is the environment-variable half of the worker count setting:
// the --workers flag always wins when set, this is only consulted when it
// wasn't. LJD_WORKERS=0 (or unset) falls back to runtime.NumCPU().
type EnvConfig struct {
	Workers int `env:"LJD_WORKERS" envDefault:"0"`
}

// resolveWorkers applies --workers, then LJD_WORKERS, then runtime.NumCPU(),
// in that precedence order.
func resolveWorkers(flagValue int) (int, error) {
	if flagValue > 0 {
		return flagValue, nil
	}

	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return 0, err
	}
	if cfg.Workers > 0 {
		return cfg.Workers, nil
	}
	return runtime.NumCPU(), nil
}
