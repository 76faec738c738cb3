package cli

import (
	"fmt"

	"github.com/hsk98/rota/internal/availability"
	"github.com/hsk98/rota/internal/config"
	"github.com/hsk98/rota/internal/engine"
	"github.com/hsk98/rota/internal/store"
)

// openEngine builds the store and engine from the global flags: load the
// config file if one was given, let --db override the database path, and wire
// the availability schedule when the config names one.
//
// The caller owns the returned store and must Close it.
func openEngine(opts *RootOptions) (*store.Store, *engine.Engine, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "load config", err)
		}
		cfg = loaded
	}
	if opts.DBPath != "" {
		cfg.Database.Path = opts.DBPath
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("open database %s", cfg.Database.Path), err)
	}

	engOpts := []engine.Option{engine.WithConfig(cfg.EngineConfig())}
	if cfg.Availability.SchedulePath != "" {
		sched, err := availability.Load(cfg.Availability.SchedulePath)
		if err != nil {
			st.Close()
			return nil, nil, WrapExitError(ExitCommandError, "load availability schedule", err)
		}
		engOpts = append(engOpts, engine.WithAvailability(sched.IsAvailable))
	}

	return st, engine.New(st, engOpts...), nil
}

// openStore is openEngine without the engine, for commands that only touch
// resource and assignment records.
func openStore(opts *RootOptions) (*store.Store, error) {
	st, _, err := openEngine(opts)
	return st, err
}
