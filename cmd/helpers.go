package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap/zapcore"

	"github.com/ziadkadry99/personaengine/internal/config"
	"github.com/ziadkadry99/personaengine/internal/db"
	"github.com/ziadkadry99/personaengine/internal/engine"
)

// loadConfig loads and validates the config, providing a user-friendly error.
// The configured log level applies unless --verbose was given.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `personaengine init` to create a config file", err)
	}
	if !verbose {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			logLevel.SetLevel(lvl)
		}
	}
	return cfg, nil
}

// openEngine loads the config, opens the database it names and builds an
// engine. The returned close func releases the database.
func openEngine() (*engine.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	e, err := engine.New(database, cfg, nil, logger)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, func() { database.Close() }, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
