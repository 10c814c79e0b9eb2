package main

import (
	"os"

	"github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
)

// Config is read from an optional KEY=VALUE file and then from the
// environment, which wins.
type Config struct {
	Format        string `config:"KIROKU_FORMAT"`
	Output        string `config:"KIROKU_OUTPUT"`
	Entities      int    `config:"KIROKU_ENTITIES"`
	RedisAddress  string `config:"KIROKU_REDIS_ADDRESS"`
	RedisPassword string `config:"KIROKU_REDIS_PASSWORD"`
	LogLevel      string `config:"KIROKU_LOG_LEVEL"`
	LogFile       string `config:"KIROKU_LOG_FILE"`
}

func defaultConfig() Config {
	return Config{
		Format:   "json",
		Entities: 1000,
		LogLevel: "info",
	}
}

// loadConfig applies path (if set) and the environment on top of the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	b := config.FromEnv()
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, eris.Wrapf(err, "config file %s", path)
		}
		b = config.From(path).FromEnv()
	}
	if err := b.To(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to load config")
	}
	if cfg.Entities < 0 {
		return cfg, eris.Errorf("KIROKU_ENTITIES must not be negative, got %d", cfg.Entities)
	}
	return cfg, nil
}
