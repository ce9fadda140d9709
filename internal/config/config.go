// Package config loads server settings from YAML with KLONDIKE_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// KLONDIKE_SERVER_ADDRESS.
const EnvPrefix = "KLONDIKE"

// Config is the full server configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Game    GameConfig    `mapstructure:"game"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig covers the HTTP and WebSocket listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GameConfig tunes every game the server hosts.
type GameConfig struct {
	HintStepDelay  time.Duration `mapstructure:"hint_step_delay"`
	DragResetDelay time.Duration `mapstructure:"drag_reset_delay"`
	// Seed fixes the shuffle of every game. Zero seeds from the clock.
	Seed  int64 `mapstructure:"seed"`
	Debug bool  `mapstructure:"debug"`
	// ReplayRetention is how many finished games keep their replay.
	ReplayRetention int `mapstructure:"replay_retention"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_buffer_size", 1024)
	v.SetDefault("server.write_buffer_size", 1024)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("game.hint_step_delay", 600*time.Millisecond)
	v.SetDefault("game.drag_reset_delay", 500*time.Millisecond)
	v.SetDefault("game.seed", 0)
	v.SetDefault("game.debug", false)
	v.SetDefault("game.replay_retention", 64)
}

// Load reads path, if given, on top of the defaults and applies environment
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address must be set"))
	}
	if c.Server.ReadBufferSize <= 0 || c.Server.WriteBufferSize <= 0 {
		errs = append(errs, errors.New("server buffer sizes must be positive"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Game.HintStepDelay <= 0 {
		errs = append(errs, errors.New("game.hint_step_delay must be positive"))
	}
	if c.Game.DragResetDelay <= 0 {
		errs = append(errs, errors.New("game.drag_reset_delay must be positive"))
	}
	if c.Game.ReplayRetention <= 0 {
		errs = append(errs, errors.New("game.replay_retention must be positive"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not console or json", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
