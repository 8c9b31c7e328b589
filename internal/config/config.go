package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Features  FeaturesConfig  `toml:"features"`
	Game      GameConfig      `toml:"game"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	Port      int    `toml:"port"`
	StaticDir string `toml:"static_dir"`
	DataDir   string `toml:"data_dir"`
	ScriptDir string `toml:"script_dir"`
	StartTime int64  // set at boot, not from config
}

// FeaturesConfig holds the toggles reported to clients on connect.
type FeaturesConfig struct {
	Chat          bool `toml:"chat"`
	Powerups      bool `toml:"powerups"`
	Accessibility bool `toml:"accessibility"`
}

type GameConfig struct {
	MaxPlayersPerRoom int           `toml:"max_players_per_room"`
	DisconnectGrace   time.Duration `toml:"disconnect_grace"`
	RoomCleanupDelay  time.Duration `toml:"room_cleanup_delay"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type RateLimitConfig struct {
	Enabled              bool `toml:"enabled"`
	ConnectionsPerMinute int  `toml:"connections_per_minute"`
	ChatIntervalMs       int  `toml:"chat_interval_ms"`
}

// Load reads the TOML file, then overlays environment variables, then
// command-line flags. A missing file is not an error; defaults apply.
func Load(path string, args []string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return nil, err
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "SnakeArena",
			Port:      3000,
			StaticDir: "public",
			DataDir:   "data/yaml",
			ScriptDir: "scripts",
		},
		Features: FeaturesConfig{
			Chat:          true,
			Powerups:      false,
			Accessibility: true,
		},
		Game: GameConfig{
			MaxPlayersPerRoom: 4,
			DisconnectGrace:   30 * time.Second,
			RoomCleanupDelay:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: RateLimitConfig{
			Enabled:              true,
			ConnectionsPerMinute: 30,
			ChatIntervalMs:       800,
		},
	}
}

// applyEnv overlays PORT and the ENABLE_* feature toggles.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	if v, ok := envBool("ENABLE_CHAT"); ok {
		c.Features.Chat = v
	}
	if v, ok := envBool("ENABLE_POWERUPS"); ok {
		c.Features.Powerups = v
	}
	if v, ok := envBool("ENABLE_ACCESSIBILITY"); ok {
		c.Features.Accessibility = v
	}
	return nil
}

// applyFlags overlays command-line flags. Flags win over env and file.
func (c *Config) applyFlags(args []string) error {
	fs := flag.NewFlagSet("snakearena", flag.ContinueOnError)
	port := fs.Int("port", c.Server.Port, "listen port")
	disableChat := fs.Bool("disable-chat", false, "disable in-game chat")
	enablePowerups := fs.Bool("enable-powerups", false, "enable power-ups")
	disableAccess := fs.Bool("disable-accessibility", false, "disable accessibility features")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c.Server.Port = *port
	if *disableChat {
		c.Features.Chat = false
	}
	if *enablePowerups {
		c.Features.Powerups = true
	}
	if *disableAccess {
		c.Features.Accessibility = false
	}
	return nil
}

func envBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true, true
	default:
		return false, true
	}
}
