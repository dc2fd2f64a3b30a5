package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/eyev0/wakeupbot/internal/domain"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken     string        `envconfig:"BOT_TOKEN" required:"true"`
	DBPath       string        `envconfig:"DB_PATH" default:"./data/wakeupbot.db"`
	SchedulerTZ  string        `envconfig:"SCHEDULER_TZ" default:"UTC"` // reference tz for daily reminders
	DefaultTZ    string        `envconfig:"DEFAULT_TZ" default:"+0"`    // offset for new users
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"15s"`
	MisfireGrace time.Duration `envconfig:"MISFIRE_GRACE" default:"5m"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	LogFormat    string        `envconfig:"LOG_FORMAT" default:"json"` // json|console
	HTTPAddr     string        `envconfig:"HTTP_ADDR" default:":8080"` // healthz

	SchedulerLocation *time.Location `ignored:"true"`
	DefaultOffset     domain.Offset  `ignored:"true"`
}

// Load reads an optional .env file and then environment variables into Config.
func Load() (Config, error) {
	// A missing .env is fine; real environment wins over file values.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.resolve()
}

func (c *Config) resolve() error {
	loc, err := time.LoadLocation(c.SchedulerTZ)
	if err != nil {
		return fmt.Errorf("SCHEDULER_TZ: %w", err)
	}
	c.SchedulerLocation = loc

	off, err := domain.ParseOffset(c.DefaultTZ)
	if err != nil {
		return fmt.Errorf("DEFAULT_TZ: %w", err)
	}
	c.DefaultOffset = off

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.MisfireGrace <= 0 {
		return fmt.Errorf("MISFIRE_GRACE must be positive, got %s", c.MisfireGrace)
	}
	return nil
}
