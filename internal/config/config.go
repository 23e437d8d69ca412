// Package config loads every tunable named in the configuration table:
// timeouts, thresholds, and the connection settings for the shared KV
// store, the event bus, and the SQL persistence layer. Values come from
// environment variables (prefixed MATCHCORE_) with defaults matching the
// documented table, loaded through viper the way Seednode-partybox wires
// its flag/env layer, minus the flag set this service has no CLI surface
// to justify.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable this module reads at startup. Durations are
// stored as time.Duration even where the table documents them in
// milliseconds or seconds, so callers never do unit arithmetic at the
// call site.
type Config struct {
	AcceptanceTimeout       time.Duration
	DraftActionTimeout      time.Duration
	DraftConfirmTimeout     time.Duration
	GameTimeout             time.Duration
	GameMonitorInterval     time.Duration
	// QueueMinCohort is the documented §6 tunable; validate() rejects
	// anything but 10 since the queue matcher's lane assignment is fixed
	// to five lanes times two teams and cannot form a roster of any
	// other size.
	QueueMinCohort          int
	PlayerLockTTL           time.Duration
	JanitorInterval         time.Duration
	BotAutoAcceptDelay      time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SQLitePath string

	LogLevel  string
	LogFormat string

	// ReplicaID identifies this process among its peers in log fields; it
	// has no bearing on correctness since every replica subscribes to the
	// same bus and reads the same shared KV.
	ReplicaID string
}

// Load reads configuration from the environment (prefix MATCHCORE_,
// underscores in place of dots) over the defaults below, and validates
// the values that have hard floors: the cohort must be 10, every timeout
// must be positive, the game monitoring interval must be positive and
// below the game timeout, and the Redis address must be set.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MATCHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("acceptance.timeout_seconds", 30)
	v.SetDefault("draft.action_timeout_ms", 30000)
	v.SetDefault("draft.confirmation_timeout_seconds", 30)
	v.SetDefault("game.timeout_ms", 3_600_000)
	v.SetDefault("game.monitoring_interval_ms", 5_000)
	v.SetDefault("queue.min_cohort", 10)
	v.SetDefault("player_lock.ttl_hours", 4)
	v.SetDefault("janitor.interval_ms", 300_000)
	v.SetDefault("bot.auto_accept_delay_ms", 2_000)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("sqlite.path", "./data/matchcore.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("replica.id", "")

	for _, key := range []string{
		"acceptance.timeout_seconds", "draft.action_timeout_ms",
		"draft.confirmation_timeout_seconds", "game.timeout_ms",
		"game.monitoring_interval_ms", "queue.min_cohort",
		"player_lock.ttl_hours", "janitor.interval_ms",
		"bot.auto_accept_delay_ms", "redis.addr", "redis.password",
		"redis.db", "sqlite.path", "log.level", "log.format", "replica.id",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind env for %s: %w", key, err)
		}
	}

	cfg := &Config{
		AcceptanceTimeout:   time.Duration(v.GetInt64("acceptance.timeout_seconds")) * time.Second,
		DraftActionTimeout:  time.Duration(v.GetInt64("draft.action_timeout_ms")) * time.Millisecond,
		DraftConfirmTimeout: time.Duration(v.GetInt64("draft.confirmation_timeout_seconds")) * time.Second,
		GameTimeout:         time.Duration(v.GetInt64("game.timeout_ms")) * time.Millisecond,
		GameMonitorInterval: time.Duration(v.GetInt64("game.monitoring_interval_ms")) * time.Millisecond,
		QueueMinCohort:      v.GetInt("queue.min_cohort"),
		PlayerLockTTL:       time.Duration(v.GetInt64("player_lock.ttl_hours")) * time.Hour,
		JanitorInterval:     time.Duration(v.GetInt64("janitor.interval_ms")) * time.Millisecond,
		BotAutoAcceptDelay:  time.Duration(v.GetInt64("bot.auto_accept_delay_ms")) * time.Millisecond,

		RedisAddr:     v.GetString("redis.addr"),
		RedisPassword: v.GetString("redis.password"),
		RedisDB:       v.GetInt("redis.db"),

		SQLitePath: v.GetString("sqlite.path"),

		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
		ReplicaID: v.GetString("replica.id"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.QueueMinCohort != 10 {
		return fmt.Errorf("config: queue.min_cohort must be 10 (the fixed five-lane, two-team roster size), got %d", c.QueueMinCohort)
	}
	if c.AcceptanceTimeout <= 0 || c.DraftActionTimeout <= 0 || c.DraftConfirmTimeout <= 0 || c.GameTimeout <= 0 {
		return fmt.Errorf("config: all timeouts must be positive")
	}
	if c.GameMonitorInterval <= 0 || c.GameMonitorInterval >= c.GameTimeout {
		return fmt.Errorf("config: game.monitoring_interval_ms must be positive and less than game.timeout_ms")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("config: redis.addr must not be empty")
	}
	return nil
}
