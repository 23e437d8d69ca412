// Command server wires the shared KV store, SQL persistence, and event
// bus into an Engine and runs its background loops until a shutdown
// signal arrives. There is no HTTP/WebSocket listener here: the
// transport edge that would call Engine's client RPC methods lives
// outside this module, per the concurrency design's C10 boundary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/riftlobby/matchcore/internal/adapters"
	"github.com/riftlobby/matchcore/internal/bus"
	"github.com/riftlobby/matchcore/internal/config"
	"github.com/riftlobby/matchcore/internal/engine"
	"github.com/riftlobby/matchcore/internal/kv"
	"github.com/riftlobby/matchcore/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := newLogger(cfg)
	log.WithField("replicaId", cfg.ReplicaID).Info("starting matchcore")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to reach redis")
	}

	sqlStore, err := store.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		log.WithError(err).Fatal("failed to open sqlite store")
	}
	defer sqlStore.Close()

	kvStore := kv.NewRedisStore(rdb)
	locker := kv.NewRedisLocker(rdb, log.WithField("component", "locker"))
	eventBus := bus.NewRedisBus(rdb, log.WithField("component", "bus"))

	eng := engine.New(engine.Deps{
		KV:         kvStore,
		Locker:     locker,
		SQL:        sqlStore,
		Bus:        eventBus,
		GameClient: adapters.NoopGameClientBridge{Log: log.WithField("component", "gameclient")},
		Chat:       adapters.NoopChatBridge{Log: log.WithField("component", "chat")},
		Ranked:     adapters.NoopRankedDataBridge{},
		Config:     cfg,
		Log:        log,
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-stop
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
	}()

	eng.RunBackgroundLoops(ctx, cfg)

	log.Info("matchcore stopped")
}

func newLogger(cfg *config.Config) *logrus.Entry {
	l := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		l.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l.WithField("service", "matchcore")
}
