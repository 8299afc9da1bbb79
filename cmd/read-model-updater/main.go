package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/bus"
	"github.com/haandol/event-sourcing-example/config"
	"github.com/haandol/event-sourcing-example/readmodel"
	"github.com/haandol/event-sourcing-example/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	var cfg config.ReadModel
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := storage.New(cfg.StorageConnStr, cfg.CommandTable, cfg.EventTable, cfg.AccountTable)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rc.Close()
	cache := readmodel.NewCache(store, rc, cfg.CacheTTL)

	consumer := bus.NewConsumer(cfg.KafkaBrokers, cfg.AccountTopic, cfg.ConsumerGroup)
	defer consumer.Close()

	processor := readmodel.NewProcessor(consumer, readmodel.NewProjector(store), cache, log.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"topic": cfg.AccountTopic,
		"group": cfg.ConsumerGroup,
	}).Info("read model updater started")
	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("processor: %v", err)
	}
	log.Info("read model updater stopped")
}
