package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/bus"
	"github.com/haandol/event-sourcing-example/config"
	"github.com/haandol/event-sourcing-example/engine"
	"github.com/haandol/event-sourcing-example/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	var cfg config.Engine
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := storage.New(cfg.StorageConnStr, cfg.CommandTable, cfg.EventTable, cfg.AccountTable)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	deadLetter, err := storage.NewDeadLetterQueue(cfg.StorageConnStr, cfg.DeadLetterQueue)
	if err != nil {
		log.Fatalf("dead letter queue: %v", err)
	}

	producer := bus.NewProducer(cfg.KafkaBrokers, cfg.AccountTopic)
	defer producer.Close()
	consumer := bus.NewConsumer(cfg.KafkaBrokers, cfg.AccountTopic, cfg.ConsumerGroup)
	defer consumer.Close()

	svc := engine.NewService(store, store, producer, cfg.MaxAppendTries)
	dispatcher := engine.NewDispatcher(consumer, engine.Routes(svc), deadLetter, log.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"topic": cfg.AccountTopic,
		"group": cfg.ConsumerGroup,
	}).Info("command engine started")
	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("dispatcher: %v", err)
	}
	log.Info("command engine stopped")
}
