package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/haandol/event-sourcing-example/api"
	"github.com/haandol/event-sourcing-example/bus"
	"github.com/haandol/event-sourcing-example/config"
	"github.com/haandol/event-sourcing-example/readmodel"
	"github.com/haandol/event-sourcing-example/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	var cfg config.API
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := storage.New(cfg.StorageConnStr, cfg.CommandTable, cfg.EventTable, cfg.AccountTable)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	producer := bus.NewProducer(cfg.KafkaBrokers, cfg.AccountTopic)
	defer producer.Close()

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rc.Close()
	cache := readmodel.NewCache(store, rc, cfg.CacheTTL)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	logger := log.New()
	api.Register(e, producer, store, cache, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()
	log.WithField("addr", cfg.ListenAddr).Info("account api started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	log.Info("account api stopped")
}
