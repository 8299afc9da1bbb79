// Package config loads per-binary configuration from environment
// variables. Each binary declares only the knobs it uses.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// API configures the HTTP ingress binary.
type API struct {
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":8080"`
	KafkaBrokers   []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	AccountTopic   string        `env:"ACCOUNT_TOPIC" envDefault:"account"`
	StorageConnStr string        `env:"STORAGE_CONNECTION_STRING,required,notEmpty"`
	CommandTable   string        `env:"COMMAND_TABLE" envDefault:"commands"`
	EventTable     string        `env:"EVENT_TABLE" envDefault:"events"`
	AccountTable   string        `env:"ACCOUNT_TABLE" envDefault:"accounts"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"12h"`
}

// Engine configures the command engine binary.
type Engine struct {
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	AccountTopic    string   `env:"ACCOUNT_TOPIC" envDefault:"account"`
	ConsumerGroup   string   `env:"CONSUMER_GROUP" envDefault:"command-engine"`
	StorageConnStr  string   `env:"STORAGE_CONNECTION_STRING,required,notEmpty"`
	CommandTable    string   `env:"COMMAND_TABLE" envDefault:"commands"`
	EventTable      string   `env:"EVENT_TABLE" envDefault:"events"`
	AccountTable    string   `env:"ACCOUNT_TABLE" envDefault:"accounts"`
	DeadLetterQueue string   `env:"DEAD_LETTER_QUEUE" envDefault:"dead-letter"`
	MaxAppendTries  int      `env:"MAX_APPEND_ATTEMPTS" envDefault:"5"`
}

// ReadModel configures the read-model updater binary.
type ReadModel struct {
	KafkaBrokers   []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	AccountTopic   string        `env:"ACCOUNT_TOPIC" envDefault:"account"`
	ConsumerGroup  string        `env:"CONSUMER_GROUP" envDefault:"read-model-updater"`
	StorageConnStr string        `env:"STORAGE_CONNECTION_STRING,required,notEmpty"`
	CommandTable   string        `env:"COMMAND_TABLE" envDefault:"commands"`
	EventTable     string        `env:"EVENT_TABLE" envDefault:"events"`
	AccountTable   string        `env:"ACCOUNT_TABLE" envDefault:"accounts"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"12h"`
}

// Load fills cfg from the environment.
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
