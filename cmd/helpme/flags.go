package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Address            string        `env:"RUN_ADDRESS" envDefault:"localhost:8080"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"INFO"`
	DatabaseConnection string        `env:"DATABASE_URI"`
	JWTSecret          string        `env:"JWT_SECRET" envDefault:"dontexposethis"`
	JWTTTL             time.Duration `env:"JWT_TTL" envDefault:"24h"`
	DepositRate        float64       `env:"DEPOSIT_RATE" envDefault:"0.10"`
	LockTimeout        time.Duration `env:"LOCK_TIMEOUT" envDefault:"5s"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	KafkaBrokers       string        `env:"KAFKA_BROKERS"`
	KafkaTopic         string        `env:"KAFKA_TOPIC" envDefault:"helpme.order-events"`
}

func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("ENV JWT_SECRET must be set")
	}

	address := flag.String("a", cfg.Address, "{Host:port} for server")
	loglevel := flag.String("l", cfg.LogLevel, "Log level for server")
	databaseConnection := flag.String("d", cfg.DatabaseConnection, "Database connection string")
	jwtTTL := flag.Duration("t", cfg.JWTTTL, "TTL for JWT token(e.g. 24h; 30m )")
	depositRate := flag.Float64("r", cfg.DepositRate, "Deposit share of the order total")
	lockTimeout := flag.Duration("w", cfg.LockTimeout, "Max wait for a per-order lock")
	sweepInterval := flag.Duration("i", cfg.SweepInterval, "Scheduled-order sweep interval")
	kafkaBrokers := flag.String("k", cfg.KafkaBrokers, "Kafka brokers, comma separated (empty disables events)")

	flag.Parse()

	cfg.Address = *address
	cfg.LogLevel = *loglevel
	cfg.DatabaseConnection = *databaseConnection
	cfg.JWTTTL = *jwtTTL
	cfg.DepositRate = *depositRate
	cfg.LockTimeout = *lockTimeout
	cfg.SweepInterval = *sweepInterval
	cfg.KafkaBrokers = *kafkaBrokers

	if cfg.DepositRate <= 0 || cfg.DepositRate >= 1 {
		return nil, fmt.Errorf("DEPOSIT_RATE must be in (0, 1), got %v", cfg.DepositRate)
	}

	return cfg, nil
}

func (c *Config) BrokerList() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	return strings.Split(c.KafkaBrokers, ",")
}
