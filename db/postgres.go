package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"accounts-service/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Postgres driver
)

var (
	openDB            = sqlx.Open
	newConnectBackOff = func(timeout time.Duration) backoff.BackOff {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = time.Second
		eb.RandomizationFactor = 0
		eb.Multiplier = 2
		eb.MaxInterval = timeout / 4
		eb.MaxElapsedTime = timeout
		return eb
	}
)

// Connect opens the Postgres pool and waits for it to answer a ping, retrying
// with exponential backoff for up to cfg.ConnectTimeout.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.Engine != "postgres" {
		return nil, fmt.Errorf("unsupported database engine: %s", cfg.Engine)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Name, cfg.SSLMode)

	conn, err := openDB("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	err = backoff.Retry(func() error {
		return conn.PingContext(ctx)
	}, backoff.WithContext(newConnectBackOff(cfg.ConnectTimeout), ctx))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	log.Println("Successfully connected to the Postgres database")
	return conn, nil
}
