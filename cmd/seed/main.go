package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/reports/internal/config"
	"example.com/reports/internal/crm"
	"example.com/reports/internal/seed"
	"example.com/reports/internal/warehouse"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	store, err := warehouse.Open(ctx, warehouse.Config{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
		Timeout:  cfg.StoreTimeout,
	})
	if err != nil {
		log.Fatalf("failed to connect to clickhouse: %v", err)
	}
	defer store.Close()

	source := crm.NewSource(pool, cfg.StoreTimeout)
	if err := source.EnsureTable(ctx); err != nil {
		log.Fatalf("crm schema: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("warehouse schema: %v", err)
	}

	seeder := seed.NewSeeder(source, store, 6)
	if err := seeder.Run(ctx); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}
