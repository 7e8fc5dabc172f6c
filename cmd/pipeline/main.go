package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/reports/internal/api"
	"example.com/reports/internal/config"
	"example.com/reports/internal/crm"
	"example.com/reports/internal/pipeline"
	httptransport "example.com/reports/internal/transport/http"
	"example.com/reports/internal/warehouse"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
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

	// Schema management runs once per deployment, before any pipeline work.
	// A mismatch is fatal and needs operator intervention.
	if err := source.EnsureTable(ctx); err != nil {
		log.Fatalf("crm schema: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("warehouse schema: %v", err)
	}

	syncer := pipeline.NewSyncer(source, store, cfg.SyncPageSize)
	rebuilder := pipeline.NewRebuilder(store)
	runner := pipeline.NewRunner(syncer, rebuilder, cfg.AggDaysBack, cfg.ScheduleInterval)

	go runner.Start(ctx)

	handler := api.NewTriggerHandler(runner)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.PipelineHTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Minute, // a manual run blocks until the cycle commits
		IdleTimeout:  60 * time.Second,
	}, mux)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("pipeline trigger listening on %s", cfg.PipelineHTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	runner.Wait()
}
