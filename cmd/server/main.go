package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"

	_ "github.com/lib/pq"
	"github.com/sheikh-saqib/account-ledger-service/internal/api"
	"github.com/sheikh-saqib/account-ledger-service/internal/config"
	"github.com/sheikh-saqib/account-ledger-service/internal/events/kafka"
	interfaces "github.com/sheikh-saqib/account-ledger-service/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-service/internal/ledger"
	"github.com/sheikh-saqib/account-ledger-service/internal/storage/memory"
	"github.com/sheikh-saqib/account-ledger-service/internal/storage/postgres"
	"github.com/sheikh-saqib/account-ledger-service/internal/storage/sqlite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("failed to initialise %s store: %v", cfg.StoreBackend, err)
	}
	logger.Info("ledger store ready", "backend", cfg.StoreBackend)

	var publisher interfaces.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub := kafka.NewPublisher(cfg.KafkaBrokers)
		defer kafkaPub.Close()
		publisher = kafkaPub
		logger.Info("kafka publisher ready", "brokers", cfg.KafkaBrokers)
	}

	ledgerService := ledger.NewLedger(store, publisher, logger)
	server := api.NewServer(ledgerService, cfg.PageSize, logger)

	logger.Info("starting server", "addr", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, server.Handler()))
}

func buildStore(cfg *config.Config) (interfaces.LedgerStore, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		store := postgres.NewPostgresLedgerStore(db)
		if err := store.Migrate(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendSQLite:
		return sqlite.NewSQLiteLedgerStore(cfg.SQLitePath)
	default:
		return memory.NewMemoryLedgerStore(), nil
	}
}
