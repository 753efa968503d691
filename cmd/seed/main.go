// Package main provides a CLI tool for seeding the feed tables with demo or
// fixture stock data. Every insert fires the feed NOTIFY triggers, so a
// running server picks the data up immediately.
//
// Environment:
//
//	SEED_FIXTURE  path of a JSON data set (default: built-in demo data)
//	SEED_RESET    "true" empties both feed tables first
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/squirrel"

	"chemdash/internal/core/types"
	"chemdash/internal/infrastructure/config"
	"chemdash/internal/infrastructure/storage/fixture"
	"chemdash/internal/infrastructure/storage/postgres"
	"chemdash/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
		Service:     "chemdash-seed",
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}
	if cfg.Database.DSN == "" {
		log.Fatal("database.dsn (CHEMDASH_DATABASE_DSN) is required")
	}
	loc, err := cfg.Dashboard.Location()
	if err != nil {
		log.Fatalw("invalid dashboard timezone", "error", err)
	}

	ds := fixture.Demo(time.Now(), loc)
	if path := os.Getenv("SEED_FIXTURE"); path != "" {
		if ds, err = fixture.Load(path); err != nil {
			log.Fatalw("failed to load fixture", "error", err)
		}
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txManager := postgres.NewTxManager(pool)
	batch := postgres.NewBatchExecutor(txManager)
	stmts := statements(ds, os.Getenv("SEED_RESET") == "true")

	err = txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return batch.Exec(ctx, stmts...)
	})
	if err != nil {
		log.Fatalw("failed to seed stock data", "error", err)
	}

	log.Infow("seeding completed successfully",
		"balances", len(ds.Balances),
		"movements", len(ds.Movements),
	)
}

var builder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// statements returns the seeding statements in execution order. reset
// empties both feed tables first.
func statements(ds fixture.DataSet, reset bool) []squirrel.Sqlizer {
	var stmts []squirrel.Sqlizer
	if reset {
		stmts = append(stmts, builder.Delete("stock_movements"), builder.Delete("stock_balances"))
	}
	if len(ds.Balances) > 0 {
		stmts = append(stmts, balancesInsert(ds.Balances))
	}
	if len(ds.Movements) > 0 {
		stmts = append(stmts, movementsInsert(ds.Movements))
	}
	return stmts
}

// balancesInsert upserts the snapshot rows.
func balancesInsert(rows []fixture.Balance) squirrel.InsertBuilder {
	ins := builder.Insert("stock_balances").
		Columns("product_id", "location", "quantity", "quantity_raw").
		Suffix("ON CONFLICT (product_id, location) DO UPDATE SET " +
			"quantity = EXCLUDED.quantity, quantity_raw = EXCLUDED.quantity_raw, updated_at = now()")
	for _, b := range rows {
		qty, raw := quantityColumns(b.Quantity)
		ins = ins.Values(b.ProductID, b.Location, qty, raw)
	}
	return ins
}

// movementsInsert inserts ledger rows, skipping ids that already exist.
func movementsInsert(rows []fixture.Movement) squirrel.InsertBuilder {
	ins := builder.Insert("stock_movements").
		Columns("id", "origin", "product_id", "location", "quantity", "quantity_raw", "created_at", "date_text", "invoice_ref").
		Suffix("ON CONFLICT (id) DO NOTHING")
	for _, m := range rows {
		qty, raw := quantityColumns(m.Quantity)
		ins = ins.Values(m.ID, m.Origin, m.ProductID, m.Location, qty, raw, m.CreatedAt, nullable(m.Date), nullable(m.InvoiceRef))
	}
	return ins
}

// quantityColumns splits a typed value into the NUMERIC column and the raw
// text kept when it does not parse.
func quantityColumns(v any) (any, any) {
	if d, ok := types.ParseQuantity(v); ok {
		return d, nil
	}
	if v == nil {
		return nil, nil
	}
	return nil, fmt.Sprint(v)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
