package main

import (
	"context"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"vcfolio/internal/config"
	"vcfolio/internal/database"
	"vcfolio/internal/service"
	"vcfolio/internal/storage"
)

// env bundles what every command needs. close releases the database.
type env struct {
	cfg  config.Config
	db   *sqlx.DB
	repo *database.Repo
	docs *service.DocumentService
	log  *logrus.Logger
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(cfg.LogLevel)

	db, err := database.Open(ctx, cfg.DBDriver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	disk, err := storage.NewDisk(cfg.UploadDir, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	repo := database.New(db, log)
	return &env{
		cfg:  cfg,
		db:   db,
		repo: repo,
		docs: service.NewDocumentService(repo, disk, cfg.Upload, log),
		log:  log,
	}, nil
}

func (e *env) close() { e.db.Close() }

// formatMoney renders amount in the display currency, falling back to a
// plain number for unknown currency codes.
func formatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Mul(decimal.New(1, int32(cur.Fraction))).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

func formatNullMoney(v decimal.NullDecimal, currency string) string {
	if !v.Valid {
		return "N/A"
	}
	return formatMoney(v.Decimal, currency)
}

func formatMOIC(v decimal.NullDecimal) string {
	if !v.Valid {
		return "N/A"
	}
	return v.Decimal.StringFixed(2) + "x"
}
