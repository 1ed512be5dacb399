package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

//go:embed migrations
var migrations embed.FS

// Open connects and pings the database. SQLite gets foreign keys enabled
// and a single connection so in-memory databases stay shared.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if driver == DriverSQLite {
		dsn = withParam(dsn, "_foreign_keys=on")
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func withParam(dsn, param string) string {
	if strings.Contains(dsn, param) {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

// Migrate applies the embedded schema for the connection's driver. All
// statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	files, err := fs.Glob(migrations, "migrations/"+db.DriverName()+"/*.up.sql")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations for driver %q", db.DriverName())
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := migrations.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}
	}
	return nil
}
