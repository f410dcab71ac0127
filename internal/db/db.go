package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Open connects to Postgres and returns the ent driver. The pool is created once at
// process start and handed to every store that needs it.
func Open(ctx context.Context, dbURL string) (*entsql.Driver, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DB_URL is not set")
	}
	drv, err := entsql.Open(dialect.Postgres, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to postgres: %w", err)
	}

	pool := drv.DB()
	pool.SetMaxOpenConns(20)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		drv.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	logrus.Info("successfully connected to postgres")
	return drv, nil
}

// Migrate creates or upgrades every table the stores rely on.
func Migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("failed preparing migration: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("failed creating schema resources: %w", err)
	}
	logrus.WithField("tables", len(Tables)).Info("schema migrated successfully")
	return nil
}

// SQL unwraps the stdlib pool behind the ent driver.
func SQL(drv *entsql.Driver) *sql.DB { return drv.DB() }
