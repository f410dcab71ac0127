package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/sirupsen/logrus"
)

const countersTable = "user_document_counters"

// PostgresLedger stores counters in user_document_counters.
type PostgresLedger struct {
	DB *sql.DB
}

func (l *PostgresLedger) Active(ctx context.Context, userID string) (int, error) {
	query, args := entsql.Dialect(dialect.Postgres).
		Select("active_documents").From(entsql.Table(countersTable)).
		Where(entsql.EQ("user_id", userID)).
		Query()
	var n int
	err := l.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read document counter: %w", err)
	}
	return n, nil
}

func (l *PostgresLedger) Increment(ctx context.Context, userID string, n int) error {
	if n <= 0 {
		return nil
	}
	query, args := entsql.Dialect(dialect.Postgres).
		Insert(countersTable).
		Columns("user_id", "active_documents", "updated_at").
		Values(userID, n, time.Now().UTC()).
		OnConflict(
			entsql.ConflictColumns("user_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.Add("active_documents", n)
				u.SetExcluded("updated_at")
			}),
		).
		Query()
	if _, err := l.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("increment document counter: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Decrement(ctx context.Context, userID string, n int) error {
	if n <= 0 {
		return nil
	}
	query, args := entsql.Dialect(dialect.Postgres).
		Update(countersTable).
		Add("active_documents", -n).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.GTE("active_documents", n))).
		Query()
	res, err := l.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("decrement document counter: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// Counter drifted below the purge count; clamp instead of going negative.
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"n":       n,
		}).Warn("quota: counter lower than purge count, resetting to zero")
		query, args = entsql.Dialect(dialect.Postgres).
			Update(countersTable).
			Set("active_documents", 0).
			Set("updated_at", time.Now().UTC()).
			Where(entsql.EQ("user_id", userID)).
			Query()
		if _, err := l.DB.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("reset document counter: %w", err)
		}
	}
	return nil
}

// Set upserts the counter to n.
func (l *PostgresLedger) Set(ctx context.Context, userID string, n int) error {
	query, args := entsql.Dialect(dialect.Postgres).
		Insert(countersTable).
		Columns("user_id", "active_documents", "updated_at").
		Values(userID, max(n, 0), time.Now().UTC()).
		OnConflict(
			entsql.ConflictColumns("user_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("active_documents")
				u.SetExcluded("updated_at")
			}),
		).
		Query()
	if _, err := l.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set document counter: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Users(ctx context.Context) ([]string, error) {
	query, args := entsql.Dialect(dialect.Postgres).
		Select("user_id").From(entsql.Table(countersTable)).
		OrderBy("user_id").
		Query()
	rows, err := l.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list counter users: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
