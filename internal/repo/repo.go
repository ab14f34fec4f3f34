package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"slotswap/internal/domain"
	"slotswap/internal/engine"
)

// Repo is the SQLite store. The handle must come from db.Open so that
// transactions begin IMMEDIATE on a single connection.
type Repo struct {
	DB *sql.DB
}

var _ engine.Store = Repo{}

// InTx runs fn in one transaction and classifies lock contention as
// domain.ErrTransient.
func (r Repo) InTx(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	if err := fn(ctx, Tx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Tx implements engine.Tx on a *sql.Tx.
type Tx struct {
	tx *sql.Tx
}

func (t Tx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTransient) {
		return err
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", domain.ErrTransient, err)
		}
	}
	return err
}

// timeLayout is fixed width so that lexical order of the stored text
// matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Parse(time.RFC3339Nano, v)
	}
	return t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
