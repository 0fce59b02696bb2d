package ledger

import (
	"context"
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLClient is so we can pass *sql.DB and *sql.Tx to the same functions
type SQLClient interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening ledger database")
	}
	// sqlite allows a single writer; serializing at the pool level turns
	// concurrent reserve attempts into the atomic compare-and-decrement the
	// ledger depends on instead of SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	return db, nil
}

func (l *Ledger) GetMigrations() (*migrate.Migrate, error) {
	files, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	migrations, err := migrate.NewWithSourceInstance("iofs", files, l.connectionString)
	if err != nil {
		return nil, err
	}
	return migrations, nil
}

func (l *Ledger) MigrateUp() error {
	migrations, err := l.GetMigrations()
	if err != nil {
		return err
	}
	err = migrations.Up()
	if err != migrate.ErrNoChange {
		return err
	}
	return nil
}
