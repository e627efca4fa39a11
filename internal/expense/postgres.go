package expense

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed migrations/001_create_expenses.sql
var migrationSQL string

const (
	uniqueViolation = "23505"
	hashConstraint  = "expenses_file_hash_key"
	expenseColumns  = `id, date, amount::text, COALESCE(category, ''), COALESCE(file_hash, ''), COALESCE(filename, ''), COALESCE(content_type, ''), created_at`
)

// PostgresDB implements the DB interface on a PostgreSQL expenses table
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB connects to databaseURL and creates the expenses table if needed
func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migration: %w", err)
	}

	slog.Info("Connected to PostgreSQL", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)
	return &PostgresDB{pool: pool}, nil
}

// SaveExpense upserts an expense. Its source hash is recorded in
// receipt_hashes first; a hash already recorded for another expense, even a
// deleted one, is reported as ErrDuplicate.
func (p *PostgresDB) SaveExpense(ctx context.Context, expense *Expense) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if expense.SourceHash != "" {
		// The no-op update locks an existing row and returns its owner
		var owner string
		err := tx.QueryRow(ctx, `
			INSERT INTO receipt_hashes (hash, expense_id) VALUES ($1, $2)
			ON CONFLICT (hash) DO UPDATE SET hash = EXCLUDED.hash
			RETURNING expense_id`,
			expense.SourceHash, expense.ID,
		).Scan(&owner)
		if err != nil {
			return fmt.Errorf("recording file hash: %w", err)
		}
		if owner != expense.ID {
			return ErrDuplicate
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO expenses (id, date, amount, category, file_hash, filename, content_type, created_at)
		VALUES ($1, $2, $3::text::numeric, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
		ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date,
			amount = EXCLUDED.amount,
			category = EXCLUDED.category,
			file_hash = EXCLUDED.file_hash,
			filename = EXCLUDED.filename,
			content_type = EXCLUDED.content_type`,
		expense.ID,
		expense.Date,
		expense.Amount.String(),
		expense.Category,
		expense.SourceHash,
		expense.Filename,
		expense.ContentType,
		expense.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == hashConstraint {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting expense: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing expense: %w", err)
	}
	return nil
}

// GetExpense retrieves an expense by ID
func (p *PostgresDB) GetExpense(ctx context.Context, id string) (*Expense, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("querying expense: %w", err)
	}
	expense, err := pgx.CollectExactlyOneRow(rows, scanExpense)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns all expenses
func (p *PostgresDB) ListExpenses(ctx context.Context) ([]*Expense, error) {
	return p.list(ctx, `SELECT `+expenseColumns+` FROM expenses ORDER BY date, created_at`)
}

// ListExpensesBetween returns expenses dated in [start, end)
func (p *PostgresDB) ListExpensesBetween(ctx context.Context, start, end time.Time) ([]*Expense, error) {
	return p.list(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE date >= $1 AND date < $2 ORDER BY date, created_at`,
		start, end,
	)
}

func (p *PostgresDB) list(ctx context.Context, query string, args ...any) ([]*Expense, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying expenses: %w", err)
	}
	expenses, err := pgx.CollectRows(rows, scanExpense)
	if err != nil {
		return nil, fmt.Errorf("reading expenses: %w", err)
	}
	if expenses == nil {
		expenses = []*Expense{}
	}
	return expenses, nil
}

// DeleteExpense removes an expense. Its row in receipt_hashes is kept.
func (p *PostgresDB) DeleteExpense(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// HasHash reports whether the source hash was ever recorded
func (p *PostgresDB) HasHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM receipt_hashes WHERE hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking file hash: %w", err)
	}
	return exists, nil
}

// Close closes the connection pool
func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

func scanExpense(row pgx.CollectableRow) (*Expense, error) {
	var (
		e      Expense
		amount string
	)
	if err := row.Scan(&e.ID, &e.Date, &amount, &e.Category, &e.SourceHash, &e.Filename, &e.ContentType, &e.CreatedAt); err != nil {
		return nil, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	e.Amount = value
	e.Date = time.Date(e.Date.Year(), e.Date.Month(), e.Date.Day(), 0, 0, 0, 0, time.UTC)
	return &e, nil
}
