package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

const uniqueViolation = "23505"

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the tables used by the service if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	op := "internal/storage/storage.go EnsureSchema"

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// classify maps driver errors onto the package sentinels, keeping the original in the chain.
func classify(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
