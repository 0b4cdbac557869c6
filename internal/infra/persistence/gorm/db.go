package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// txKey carries the active *gorm.DB transaction through a context.
type txKey struct{}

// GormTransactor implements repository.Transactor.
type GormTransactor struct {
	db *gorm.DB
}

func NewGormTransactor(db *gorm.DB) *GormTransactor {
	if db == nil {
		panic("database connection cannot be nil for GormTransactor")
	}
	return &GormTransactor{db: db}
}

// WithinTx opens a transaction, or joins the one already carried by ctx.
func (t *GormTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction bound to ctx, falling back to the pool.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

const (
	// pgUniqueViolation is the SQLSTATE Postgres reports for unique constraint failures.
	pgUniqueViolation = "23505"
	// pgInvalidText is reported when a key is not a valid uuid; no row can match it.
	pgInvalidText = "22P02"
)

func isNotFoundError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidText
}

func isDuplicateEntryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// wrapWriteErr maps unique violations to repository.ErrDuplicateEntry and wraps the rest.
func wrapWriteErr(err error, dup error, format string, args ...any) error {
	if isDuplicateEntryError(err) {
		return dup
	}
	return fmt.Errorf("gorm: "+format+": %w", append(args, err)...)
}
