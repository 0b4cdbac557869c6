package repository

import "context"

// Transactor runs fn inside one database transaction. Repository calls made with the
// ctx handed to fn join that transaction; returning an error rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
