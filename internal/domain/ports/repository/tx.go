package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// TransactionManager provides a thin abstraction to execute a function
// within a database transaction, passing the underlying handle via `tx`.
//
// Repositories accept `tx Tx` and must gracefully accept nil (the
// non-transactional path); the concrete type is infra-defined (pgx.Tx for
// Postgres). Keeping the handle opaque keeps use-case interfaces free of
// driver types.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
