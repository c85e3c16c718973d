package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is the storage-specific transaction handle (pgx.Tx for Postgres). It is
// opaque to use cases and only inspected by repository implementations.
type Tx interface{}

// NoTX runs a repository call outside any transaction.
var NoTX Tx

// TransactionManager runs fn inside a single database transaction. Repository
// methods receiving the tx handle lock the rows they read (SELECT ... FOR
// UPDATE) and write through the same handle. A nil handle means autocommit.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
