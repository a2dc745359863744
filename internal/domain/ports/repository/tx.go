package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function within a database transaction,
// passing the underlying transaction handle via `tx`.
//
// Repository methods accept a Tx so that callers can group writes (e.g.
// persist a delivery, apply the status transition and append the event in
// one transaction). The concrete type is infra-defined (pgx.Tx for
// Postgres); repositories must gracefully accept a nil Tx and fall back to
// the pool.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
