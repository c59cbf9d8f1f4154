package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	dbgen "github.com/wsplatform/checkout-api/internal/db/gen"
)

// TxBeginner starts a transaction. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Products stores catalog products in Postgres.
type Products struct {
	DB TxBeginner
	Q  *dbgen.Queries
}

// List returns every product ordered by id.
func (r Products) List(ctx context.Context) ([]dbgen.Product, error) {
	rows, err := r.Q.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return rows, nil
}

// Create assigns the next id (max existing id + 1) and inserts the product.
// The table lock keeps concurrent creates from computing the same id.
func (r Products) Create(ctx context.Context, arg dbgen.InsertProductParams) (dbgen.Product, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return dbgen.Product{}, fmt.Errorf("begin product tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := r.Q.WithTx(tx)
	if err := q.LockProducts(ctx); err != nil {
		return dbgen.Product{}, fmt.Errorf("lock products: %w", err)
	}
	next, err := q.NextProductID(ctx)
	if err != nil {
		return dbgen.Product{}, fmt.Errorf("next product id: %w", err)
	}
	arg.ID = next
	created, err := q.InsertProduct(ctx, arg)
	if err != nil {
		return dbgen.Product{}, fmt.Errorf("insert product: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return dbgen.Product{}, fmt.Errorf("commit product: %w", err)
	}
	return created, nil
}
