package liquidation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
)

var (
	// ErrContractNotFound is returned for unknown contract IDs.
	ErrContractNotFound = errors.New("liquidation: contract not found")
	// ErrStaleState is returned when the contract changed state concurrently.
	ErrStaleState = errors.New("liquidation: contract state changed concurrently")
)

// Contract is the procurement contract as the liquidation flow sees it.
type Contract struct {
	ID            string
	Status        State
	DepositAmount money.Money
	ContractValue *money.Money
	Items         []pricing.ContractLineItem
	// ConfirmedPrices holds the market prices of the pending liquidation.
	ConfirmedPrices map[string]money.Money
}

// Store persists contract liquidation state.
type Store interface {
	Get(ctx context.Context, id string) (Contract, error)
	// Apply moves the contract from t.From to t.To and replaces its confirmed
	// prices. beforeCommit runs inside the transaction; an error rolls back.
	Apply(ctx context.Context, id string, t Transition, prices map[string]money.Money, beforeCommit func(context.Context) error) error
}

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore reads contracts from Postgres.
type PGStore struct {
	db DB
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

const (
	selectContract = `SELECT id, status, deposit_amount::text, contract_value::text
FROM contracts
WHERE id = $1`

	selectContractItems = `SELECT product_id, quantity, contract_price::text
FROM contract_items
WHERE contract_id = $1
ORDER BY position, product_id`

	selectConfirmedPrices = `SELECT product_id, market_price::text
FROM contract_liquidation_prices
WHERE contract_id = $1`

	updateContractStatus = `UPDATE contracts
SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2`

	deleteConfirmedPrices = `DELETE FROM contract_liquidation_prices WHERE contract_id = $1`

	insertConfirmedPrice = `INSERT INTO contract_liquidation_prices (contract_id, product_id, market_price)
VALUES ($1, $2, $3::numeric)`
)

// Get loads a contract with its items and confirmed prices.
func (s *PGStore) Get(ctx context.Context, id string) (Contract, error) {
	var (
		c             Contract
		status        string
		deposit       string
		contractValue *string
	)
	err := s.db.QueryRow(ctx, selectContract, id).Scan(&c.ID, &status, &deposit, &contractValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrContractNotFound
		}
		return Contract{}, fmt.Errorf("query contract: %w", err)
	}
	c.Status = State(status)
	if c.DepositAmount, err = money.Parse(deposit); err != nil {
		return Contract{}, fmt.Errorf("contract %s deposit: %w", id, err)
	}
	if contractValue != nil {
		v, err := money.Parse(*contractValue)
		if err != nil {
			return Contract{}, fmt.Errorf("contract %s value: %w", id, err)
		}
		c.ContractValue = &v
	}

	rows, err := s.db.Query(ctx, selectContractItems, id)
	if err != nil {
		return Contract{}, fmt.Errorf("query contract items: %w", err)
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.ContractLineItem, error) {
		var (
			item  pricing.ContractLineItem
			price string
		)
		if err := row.Scan(&item.ProductID, &item.Quantity, &price); err != nil {
			return item, err
		}
		p, err := money.Parse(price)
		if err != nil {
			return item, fmt.Errorf("contract price of %s: %w", item.ProductID, err)
		}
		item.ContractPrice = p
		return item, nil
	})
	if err != nil {
		return Contract{}, fmt.Errorf("scan contract items: %w", err)
	}

	rows, err = s.db.Query(ctx, selectConfirmedPrices, id)
	if err != nil {
		return Contract{}, fmt.Errorf("query confirmed prices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var productID, price string
		if err := rows.Scan(&productID, &price); err != nil {
			return Contract{}, fmt.Errorf("scan confirmed price: %w", err)
		}
		p, err := money.Parse(price)
		if err != nil {
			return Contract{}, fmt.Errorf("confirmed price of %s: %w", productID, err)
		}
		if c.ConfirmedPrices == nil {
			c.ConfirmedPrices = map[string]money.Money{}
		}
		c.ConfirmedPrices[productID] = p
	}
	if err := rows.Err(); err != nil {
		return Contract{}, fmt.Errorf("iterate confirmed prices: %w", err)
	}
	return c, nil
}

// Apply implements Store with a compare-and-set on the status column.
func (s *PGStore) Apply(ctx context.Context, id string, t Transition, prices map[string]money.Money, beforeCommit func(context.Context) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateContractStatus, id, string(t.From), string(t.To))
		if err != nil {
			return fmt.Errorf("update contract status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStaleState
		}
		if _, err := tx.Exec(ctx, deleteConfirmedPrices, id); err != nil {
			return fmt.Errorf("clear confirmed prices: %w", err)
		}
		for productID, price := range prices {
			if _, err := tx.Exec(ctx, insertConfirmedPrice, id, productID, price.String()); err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23503" {
					return fmt.Errorf("confirmed price for unknown product %s: %w", productID, err)
				}
				return fmt.Errorf("insert confirmed price: %w", err)
			}
		}
		if beforeCommit != nil {
			return beforeCommit(ctx)
		}
		return nil
	})
}
