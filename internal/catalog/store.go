package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
)

// Store loads catalog products by ID.
type Store interface {
	LoadProducts(ctx context.Context, ids []string) ([]pricing.Product, error)
}

// Querier is the subset of pgxpool.Pool used by PGStore.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGStore reads products, their tax options and unit conversions from Postgres.
type PGStore struct {
	db Querier
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{db: db}
}

const (
	selectProducts = `SELECT id, base_price::text, base_unit_id
FROM products
WHERE id = ANY($1)`

	selectProductTaxes = `SELECT pt.product_id, t.id, t.title, t.percentage::text, t.active
FROM product_taxes pt
JOIN taxes t ON t.id = pt.tax_id
WHERE pt.product_id = ANY($1) AND t.active
ORDER BY pt.product_id, pt.position, t.id`

	selectUnitConversions = `SELECT product_id, unit_id, conversion_factor::text
FROM unit_conversions
WHERE product_id = ANY($1)
ORDER BY product_id, position, unit_id`
)

// LoadProducts returns the products found for ids. Unknown ids are omitted.
func (s *PGStore) LoadProducts(ctx context.Context, ids []string) ([]pricing.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, selectProducts, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.Product, error) {
		var (
			p     pricing.Product
			price string
		)
		if err := row.Scan(&p.ID, &price, &p.BaseUnitID); err != nil {
			return p, err
		}
		base, err := money.Parse(price)
		if err != nil {
			return p, fmt.Errorf("product %s base price: %w", p.ID, err)
		}
		p.BasePrice = base
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	if len(products) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(products))
	for i, p := range products {
		index[p.ID] = i
	}

	if err := s.loadTaxes(ctx, ids, products, index); err != nil {
		return nil, err
	}
	if err := s.loadConversions(ctx, ids, products, index); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *PGStore) loadTaxes(ctx context.Context, ids []string, products []pricing.Product, index map[string]int) error {
	rows, err := s.db.Query(ctx, selectProductTaxes, ids)
	if err != nil {
		return fmt.Errorf("query product taxes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			productID string
			tax       pricing.TaxOption
			pct       string
		)
		if err := rows.Scan(&productID, &tax.ID, &tax.Title, &pct, &tax.Active); err != nil {
			return fmt.Errorf("scan product tax: %w", err)
		}
		percent, err := money.ParsePercent(pct)
		if err != nil {
			return fmt.Errorf("tax %s percentage: %w", tax.ID, err)
		}
		tax.Percentage = percent
		if i, ok := index[productID]; ok {
			products[i].Taxes = append(products[i].Taxes, tax)
		}
	}
	return rows.Err()
}

func (s *PGStore) loadConversions(ctx context.Context, ids []string, products []pricing.Product, index map[string]int) error {
	rows, err := s.db.Query(ctx, selectUnitConversions, ids)
	if err != nil {
		return fmt.Errorf("query unit conversions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var productID, unitID, factor string
		if err := rows.Scan(&productID, &unitID, &factor); err != nil {
			return fmt.Errorf("scan unit conversion: %w", err)
		}
		i, ok := index[productID]
		if !ok {
			continue
		}
		products[i].UnitConversions = append(products[i].UnitConversions, pricing.UnitConversion{
			UnitID: unitID,
			Factor: parseFactor(factor),
		})
	}
	return rows.Err()
}

// parseFactor maps unparsable stored factors (including NaN) to zero so
// derivation skips the row.
func parseFactor(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
