// Package pricing holds the deterministic calculations behind invoice line
// totals, alternate-unit prices, revenue sharing and contract liquidation.
// Every function here is a pure function of its arguments.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-pricing/internal/money"
)

// TaxOption is a tax rate a product may be invoiced with.
type TaxOption struct {
	ID         string        `json:"id"`
	Title      string        `json:"title,omitempty"`
	Percentage money.Percent `json:"percentage"`
	Active     bool          `json:"active"`
}

// UnitConversion states that one base unit equals Factor of UnitID.
type UnitConversion struct {
	UnitID string          `json:"unitId"`
	Factor decimal.Decimal `json:"conversionFactor"`
}

// Product is the read-only catalog view the engine prices against.
type Product struct {
	ID              string           `json:"id"`
	BasePrice       money.Money      `json:"basePrice"`
	BaseUnitID      string           `json:"baseUnitId"`
	Taxes           []TaxOption      `json:"taxes"`
	UnitConversions []UnitConversion `json:"unitConversions"`
}

// LineItem is one product entry of an invoice draft as edited by the user.
// Nil pointers mean "not entered" and pick up defaults in ResolveLine.
type LineItem struct {
	ProductID        string       `json:"productId" validate:"required"`
	Quantity         *int64       `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	GiveawayQuantity int64        `json:"giveawayQuantity" validate:"gte=0"`
	UnitPrice        *money.Money `json:"unitPrice,omitempty"`
	Discount         *money.Money `json:"discount,omitempty"`
	SelectedTaxIDs   []string     `json:"selectedTaxIds"`
	Note             string       `json:"note,omitempty"`
	Warranty         string       `json:"warranty,omitempty"`
}

// ResolveLine applies input defaults (quantity 1, discount 0, unit price from
// the product) and narrows the product's tax options to the active ones the
// user selected.
func ResolveLine(item LineItem, product Product) LineInput {
	qty := int64(1)
	if item.Quantity != nil {
		qty = *item.Quantity
	}
	price := product.BasePrice
	if item.UnitPrice != nil {
		price = *item.UnitPrice
	}
	discount := money.Zero
	if item.Discount != nil {
		discount = *item.Discount
	}
	return LineInput{
		Quantity:  qty,
		UnitPrice: price,
		Discount:  discount,
		Taxes:     SelectTaxes(product.Taxes, item.SelectedTaxIDs),
	}
}

// SelectTaxes returns the active options whose IDs are selected, in catalog
// order. Unknown and inactive IDs are ignored.
func SelectTaxes(options []TaxOption, selected []string) []TaxOption {
	if len(selected) == 0 || len(options) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		want[id] = struct{}{}
	}
	out := make([]TaxOption, 0, len(selected))
	for _, opt := range options {
		if !opt.Active {
			continue
		}
		if _, ok := want[opt.ID]; ok {
			out = append(out, opt)
		}
	}
	return out
}
