package pricing

import (
	"errors"
	"fmt"

	"github.com/noah-isme/backoffice-pricing/internal/money"
)

// LineInput is a line with defaults applied and taxes resolved.
type LineInput struct {
	Quantity  int64
	UnitPrice money.Money
	Discount  money.Money
	Taxes     []TaxOption
}

// LineResult carries the computed figures for one line.
type LineResult struct {
	Quantity    int64         `json:"quantity"`
	UnitPrice   money.Money   `json:"unitPrice"`
	RawSubtotal money.Money   `json:"rawSubtotal"`
	Discount    money.Money   `json:"discount"`
	Subtotal    money.Money   `json:"subTotal"`
	TaxPercent  money.Percent `json:"taxPercent"`
	TaxAmount   money.Money   `json:"taxAmount"`
	Total       money.Money   `json:"total"`
}

// ComputeLine prices a single line.
//
// Tax is charged on the undiscounted quantity × unit price, and a discount
// larger than that base clamps the line subtotal at zero.
func ComputeLine(in LineInput) LineResult {
	raw := in.UnitPrice.MulInt(in.Quantity)
	subtotal := raw.Sub(in.Discount).Max(money.Zero)

	percent := money.Percent{}
	for _, tax := range in.Taxes {
		percent = percent.Add(tax.Percentage)
	}
	taxAmount := percent.Of(raw)

	return LineResult{
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		RawSubtotal: raw,
		Discount:    in.Discount,
		Subtotal:    subtotal,
		TaxPercent:  percent,
		TaxAmount:   taxAmount,
		Total:       subtotal.Add(taxAmount),
	}
}

// ValidateLine rejects inputs outside the calculator's domain.
func ValidateLine(field string, in LineInput) error {
	var errs []error
	if in.Quantity < 0 {
		errs = append(errs, invalid(fmt.Sprintf("%s.quantity", field), ErrNegativeQuantity))
	}
	if in.UnitPrice.IsNegative() {
		errs = append(errs, invalid(fmt.Sprintf("%s.unitPrice", field), ErrNegativeAmount))
	}
	if in.Discount.IsNegative() {
		errs = append(errs, invalid(fmt.Sprintf("%s.discount", field), ErrNegativeAmount))
	}
	return errors.Join(errs...)
}
