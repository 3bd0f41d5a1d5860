package pricing

import "github.com/noah-isme/backoffice-pricing/internal/money"

// InvoiceTotals aggregates computed pricing components of a draft.
type InvoiceTotals struct {
	SubTotal      money.Money `json:"subTotal"`
	DiscountTotal money.Money `json:"discountTotal"`
	TaxTotal      money.Money `json:"taxTotal"`
	GrandTotal    money.Money `json:"grandTotal"`
}

// Aggregate sums every line from scratch. SubTotal is the undiscounted base
// and GrandTotal = SubTotal - DiscountTotal + TaxTotal.
func Aggregate(lines []LineResult) InvoiceTotals {
	var totals InvoiceTotals
	for _, line := range lines {
		totals.SubTotal = totals.SubTotal.Add(line.RawSubtotal)
		totals.DiscountTotal = totals.DiscountTotal.Add(line.Discount)
		totals.TaxTotal = totals.TaxTotal.Add(line.TaxAmount)
	}
	totals.GrandTotal = totals.SubTotal.Sub(totals.DiscountTotal).Add(totals.TaxTotal)
	return totals
}

// Quote is the full recomputation of a draft against a catalog view.
type Quote struct {
	Lines  []LineResult  `json:"lines"`
	Totals InvoiceTotals `json:"totals"`
}

// QuoteLines resolves and prices every line, then aggregates. Lines whose
// product is missing from products are priced with a zero base price.
func QuoteLines(items []LineItem, products map[string]Product) Quote {
	lines := make([]LineResult, 0, len(items))
	for _, item := range items {
		lines = append(lines, ComputeLine(ResolveLine(item, products[item.ProductID])))
	}
	return Quote{Lines: lines, Totals: Aggregate(lines)}
}
