package invoice

import (
	"errors"

	"github.com/noah-isme/backoffice-pricing/internal/catalog"
	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
)

// PayloadItem is one line as the backend expects it.
type PayloadItem struct {
	ProductID        string      `json:"productId"`
	Quantity         int64       `json:"quantity"`
	GiveawayQuantity int64       `json:"giveawayQuantity"`
	UnitPrice        money.Money `json:"unitPrice"`
	Discount         money.Money `json:"discount"`
	TaxIDs           []string    `json:"taxIds"`
	TaxAmount        money.Money `json:"taxAmount"`
	SubTotal         money.Money `json:"subTotal"`
	Total            money.Money `json:"total"`
	Note             string      `json:"note,omitempty"`
	Warranty         string      `json:"warranty,omitempty"`
}

// SharePayload is the revenue share block. SharePercentage is the ratio
// expressed in percent.
type SharePayload struct {
	SharePercentage money.Percent `json:"sharePercentage"`
	UserID          string        `json:"userId"`
	Amount          money.Money   `json:"amount"`
}

// Payload is the invoice submission body.
type Payload struct {
	Items          []PayloadItem `json:"items"`
	SubTotal       money.Money   `json:"subTotal"`
	TaxAmount      money.Money   `json:"taxAmount"`
	DiscountAmount money.Money   `json:"discountAmount"`
	TotalAmount    money.Money   `json:"totalAmount"`
	TotalInWords   string        `json:"totalInWords"`
	RevenueSharing *SharePayload `json:"revenueSharing,omitempty"`
}

// BuildPayload validates d against snap and assembles the submission body.
// Every figure is recomputed; client-side totals are never trusted.
func BuildPayload(d Draft, snap catalog.Snapshot, actingUserID, locale string) (Payload, error) {
	d = d.normalized()
	errs := []error{validateLines(d.Items, snap)}

	items := make([]PayloadItem, 0, len(d.Items))
	lines := make([]pricing.LineResult, 0, len(d.Items))
	for _, item := range d.Items {
		product, _ := snap.Product(item.ProductID)
		in := pricing.ResolveLine(item, product)
		line := pricing.ComputeLine(in)
		lines = append(lines, line)

		taxIDs := make([]string, 0, len(in.Taxes))
		for _, tax := range in.Taxes {
			taxIDs = append(taxIDs, tax.ID)
		}
		items = append(items, PayloadItem{
			ProductID:        item.ProductID,
			Quantity:         line.Quantity,
			GiveawayQuantity: item.GiveawayQuantity,
			UnitPrice:        line.UnitPrice,
			Discount:         line.Discount,
			TaxIDs:           taxIDs,
			TaxAmount:        line.TaxAmount,
			SubTotal:         line.Subtotal,
			Total:            line.Total,
			Note:             item.Note,
			Warranty:         item.Warranty,
		})
	}
	totals := pricing.Aggregate(lines)

	var share *SharePayload
	if d.RevenueSharing != nil {
		rs, err := pricing.ComputeRevenueShare(shareInput(d.RevenueSharing, actingUserID, totals))
		if err != nil {
			errs = append(errs, err)
		} else {
			share = &SharePayload{
				SharePercentage: rs.Ratio.Percent(),
				UserID:          rs.BeneficiaryUserID,
				Amount:          rs.Amount,
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Payload{}, err
	}

	return Payload{
		Items:          items,
		SubTotal:       totals.SubTotal,
		TaxAmount:      totals.TaxTotal,
		DiscountAmount: totals.DiscountTotal,
		TotalAmount:    totals.GrandTotal,
		TotalInWords:   pricing.AmountInWords(totals.GrandTotal, locale),
		RevenueSharing: share,
	}, nil
}
