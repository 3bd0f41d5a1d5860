package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backoffice-pricing/internal/money"
)

// Direction tells who pays whom when a contract is liquidated.
type Direction string

const (
	// PaymentIn means the counterparty owes the company.
	PaymentIn Direction = "payment_in"
	// PaymentOut means the company owes the counterparty.
	PaymentOut Direction = "payment_out"
)

// ContractLineItem is a line agreed at contract signing.
type ContractLineItem struct {
	ProductID     string      `json:"productId"`
	Quantity      int64       `json:"quantity"`
	ContractPrice money.Money `json:"contractPrice"`
}

// PreviewItem is a contract line with its (editable) current market price.
type PreviewItem struct {
	ContractLineItem
	MarketPrice money.Money `json:"marketPrice"`
}

// SettlementInput holds the contract figures needed for a liquidation.
type SettlementInput struct {
	Items         []PreviewItem
	ContractValue *money.Money
	DepositAmount money.Money
}

// ItemDelta is the per-line price movement.
type ItemDelta struct {
	PreviewItem
	PriceDelta money.Money `json:"priceDelta"`
}

// LiquidationSummary is the settlement preview.
type LiquidationSummary struct {
	Items               []ItemDelta `json:"items"`
	ContractValue       money.Money `json:"contractValue"`
	MarketValue         money.Money `json:"marketValue"`
	PriceDifference     money.Money `json:"priceDifference"`
	DepositAmount       money.Money `json:"depositAmount"`
	EstimatedSettlement money.Money `json:"estimatedSettlement"`
	Direction           Direction   `json:"settlementDirection"`
	DisplayAmount       money.Money `json:"displayAmount"`
}

// Settle derives the liquidation summary from scratch.
func Settle(in SettlementInput) LiquidationSummary {
	items := make([]ItemDelta, 0, len(in.Items))
	marketValue := money.Zero
	computedContract := money.Zero
	for _, it := range in.Items {
		marketValue = marketValue.Add(it.MarketPrice.MulInt(it.Quantity))
		computedContract = computedContract.Add(it.ContractPrice.MulInt(it.Quantity))
		items = append(items, ItemDelta{
			PreviewItem: it,
			PriceDelta:  it.MarketPrice.Sub(it.ContractPrice).MulInt(it.Quantity),
		})
	}
	contractValue := computedContract
	if in.ContractValue != nil {
		contractValue = *in.ContractValue
	}
	diff := marketValue.Sub(contractValue)
	settlement := in.DepositAmount.Add(diff)
	direction := PaymentIn
	if settlement.IsNegative() {
		direction = PaymentOut
	}
	return LiquidationSummary{
		Items:               items,
		ContractValue:       contractValue,
		MarketValue:         marketValue,
		PriceDifference:     diff,
		DepositAmount:       in.DepositAmount,
		EstimatedSettlement: settlement,
		Direction:           direction,
		DisplayAmount:       settlement.Abs(),
	}
}

// ValidateLiquidation blocks confirmation of an empty liquidation or one with
// negative market prices. Lines without a product ID are not resolvable.
func ValidateLiquidation(items []PreviewItem) error {
	var errs []error
	resolvable := 0
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			continue
		}
		resolvable++
		if it.MarketPrice.IsNegative() {
			errs = append(errs, invalid(fmt.Sprintf("liquidationItems[%d].marketPrice", i), ErrNegativeMarketPrice))
		}
	}
	if resolvable == 0 {
		errs = append(errs, invalid("liquidationItems", ErrNoLiquidationItems))
	}
	return errors.Join(errs...)
}
