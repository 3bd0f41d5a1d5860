package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-pricing/internal/money"
)

// UnitPrice is the derived price of one alternate unit.
type UnitPrice struct {
	UnitID string          `json:"unitId"`
	Factor decimal.Decimal `json:"conversionFactor"`
	Price  money.Money     `json:"price"`
}

// ConversionFromFloat builds a conversion row from a float factor. NaN and
// infinite factors are mapped to zero so derivation skips them.
func ConversionFromFloat(unitID string, factor float64) UnitConversion {
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return UnitConversion{UnitID: unitID, Factor: decimal.Zero}
	}
	return UnitConversion{UnitID: unitID, Factor: decimal.NewFromFloat(factor)}
}

// NormalizeConversions drops rows that point at the base unit and collapses
// duplicates by unit: the last row wins but keeps the slot of the first.
func NormalizeConversions(baseUnitID string, rows []UnitConversion) []UnitConversion {
	if len(rows) == 0 {
		return nil
	}
	index := make(map[string]int, len(rows))
	out := make([]UnitConversion, 0, len(rows))
	for _, row := range rows {
		if row.UnitID == "" || row.UnitID == baseUnitID {
			continue
		}
		if pos, ok := index[row.UnitID]; ok {
			out[pos] = row
			continue
		}
		index[row.UnitID] = len(out)
		out = append(out, row)
	}
	return out
}

// DeriveUnitPrices returns basePrice / factor for every valid alternate unit.
// Rows with a non-positive factor yield no price.
func DeriveUnitPrices(basePrice money.Money, baseUnitID string, rows []UnitConversion) []UnitPrice {
	rows = NormalizeConversions(baseUnitID, rows)
	out := make([]UnitPrice, 0, len(rows))
	for _, row := range rows {
		if row.Factor.Sign() <= 0 {
			continue
		}
		out = append(out, UnitPrice{
			UnitID: row.UnitID,
			Factor: row.Factor,
			Price:  basePrice.Div(row.Factor),
		})
	}
	return out
}

// ProductUnitPrices derives alternate-unit prices from a catalog product.
func ProductUnitPrices(p Product) []UnitPrice {
	return DeriveUnitPrices(p.BasePrice, p.BaseUnitID, p.UnitConversions)
}

// ValidateConversions is the submission-time check for user-entered rows.
// Unlike DeriveUnitPrices it reports bad factors instead of skipping them.
func ValidateConversions(baseUnitID string, rows []UnitConversion) error {
	var errs []error
	for i, row := range rows {
		field := fmt.Sprintf("unitConversions[%d]", i)
		if row.UnitID == baseUnitID {
			errs = append(errs, invalid(field+".unitId", ErrSelfConversion))
			continue
		}
		if row.Factor.Sign() <= 0 {
			errs = append(errs, invalid(field+".conversionFactor", ErrInvalidConversionFactor))
		}
	}
	return errors.Join(errs...)
}
