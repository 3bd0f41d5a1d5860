package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrShareRatioRequired is returned when revenue sharing is enabled without a ratio.
	ErrShareRatioRequired = errors.New("revenue share ratio is required")
	// ErrShareRatioOutOfRange is returned for negative ratios or ratios above 1.
	ErrShareRatioOutOfRange = errors.New("revenue share ratio must be between 0 and 1")
	// ErrShareBeneficiaryRequired is returned when revenue sharing is enabled without a beneficiary.
	ErrShareBeneficiaryRequired = errors.New("revenue share beneficiary is required")
	// ErrShareSelfBeneficiary is returned when the acting user names themself as beneficiary.
	ErrShareSelfBeneficiary = errors.New("revenue share beneficiary must differ from the acting user")
	// ErrNoLiquidationItems is returned when none of the contract lines can be liquidated.
	ErrNoLiquidationItems = errors.New("liquidation has no resolvable items")
	// ErrNegativeMarketPrice is returned when an edited market price is below zero.
	ErrNegativeMarketPrice = errors.New("market price must not be negative")
	// ErrInvalidConversionFactor is returned for user-entered factors that are zero or negative.
	ErrInvalidConversionFactor = errors.New("conversion factor must be greater than zero")
	// ErrSelfConversion is returned for a conversion row that references the base unit.
	ErrSelfConversion = errors.New("conversion unit must differ from the base unit")
	// ErrNegativeQuantity is returned for line quantities below zero.
	ErrNegativeQuantity = errors.New("quantity must not be negative")
	// ErrNegativeAmount is returned for negative unit prices or discounts.
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrUnknownProduct is returned for lines referencing a product missing from the catalog.
	ErrUnknownProduct = errors.New("product not found in catalog")
)

// ValidationError is a user-facing precondition failure that blocks submission.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Err.Error())
}

// Unwrap exposes the sentinel so callers can match with errors.Is.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewValidationError attaches field to a sentinel.
func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func invalid(field string, err error) error {
	return NewValidationError(field, err)
}

// FieldErrors flattens a (possibly joined) error into field → message pairs.
func FieldErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	out := map[string]string{}
	collectFieldErrors(err, out)
	return out
}

func collectFieldErrors(err error, out map[string]string) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			collectFieldErrors(e, out)
		}
		return
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		field := ve.Field
		if field == "" {
			field = "_"
		}
		out[field] = ve.Err.Error()
		return
	}
	out["_"] = err.Error()
}
