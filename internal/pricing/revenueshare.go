package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-pricing/internal/money"
)

// ShareInput carries an opted-in revenue share request.
type ShareInput struct {
	Ratio             *money.Ratio
	BeneficiaryUserID string
	ActingUserID      string
	SubTotal          money.Money
	DiscountTotal     money.Money
}

// RevenueShare is the amount attributed to a beneficiary.
type RevenueShare struct {
	Ratio             money.Ratio `json:"ratio"`
	BeneficiaryUserID string      `json:"userId"`
	Base              money.Money `json:"base"`
	Amount            money.Money `json:"amount"`
}

// ValidateShare checks the hard preconditions of revenue sharing.
func ValidateShare(in ShareInput) error {
	var errs []error
	switch {
	case in.Ratio == nil || in.Ratio.IsZero():
		errs = append(errs, invalid("revenueSharing.ratio", ErrShareRatioRequired))
	case in.Ratio.Sign() < 0 || in.Ratio.Decimal().GreaterThan(decimal.NewFromInt(1)):
		errs = append(errs, invalid("revenueSharing.ratio", ErrShareRatioOutOfRange))
	}
	beneficiary := strings.TrimSpace(in.BeneficiaryUserID)
	switch {
	case beneficiary == "":
		errs = append(errs, invalid("revenueSharing.userId", ErrShareBeneficiaryRequired))
	case beneficiary == strings.TrimSpace(in.ActingUserID):
		errs = append(errs, invalid("revenueSharing.userId", ErrShareSelfBeneficiary))
	}
	return errors.Join(errs...)
}

// ComputeRevenueShare returns (SubTotal - DiscountTotal) × Ratio. Tax is not
// part of the share base.
func ComputeRevenueShare(in ShareInput) (RevenueShare, error) {
	if err := ValidateShare(in); err != nil {
		return RevenueShare{}, err
	}
	base := in.SubTotal.Sub(in.DiscountTotal)
	return RevenueShare{
		Ratio:             *in.Ratio,
		BeneficiaryUserID: strings.TrimSpace(in.BeneficiaryUserID),
		Base:              base,
		Amount:            in.Ratio.Of(base),
	}, nil
}
