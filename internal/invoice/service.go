// Package invoice prices sales-invoice drafts against the catalog and turns
// them into submission payloads.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backoffice-pricing/internal/catalog"
	"github.com/noah-isme/backoffice-pricing/internal/common"
	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/obs"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
	"github.com/noah-isme/backoffice-pricing/internal/submission"
)

// SubmissionPath is the backend endpoint receiving invoice payloads.
const SubmissionPath = "/sales-invoices"

// CatalogReader loads catalog snapshots.
type CatalogReader interface {
	Snapshot(ctx context.Context, ids []string) (catalog.Snapshot, error)
}

// Draft is an invoice under edit.
type Draft struct {
	Items          []pricing.LineItem `json:"items" validate:"dive"`
	RevenueSharing *RevenueSharing    `json:"revenueSharing,omitempty"`
	Locale         string             `json:"locale,omitempty"`
}

// RevenueSharing is present only while the user has revenue sharing enabled.
type RevenueSharing struct {
	Ratio  *money.Ratio `json:"ratio"`
	UserID string       `json:"userId"`
}

// QuoteResult is the live preview of a draft. Errors lists the problems
// that would block submission without failing the quote itself.
type QuoteResult struct {
	Lines          []pricing.LineResult  `json:"lines"`
	Totals         pricing.InvoiceTotals `json:"totals"`
	TotalInWords   string                `json:"totalInWords"`
	FormattedTotal string                `json:"formattedTotal"`
	RevenueShare   *pricing.RevenueShare `json:"revenueShare,omitempty"`
	Errors         map[string]string     `json:"errors,omitempty"`
}

// Service computes quotes and queues submissions.
type Service struct {
	catalog       CatalogReader
	enqueuer      submission.Enqueuer
	defaultLocale string
	logger        zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Catalog       CatalogReader
	Enqueuer      submission.Enqueuer
	DefaultLocale string
	Logger        zerolog.Logger
}

// NewService constructs an invoice service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("invoice: catalog is required")
	}
	locale := strings.TrimSpace(cfg.DefaultLocale)
	if locale == "" {
		locale = pricing.LocaleVI
	}
	return &Service{
		catalog:       cfg.Catalog,
		enqueuer:      cfg.Enqueuer,
		defaultLocale: locale,
		logger:        cfg.Logger.With().Str("component", "invoice").Logger(),
	}, nil
}

// normalized returns d with surrounding whitespace stripped from product IDs,
// matching how the catalog keys its snapshot.
func (d Draft) normalized() Draft {
	items := make([]pricing.LineItem, len(d.Items))
	for i, item := range d.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		items[i] = item
	}
	d.Items = items
	return d
}

func productIDs(items []pricing.LineItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func (s *Service) locale(d Draft) string {
	if l := strings.TrimSpace(d.Locale); l != "" {
		return l
	}
	return s.defaultLocale
}

// Quote recomputes every line and the totals of d.
func (s *Service) Quote(ctx context.Context, d Draft, actingUserID string) (QuoteResult, error) {
	d = d.normalized()
	snap, err := s.catalog.Snapshot(ctx, productIDs(d.Items))
	if err != nil {
		obs.CountQuote("error")
		return QuoteResult{}, fmt.Errorf("catalog snapshot: %w", err)
	}
	result := Compute(d, snap, actingUserID, s.locale(d))
	if len(result.Errors) > 0 {
		obs.CountQuote("invalid")
	} else {
		obs.CountQuote("ok")
	}
	return result, nil
}

// Compute is the pure part of Quote.
func Compute(d Draft, snap catalog.Snapshot, actingUserID, locale string) QuoteResult {
	d = d.normalized()
	quote := pricing.QuoteLines(d.Items, snap.Products())
	result := QuoteResult{
		Lines:          quote.Lines,
		Totals:         quote.Totals,
		TotalInWords:   pricing.AmountInWords(quote.Totals.GrandTotal, locale),
		FormattedTotal: money.Format(quote.Totals.GrandTotal, locale),
	}
	errs := []error{validateLines(d.Items, snap)}
	if d.RevenueSharing != nil {
		share, err := pricing.ComputeRevenueShare(shareInput(d.RevenueSharing, actingUserID, quote.Totals))
		if err != nil {
			errs = append(errs, err)
		} else {
			result.RevenueShare = &share
		}
	}
	if err := errors.Join(errs...); err != nil {
		result.Errors = pricing.FieldErrors(err)
	}
	return result
}

func shareInput(rs *RevenueSharing, actingUserID string, totals pricing.InvoiceTotals) pricing.ShareInput {
	return pricing.ShareInput{
		Ratio:             rs.Ratio,
		BeneficiaryUserID: rs.UserID,
		ActingUserID:      actingUserID,
		SubTotal:          totals.SubTotal,
		DiscountTotal:     totals.DiscountTotal,
	}
}

func validateLines(items []pricing.LineItem, snap catalog.Snapshot) error {
	var errs []error
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		product, ok := snap.Product(item.ProductID)
		if !ok {
			errs = append(errs, pricing.NewValidationError(field+".productId", pricing.ErrUnknownProduct))
			continue
		}
		if err := pricing.ValidateLine(field, pricing.ResolveLine(item, product)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Submit validates d in full, builds the payload and queues it. Validation
// failures are VALIDATION_FAILED AppErrors carrying field details.
func (s *Service) Submit(ctx context.Context, d Draft, actingUserID, idempotencyKey string) (submission.Receipt, Payload, error) {
	if s.enqueuer == nil {
		return submission.Receipt{}, Payload{}, errors.New("invoice: enqueuer not configured")
	}
	d = d.normalized()
	if len(d.Items) == 0 {
		return submission.Receipt{}, Payload{}, common.ValidationFailed(errors.New("invoice has no items"), map[string]string{"items": "at least one item is required"})
	}
	snap, err := s.catalog.Snapshot(ctx, productIDs(d.Items))
	if err != nil {
		return submission.Receipt{}, Payload{}, fmt.Errorf("catalog snapshot: %w", err)
	}
	payload, err := BuildPayload(d, snap, actingUserID, s.locale(d))
	if err != nil {
		return submission.Receipt{}, Payload{}, common.ValidationFailed(err, pricing.FieldErrors(err))
	}
	env, err := submission.NewEnvelope(submission.KindInvoice, SubmissionPath, idempotencyKey, actingUserID, payload)
	if err != nil {
		return submission.Receipt{}, Payload{}, err
	}
	receipt, err := s.enqueuer.Enqueue(ctx, env)
	if err != nil {
		if errors.Is(err, submission.ErrDuplicate) {
			return submission.Receipt{}, Payload{}, common.Conflict("invoice already submitted", err)
		}
		return submission.Receipt{}, Payload{}, err
	}
	s.logger.Info().
		Str("task_id", receipt.TaskID).
		Str("acting_user_id", actingUserID).
		Str("total_amount", payload.TotalAmount.String()).
		Msg("invoice_submission_queued")
	return receipt, payload, nil
}
