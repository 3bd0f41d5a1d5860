package liquidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backoffice-pricing/internal/common"
	"github.com/noah-isme/backoffice-pricing/internal/lock"
	"github.com/noah-isme/backoffice-pricing/internal/market"
	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/obs"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
	"github.com/noah-isme/backoffice-pricing/internal/submission"
)

// Price sources reported per product in a preview.
const (
	SourceOverride  = "override"
	SourceConfirmed = "confirmed"
	SourceMarket    = "market"
	SourceContract  = "contract"
)

// ErrNotOnContract marks an override for a product the contract does not hold.
var ErrNotOnContract = errors.New("product is not on the contract")

// Locker serialises status changes of a contract.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// PriceOverride is a market price edited by the operator.
type PriceOverride struct {
	ProductID   string      `json:"productId" validate:"required"`
	MarketPrice money.Money `json:"marketPrice"`
}

// Request carries operator edits for a preview or confirmation.
type Request struct {
	Items []PriceOverride `json:"liquidationItems" validate:"dive"`
}

// Preview is the settlement of a contract at the current market prices.
type Preview struct {
	ContractID   string                     `json:"contractId"`
	Status       State                      `json:"status"`
	Summary      pricing.LiquidationSummary `json:"summary"`
	PriceSources map[string]string          `json:"priceSources"`
	Errors       map[string]string          `json:"errors,omitempty"`
}

// PayloadItem is one market price sent to the backend.
type PayloadItem struct {
	ProductID   string      `json:"productId"`
	MarketPrice money.Money `json:"marketPrice"`
}

// Payload is the liquidation confirmation body. Only market prices travel;
// the backend recomputes the settlement.
type Payload struct {
	ContractID       string        `json:"contractId"`
	Action           Action        `json:"action"`
	LiquidationItems []PayloadItem `json:"liquidationItems"`
}

// Result describes an accepted state change.
type Result struct {
	Submission submission.Receipt `json:"submission"`
	Transition Transition         `json:"transition"`
	Payload    Payload            `json:"payload"`
	Preview    *Preview           `json:"preview,omitempty"`
}

// Service previews and confirms contract liquidations.
type Service struct {
	store    Store
	market   market.Source
	enqueuer submission.Enqueuer
	locker   Locker
	lockTTL  time.Duration
	logger   zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store    Store
	Market   market.Source
	Enqueuer submission.Enqueuer
	Locker   Locker
	LockTTL  time.Duration
	Logger   zerolog.Logger
}

// NewService constructs a liquidation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("liquidation: store is required")
	}
	if cfg.Market == nil {
		return nil, errors.New("liquidation: market price source is required")
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Service{
		store:    cfg.Store,
		market:   cfg.Market,
		enqueuer: cfg.Enqueuer,
		locker:   cfg.Locker,
		lockTTL:  ttl,
		logger:   cfg.Logger.With().Str("component", "liquidation").Logger(),
	}, nil
}

// SubmissionPath is the backend endpoint receiving a contract's liquidation.
func SubmissionPath(contractID string) string {
	return "/contracts/" + contractID + "/liquidation"
}

func (s *Service) load(ctx context.Context, contractID string) (Contract, error) {
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return Contract{}, common.BadRequest("contract id is required", nil)
	}
	c, err := s.store.Get(ctx, contractID)
	if err != nil {
		if errors.Is(err, ErrContractNotFound) {
			return Contract{}, common.NotFound("contract not found", err)
		}
		return Contract{}, fmt.Errorf("load contract: %w", err)
	}
	return c, nil
}

// Preview seeds market prices and computes the settlement of a contract.
// Operator overrides win over previously confirmed prices, which win over
// the market feed. Products without any market price use the contract price.
func (s *Service) Preview(ctx context.Context, contractID string, req Request) (Preview, error) {
	c, err := s.load(ctx, contractID)
	if err != nil {
		return Preview{}, err
	}
	p, _, err := s.preview(ctx, c, req)
	if err != nil {
		return Preview{}, err
	}
	obs.CountLiquidationPreview(string(p.Summary.Direction))
	return p, nil
}

// preview also returns the validation problems that block confirmation.
func (s *Service) preview(ctx context.Context, c Contract, req Request) (p Preview, invalid error, err error) {
	items, sources, unknown, err := s.seed(ctx, c, req)
	if err != nil {
		return Preview{}, nil, err
	}
	p = Preview{
		ContractID: c.ID,
		Status:     c.Status,
		Summary: pricing.Settle(pricing.SettlementInput{
			Items:         items,
			ContractValue: c.ContractValue,
			DepositAmount: c.DepositAmount,
		}),
		PriceSources: sources,
	}
	invalid = errors.Join(unknown, pricing.ValidateLiquidation(items))
	if invalid != nil {
		p.Errors = pricing.FieldErrors(invalid)
	}
	return p, invalid, nil
}

// seed resolves a market price for every contract line. Overrides naming a
// product outside the contract are reported in unknown and otherwise ignored.
func (s *Service) seed(ctx context.Context, c Contract, req Request) (items []pricing.PreviewItem, sources map[string]string, unknown error, err error) {
	lines := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		if item.ProductID != "" {
			lines[item.ProductID] = struct{}{}
		}
	}
	prices := make(map[string]money.Money, len(c.Items))
	sources = make(map[string]string, len(c.Items))
	var unknownErrs []error
	for i, o := range req.Items {
		id := strings.TrimSpace(o.ProductID)
		if _, ok := lines[id]; !ok {
			unknownErrs = append(unknownErrs, pricing.NewValidationError(fmt.Sprintf("liquidationItems[%d].productId", i), ErrNotOnContract))
			continue
		}
		prices[id] = o.MarketPrice
		sources[id] = SourceOverride
	}
	var missing []string
	for _, item := range c.Items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := sources[item.ProductID]; ok {
			continue
		}
		if p, ok := c.ConfirmedPrices[item.ProductID]; ok {
			prices[item.ProductID] = p
			sources[item.ProductID] = SourceConfirmed
			continue
		}
		missing = append(missing, item.ProductID)
	}
	if len(missing) > 0 {
		quoted, err := s.market.Prices(ctx, missing)
		if err != nil {
			return nil, nil, nil, common.Unavailable("market prices unavailable", err)
		}
		for _, id := range missing {
			if p, ok := quoted[id]; ok {
				prices[id] = p
				sources[id] = SourceMarket
			}
		}
	}

	items = make([]pricing.PreviewItem, 0, len(c.Items))
	for _, item := range c.Items {
		price, ok := prices[item.ProductID]
		if !ok {
			price = item.ContractPrice
			if item.ProductID != "" {
				sources[item.ProductID] = SourceContract
			}
		}
		items = append(items, pricing.PreviewItem{ContractLineItem: item, MarketPrice: price})
	}
	return items, sources, errors.Join(unknownErrs...), nil
}

// Confirm submits the liquidation of a contract at the previewed prices.
func (s *Service) Confirm(ctx context.Context, contractID string, req Request, actingUserID, idempotencyKey string) (Result, error) {
	var result Result
	err := s.withContractLock(ctx, contractID, func(ctx context.Context) error {
		c, err := s.load(ctx, contractID)
		if err != nil {
			return err
		}
		t, err := Next(c.Status, EventConfirm)
		if err != nil {
			return common.Conflict("contract cannot be liquidated in its current state", err)
		}
		p, invalid, err := s.preview(ctx, c, req)
		if err != nil {
			return err
		}
		if invalid != nil {
			return common.ValidationFailed(invalid, p.Errors)
		}
		items := previewItems(p.Summary)
		payload := Payload{ContractID: c.ID, Action: t.Action, LiquidationItems: payloadItems(items)}
		confirmed := make(map[string]money.Money, len(payload.LiquidationItems))
		for _, it := range payload.LiquidationItems {
			confirmed[it.ProductID] = it.MarketPrice
		}
		receipt, err := s.apply(ctx, c.ID, t, confirmed, payload, actingUserID, idempotencyKey)
		if err != nil {
			return err
		}
		p.Status = t.To
		result = Result{Submission: receipt, Transition: t, Payload: payload, Preview: &p}
		return nil
	})
	return result, err
}

// Revert withdraws a pending liquidation.
func (s *Service) Revert(ctx context.Context, contractID, actingUserID, idempotencyKey string) (Result, error) {
	var result Result
	err := s.withContractLock(ctx, contractID, func(ctx context.Context) error {
		c, err := s.load(ctx, contractID)
		if err != nil {
			return err
		}
		t, err := Next(c.Status, EventRevert)
		if err != nil {
			return common.Conflict("contract has no pending liquidation", err)
		}
		payload := Payload{ContractID: c.ID, Action: t.Action, LiquidationItems: []PayloadItem{}}
		receipt, err := s.apply(ctx, c.ID, t, nil, payload, actingUserID, idempotencyKey)
		if err != nil {
			return err
		}
		result = Result{Submission: receipt, Transition: t, Payload: payload}
		return nil
	})
	return result, err
}

func (s *Service) withContractLock(ctx context.Context, contractID string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, lock.ContractKey(contractID), s.lockTTL, fn)
	switch {
	case errors.Is(err, lock.ErrBusy):
		return common.Conflict("contract is being updated, retry shortly", err)
	case errors.Is(err, lock.ErrLeaseLost) && !common.IsAppError(err):
		return common.Conflict("contract lock expired before the change completed, retry", err)
	}
	return err
}

// apply persists the transition and queues the payload in one transaction.
func (s *Service) apply(ctx context.Context, contractID string, t Transition, prices map[string]money.Money, payload Payload, actingUserID, idempotencyKey string) (_ submission.Receipt, err error) {
	ctx, span := obs.StartSpan(ctx, "liquidation.apply",
		attribute.String("liquidation.event", string(t.Event)),
		attribute.String("liquidation.to", string(t.To)))
	defer func() { obs.EndSpan(span, err) }()
	if s.enqueuer == nil {
		return submission.Receipt{}, errors.New("liquidation: enqueuer not configured")
	}
	env, err := submission.NewEnvelope(submission.KindLiquidation, SubmissionPath(contractID), idempotencyKey, actingUserID, payload)
	if err != nil {
		return submission.Receipt{}, err
	}
	var receipt submission.Receipt
	err = s.store.Apply(ctx, contractID, t, prices, func(ctx context.Context) error {
		var err error
		receipt, err = s.enqueuer.Enqueue(ctx, env)
		return err
	})
	if err != nil && receipt.TaskID != "" {
		s.withdraw(ctx, contractID, receipt)
	}
	switch {
	case errors.Is(err, submission.ErrDuplicate):
		return submission.Receipt{}, common.Conflict("liquidation already submitted", err)
	case errors.Is(err, ErrStaleState):
		return submission.Receipt{}, common.Conflict("contract state changed, reload and retry", err)
	case err != nil:
		return submission.Receipt{}, fmt.Errorf("apply %s: %w", t.Event, err)
	}
	s.logger.Info().
		Str("contract_id", contractID).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Str("action", string(t.Action)).
		Str("task_id", receipt.TaskID).
		Str("acting_user_id", actingUserID).
		Msg("liquidation_transition_applied")
	return receipt, nil
}

// withdraw removes a task queued for a transition whose transaction did not
// commit, so the backend never sees a status change the database rejected.
func (s *Service) withdraw(ctx context.Context, contractID string, receipt submission.Receipt) {
	logger := s.logger.With().Str("contract_id", contractID).Str("task_id", receipt.TaskID).Logger()
	canceller, ok := s.enqueuer.(submission.Canceller)
	if !ok {
		logger.Error().Msg("liquidation_task_orphaned")
		return
	}
	if err := canceller.Cancel(context.WithoutCancel(ctx), receipt); err != nil {
		logger.Error().Err(err).Msg("liquidation_task_orphaned")
		return
	}
	logger.Warn().Msg("liquidation_task_withdrawn")
}

func previewItems(summary pricing.LiquidationSummary) []pricing.PreviewItem {
	items := make([]pricing.PreviewItem, 0, len(summary.Items))
	for _, it := range summary.Items {
		items = append(items, it.PreviewItem)
	}
	return items
}

func payloadItems(items []pricing.PreviewItem) []PayloadItem {
	out := make([]PayloadItem, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			continue
		}
		out = append(out, PayloadItem{ProductID: it.ProductID, MarketPrice: it.MarketPrice})
	}
	return out
}
