package liquidation_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-pricing/internal/common"
	"github.com/noah-isme/backoffice-pricing/internal/liquidation"
	"github.com/noah-isme/backoffice-pricing/internal/lock"
	"github.com/noah-isme/backoffice-pricing/internal/market"
	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
	"github.com/noah-isme/backoffice-pricing/internal/submission"
)

type memoryStore struct {
	mu        sync.Mutex
	contracts map[string]liquidation.Contract
	getErr    error
	commitErr error
}

func (m *memoryStore) Get(_ context.Context, id string) (liquidation.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return liquidation.Contract{}, m.getErr
	}
	c, ok := m.contracts[id]
	if !ok {
		return liquidation.Contract{}, liquidation.ErrContractNotFound
	}
	return c, nil
}

func (m *memoryStore) Apply(ctx context.Context, id string, tr liquidation.Transition, prices map[string]money.Money, beforeCommit func(context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok || c.Status != tr.From {
		return liquidation.ErrStaleState
	}
	if beforeCommit != nil {
		if err := beforeCommit(ctx); err != nil {
			return err
		}
	}
	if m.commitErr != nil {
		return m.commitErr
	}
	c.Status = tr.To
	c.ConfirmedPrices = prices
	m.contracts[id] = c
	return nil
}

func (m *memoryStore) status(id string) liquidation.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contracts[id].Status
}

type staticMarket struct {
	prices market.Prices
	err    error
	calls  [][]string
}

func (s *staticMarket) Prices(_ context.Context, ids []string) (market.Prices, error) {
	s.calls = append(s.calls, ids)
	if s.err != nil {
		return nil, s.err
	}
	out := market.Prices{}
	for _, id := range ids {
		if p, ok := s.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type recordingEnqueuer struct {
	envs      []submission.Envelope
	cancelled []submission.Receipt
	err       error
}

func (r *recordingEnqueuer) Cancel(_ context.Context, receipt submission.Receipt) error {
	r.cancelled = append(r.cancelled, receipt)
	return nil
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, env submission.Envelope) (submission.Receipt, error) {
	if r.err != nil {
		return submission.Receipt{}, r.err
	}
	r.envs = append(r.envs, env)
	return submission.Receipt{TaskID: "liquidation:" + env.IdempotencyKey, Kind: env.Kind, Queue: "submissions"}, nil
}

func ptr[T any](v T) *T { return &v }

// riceContract is worth 10,000,000 with a 2,000,000 deposit.
func riceContract(status liquidation.State) liquidation.Contract {
	return liquidation.Contract{
		ID:            "c-1",
		Status:        status,
		DepositAmount: money.FromInt(2000000),
		ContractValue: ptr(money.FromInt(10000000)),
		Items: []pricing.ContractLineItem{
			{ProductID: "rice", Quantity: 80, ContractPrice: money.FromInt(100000)},
			{ProductID: "corn", Quantity: 40, ContractPrice: money.FromInt(50000)},
		},
	}
}

type fixture struct {
	svc    *liquidation.Service
	store  *memoryStore
	market *staticMarket
	enq    *recordingEnqueuer
	mr     *miniredis.Miniredis
	redis  *redis.Client
}

func newFixture(t *testing.T, contracts ...liquidation.Contract) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		store:  &memoryStore{contracts: map[string]liquidation.Contract{}},
		market: &staticMarket{prices: market.Prices{"rice": money.FromInt(90000)}},
		enq:    &recordingEnqueuer{},
		mr:     mr,
		redis:  rdb,
	}
	for _, c := range contracts {
		f.store.contracts[c.ID] = c
	}
	f.svc, err = liquidation.NewService(liquidation.ServiceConfig{
		Store:    f.store,
		Market:   f.market,
		Enqueuer: f.enq,
		Locker:   lock.Locker{R: rdb, RetryBackoff: 5 * time.Millisecond, MaxWait: 50 * time.Millisecond},
		LockTTL:  time.Second,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return f
}

func requireAppError(t *testing.T, err error, status int) *common.AppError {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, status, appErr.HTTPStatus)
	return appErr
}

func TestPreviewSeedsMarketPricesAndFallsBackToContract(t *testing.T) {
	f := newFixture(t, riceContract(liquidation.StateActive))

	p, err := f.svc.Preview(context.Background(), "c-1", liquidation.Request{})
	require.NoError(t, err)

	// rice 80 × 90,000 + corn 40 × 50,000 (contract price, no market quote)
	require.Equal(t, "9200000", p.Summary.MarketValue.String())
	require.Equal(t, "-800000", p.Summary.PriceDifference.String())
	require.Equal(t, "1200000", p.Summary.EstimatedSettlement.String())
	require.Equal(t, pricing.PaymentIn, p.Summary.Direction)
	require.Equal(t, map[string]string{"rice": liquidation.SourceMarket, "corn": liquidation.SourceContract}, p.PriceSources)
	require.Empty(t, p.Errors)
	require.Equal(t, [][]string{{"rice", "corn"}}, f.market.calls)
}

func TestPreviewSettlementDirection(t *testing.T) {
	cases := []struct {
		name       string
		rice, corn int64
		settlement string
		display    string
		direction  pricing.Direction
	}{
		// market value 9,000,000 against 10,000,000
		{name: "market below contract", rice: 87500, corn: 50000, settlement: "1000000", display: "1000000", direction: pricing.PaymentIn},
		// market value 13,000,000
		{name: "market above contract", rice: 137500, corn: 50000, settlement: "5000000", display: "5000000", direction: pricing.PaymentIn},
		// market value 7,000,000
		{name: "loss beyond deposit", rice: 62500, corn: 50000, settlement: "-1000000", display: "1000000", direction: pricing.PaymentOut},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, riceContract(liquidation.StateActive))
			p, err := f.svc.Preview(context.Background(), "c-1", liquidation.Request{Items: []liquidation.PriceOverride{
				{ProductID: "rice", MarketPrice: money.FromInt(tc.rice)},
				{ProductID: "corn", MarketPrice: money.FromInt(tc.corn)},
			}})
			require.NoError(t, err)
			require.Equal(t, tc.settlement, p.Summary.EstimatedSettlement.String())
			require.Equal(t, tc.display, p.Summary.DisplayAmount.String())
			require.Equal(t, tc.direction, p.Summary.Direction)
			require.Empty(t, f.market.calls)
		})
	}
}

func TestPreviewPrefersConfirmedPricesOverMarket(t *testing.T) {
	c := riceContract(liquidation.StatePending)
	c.ConfirmedPrices = map[string]money.Money{"rice": money.FromInt(95000), "corn": money.FromInt(55000)}
	f := newFixture(t, c)

	p, err := f.svc.Preview(context.Background(), "c-1", liquidation.Request{Items: []liquidation.PriceOverride{
		{ProductID: "corn", MarketPrice: money.FromInt(60000)},
	}})
	require.NoError(t, err)
	require.Equal(t, liquidation.SourceConfirmed, p.PriceSources["rice"])
	require.Equal(t, liquidation.SourceOverride, p.PriceSources["corn"])
	require.Equal(t, "10000000", p.Summary.MarketValue.String())
	require.Empty(t, f.market.calls)
}

func TestPreviewReportsNegativeMarketPrice(t *testing.T) {
	f := newFixture(t, riceContract(liquidation.StateActive))

	p, err := f.svc.Preview(context.Background(), "c-1", liquidation.Request{Items: []liquidation.PriceOverride{
		{ProductID: "rice", MarketPrice: money.FromInt(-1)},
	}})
	require.NoError(t, err)
	require.Contains(t, p.Errors, "liquidationItems[0].marketPrice")
}

func TestOverridesOutsideContractAreRejected(t *testing.T) {
	f := newFixture(t, riceContract(liquidation.StateActive))
	req := liquidation.Request{Items: []liquidation.PriceOverride{
		{ProductID: "rice", MarketPrice: money.FromInt(87500)},
		{ProductID: "wheat", MarketPrice: money.FromInt(1)},
	}}

	p, err := f.svc.Preview(context.Background(), "c-1", req)
	require.NoError(t, err)
	require.NotContains(t, p.PriceSources, "wheat")
	require.Contains(t, p.Errors, "liquidationItems[1].productId")
	require.Equal(t, "1000000", p.Summary.EstimatedSettlement.String())

	_, err = f.svc.Confirm(context.Background(), "c-1", req, "user-1", "key-9")
	appErr := requireAppError(t, err, http.StatusUnprocessableEntity)
	require.ErrorIs(t, appErr, liquidation.ErrNotOnContract)
	require.Empty(t, f.enq.envs)
	require.Equal(t, liquidation.StateActive, f.store.status("c-1"))
}

func TestPreviewErrors(t *testing.T) {
	f := newFixture(t, riceContract(liquidation.StateActive))

	_, err := f.svc.Preview(context.Background(), "missing", liquidation.Request{})
	requireAppError(t, err, http.StatusNotFound)

	_, err = f.svc.Preview(context.Background(), " ", liquidation.Request{})
	requireAppError(t, err, http.StatusBadRequest)

	f.market.err = errors.New("feed down")
	_, err = f.svc.Preview(context.Background(), "c-1", liquidation.Request{})
	requireAppError(t, err, http.StatusBadGateway)

	f.store.getErr = errors.New("connection reset")
	_, err = f.svc.Preview(context.Background(), "c-1", liquidation.Request{})
	require.Error(t, err)
	require.False(t, common.IsAppError(err))
}

func TestConfirmMovesContractToPending(t *testing.T) {
	f := newFixture(t, riceContract(liquidation.StateActive))

	res, err := f.svc.Confirm(context.Background(), "c-1", liquidation.Request{Items: []liquidation.PriceOverride{
		{ProductID: "corn", MarketPrice: money.FromInt(45000)},
	}}, "user-1", "key-1")
	require.NoError(t, err)

	require.Equal(t, liquidation.StatePending, f.store.status("c-1"))
	require.Equal(t, liquidation.ActionUpdate, res.Payload.Action)
	require.Equal(t, "liquidation:key-1", res.Submission.TaskID)
	require.Equal(t, liquidation.StatePending, res.Preview.Status)
	require.Len(t, res.Payload.LiquidationItems, 2)

	require.Len(t, f.enq.envs, 1)
	env := f.enq.envs[0]
	require.Equal(t, submission.KindLiquidation, env.Kind)
	require.Equal(t, "/contracts/c-1/liquidation", env.Path)
	require.Equal(t, "user-1", env.ActingUserID)
	require.JSONEq(t, `{
		"contractId": "c-1",
		"action": "update",
		"liquidationItems": [
			{"productId": "rice", "marketPrice": "90000"},
			{"productId": "corn", "marketPrice": "45000"}
		]
	}`, string(env.Body))

	stored, err := f.store.Get(context.Background(), "c-1")
	require.NoError(t, err)
	require.True(t, stored.ConfirmedPrices["corn"].Equal(money.FromInt(45000)))
}

func TestConfirmIllegalTransition(t *testing.T) {
	f := newFixture(t, riceContract(liquidation.StateLiquidated))

	_, err := f.svc.Confirm(context.Background(), "c-1", liquidation.Request{}, "user-1", "")
	appErr := requireAppError(t, err, http.StatusConflict)
	require.True(t, errors.Is(appErr, liquidation.ErrIllegalTransition))
	require.Empty(t, f.enq.envs)
}

func TestConfirmWithoutResolvableItems(t *testing.T) {
	c := riceContract(liquidation.StateActive)
	c.Items = []pricing.ContractLineItem{{Quantity: 3, ContractPrice: money.FromInt(1000)}}
	f := newFixture(t, c)

	_, err := f.svc.Confirm(context.Background(), "c-1", liquidation.Request{}, "user-1", "")
	appErr := requireAppError(t, err, http.StatusUnprocessableEntity)
	require.True(t, errors.Is(err, pricing.ErrNoLiquidationItems))
	require.Contains(t, appErr.Details, "liquidationItems")
	require.Equal(t, liquidation.StateActive, f.store.status("c-1"))
}

func TestConfirmRollsBackWhenEnqueueFails(t *testing.T) {
	f := newFixture(t, riceContract(liquidation.StateActive))
	f.enq.err = errors.New("redis down")

	_, err := f.svc.Confirm(context.Background(), "c-1", liquidation.Request{}, "user-1", "")
	require.Error(t, err)
	require.Equal(t, liquidation.StateActive, f.store.status("c-1"))

	f.enq.err = submission.ErrDuplicate
	_, err = f.svc.Confirm(context.Background(), "c-1", liquidation.Request{}, "user-1", "key-1")
	requireAppError(t, err, http.StatusConflict)
	require.Equal(t, liquidation.StateActive, f.store.status("c-1"))
}

func TestConfirmWithdrawsTaskWhenCommitFails(t *testing.T) {
	f := newFixture(t, riceContract(liquidation.StateActive))
	f.store.commitErr = errors.New("commit: connection reset")

	_, err := f.svc.Confirm(context.Background(), "c-1", liquidation.Request{}, "user-1", "key-3")
	require.Error(t, err)
	require.Equal(t, liquidation.StateActive, f.store.status("c-1"))
	require.Len(t, f.enq.cancelled, 1)
	require.Equal(t, "liquidation:key-3", f.enq.cancelled[0].TaskID)

	f.store.commitErr = nil
	_, err = f.svc.Confirm(context.Background(), "c-1", liquidation.Request{}, "user-1", "key-3")
	require.NoError(t, err)
	require.Equal(t, liquidation.StatePending, f.store.status("c-1"))
	require.Len(t, f.enq.cancelled, 1)
}

func TestConfirmFailsWhileContractLocked(t *testing.T) {
	f := newFixture(t, riceContract(liquidation.StateActive))
	require.NoError(t, f.mr.Set(lock.ContractKey("c-1"), "someone-else"))

	_, err := f.svc.Confirm(context.Background(), "c-1", liquidation.Request{}, "user-1", "")
	appErr := requireAppError(t, err, http.StatusConflict)
	require.True(t, errors.Is(appErr, lock.ErrBusy))
	require.Empty(t, f.enq.envs)
}

func TestRevertPendingLiquidation(t *testing.T) {
	c := riceContract(liquidation.StatePending)
	c.ConfirmedPrices = map[string]money.Money{"rice": money.FromInt(95000)}
	f := newFixture(t, c)

	res, err := f.svc.Revert(context.Background(), "c-1", "user-1", "rev-1")
	require.NoError(t, err)
	require.Equal(t, liquidation.ActionRevert, res.Payload.Action)
	require.Equal(t, liquidation.StateActive, f.store.status("c-1"))
	require.Len(t, f.enq.envs, 1)
	require.JSONEq(t, `{"contractId":"c-1","action":"revert","liquidationItems":[]}`, string(f.enq.envs[0].Body))

	stored, err := f.store.Get(context.Background(), "c-1")
	require.NoError(t, err)
	require.Empty(t, stored.ConfirmedPrices)

	_, err = f.svc.Revert(context.Background(), "c-1", "user-1", "rev-2")
	requireAppError(t, err, http.StatusConflict)
}
