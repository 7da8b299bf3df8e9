package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/storefront-bot/internal/catalog"
	"github.com/Proton-105/storefront-bot/internal/clock"
	"github.com/Proton-105/storefront-bot/internal/delivery"
	"github.com/Proton-105/storefront-bot/internal/discount"
	"github.com/Proton-105/storefront-bot/internal/guard"
	"github.com/Proton-105/storefront-bot/internal/notify"
	"github.com/Proton-105/storefront-bot/internal/payment"
	"github.com/Proton-105/storefront-bot/internal/state"
)

const uid int64 = 42

type mockOracle struct{ mock.Mock }

func (m *mockOracle) GetRate(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) IsPaid(ctx context.Context, wallet, symbol string, amount float64) bool {
	return m.Called(ctx, wallet, symbol, amount).Bool(0)
}

// explodingNotifier panics once, on the nth Send.
type explodingNotifier struct {
	*notify.Recorder
	calls   int
	panicAt int
}

func (n *explodingNotifier) Send(ctx context.Context, userID int64, msg notify.Message) (int, error) {
	n.calls++
	if n.calls == n.panicAt {
		panic("send exploded")
	}
	return n.Recorder.Send(ctx, userID, msg)
}

func sampleCatalog() catalog.Data {
	return catalog.Data{
		Regions: []catalog.Region{
			{
				Option: catalog.Option{Label: "R1", Active: true},
				Cities: []catalog.Option{{Label: "CityA", Active: true}, {Label: "CityB", Active: false}},
			},
			{Option: catalog.Option{Label: "R2", Active: false}},
		},
		Categories: map[string][]catalog.Product{
			"Cat1": {
				{Name: "Widget", Active: true, Prices: map[string]float64{"1pc": 50, "2pc": 90}},
				{Name: "Gadget", Active: false, Prices: map[string]float64{"1pc": 30}},
			},
		},
		Currencies: []catalog.Currency{
			{Key: "BTC", Symbol: "BTC", WalletAddress: "abc123456"},
		},
		DeliveryMethods: []catalog.DeliveryMethod{
			{Label: "Courier", Key: delivery.MethodCourier, Fee: 10},
			{Label: "Dropoff", Key: delivery.MethodDropoff, Fee: 0},
		},
		Discounts: discount.Table{
			Codes: map[string]discount.Entry{
				"SAVE10": {Percent: 10, Active: true},
				"OLD":    {Percent: 20, Active: false},
			},
		},
	}
}

type fixture struct {
	engine   *Engine
	mgr      *state.Manager
	clk      *clock.Fake
	rec      *notify.Recorder
	oracle   *mockOracle
	verifier *mockVerifier
	payments *payment.Service
}

func newFixture(t *testing.T, promo bool, notifier notify.Notifier, rec *notify.Recorder) *fixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := state.NewManager(state.NewMemoryStore(), clk, log)
	provider := catalog.NewStatic(sampleCatalog())

	if rec == nil {
		rec = notify.NewRecorder()
	}
	if notifier == nil {
		notifier = rec
	}

	f := &fixture{
		mgr:      mgr,
		clk:      clk,
		rec:      rec,
		oracle:   &mockOracle{},
		verifier: &mockVerifier{},
	}
	f.payments = payment.NewService(f.oracle, f.verifier, nil, provider, mgr, 30*time.Minute, log)
	sim := delivery.NewSimulator(mgr, notifier, nil, delivery.Config{Watchdog: 27 * time.Minute}, log,
		delivery.WithJitter(func(time.Duration) time.Duration { return 0 }))

	f.engine = New(Deps{
		Sessions: mgr,
		Catalog:  provider,
		Payments: f.payments,
		Delivery: sim,
		Notifier: notifier,
		Cooldown: guard.NewMemoryCooldown(clk, 3*time.Second),
	}, Config{PromoEnabled: promo, PaymentTimeout: 30 * time.Minute}, log)
	return f
}

func (f *fixture) send(t *testing.T, inputs ...string) {
	t.Helper()
	for _, in := range inputs {
		require.NoError(t, f.engine.Handle(context.Background(), uid, in))
	}
}

func (f *fixture) session(t *testing.T) *state.Session {
	t.Helper()
	sess, err := f.mgr.Load(context.Background(), uid)
	require.NoError(t, err)
	return sess
}

func (f *fixture) lastText(t *testing.T) string {
	t.Helper()
	msg, ok := f.rec.Last(uid)
	require.True(t, ok)
	return msg.Text
}

// toSummary walks the promo-less flow up to the summary step.
func (f *fixture) toSummary(t *testing.T) {
	t.Helper()
	f.send(t, "/start", "R1", "CityA", "Courier", "Cat1", "Widget", "1pc (50.00)", "BTC")
	require.Equal(t, state.StateSummary, f.session(t).Step)
}

func TestFullOrderFlow(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.oracle.On("GetRate", mock.Anything, "BTC").Return(20000.0, nil)
	f.verifier.On("IsPaid", mock.Anything, "abc123456", "BTC", 0.003).Return(true)

	f.toSummary(t)
	sess := f.session(t)
	assert.Equal(t, 60.0, sess.TotalPrice)
	assert.Equal(t, "CityA", sess.City)
	assert.Equal(t, "courier", sess.DeliveryMethod)

	f.send(t, "confirm")
	sess = f.session(t)
	assert.Equal(t, state.StateAwaitingPayment, sess.Step)
	assert.InDelta(t, 0.003, sess.ExpectedAmount, 1e-12)
	assert.Contains(t, f.lastText(t), "abc123456")

	f.clk.Advance(5 * time.Second)
	f.send(t, LabelConfirm)

	sess = f.session(t)
	assert.Equal(t, state.StateDelivering, sess.Step)
	assert.True(t, sess.DeliveryInProgress)
	assert.False(t, sess.PaymentInProgress)
	assert.Equal(t, 1, f.payments.CompletedOrders(uid))
	assert.False(t, f.mgr.Timers().Active(uid, state.ConcernPayment))

	f.clk.Advance(30 * time.Minute)

	_, err := f.mgr.Load(context.Background(), uid)
	assert.ErrorIs(t, err, state.ErrSessionNotFound)
	assert.Zero(t, f.mgr.Timers().Count(uid))
}

func TestFirstInputStartsSession(t *testing.T) {
	f := newFixture(t, false, nil, nil)

	f.send(t, "hello")

	sess := f.session(t)
	assert.Equal(t, state.StateRegion, sess.Step)
	msg, ok := f.rec.Last(uid)
	require.True(t, ok)
	assert.Equal(t, notify.KindPrompt, msg.Kind)
	assert.Contains(t, msg.Options, "R1")
	assert.Contains(t, msg.Options, disabledMark+"R2")
}

func TestRejectLeavesSessionUnchanged(t *testing.T) {
	inputs := []string{"Nowhere", "CityB", disabledMark + "CityB", "cancel", "confirm", ""}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			f := newFixture(t, false, nil, nil)
			f.send(t, "/start", "R1")
			before := f.session(t)

			f.send(t, in)

			after := f.session(t)
			assert.Len(t, after.MessageIDs, len(before.MessageIDs)+1)
			after.MessageIDs = before.MessageIDs
			assert.Equal(t, before, after)

			msg, _ := f.rec.Last(uid)
			assert.Equal(t, notify.KindReject, msg.Kind)
			assert.Contains(t, msg.Options, "CityA")
		})
	}
}

func TestRejectLeavesSessionUnchangedInEveryState(t *testing.T) {
	path := []string{"/start", "R1", "CityA", "Courier", "Cat1", "Widget", "1pc", "BTC"}
	tests := []struct {
		name   string
		steps  int
		want   state.State
		input  string
		option string
	}{
		{name: "region", steps: 1, want: state.StateRegion, input: "R2", option: "R1"},
		{name: "city", steps: 2, want: state.StateCity, input: "CityB", option: "CityA"},
		{name: "delivery method", steps: 3, want: state.StateDeliveryMethod, input: "Teleport", option: "Courier"},
		{name: "category", steps: 4, want: state.StateCategory, input: "Cat9", option: "Cat1"},
		{name: "product", steps: 5, want: state.StateProduct, input: "Gadget", option: "Widget"},
		{name: "quantity", steps: 6, want: state.StateQuantity, input: "3pc", option: LabelBack},
		{name: "currency", steps: 7, want: state.StateCurrency, input: "DOGE", option: "BTC"},
		{name: "summary", steps: 8, want: state.StateSummary, input: "R1", option: LabelConfirm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false, nil, nil)
			f.send(t, path[:tt.steps]...)
			before := f.session(t)
			require.Equal(t, tt.want, before.Step)

			f.send(t, tt.input)

			after := f.session(t)
			assert.Len(t, after.MessageIDs, len(before.MessageIDs)+1)
			after.MessageIDs = before.MessageIDs
			assert.Equal(t, before, after)

			msg, _ := f.rec.Last(uid)
			assert.Equal(t, notify.KindReject, msg.Kind)
			assert.Contains(t, msg.Options, tt.option)
		})
	}
}

func TestInactiveProductRejected(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.send(t, "/start", "R1", "CityA", "Courier", "Cat1", "Gadget")

	assert.Equal(t, state.StateProduct, f.session(t).Step)
	assert.Equal(t, msgReject, f.lastText(t))
}

func TestUnknownQuantityRejected(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.send(t, "/start", "R1", "CityA", "Courier", "Cat1", "Widget", "5pc")

	sess := f.session(t)
	assert.Equal(t, state.StateQuantity, sess.Step)
	assert.Empty(t, sess.Quantity)
}

func TestBackReturnsToFreshSession(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.toSummary(t)
	generation := f.session(t).Generation

	expected := []state.State{
		state.StateCurrency,
		state.StateQuantity,
		state.StateProduct,
		state.StateCategory,
		state.StateDeliveryMethod,
		state.StateCity,
		state.StateRegion,
	}
	for _, want := range expected {
		f.send(t, LabelBack)
		assert.Equal(t, want, f.session(t).Step)
	}

	sess := f.session(t)
	assert.Equal(t, generation, sess.Generation)
	sess.MessageIDs = nil
	sess.CreatedAt, sess.UpdatedAt = time.Time{}, time.Time{}
	assert.Equal(t, &state.Session{UserID: uid, Generation: generation, Step: state.StateRegion}, sess)

	f.send(t, "назад")
	assert.NotEqual(t, generation, f.session(t).Generation)
}

func TestBackRejectedWhilePaying(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.oracle.On("GetRate", mock.Anything, "BTC").Return(20000.0, nil)
	f.toSummary(t)
	f.send(t, "confirm")

	f.send(t, "back")

	assert.Equal(t, state.StateAwaitingPayment, f.session(t).Step)
	assert.Equal(t, msgReject, f.lastText(t))
}

func TestDoubleConfirmResets(t *testing.T) {
	t.Run("summary", func(t *testing.T) {
		f := newFixture(t, false, nil, nil)
		f.oracle.On("GetRate", mock.Anything, "BTC").Return(20000.0, nil)
		f.toSummary(t)
		generation := f.session(t).Generation

		f.send(t, "confirm", "confirm")

		sess := f.session(t)
		assert.Equal(t, state.StateRegion, sess.Step)
		assert.NotEqual(t, generation, sess.Generation)
		assert.False(t, f.mgr.Timers().Active(uid, state.ConcernPayment))

		texts := f.rec.Messages(uid)
		assert.Equal(t, msgFlood, texts[len(texts)-2].Text)
	})

	t.Run("region", func(t *testing.T) {
		f := newFixture(t, false, nil, nil)
		f.send(t, "/start", "confirm", "confirm")

		texts := f.rec.Messages(uid)
		assert.Equal(t, msgFlood, texts[len(texts)-2].Text)
	})

	t.Run("outside window", func(t *testing.T) {
		f := newFixture(t, false, nil, nil)
		f.send(t, "/start", "R1", "confirm")
		f.clk.Advance(4 * time.Second)
		f.send(t, "confirm")

		assert.Equal(t, state.StateCity, f.session(t).Step)
		assert.Equal(t, msgReject, f.lastText(t))
	})
}

func TestSinglePaymentTimer(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.oracle.On("GetRate", mock.Anything, "BTC").Return(20000.0, nil)
	f.verifier.On("IsPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false)
	f.toSummary(t)

	f.send(t, "confirm")
	require.Equal(t, 1, f.mgr.Timers().Count(uid))

	for i := 0; i < 3; i++ {
		f.clk.Advance(5 * time.Second)
		f.send(t, "confirm")
		assert.Equal(t, state.StatePaymentVerify, f.session(t).Step)
		assert.Equal(t, 1, f.mgr.Timers().Count(uid))
	}
	f.oracle.AssertNumberOfCalls(t, "GetRate", 1)
}

func TestPaymentTimeoutDiscardsSilently(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.oracle.On("GetRate", mock.Anything, "BTC").Return(20000.0, nil)
	f.toSummary(t)
	f.send(t, "confirm")
	sent := len(f.rec.Messages(uid))

	f.clk.Advance(30 * time.Minute)

	_, err := f.mgr.Load(context.Background(), uid)
	assert.ErrorIs(t, err, state.ErrSessionNotFound)
	assert.Len(t, f.rec.Messages(uid), sent)
	assert.Zero(t, f.mgr.Timers().Count(uid))
}

func TestCancelDuringPayment(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.oracle.On("GetRate", mock.Anything, "BTC").Return(20000.0, nil)
	f.toSummary(t)
	f.send(t, "confirm", LabelCancel)

	sess := f.session(t)
	assert.Equal(t, state.StateRegion, sess.Step)
	assert.False(t, f.mgr.Timers().Active(uid, state.ConcernPayment))

	texts := f.rec.Messages(uid)
	assert.Equal(t, msgCancelled, texts[len(texts)-2].Text)
}

func TestRateFailureStaysAtSummary(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.oracle.On("GetRate", mock.Anything, "BTC").Return(0.0, errors.New("oracle down"))
	f.toSummary(t)

	f.send(t, "confirm")

	sess := f.session(t)
	assert.Equal(t, state.StateSummary, sess.Step)
	assert.False(t, sess.PaymentInProgress)
	assert.Zero(t, f.mgr.Timers().Count(uid))

	texts := f.rec.Messages(uid)
	assert.Equal(t, notify.KindNotice, texts[len(texts)-2].Kind)
	assert.Equal(t, notify.KindSummary, texts[len(texts)-1].Kind)
}

func TestPromoBranch(t *testing.T) {
	t.Run("code applies discount", func(t *testing.T) {
		f := newFixture(t, true, nil, nil)
		f.send(t, "/start", "R1", "CityA", "Courier")
		require.Equal(t, state.StatePromoDecision, f.session(t).Step)

		f.send(t, "да", "save10", "Cat1", "Widget", "1pc", "BTC")

		sess := f.session(t)
		assert.Equal(t, state.StateSummary, sess.Step)
		assert.Equal(t, "SAVE10", sess.PromoCode)
		assert.Equal(t, 10.0, sess.AppliedDiscount)
		assert.InDelta(t, 55.0, sess.TotalPrice, 1e-9)
	})

	t.Run("inactive code rejected", func(t *testing.T) {
		f := newFixture(t, true, nil, nil)
		f.send(t, "/start", "R1", "CityA", "Courier", "yes", "OLD")

		assert.Equal(t, state.StatePromoCode, f.session(t).Step)
		assert.Equal(t, msgReject, f.lastText(t))
	})

	t.Run("skip", func(t *testing.T) {
		f := newFixture(t, true, nil, nil)
		f.send(t, "/start", "R1", "CityA", "Courier", "Нет")

		assert.Equal(t, state.StateCategory, f.session(t).Step)
		f.send(t, LabelBack)
		assert.Equal(t, state.StatePromoDecision, f.session(t).Step)
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, false, nil, nil)
		f.send(t, "/start", "R1", "CityA", "Courier")

		assert.Equal(t, state.StateCategory, f.session(t).Step)
		f.send(t, LabelBack)
		assert.Equal(t, state.StateDeliveryMethod, f.session(t).Step)
	})
}

func TestQuantityTotals(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.send(t, "/start", "R1", "CityA", "Dropoff", "Cat1", "widget", "2pc (90.00)", "btc")

	sess := f.session(t)
	assert.Equal(t, "2pc", sess.Quantity)
	assert.Equal(t, 90.0, sess.UnitPrice)
	assert.Equal(t, 90.0, sess.TotalPrice)
	assert.Equal(t, "BTC", sess.Currency)
}

func TestDeliveringInputIsNotice(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.oracle.On("GetRate", mock.Anything, "BTC").Return(20000.0, nil)
	f.verifier.On("IsPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true)
	f.toSummary(t)
	f.send(t, "confirm")
	f.clk.Advance(5 * time.Second)
	f.send(t, "confirm")
	before := f.session(t)

	f.send(t, "R1")

	after := f.session(t)
	assert.Equal(t, state.StateDelivering, after.Step)
	assert.Equal(t, msgDelivering, f.lastText(t))
	after.MessageIDs = before.MessageIDs
	assert.Equal(t, before, after)

	f.send(t, "/restart")
	assert.Equal(t, state.StateRegion, f.session(t).Step)
	assert.Zero(t, f.mgr.Timers().Count(uid))
}

func TestPanicResetsSession(t *testing.T) {
	rec := notify.NewRecorder()
	// the third Send is the CityA delivery-method prompt
	notifier := &explodingNotifier{Recorder: rec, panicAt: 3}
	f := newFixture(t, false, notifier, rec)

	require.NoError(t, f.engine.Handle(context.Background(), uid, "/start"))
	require.NoError(t, f.engine.Handle(context.Background(), uid, "R1"))
	require.NoError(t, f.engine.Handle(context.Background(), uid, "CityA"))

	assert.Equal(t, state.StateRegion, f.session(t).Step)
	texts := rec.Messages(uid)
	assert.Equal(t, msgFailure, texts[len(texts)-2].Text)

	// the user lock was released
	f.send(t, "R1")
	assert.Equal(t, state.StateCity, f.session(t).Step)
}

func TestCorruptSessionResets(t *testing.T) {
	f := newFixture(t, false, nil, nil)
	f.send(t, "/start")

	sess := f.session(t)
	sess.Step = state.StateCurrency
	require.NoError(t, f.mgr.Save(context.Background(), sess))

	f.send(t, "BTC")

	assert.Equal(t, state.StateRegion, f.session(t).Step)
	texts := f.rec.Messages(uid)
	assert.Equal(t, msgCorrupt, texts[len(texts)-2].Text)
}
