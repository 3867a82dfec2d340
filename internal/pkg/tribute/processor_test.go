package tribute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndreyko/tributary/app/models"
)

var testClock = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func testPlans() []Plan {
	return []Plan{
		{ID: "gold", Title: "Gold", Amount: 500, Currency: "eur", Period: "monthly", Link: "https://t.me/tribute/app?startapp=gold"},
		{ID: "silver", Title: "Silver", Amount: 300, Currency: "eur", Period: "monthly", Link: "https://t.me/tribute/app?startapp=silver"},
	}
}

func testConfig() Config {
	return Config{
		SecretKey: "test-secret",
		Plans:     testPlans(),
		IntentTTL: 15 * time.Minute,
		Now:       func() time.Time { return testClock },
	}
}

func newTestProcessor(t *testing.T, store Store, cfg Config) *Processor {
	t.Helper()
	proc, err := NewProcessor(store, cfg)
	require.NoError(t, err)
	return proc
}

func makeEnvelope(t *testing.T, name EventName, createdAt time.Time, sentAt *time.Time, payload EventPayload) *Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Envelope{Name: name, CreatedAt: createdAt, SentAt: sentAt, Payload: raw}
}

func goldPayload(subID, userID int64) EventPayload {
	return EventPayload{
		SubscriptionID: subID,
		Period:         "monthly",
		Amount:         500,
		Currency:       "eur",
		TelegramUserID: userID,
	}
}

func activate(t *testing.T, proc *Processor, store Store, subID, userID int64, at time.Time) *Result {
	t.Helper()
	_, err := proc.CreateIntent(context.Background(), "gold", userID, "")
	require.NoError(t, err)
	res, err := proc.Handle(context.Background(), makeEnvelope(t, EventNewSubscription, at, nil, goldPayload(subID, userID)))
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestNewProcessorValidation(t *testing.T) {
	cfg := testConfig()
	_, err := NewProcessor(nil, cfg)
	assert.ErrorIs(t, err, ErrConfiguration)

	bad := testConfig()
	bad.SecretKey = ""
	_, err = NewProcessor(NewMemoryStore(), bad)
	assert.ErrorIs(t, err, ErrConfiguration)

	bad = testConfig()
	bad.Plans = nil
	_, err = NewProcessor(NewMemoryStore(), bad)
	assert.ErrorIs(t, err, ErrConfiguration)

	bad = testConfig()
	bad.EnabledEvents = []EventName{"no_such_event"}
	_, err = NewProcessor(NewMemoryStore(), bad)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCreateIntent(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())

	receipt, err := proc.CreateIntent(context.Background(), "gold", 777, `{"source":"bot"}`)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.IntentID)
	assert.Equal(t, "gold", receipt.PlanID)
	assert.Equal(t, "https://t.me/tribute/app?startapp=gold", receipt.Link)
	assert.Equal(t, testClock.Add(15*time.Minute), receipt.ExpiresAt)

	intent, err := store.ConsumeIntent(context.Background(), receipt.IntentID)
	require.NoError(t, err)
	assert.Equal(t, `{"source":"bot"}`, intent.Metadata)

	var planErr *PlanNotFoundError
	_, err = proc.CreateIntent(context.Background(), "iron", 777, "")
	assert.ErrorAs(t, err, &planErr)

	_, err = proc.CreateIntent(context.Background(), "gold", 0, "")
	assert.ErrorIs(t, err, ErrPayload)
}

func TestSubscriptionActivation(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	receipt, err := proc.CreateIntent(ctx, "gold", 777, `{"chat":42}`)
	require.NoError(t, err)

	payload := goldPayload(1644, 777)
	payload.IntentID = receipt.IntentID
	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, testClock, nil, payload))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, CategorySubscription, res.Category)
	assert.Equal(t, ResultCreated, res.Type)
	assert.Equal(t, IntentMatched, res.IntentStatus)
	assert.Nil(t, res.PreviousSubscription)

	sub := res.Subscription
	require.NotNil(t, sub)
	assert.Equal(t, "gold", sub.PlanID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, `{"chat":42}`, sub.Metadata)
	assert.True(t, sub.LastEventAt.Equal(testClock))

	require.NotNil(t, res.Payment)
	assert.Equal(t, models.PaymentKindSubscription, res.Payment.Kind)
	assert.Equal(t, int64(1644), res.Payment.RefID)
	assert.True(t, res.Payment.PaidAt.Equal(testClock))

	// The reservation is consumed
	_, err = store.ConsumeIntent(ctx, receipt.IntentID)
	assert.ErrorIs(t, err, ErrNotFound)

	payments, err := store.ListPayments(ctx, PaymentFilter{TelegramUserID: 777})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestSubscriptionDuplicateDelivery(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	activate(t, proc, store, 1644, 777, testClock)

	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, testClock, nil, goldPayload(1644, 777)))
	require.NoError(t, err)
	assert.Nil(t, res, "replay at the watermark must be suppressed")

	payments, err := store.ListPayments(ctx, PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestSubscriptionRenewal(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	first := activate(t, proc, store, 1644, 777, testClock)

	renewAt := testClock.Add(30 * 24 * time.Hour)
	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, renewAt, nil, goldPayload(1644, 777)))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, ResultRenewed, res.Type)
	require.NotNil(t, res.PreviousSubscription)
	assert.True(t, res.Subscription.CreatedAt.Equal(first.Subscription.CreatedAt), "renewal keeps the original start")
	assert.True(t, res.Subscription.LastEventAt.Equal(renewAt))
	assert.Empty(t, res.IntentStatus, "renewals do not touch intents")

	payments, err := store.ListPayments(ctx, PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestSubscriptionOutOfOrderDropped(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	activate(t, proc, store, 1644, 777, testClock)

	renewAt := testClock.Add(30 * 24 * time.Hour)
	_, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, renewAt, nil, goldPayload(1644, 777)))
	require.NoError(t, err)

	// A delayed copy of the first activation arrives after the renewal
	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, testClock, nil, goldPayload(1644, 777)))
	require.NoError(t, err)
	assert.Nil(t, res)

	sub, err := store.SubscriptionByProviderID(ctx, 1644)
	require.NoError(t, err)
	assert.True(t, sub.LastEventAt.Equal(renewAt), "watermark must not regress")
}

func TestSentAtOrdersAheadOfCreatedAt(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	sentAt := testClock.Add(10 * time.Second)
	_, err := proc.CreateIntent(ctx, "gold", 777, "")
	require.NoError(t, err)
	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, testClock, &sentAt, goldPayload(1644, 777)))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Subscription.LastEventAt.Equal(sentAt))
	assert.True(t, res.Subscription.CreatedAt.Equal(testClock), "created_at stays the origination time")
	assert.True(t, res.Payment.PaidAt.Equal(testClock), "the ledger keeps origination time")
}

func TestExpiredIntentStillActivates(t *testing.T) {
	store := NewMemoryStore()
	cfg := testConfig()
	cfg.IntentTTL = time.Minute
	proc := newTestProcessor(t, store, cfg)
	ctx := context.Background()

	receipt, err := proc.CreateIntent(ctx, "gold", 777, "")
	require.NoError(t, err)

	// Payment completes well past the reservation window
	late := testClock.Add(10 * time.Minute)
	payload := goldPayload(1644, 777)
	payload.IntentID = receipt.IntentID
	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, late, nil, payload))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ResultCreated, res.Type)
	assert.Equal(t, IntentExpired, res.IntentStatus)
	assert.Equal(t, models.SubscriptionStatusActive, res.Subscription.Status)
}

func TestIntentFallbackByUserAndPlan(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	receipt, err := proc.CreateIntent(ctx, "gold", 777, "")
	require.NoError(t, err)

	// Payload carries no intent id; the reservation is found by (user, plan)
	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, testClock, nil, goldPayload(1644, 777)))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, IntentMatched, res.IntentStatus)

	_, err = store.ConsumeIntent(ctx, receipt.IntentID)
	assert.ErrorIs(t, err, ErrNotFound, "fallback match must consume the reservation")
}

func TestActivationWithoutIntentFails(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	_, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, testClock, nil, goldPayload(1644, 777)))
	var intentErr *IntentNotFoundError
	require.ErrorAs(t, err, &intentErr)
	assert.Equal(t, int64(1644), intentErr.SubscriptionID)

	_, err = store.SubscriptionByProviderID(ctx, 1644)
	assert.ErrorIs(t, err, ErrNotFound, "failed activation must not leave state")

	payments, err := store.ListPayments(ctx, PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestCancelSubscription(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	activate(t, proc, store, 1644, 777, testClock)

	cancelAt := testClock.Add(time.Hour)
	payload := goldPayload(1644, 777)
	payload.CancelReason = "user_request"
	res, err := proc.Handle(ctx, makeEnvelope(t, EventCancelledSubscription, cancelAt, nil, payload))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, ResultCancelled, res.Type)
	assert.Empty(t, res.CancelSource, "provider cancellations carry no source tag")
	assert.Equal(t, models.SubscriptionStatusCancelled, res.Subscription.Status)
	assert.Equal(t, "user_request", res.Subscription.CancelReason)
	require.NotNil(t, res.Subscription.CancelledAt)
	assert.True(t, res.Subscription.CancelledAt.Equal(cancelAt))

	// Redelivered cancellation is a no-op
	later := cancelAt.Add(time.Minute)
	res, err = proc.Handle(ctx, makeEnvelope(t, EventCancelledSubscription, cancelAt, &later, payload))
	require.NoError(t, err)
	assert.Nil(t, res)

	// Cancellation is not a monetary event
	payments, err := store.ListPayments(ctx, PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestCancelWithoutRecord(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())

	payload := goldPayload(9999, 777)
	_, err := proc.Handle(context.Background(), makeEnvelope(t, EventCancelledSubscription, testClock, nil, payload))
	var subErr *SubscriptionNotFoundError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, int64(9999), subErr.SubscriptionID)
}

func TestManualCancel(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	activate(t, proc, store, 1644, 777, testClock.Add(-time.Hour))

	res, err := proc.CancelSubscription(ctx, 1644, "fraud review", time.Time{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ResultCancelled, res.Type)
	assert.Equal(t, CancelSourceManual, res.CancelSource)
	assert.Equal(t, "fraud review", res.Subscription.CancelReason)

	// Repeating the call under the same clock is a no-op
	res, err = proc.CancelSubscription(ctx, 1644, "fraud review", time.Time{})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestReactivationAfterCancel(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	activate(t, proc, store, 1644, 777, testClock)
	cancelAt := testClock.Add(time.Hour)
	_, err := proc.Handle(ctx, makeEnvelope(t, EventCancelledSubscription, cancelAt, nil, goldPayload(1644, 777)))
	require.NoError(t, err)

	// The user resubscribes under the same provider subscription id
	backAt := cancelAt.Add(time.Hour)
	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, backAt, nil, goldPayload(1644, 777)))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ResultRenewed, res.Type)
	assert.Equal(t, models.SubscriptionStatusActive, res.Subscription.Status)
}

func TestStaleActivationAfterCancelDropped(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	activate(t, proc, store, 1644, 777, testClock)
	cancelAt := testClock.Add(2 * time.Hour)
	_, err := proc.Handle(ctx, makeEnvelope(t, EventCancelledSubscription, cancelAt, nil, goldPayload(1644, 777)))
	require.NoError(t, err)

	// A delayed renewal from before the cancellation must not revive it
	staleAt := testClock.Add(time.Hour)
	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, staleAt, nil, goldPayload(1644, 777)))
	require.NoError(t, err)
	assert.Nil(t, res)

	sub, err := store.SubscriptionByProviderID(ctx, 1644)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
}

func donationPayload(requestID, userID int64, period string) EventPayload {
	return EventPayload{
		DonationRequestID: requestID,
		DonationName:      "coffee",
		TelegramUserID:    userID,
		Period:            period,
		Amount:            150,
		Currency:          "eur",
		Message:           "keep it up",
	}
}

func TestOneTimeDonation(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewDonation, testClock, nil, donationPayload(1547, 888, "")))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, CategoryDonation, res.Category)
	assert.Equal(t, ResultCreated, res.Type)
	require.NotNil(t, res.Donation)
	assert.Equal(t, models.DonationStatusCompleted, res.Donation.Status)
	assert.Equal(t, models.DonationPeriodOnce, res.Donation.Period)

	require.NotNil(t, res.Payment)
	assert.Equal(t, models.PaymentKindDonation, res.Payment.Kind)
	assert.Equal(t, int64(1547), res.Payment.RefID)
}

func TestRecurringDonationLifecycle(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewDonation, testClock, nil, donationPayload(1547, 888, "monthly")))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.DonationStatusActive, res.Donation.Status)

	nextMonth := testClock.Add(30 * 24 * time.Hour)
	res, err = proc.Handle(ctx, makeEnvelope(t, EventRecurrentDonation, nextMonth, nil, donationPayload(1547, 888, "monthly")))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ResultRecurrent, res.Type)
	assert.True(t, res.Donation.CreatedAt.Equal(testClock), "recurrence keeps the original start")

	// Duplicate recurrence is suppressed
	res, err = proc.Handle(ctx, makeEnvelope(t, EventRecurrentDonation, nextMonth, nil, donationPayload(1547, 888, "monthly")))
	require.NoError(t, err)
	assert.Nil(t, res)

	payments, err := store.ListPayments(ctx, PaymentFilter{Kind: models.PaymentKindDonation})
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestRecurrenceWithoutPriorRecordSynthesizes(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())

	res, err := proc.Handle(context.Background(), makeEnvelope(t, EventRecurrentDonation, testClock, nil, donationPayload(1547, 888, "monthly")))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ResultRecurrent, res.Type)
	assert.Equal(t, models.DonationStatusActive, res.Donation.Status)
}

func TestDonationCancellation(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	_, err := proc.Handle(ctx, makeEnvelope(t, EventNewDonation, testClock, nil, donationPayload(1547, 888, "monthly")))
	require.NoError(t, err)

	cancelAt := testClock.Add(time.Hour)
	res, err := proc.Handle(ctx, makeEnvelope(t, EventCancelledDonation, cancelAt, nil, donationPayload(1547, 888, "monthly")))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ResultCancelled, res.Type)
	assert.Equal(t, models.DonationStatusCancelled, res.Donation.Status)
	assert.Nil(t, res.Payment, "cancellation writes no ledger entry")

	// A late recurrence must not reactivate the cancelled donation
	lateAt := cancelAt.Add(time.Hour)
	res, err = proc.Handle(ctx, makeEnvelope(t, EventRecurrentDonation, lateAt, nil, donationPayload(1547, 888, "monthly")))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.DonationStatusCancelled, res.Donation.Status)

	// Redelivered cancellation is a no-op
	res, err = proc.Handle(ctx, makeEnvelope(t, EventCancelledDonation, cancelAt, nil, donationPayload(1547, 888, "monthly")))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestDonationCancellationWithoutRecord(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())

	_, err := proc.Handle(context.Background(), makeEnvelope(t, EventCancelledDonation, testClock, nil, donationPayload(404, 888, "")))
	var donErr *DonationNotFoundError
	require.ErrorAs(t, err, &donErr)
	assert.Equal(t, int64(404), donErr.RequestID)
}

func TestDonationPayloadValidation(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	payload := donationPayload(0, 888, "")
	_, err := proc.Handle(ctx, makeEnvelope(t, EventNewDonation, testClock, nil, payload))
	assert.ErrorIs(t, err, ErrPayload)

	payload = donationPayload(1547, 0, "")
	_, err = proc.Handle(ctx, makeEnvelope(t, EventNewDonation, testClock, nil, payload))
	assert.ErrorIs(t, err, ErrPayload)
}

func TestEventAllowList(t *testing.T) {
	store := NewMemoryStore()
	cfg := testConfig()
	cfg.EnabledEvents = EnabledEventsFor(false)
	proc := newTestProcessor(t, store, cfg)
	ctx := context.Background()

	res, err := proc.Handle(ctx, makeEnvelope(t, EventNewDonation, testClock, nil, donationPayload(1547, 888, "")))
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = store.DonationByRequestID(ctx, 1547)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnknownEventDropped(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())

	env := makeEnvelope(t, "loyalty_points", testClock, nil, EventPayload{})
	res, err := proc.Handle(context.Background(), env)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestListenerOrdering(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())

	var calls []string
	proc.On(ListenAll, func(r *Result) { calls = append(calls, "global") })
	proc.On("subscription.*", func(r *Result) { calls = append(calls, "category") })
	proc.On("subscription.created", func(r *Result) { calls = append(calls, "specific") })
	proc.On("donation.*", func(r *Result) { calls = append(calls, "other-category") })

	activate(t, proc, store, 1644, 777, testClock)

	assert.Equal(t, []string{"specific", "category", "global"}, calls)
}

type stubPublisher struct {
	published []*Result
	err       error
}

func (p *stubPublisher) Publish(_ context.Context, res *Result) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, res)
	return nil
}

func TestPublisherFailureModes(t *testing.T) {
	t.Run("fail mode raises the error", func(t *testing.T) {
		store := NewMemoryStore()
		cfg := testConfig()
		cfg.Publisher = &stubPublisher{err: fmt.Errorf("sink down")}
		cfg.PublishFailure = PublishFailureFail
		proc := newTestProcessor(t, store, cfg)
		ctx := context.Background()

		_, err := proc.CreateIntent(ctx, "gold", 777, "")
		require.NoError(t, err)
		_, err = proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, testClock, nil, goldPayload(1644, 777)))
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrSignature))

		// The store write survives the publish failure
		sub, err := store.SubscriptionByProviderID(ctx, 1644)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	})

	t.Run("log mode swallows the error", func(t *testing.T) {
		store := NewMemoryStore()
		cfg := testConfig()
		cfg.Publisher = &stubPublisher{err: fmt.Errorf("sink down")}
		cfg.PublishFailure = PublishFailureLog
		proc := newTestProcessor(t, store, cfg)
		ctx := context.Background()

		_, err := proc.CreateIntent(ctx, "gold", 777, "")
		require.NoError(t, err)
		res, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, testClock, nil, goldPayload(1644, 777)))
		require.NoError(t, err)
		assert.NotNil(t, res)
	})

	t.Run("publisher receives accepted results", func(t *testing.T) {
		store := NewMemoryStore()
		sink := &stubPublisher{}
		cfg := testConfig()
		cfg.Publisher = sink
		proc := newTestProcessor(t, store, cfg)
		ctx := context.Background()

		activate(t, proc, store, 1644, 777, testClock)
		// Suppressed duplicate must not reach the sink
		_, err := proc.Handle(ctx, makeEnvelope(t, EventNewSubscription, testClock, nil, goldPayload(1644, 777)))
		require.NoError(t, err)

		require.Len(t, sink.published, 1)
		assert.Equal(t, "subscription.created", sink.published[0].Key())
	})
}

func TestHandleWebhook(t *testing.T) {
	store := NewMemoryStore()
	proc := newTestProcessor(t, store, testConfig())
	ctx := context.Background()

	_, err := proc.CreateIntent(ctx, "gold", 777, "")
	require.NoError(t, err)

	body, err := json.Marshal(map[string]interface{}{
		"name":       "new_subscription",
		"created_at": testClock,
		"payload":    goldPayload(1644, 777),
	})
	require.NoError(t, err)

	res, err := proc.HandleWebhook(ctx, body, signHex(body, "test-secret"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ResultCreated, res.Type)

	// Forged signature touches no state
	_, err = proc.HandleWebhook(ctx, body, signHex(body, "wrong-secret"))
	assert.ErrorIs(t, err, ErrSignature)

	// Signed garbage is a payload error
	garbage := []byte(`{"name":`)
	_, err = proc.HandleWebhook(ctx, garbage, signHex(garbage, "test-secret"))
	assert.ErrorIs(t, err, ErrPayload)
}
