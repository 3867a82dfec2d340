package tribute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ndreyko/tributary/app/models"
)

// Processor is the webhook event state machine. It is synchronous per call
// and keeps no state across calls beyond the listener registry and the
// publisher reference, both fixed at construction; concurrent deliveries for
// the same entity key are serialized by the store's per-key atomicity, not
// here.
type Processor struct {
	store     Store
	plans     *PlanRegistry
	cfg       Config
	listeners *listenerRegistry
}

// NewProcessor validates the configuration, builds the plan registry and
// returns a ready processor.
func NewProcessor(store Store, cfg Config) (*Processor, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrConfiguration)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	registry, err := NewPlanRegistry(cfg.Plans)
	if err != nil {
		return nil, err
	}
	return &Processor{
		store:     store,
		plans:     registry,
		cfg:       cfg,
		listeners: newListenerRegistry(),
	}, nil
}

// Plans exposes the configured catalog.
func (p *Processor) Plans() *PlanRegistry { return p.plans }

// On registers a local listener. Keys: "subscription.created" (specific),
// "donation.*" (category), "*" (everything). Notification order is specific,
// then category, then global. Register before serving traffic.
func (p *Processor) On(key string, fn Listener) {
	p.listeners.on(key, fn)
}

// HandleWebhook verifies the signature over the raw body, decodes the
// envelope and dispatches it. A nil result with a nil error means the event
// was a duplicate, out of order, or outside the allow-list: the caller
// answers 200 and the provider stops redelivering.
func (p *Processor) HandleWebhook(ctx context.Context, body []byte, signatureHeader string) (*Result, error) {
	ok, err := VerifySignature(body, signatureHeader, p.cfg.SecretKey, p.cfg.Encoding)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSignature
	}

	env, err := ParseEnvelope(body)
	if err != nil {
		return nil, err
	}
	return p.Handle(ctx, env)
}

// Handle dispatches an already-verified envelope. Exposed separately so
// trusted in-process callers and tests can skip transport concerns.
func (p *Processor) Handle(ctx context.Context, env *Envelope) (*Result, error) {
	if !p.eventEnabled(env.Name) {
		p.cfg.Logger.Infof("tribute: dropping event %q (not enabled)", env.Name)
		return nil, nil
	}

	payload, err := env.DecodePayload()
	if err != nil {
		return nil, err
	}

	switch env.Name {
	case EventNewSubscription:
		return p.handleNewSubscription(ctx, env, payload)
	case EventCancelledSubscription:
		return p.handleCancelledSubscription(ctx, env, payload)
	case EventNewDonation:
		return p.handleNewDonation(ctx, env, payload)
	case EventRecurrentDonation:
		return p.handleRecurrentDonation(ctx, env, payload)
	case EventCancelledDonation:
		return p.handleCancelledDonation(ctx, env, payload)
	default:
		// Unreachable while eventEnabled filters unknown names, kept for
		// safety if the allow-list ever widens.
		p.cfg.Logger.Infof("tribute: dropping unrecognized event %q", env.Name)
		return nil, nil
	}
}

func (p *Processor) eventEnabled(name EventName) bool {
	for _, e := range p.cfg.EnabledEvents {
		if e == name {
			return true
		}
	}
	return false
}

// IntentReceipt is returned to the caller that reserved a plan.
type IntentReceipt struct {
	IntentID  string    `json:"intent_id"`
	PlanID    string    `json:"plan_id"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateIntent reserves a plan for a user ahead of payment and returns the
// reservation id together with the plan's pre-issued subscription link.
func (p *Processor) CreateIntent(ctx context.Context, planID string, telegramUserID int64, metadata string) (*IntentReceipt, error) {
	plan, ok := p.plans.ByID(strings.TrimSpace(planID))
	if !ok {
		return nil, &PlanNotFoundError{Ref: fmt.Sprintf("plan_id=%s", planID)}
	}
	if telegramUserID == 0 {
		return nil, fmt.Errorf("%w: telegram user id is required", ErrPayload)
	}

	now := p.cfg.Now()
	intent := &models.SubscriptionIntent{
		ID:             uuid.NewString(),
		PlanID:         plan.ID,
		TelegramUserID: telegramUserID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(p.cfg.IntentTTL),
		Metadata:       metadata,
	}
	if err := p.store.SaveIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("save intent: %w", err)
	}
	return &IntentReceipt{
		IntentID:  intent.ID,
		PlanID:    plan.ID,
		Link:      plan.Link,
		ExpiresAt: intent.ExpiresAt,
	}, nil
}

func (p *Processor) handleNewSubscription(ctx context.Context, env *Envelope, payload *EventPayload) (*Result, error) {
	plan, err := p.plans.Resolve(payload)
	if err != nil {
		return nil, err
	}
	if payload.SubscriptionID == 0 {
		return nil, fmt.Errorf("%w: new_subscription without subscription_id", ErrPayload)
	}

	existing, err := p.store.SubscriptionByProviderID(ctx, payload.SubscriptionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load subscription %d: %w", payload.SubscriptionID, err)
	}

	ts := env.OrderingTime()
	if existing != nil && !ts.After(existing.LastEventAt) {
		p.cfg.Logger.Infof("tribute: subscription %d: dropping event at %s (watermark %s)",
			payload.SubscriptionID, ts.Format(time.RFC3339), existing.LastEventAt.Format(time.RFC3339))
		return nil, nil
	}

	res := &Result{Category: CategorySubscription}
	sub := &models.Subscription{
		PlanID:                 plan.ID,
		ProviderSubscriptionID: payload.SubscriptionID,
		ProviderPeriodID:       payload.PeriodID,
		TelegramUserID:         payload.TelegramUserID,
		Amount:                 paidAmount(payload),
		Currency:               strings.ToLower(payload.Currency),
		Period:                 orDefault(payload.Period, plan.Period),
		Status:                 models.SubscriptionStatusActive,
		CreatedAt:              env.CreatedAt,
		LastEventAt:            ts,
		ExpiresAt:              payload.ExpiresAt,
	}

	if existing == nil {
		intent, status, err := p.resolveIntent(ctx, payload, plan, ts)
		if err != nil {
			return nil, err
		}
		res.IntentStatus = status
		sub.Metadata = intent.Metadata
	} else {
		sub.CreatedAt = existing.CreatedAt
		sub.UserID = existing.UserID
		sub.Metadata = existing.Metadata
		if sub.ExpiresAt == nil {
			sub.ExpiresAt = existing.ExpiresAt
		}
	}

	prev, err := p.store.UpsertSubscription(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription %d: %w", payload.SubscriptionID, err)
	}
	// The upsert's view of the prior row is authoritative: a racing first
	// delivery may have created the row between our lookup and the write.
	res.Type = ResultCreated
	if prev != nil {
		res.Type = ResultRenewed
		sub.CreatedAt = prev.CreatedAt
	}
	res.PreviousSubscription = prev
	res.Subscription = sub

	payment := &models.Payment{
		Kind:           models.PaymentKindSubscription,
		RefID:          payload.SubscriptionID,
		PlanID:         plan.ID,
		TelegramUserID: payload.TelegramUserID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		PaidAt:         env.CreatedAt,
		Payload:        string(env.Payload),
	}
	if err := p.store.AppendPayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("append payment for subscription %d: %w", payload.SubscriptionID, err)
	}
	res.Payment = payment

	return res, p.emit(ctx, res)
}

// resolveIntent consumes the reservation backing a first-time activation:
// by intent id when the payload carries one, else by (user, plan). A found
// intent whose expiry precedes the event's ordering timestamp still lets the
// activation proceed; the result just reports it as expired so late
// completions can be audited.
func (p *Processor) resolveIntent(ctx context.Context, payload *EventPayload, plan *Plan, ts time.Time) (*models.SubscriptionIntent, IntentStatus, error) {
	var intent *models.SubscriptionIntent

	if payload.IntentID != "" {
		found, err := p.store.ConsumeIntent(ctx, payload.IntentID)
		switch {
		case err == nil:
			intent = found
		case errors.Is(err, ErrNotFound):
			p.cfg.Logger.Warnf("tribute: intent %s not found, falling back to user/plan lookup", payload.IntentID)
		default:
			return nil, "", fmt.Errorf("consume intent %s: %w", payload.IntentID, err)
		}
	}

	if intent == nil {
		found, err := p.store.FindIntentByUserAndPlan(ctx, payload.TelegramUserID, plan.ID, p.cfg.Now())
		switch {
		case err == nil:
			intent = found
			if err := p.store.DeleteIntent(ctx, intent.ID); err != nil {
				return nil, "", fmt.Errorf("delete intent %s: %w", intent.ID, err)
			}
		case errors.Is(err, ErrNotFound):
			return nil, "", &IntentNotFoundError{
				SubscriptionID: payload.SubscriptionID,
				TelegramUserID: payload.TelegramUserID,
				PlanID:         plan.ID,
			}
		default:
			return nil, "", fmt.Errorf("find intent for user %d plan %s: %w", payload.TelegramUserID, plan.ID, err)
		}
	}

	status := IntentMatched
	if intent.ExpiresAt.Before(ts) {
		status = IntentExpired
	}
	return intent, status, nil
}

func (p *Processor) handleCancelledSubscription(ctx context.Context, env *Envelope, payload *EventPayload) (*Result, error) {
	// Plan resolution is not used by the update but keeps the error surface
	// consistent with new_subscription for misconfigured catalogs.
	if _, err := p.plans.Resolve(payload); err != nil {
		return nil, err
	}
	return p.cancelSubscription(ctx, payload.SubscriptionID, payload.CancelReason, env.CreatedAt, env.OrderingTime(), "")
}

// CancelSubscription is the manual cancellation path: operators can freeze
// billing before the provider's own cancellation event arrives. It follows
// the same store update and emission path as the webhook, with the result's
// cancellation source tagged manual.
func (p *Processor) CancelSubscription(ctx context.Context, providerSubID int64, reason string, at time.Time) (*Result, error) {
	if at.IsZero() {
		at = p.cfg.Now()
	}
	return p.cancelSubscription(ctx, providerSubID, reason, at, at, CancelSourceManual)
}

func (p *Processor) cancelSubscription(ctx context.Context, providerSubID int64, reason string, cancelledAt, ts time.Time, source CancelSource) (*Result, error) {
	if providerSubID == 0 {
		return nil, fmt.Errorf("%w: cancellation without subscription_id", ErrPayload)
	}
	sub, err := p.store.SubscriptionByProviderID(ctx, providerSubID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &SubscriptionNotFoundError{SubscriptionID: providerSubID}
		}
		return nil, fmt.Errorf("load subscription %d: %w", providerSubID, err)
	}

	if alreadyCancelled(sub.CancelledAt, cancelledAt) || !ts.After(sub.LastEventAt) {
		p.cfg.Logger.Infof("tribute: subscription %d: dropping duplicate cancellation", providerSubID)
		return nil, nil
	}

	updated, err := p.store.MarkSubscriptionCancelled(ctx, providerSubID, reason, cancelledAt, laterOf(sub.LastEventAt, ts))
	if err != nil {
		return nil, fmt.Errorf("cancel subscription %d: %w", providerSubID, err)
	}

	res := &Result{
		Category:             CategorySubscription,
		Type:                 ResultCancelled,
		Subscription:         updated,
		PreviousSubscription: sub,
		CancelSource:         source,
	}
	return res, p.emit(ctx, res)
}

func (p *Processor) handleNewDonation(ctx context.Context, env *Envelope, payload *EventPayload) (*Result, error) {
	if payload.DonationRequestID == 0 {
		return nil, fmt.Errorf("%w: new_donation without donation_request_id", ErrPayload)
	}
	if payload.TelegramUserID == 0 {
		return nil, fmt.Errorf("%w: new_donation without telegram_user_id", ErrPayload)
	}

	existing, err := p.store.DonationByRequestID(ctx, payload.DonationRequestID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load donation %d: %w", payload.DonationRequestID, err)
	}

	ts := env.OrderingTime()
	if existing != nil && !ts.After(existing.LastEventAt) {
		p.cfg.Logger.Infof("tribute: donation %d: dropping event at %s (watermark %s)",
			payload.DonationRequestID, ts.Format(time.RFC3339), existing.LastEventAt.Format(time.RFC3339))
		return nil, nil
	}

	status := models.DonationStatusActive
	if payload.Period == "" || payload.Period == models.DonationPeriodOnce {
		status = models.DonationStatusCompleted
	}
	donation := p.donationFromPayload(env, payload, status)
	if existing != nil {
		donation.CreatedAt = existing.CreatedAt
		donation.UserID = existing.UserID
	}

	if _, err := p.store.UpsertDonation(ctx, donation); err != nil {
		return nil, fmt.Errorf("upsert donation %d: %w", payload.DonationRequestID, err)
	}

	payment, err := p.appendDonationPayment(ctx, env, payload)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Category: CategoryDonation,
		Type:     ResultCreated,
		Donation: donation,
		Payment:  payment,
	}
	return res, p.emit(ctx, res)
}

func (p *Processor) handleRecurrentDonation(ctx context.Context, env *Envelope, payload *EventPayload) (*Result, error) {
	if payload.DonationRequestID == 0 {
		return nil, fmt.Errorf("%w: recurrent_donation without donation_request_id", ErrPayload)
	}

	existing, err := p.store.DonationByRequestID(ctx, payload.DonationRequestID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load donation %d: %w", payload.DonationRequestID, err)
	}

	ts := env.OrderingTime()
	if existing != nil && !ts.After(existing.LastEventAt) {
		p.cfg.Logger.Infof("tribute: donation %d: dropping recurrence at %s (watermark %s)",
			payload.DonationRequestID, ts.Format(time.RFC3339), existing.LastEventAt.Format(time.RFC3339))
		return nil, nil
	}

	donation := p.donationFromPayload(env, payload, models.DonationStatusActive)
	if existing == nil {
		// Providers may deliver a recurrence before (or without) the
		// creating event; synthesize the record rather than failing.
		p.cfg.Logger.Warnf("tribute: donation %d: recurrence without prior record, synthesizing", payload.DonationRequestID)
	} else {
		donation.CreatedAt = existing.CreatedAt
		donation.UserID = existing.UserID
		if existing.Status == models.DonationStatusCancelled {
			// A stale recurrence must not silently reactivate a cancelled
			// donation.
			donation.Status = models.DonationStatusCancelled
			donation.CancelledAt = existing.CancelledAt
		}
	}

	if _, err := p.store.UpsertDonation(ctx, donation); err != nil {
		return nil, fmt.Errorf("upsert donation %d: %w", payload.DonationRequestID, err)
	}

	payment, err := p.appendDonationPayment(ctx, env, payload)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Category: CategoryDonation,
		Type:     ResultRecurrent,
		Donation: donation,
		Payment:  payment,
	}
	return res, p.emit(ctx, res)
}

func (p *Processor) handleCancelledDonation(ctx context.Context, env *Envelope, payload *EventPayload) (*Result, error) {
	if payload.DonationRequestID == 0 {
		return nil, fmt.Errorf("%w: cancelled_donation without donation_request_id", ErrPayload)
	}

	existing, err := p.store.DonationByRequestID(ctx, payload.DonationRequestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &DonationNotFoundError{RequestID: payload.DonationRequestID}
		}
		return nil, fmt.Errorf("load donation %d: %w", payload.DonationRequestID, err)
	}

	cancelledAt := env.CreatedAt
	ts := env.OrderingTime()
	if alreadyCancelled(existing.CancelledAt, cancelledAt) || !ts.After(existing.LastEventAt) {
		p.cfg.Logger.Infof("tribute: donation %d: dropping duplicate cancellation", payload.DonationRequestID)
		return nil, nil
	}

	updated, err := p.store.MarkDonationCancelled(ctx, payload.DonationRequestID, cancelledAt, laterOf(existing.LastEventAt, ts))
	if err != nil {
		return nil, fmt.Errorf("cancel donation %d: %w", payload.DonationRequestID, err)
	}

	// Cancellation is not a monetary event: no ledger entry.
	res := &Result{
		Category: CategoryDonation,
		Type:     ResultCancelled,
		Donation: updated,
	}
	return res, p.emit(ctx, res)
}

func (p *Processor) donationFromPayload(env *Envelope, payload *EventPayload, status string) *models.Donation {
	return &models.Donation{
		RequestID:      payload.DonationRequestID,
		Name:           payload.DonationName,
		TelegramUserID: payload.TelegramUserID,
		Period:         orDefault(payload.Period, models.DonationPeriodOnce),
		Amount:         paidAmount(payload),
		Currency:       strings.ToLower(payload.Currency),
		Anonymous:      payload.Anonymously,
		Message:        payload.Message,
		WebAppLink:     payload.WebAppLink,
		Status:         status,
		CreatedAt:      env.CreatedAt,
		LastEventAt:    env.OrderingTime(),
	}
}

func (p *Processor) appendDonationPayment(ctx context.Context, env *Envelope, payload *EventPayload) (*models.Payment, error) {
	payment := &models.Payment{
		Kind:           models.PaymentKindDonation,
		RefID:          payload.DonationRequestID,
		TelegramUserID: payload.TelegramUserID,
		Amount:         paidAmount(payload),
		Currency:       strings.ToLower(payload.Currency),
		PaidAt:         env.CreatedAt,
		Payload:        string(env.Payload),
	}
	if err := p.store.AppendPayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("append payment for donation %d: %w", payload.DonationRequestID, err)
	}
	return payment, nil
}

// emit notifies local listeners in their fixed order, then the external
// publisher. Listener and publisher both run after the store write has
// committed; a publisher failure never unwinds it.
func (p *Processor) emit(ctx context.Context, res *Result) error {
	p.listeners.notify(res)

	if p.cfg.Publisher == nil {
		return nil
	}
	if err := p.cfg.Publisher.Publish(ctx, res); err != nil {
		if p.cfg.PublishFailure == PublishFailureLog {
			p.cfg.Logger.Errorf("tribute: publish %s: %v", res.Key(), err)
			return nil
		}
		return fmt.Errorf("publish %s: %w", res.Key(), err)
	}
	return nil
}

func paidAmount(p *EventPayload) int64 {
	if p.Amount != 0 {
		return p.Amount
	}
	return p.Price
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func alreadyCancelled(stored *time.Time, incoming time.Time) bool {
	return stored != nil && !stored.Before(incoming)
}
