package tribute

import (
	"context"
	"time"

	"github.com/ndreyko/tributary/app/models"
)

// PaymentFilter narrows ListPayments. Zero values mean "any". Results are
// sorted by PaidAt descending.
type PaymentFilter struct {
	TelegramUserID int64
	Kind           string
	From           time.Time
	To             time.Time
	Limit          int
}

// Store is the persistence contract the processor depends on. Lookups return
// ErrNotFound for misses. Upserts must be atomic per entity key and return
// the prior record (nil when the write created the row) so the processor can
// distinguish created from renewed and hand the previous state to listeners.
//
// The processor never caches entities across calls; per-key atomicity under
// concurrent deliveries for the same provider id is the store's obligation.
type Store interface {
	// Intents.
	SaveIntent(ctx context.Context, intent *models.SubscriptionIntent) error
	// ConsumeIntent fetches and deletes the intent in one step.
	ConsumeIntent(ctx context.Context, id string) (*models.SubscriptionIntent, error)
	// FindIntentByUserAndPlan returns the newest live intent for the pair and
	// evicts any expired intents (relative to now) it encounters on the way.
	FindIntentByUserAndPlan(ctx context.Context, telegramUserID int64, planID string, now time.Time) (*models.SubscriptionIntent, error)
	DeleteIntent(ctx context.Context, id string) error

	// Subscriptions, keyed by provider subscription id.
	SubscriptionByProviderID(ctx context.Context, providerSubID int64) (*models.Subscription, error)
	SubscriptionByUserAndPlan(ctx context.Context, telegramUserID int64, planID string) (*models.Subscription, error)
	// UpsertSubscription inserts or replaces by provider subscription id and
	// returns the prior row. CreatedAt of an existing row is preserved.
	UpsertSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	MarkSubscriptionCancelled(ctx context.Context, providerSubID int64, reason string, cancelledAt, lastEventAt time.Time) (*models.Subscription, error)

	// Donations, keyed by provider donation request id.
	DonationByRequestID(ctx context.Context, requestID int64) (*models.Donation, error)
	UpsertDonation(ctx context.Context, donation *models.Donation) (*models.Donation, error)
	MarkDonationCancelled(ctx context.Context, requestID int64, cancelledAt, lastEventAt time.Time) (*models.Donation, error)

	// Ledger. AppendPayment is append-only; entries are never mutated.
	AppendPayment(ctx context.Context, payment *models.Payment) error
	ListPayments(ctx context.Context, filter PaymentFilter) ([]models.Payment, error)
}
