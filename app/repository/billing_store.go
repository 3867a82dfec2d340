package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ndreyko/tributary/app/models"
	"github.com/ndreyko/tributary/internal/pkg/tribute"
)

// billingStore implements the tribute.Store interface on MySQL. Upserts and
// cancellations run in a transaction with a row lock so concurrent webhook
// deliveries for the same entity serialize instead of clobbering each other.
type billingStore struct {
	db *gorm.DB
}

// NewBillingStore creates a new billing store instance
func NewBillingStore(db *gorm.DB) tribute.Store {
	return &billingStore{db: db}
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tribute.ErrNotFound
	}
	return err
}

func (r *billingStore) SaveIntent(ctx context.Context, intent *models.SubscriptionIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *billingStore) ConsumeIntent(ctx context.Context, id string) (*models.SubscriptionIntent, error) {
	var intent models.SubscriptionIntent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&intent).Error; err != nil {
			return err
		}
		return tx.Delete(&models.SubscriptionIntent{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &intent, nil
}

func (r *billingStore) FindIntentByUserAndPlan(ctx context.Context, telegramUserID int64, planID string, now time.Time) (*models.SubscriptionIntent, error) {
	var intent models.SubscriptionIntent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Evict expired reservations for this pair before matching
		if err := tx.Where("telegram_user_id = ? AND plan_id = ? AND expires_at < ?", telegramUserID, planID, now).
			Delete(&models.SubscriptionIntent{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("telegram_user_id = ? AND plan_id = ?", telegramUserID, planID).
			Order("created_at DESC").
			First(&intent).Error
	})
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &intent, nil
}

func (r *billingStore) DeleteIntent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.SubscriptionIntent{}, "id = ?", id).Error
}

func (r *billingStore) SubscriptionByProviderID(ctx context.Context, providerSubID int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubID).
		First(&sub).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &sub, nil
}

func (r *billingStore) SubscriptionByUserAndPlan(ctx context.Context, telegramUserID int64, planID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("telegram_user_id = ? AND plan_id = ?", telegramUserID, planID).
		Order("last_event_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &sub, nil
}

func (r *billingStore) UpsertSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	var prev *models.Subscription
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("provider_subscription_id = ?", sub.ProviderSubscriptionID).
			First(&existing).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return tx.Create(sub).Error
		}

		prior := existing
		prev = &prior
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		return tx.Save(sub).Error
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

func (r *billingStore) MarkSubscriptionCancelled(ctx context.Context, providerSubID int64, reason string, cancelledAt, lastEventAt time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("provider_subscription_id = ?", providerSubID).
			First(&sub).Error; err != nil {
			return err
		}
		sub.Status = models.SubscriptionStatusCancelled
		sub.CancelReason = reason
		sub.CancelledAt = &cancelledAt
		if lastEventAt.After(sub.LastEventAt) {
			sub.LastEventAt = lastEventAt
		}
		return tx.Save(&sub).Error
	})
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &sub, nil
}

func (r *billingStore) DonationByRequestID(ctx context.Context, requestID int64) (*models.Donation, error) {
	var donation models.Donation
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&donation).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &donation, nil
}

func (r *billingStore) UpsertDonation(ctx context.Context, donation *models.Donation) (*models.Donation, error) {
	var prev *models.Donation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Donation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("request_id = ?", donation.RequestID).
			First(&existing).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return tx.Create(donation).Error
		}

		prior := existing
		prev = &prior
		donation.ID = existing.ID
		donation.CreatedAt = existing.CreatedAt
		return tx.Save(donation).Error
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

func (r *billingStore) MarkDonationCancelled(ctx context.Context, requestID int64, cancelledAt, lastEventAt time.Time) (*models.Donation, error) {
	var donation models.Donation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("request_id = ?", requestID).
			First(&donation).Error; err != nil {
			return err
		}
		donation.Status = models.DonationStatusCancelled
		donation.CancelledAt = &cancelledAt
		if lastEventAt.After(donation.LastEventAt) {
			donation.LastEventAt = lastEventAt
		}
		return tx.Save(&donation).Error
	})
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &donation, nil
}

func (r *billingStore) AppendPayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *billingStore) ListPayments(ctx context.Context, filter tribute.PaymentFilter) ([]models.Payment, error) {
	query := r.db.WithContext(ctx).Model(&models.Payment{})
	if filter.TelegramUserID != 0 {
		query = query.Where("telegram_user_id = ?", filter.TelegramUserID)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if !filter.From.IsZero() {
		query = query.Where("paid_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("paid_at <= ?", filter.To)
	}
	query = query.Order("paid_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var payments []models.Payment
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
