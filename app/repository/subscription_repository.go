package repository

import (
	"gorm.io/gorm"

	"github.com/ndreyko/tributary/app/models"
	"github.com/ndreyko/tributary/internal/pkg/tribute"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByProviderID(providerSubID int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("provider_subscription_id = ?", providerSubID).First(&sub).Error
	if err == gorm.ErrRecordNotFound {
		return nil, tribute.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListByUser(telegramUserID int64) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("telegram_user_id = ?", telegramUserID).
		Order("last_event_at DESC").
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) List(offset, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Order("last_event_at DESC").
		Offset(offset).Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).Count(&count).Error
	return count, err
}
