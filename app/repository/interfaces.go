package repository

import (
	"gorm.io/gorm"

	"github.com/ndreyko/tributary/app/models"
	"github.com/ndreyko/tributary/internal/pkg/tribute"
)

// SubscriptionRepository defines read access used by the management API.
// All writes go through the tribute.Store so the event processor stays the
// single writer for billing state.
type SubscriptionRepository interface {
	GetByProviderID(providerSubID int64) (*models.Subscription, error)
	ListByUser(telegramUserID int64) ([]models.Subscription, error)
	List(offset, limit int) ([]models.Subscription, error)
	Count() (int64, error)
}

// DonationRepository defines read access to donation records.
type DonationRepository interface {
	GetByRequestID(requestID int64) (*models.Donation, error)
	ListByUser(telegramUserID int64) ([]models.Donation, error)
	Count() (int64, error)
}

// WebhookEventRepository defines the interface for the delivery audit log.
type WebhookEventRepository interface {
	Create(event *models.WebhookEvent) error
	List(offset, limit int) ([]models.WebhookEvent, error)
	Count() (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Store         tribute.Store
	Subscription  SubscriptionRepository
	Donation      DonationRepository
	WebhookEvents WebhookEventRepository
}

// NewRepositories creates a new repositories instance with all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Store:         NewBillingStore(db),
		Subscription:  NewSubscriptionRepository(db),
		Donation:      NewDonationRepository(db),
		WebhookEvents: NewWebhookEventRepository(db),
	}
}
