package repository

import (
	"gorm.io/gorm"

	"github.com/ndreyko/tributary/app/models"
	"github.com/ndreyko/tributary/internal/pkg/tribute"
)

// donationRepository implements the DonationRepository interface
type donationRepository struct {
	db *gorm.DB
}

// NewDonationRepository creates a new donation repository instance
func NewDonationRepository(db *gorm.DB) DonationRepository {
	return &donationRepository{db: db}
}

func (r *donationRepository) GetByRequestID(requestID int64) (*models.Donation, error) {
	var donation models.Donation
	err := r.db.Where("request_id = ?", requestID).First(&donation).Error
	if err == gorm.ErrRecordNotFound {
		return nil, tribute.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &donation, nil
}

func (r *donationRepository) ListByUser(telegramUserID int64) ([]models.Donation, error) {
	var donations []models.Donation
	err := r.db.Where("telegram_user_id = ?", telegramUserID).
		Order("last_event_at DESC").
		Find(&donations).Error
	return donations, err
}

func (r *donationRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Donation{}).Count(&count).Error
	return count, err
}
