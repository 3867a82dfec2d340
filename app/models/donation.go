package models

import "time"

const (
	DonationStatusCompleted = "completed"
	DonationStatusActive    = "active"
	DonationStatusCancelled = "cancelled"
)

// DonationPeriodOnce marks a one-off donation; any other period value implies
// a recurring cadence the provider will keep billing.
const DonationPeriodOnce = "once"

// Donation mirrors provider donation state keyed by the donation request id,
// which the provider generates and which doubles as the idempotency key.
type Donation struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	RequestID      int64      `gorm:"not null;uniqueIndex:ux_donations_request" json:"request_id"`
	Name           string     `gorm:"type:varchar(255);default:''" json:"name"`
	TelegramUserID int64      `gorm:"not null;index" json:"telegram_user_id"`
	UserID         *uint      `gorm:"default:null;index" json:"user_id,omitempty"`
	Period         string     `gorm:"type:varchar(32);not null;default:'once'" json:"period"`
	Amount         int64      `gorm:"not null" json:"amount"`
	Currency       string     `gorm:"type:varchar(10);not null" json:"currency"`
	Anonymous      bool       `gorm:"not null;default:false" json:"anonymous"`
	Message        string     `gorm:"type:text" json:"message,omitempty"`
	WebAppLink     string     `gorm:"type:varchar(512);default:''" json:"web_app_link,omitempty"`
	Status         string     `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	LastEventAt    time.Time  `gorm:"not null;index" json:"last_event_at"`
	CancelledAt    *time.Time `gorm:"default:null" json:"cancelled_at,omitempty"`
	Metadata       string     `gorm:"type:longtext" json:"metadata,omitempty"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
