package models

import "time"

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription mirrors provider subscription state keyed by the provider
// subscription id. LastEventAt is the ordering watermark: it never decreases,
// and every accepted webhook raises it.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	PlanID                 string     `gorm:"type:varchar(100);not null;index:idx_subscriptions_user_plan,priority:2" json:"plan_id"`
	ProviderSubscriptionID int64      `gorm:"not null;uniqueIndex:ux_subscriptions_provider_sub" json:"provider_subscription_id"`
	ProviderPeriodID       int64      `gorm:"not null;default:0" json:"provider_period_id"`
	TelegramUserID         int64      `gorm:"not null;index:idx_subscriptions_user_plan,priority:1" json:"telegram_user_id"`
	UserID                 *uint      `gorm:"default:null;index" json:"user_id,omitempty"`
	Amount                 int64      `gorm:"not null" json:"amount"`
	Currency               string     `gorm:"type:varchar(10);not null" json:"currency"`
	Period                 string     `gorm:"type:varchar(32);not null" json:"period"`
	Status                 string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	CreatedAt              time.Time  `gorm:"not null" json:"created_at"`
	LastEventAt            time.Time  `gorm:"not null;index" json:"last_event_at"`
	ExpiresAt              *time.Time `gorm:"default:null" json:"expires_at,omitempty"`
	CancelledAt            *time.Time `gorm:"default:null" json:"cancelled_at,omitempty"`
	CancelReason           string     `gorm:"type:varchar(255);default:''" json:"cancel_reason,omitempty"`
	Metadata               string     `gorm:"type:longtext" json:"metadata,omitempty"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
