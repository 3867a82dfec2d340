package models

import "time"

// SubscriptionIntent is a short-lived reservation linking a user to a plan
// before payment. It is consumed (deleted) by the first matching subscription
// webhook, or evicted once past its expiry.
type SubscriptionIntent struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	PlanID         string    `gorm:"type:varchar(100);not null;index:idx_intents_user_plan,priority:2" json:"plan_id"`
	TelegramUserID int64     `gorm:"not null;index:idx_intents_user_plan,priority:1" json:"telegram_user_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt      time.Time `gorm:"not null;index" json:"expires_at"`
	Metadata       string    `gorm:"type:longtext" json:"metadata,omitempty"`
}
