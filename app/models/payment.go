package models

import "time"

const (
	PaymentKindSubscription = "subscription"
	PaymentKindDonation     = "donation"
)

// Payment is an append-only ledger entry: one row per accepted webhook that
// represents a monetary transaction. Rows are never updated or deleted.
// RefID links to the provider subscription id or donation request id,
// depending on Kind. PaidAt carries the event's origination time, not the
// delivery time.
type Payment struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Kind           string    `gorm:"type:varchar(16);not null;index:idx_payments_kind_paid,priority:1" json:"kind"`
	RefID          int64     `gorm:"not null;index" json:"ref_id"`
	PlanID         string    `gorm:"type:varchar(100);default:''" json:"plan_id,omitempty"`
	TelegramUserID int64     `gorm:"not null;index:idx_payments_user_paid,priority:1" json:"telegram_user_id"`
	UserID         *uint     `gorm:"default:null" json:"user_id,omitempty"`
	Amount         int64     `gorm:"not null" json:"amount"`
	Currency       string    `gorm:"type:varchar(10);not null" json:"currency"`
	PaidAt         time.Time `gorm:"not null;index:idx_payments_user_paid,priority:2;index:idx_payments_kind_paid,priority:2" json:"paid_at"`
	Payload        string    `gorm:"type:longtext" json:"payload,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
