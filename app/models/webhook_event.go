package models

import "time"

// WebhookEvent is an audit record of an inbound delivery. It exists for
// operator reconciliation only; duplicate suppression lives in the event
// processor, keyed on entity watermarks, not on this table.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	EventName       string     `gorm:"type:varchar(64);not null;index" json:"event_name"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"not null;default:false;index" json:"signature_valid"`
	Outcome         string     `gorm:"type:varchar(64);default:''" json:"outcome"`
	ProcessingError string     `gorm:"type:text" json:"processing_error,omitempty"`
	ProcessedAt     *time.Time `gorm:"default:null" json:"processed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
