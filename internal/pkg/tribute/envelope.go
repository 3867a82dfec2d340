package tribute

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventName identifies a Tribute webhook event type.
type EventName string

const (
	EventNewSubscription       EventName = "new_subscription"
	EventCancelledSubscription EventName = "cancelled_subscription"
	EventNewDonation           EventName = "new_donation"
	EventRecurrentDonation     EventName = "recurrent_donation"
	EventCancelledDonation     EventName = "cancelled_donation"
)

// AllEvents lists every event name the processor understands, in dispatch
// order. Names outside this set are dropped, not rejected, so the provider
// can add event types without breaking older integrations.
var AllEvents = []EventName{
	EventNewSubscription,
	EventCancelledSubscription,
	EventNewDonation,
	EventRecurrentDonation,
	EventCancelledDonation,
}

// Envelope is the outer webhook shape: {name, created_at, sent_at, payload}.
// CreatedAt is the origination time and becomes the ledger timestamp. SentAt
// is the delivery attempt time; redelivered copies of the same logical event
// keep their CreatedAt but carry a later SentAt.
type Envelope struct {
	Name      EventName       `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// OrderingTime returns the watermark compared against stored LastEventAt:
// SentAt when present, else CreatedAt.
func (e *Envelope) OrderingTime() time.Time {
	if e.SentAt != nil && !e.SentAt.IsZero() {
		return *e.SentAt
	}
	return e.CreatedAt
}

// EventPayload is the union of fields Tribute sends across the five event
// types. Handlers pick the fields relevant to them.
type EventPayload struct {
	SubscriptionID    int64      `json:"subscription_id,omitempty"`
	PeriodID          int64      `json:"period_id,omitempty"`
	Period            string     `json:"period,omitempty"`
	Price             int64      `json:"price,omitempty"`
	Amount            int64      `json:"amount,omitempty"`
	Currency          string     `json:"currency,omitempty"`
	TelegramUserID    int64      `json:"telegram_user_id,omitempty"`
	IntentID          string     `json:"intent_id,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	CancelReason      string     `json:"cancel_reason,omitempty"`
	DonationRequestID int64      `json:"donation_request_id,omitempty"`
	DonationName      string     `json:"donation_name,omitempty"`
	Anonymously       bool       `json:"anonymously,omitempty"`
	Message           string     `json:"message,omitempty"`
	WebAppLink        string     `json:"web_app_link,omitempty"`
}

// ParseEnvelope decodes the outer webhook JSON.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrPayload, err)
	}
	if env.Name == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrPayload)
	}
	if env.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing created_at", ErrPayload)
	}
	return &env, nil
}

// DecodePayload decodes the event-specific payload object.
func (e *Envelope) DecodePayload() (*EventPayload, error) {
	var p EventPayload
	if len(e.Payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrPayload)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: decode %s payload: %v", ErrPayload, e.Name, err)
	}
	return &p, nil
}
