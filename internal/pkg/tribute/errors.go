package tribute

import (
	"errors"
	"fmt"
)

// Sentinel errors. Controllers map ErrSignature to 401 and everything else
// that escapes the processor to 400; duplicates are nil results, not errors.
var (
	// ErrSignature means the delivery failed signature verification and no
	// state was touched.
	ErrSignature = errors.New("tribute: invalid webhook signature")

	// ErrConfiguration marks a caller setup problem (missing secret, empty
	// plan catalog, bad TTL/encoding/allow-list), never a verification or
	// processing outcome.
	ErrConfiguration = errors.New("tribute: invalid configuration")

	// ErrPayload marks a delivery whose body could not be decoded or is
	// missing required fields.
	ErrPayload = errors.New("tribute: malformed webhook payload")

	// ErrNotFound is the store contract's not-found sentinel. Persistent
	// implementations translate their driver's miss (for GORM,
	// gorm.ErrRecordNotFound) into this value.
	ErrNotFound = errors.New("tribute: not found")
)

// PlanNotFoundError reports a payload that matches no configured plan. Ref is
// the best identifying field the payload carried.
type PlanNotFoundError struct {
	Ref string
}

func (e *PlanNotFoundError) Error() string {
	return fmt.Sprintf("tribute: no configured plan matches payload (%s)", e.Ref)
}

// IntentNotFoundError reports a first-time subscription activation with no
// matching reservation. The provider will redeliver; without an intent the
// event needs manual reconciliation.
type IntentNotFoundError struct {
	SubscriptionID int64
	TelegramUserID int64
	PlanID         string
}

func (e *IntentNotFoundError) Error() string {
	return fmt.Sprintf("tribute: no intent for subscription %d (user %d, plan %q)",
		e.SubscriptionID, e.TelegramUserID, e.PlanID)
}

// SubscriptionNotFoundError reports a cancellation for a provider
// subscription id that was never created locally.
type SubscriptionNotFoundError struct {
	SubscriptionID int64
}

func (e *SubscriptionNotFoundError) Error() string {
	return fmt.Sprintf("tribute: subscription %d not found", e.SubscriptionID)
}

// DonationNotFoundError reports a cancellation for a donation request id that
// was never created locally.
type DonationNotFoundError struct {
	RequestID int64
}

func (e *DonationNotFoundError) Error() string {
	return fmt.Sprintf("tribute: donation %d not found", e.RequestID)
}
