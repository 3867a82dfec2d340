package tribute

import (
	"context"
	"sync"

	"github.com/ndreyko/tributary/app/models"
)

// Category groups results by lifecycle.
type Category string

const (
	CategorySubscription Category = "subscription"
	CategoryDonation     Category = "donation"
)

// ResultType names the transition a result describes.
type ResultType string

const (
	ResultCreated   ResultType = "created"
	ResultRenewed   ResultType = "renewed"
	ResultRecurrent ResultType = "recurrent"
	ResultCancelled ResultType = "cancelled"
)

// IntentStatus reports how the reservation was resolved on a first
// activation.
type IntentStatus string

const (
	IntentMatched IntentStatus = "matched"
	IntentExpired IntentStatus = "expired"
)

// CancelSource distinguishes operator-driven cancellations from
// provider-driven ones; webhook cancellations leave it empty.
type CancelSource string

const CancelSourceManual CancelSource = "manual"

// Result describes one accepted state transition. Handlers that suppress a
// duplicate or a disabled event return no result at all.
type Result struct {
	Category             Category             `json:"category"`
	Type                 ResultType           `json:"type"`
	Subscription         *models.Subscription `json:"subscription,omitempty"`
	PreviousSubscription *models.Subscription `json:"previous_subscription,omitempty"`
	Donation             *models.Donation     `json:"donation,omitempty"`
	Payment              *models.Payment      `json:"payment,omitempty"`
	IntentStatus         IntentStatus         `json:"intent_status,omitempty"`
	CancelSource         CancelSource         `json:"cancel_source,omitempty"`
}

// Key returns the listener key for the result, e.g. "subscription.created".
func (r *Result) Key() string {
	return string(r.Category) + "." + string(r.Type)
}

// Listener receives results synchronously after the store write commits.
type Listener func(*Result)

// ListenAll is the wildcard key matching every result.
const ListenAll = "*"

// listenerRegistry fans results out to local listeners: first the specific
// key ("subscription.created"), then the category wildcard
// ("subscription.*"), then the global wildcard ("*"). The order is part of
// the contract; listeners rely on it to dedupe cross-cutting logging.
type listenerRegistry struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{listeners: make(map[string][]Listener)}
}

func (lr *listenerRegistry) on(key string, fn Listener) {
	if fn == nil {
		return
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.listeners[key] = append(lr.listeners[key], fn)
}

func (lr *listenerRegistry) notify(res *Result) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	for _, key := range []string{res.Key(), string(res.Category) + ".*", ListenAll} {
		for _, fn := range lr.listeners[key] {
			fn(res)
		}
	}
}

// Publisher forwards results to an external event sink. It is invoked
// strictly after the store write and the local listeners, so local consumers
// never observe state the sink will not eventually receive.
type Publisher interface {
	Publish(ctx context.Context, res *Result) error
}

// PublishFailureMode selects what a publisher error does to the webhook
// call. Store writes are never rolled back either way: the provider
// redelivers on non-success and the duplicate guards make replays idempotent.
type PublishFailureMode string

const (
	// PublishFailureFail re-raises the publisher error out of the webhook
	// call (default).
	PublishFailureFail PublishFailureMode = "fail"
	// PublishFailureLog records the error and treats the sink as
	// best-effort.
	PublishFailureLog PublishFailureMode = "log"
)
