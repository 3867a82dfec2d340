package tribute

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Plan is an immutable catalog entry declared before the first payment
// arrives. The provider-side fields are optional: when set they narrow which
// payloads the plan matches, when unset they act as wildcards.
type Plan struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Period   string `json:"period"`
	Link     string `json:"link"`

	ProviderSubscriptionID int64 `json:"provider_subscription_id,omitempty"`
	ProviderPeriodID       int64 `json:"provider_period_id,omitempty"`
	ProviderPrice          int64 `json:"provider_price,omitempty"`
}

// PlanRegistry holds the configured plan catalog. It is built once and
// read-only afterwards.
type PlanRegistry struct {
	plans []Plan
	byID  map[string]*Plan
}

// NewPlanRegistry validates the catalog and builds the registry. An empty
// catalog or a duplicate plan id is a configuration error.
func NewPlanRegistry(plans []Plan) (*PlanRegistry, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: empty plan catalog", ErrConfiguration)
	}
	r := &PlanRegistry{
		plans: make([]Plan, len(plans)),
		byID:  make(map[string]*Plan, len(plans)),
	}
	copy(r.plans, plans)
	for i := range r.plans {
		p := &r.plans[i]
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("%w: plan #%d has no id", ErrConfiguration, i)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plan id %q", ErrConfiguration, p.ID)
		}
		r.byID[p.ID] = p
	}
	return r, nil
}

// ParsePlans decodes an inline JSON plan catalog.
func ParsePlans(raw string) ([]Plan, error) {
	var plans []Plan
	if err := json.Unmarshal([]byte(raw), &plans); err != nil {
		return nil, fmt.Errorf("%w: decode plan catalog: %v", ErrConfiguration, err)
	}
	return plans, nil
}

// LoadPlansFile reads a JSON plan catalog from disk.
func LoadPlansFile(path string) ([]Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read plan catalog %s: %v", ErrConfiguration, path, err)
	}
	return ParsePlans(string(raw))
}

// ByID returns the plan with the given id.
func (r *PlanRegistry) ByID(id string) (*Plan, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Plans returns a copy of the catalog.
func (r *PlanRegistry) Plans() []Plan {
	out := make([]Plan, len(r.plans))
	copy(out, r.plans)
	return out
}

// Resolve finds the first plan matching the payload. The provider assigns
// subscription ids externally, so matching works on whatever optional fields
// the plan declares; first match wins.
func (r *PlanRegistry) Resolve(p *EventPayload) (*Plan, error) {
	for i := range r.plans {
		if r.plans[i].matches(p) {
			return &r.plans[i], nil
		}
	}
	return nil, &PlanNotFoundError{Ref: payloadRef(p)}
}

func (pl *Plan) matches(p *EventPayload) bool {
	if pl.ProviderSubscriptionID != 0 && pl.ProviderSubscriptionID != p.SubscriptionID {
		return false
	}
	if pl.ProviderPeriodID != 0 && pl.ProviderPeriodID != p.PeriodID {
		return false
	}
	if pl.ProviderPrice != 0 && p.Price != 0 && pl.ProviderPrice != p.Price {
		return false
	}
	if pl.Currency != "" && p.Currency != "" && !strings.EqualFold(pl.Currency, p.Currency) {
		return false
	}
	if pl.Period != "" && p.Period != "" && pl.Period != p.Period {
		return false
	}
	// The payload's amount is authoritative; price stands in when absent.
	amount := p.Amount
	if amount == 0 {
		amount = p.Price
	}
	if pl.Amount != 0 && amount != 0 && pl.Amount != amount {
		return false
	}
	return true
}

// payloadRef picks the most identifying field available for error reporting.
func payloadRef(p *EventPayload) string {
	switch {
	case p.SubscriptionID != 0:
		return fmt.Sprintf("subscription_id=%d", p.SubscriptionID)
	case p.PeriodID != 0:
		return fmt.Sprintf("period_id=%d", p.PeriodID)
	case p.Amount != 0 || p.Price != 0:
		amount := p.Amount
		if amount == 0 {
			amount = p.Price
		}
		return fmt.Sprintf("amount=%d %s", amount, p.Currency)
	default:
		return "no identifying fields"
	}
}
