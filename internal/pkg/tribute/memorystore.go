package tribute

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ndreyko/tributary/app/models"
)

// MemoryStore is the reference Store implementation: maps guarded by one
// mutex, which also gives it the per-key atomicity the contract demands. It
// backs the core tests; production deployments use the GORM store in
// app/repository.
type MemoryStore struct {
	mu            sync.Mutex
	intents       map[string]models.SubscriptionIntent
	subscriptions map[int64]models.Subscription
	donations     map[int64]models.Donation
	payments      []models.Payment
	nextID        uint
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents:       make(map[string]models.SubscriptionIntent),
		subscriptions: make(map[int64]models.Subscription),
		donations:     make(map[int64]models.Donation),
	}
}

func (s *MemoryStore) SaveIntent(_ context.Context, intent *models.SubscriptionIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[intent.ID] = *intent
	return nil
}

func (s *MemoryStore) ConsumeIntent(_ context.Context, id string) (*models.SubscriptionIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.intents, id)
	return &intent, nil
}

func (s *MemoryStore) FindIntentByUserAndPlan(_ context.Context, telegramUserID int64, planID string, now time.Time) (*models.SubscriptionIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *models.SubscriptionIntent
	for id, intent := range s.intents {
		if intent.ExpiresAt.Before(now) {
			delete(s.intents, id)
			continue
		}
		if intent.TelegramUserID != telegramUserID || intent.PlanID != planID {
			continue
		}
		if best == nil || intent.CreatedAt.After(best.CreatedAt) {
			found := intent
			best = &found
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) DeleteIntent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, id)
	return nil
}

func (s *MemoryStore) SubscriptionByProviderID(_ context.Context, providerSubID int64) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[providerSubID]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) SubscriptionByUserAndPlan(_ context.Context, telegramUserID int64, planID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if sub.TelegramUserID == telegramUserID && sub.PlanID == planID {
			found := sub
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpsertSubscription(_ context.Context, sub *models.Subscription) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *models.Subscription
	if existing, ok := s.subscriptions[sub.ProviderSubscriptionID]; ok {
		prior := existing
		prev = &prior
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		s.nextID++
		sub.ID = s.nextID
	}
	sub.UpdatedAt = time.Now()
	s.subscriptions[sub.ProviderSubscriptionID] = *sub
	return prev, nil
}

func (s *MemoryStore) MarkSubscriptionCancelled(_ context.Context, providerSubID int64, reason string, cancelledAt, lastEventAt time.Time) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[providerSubID]
	if !ok {
		return nil, ErrNotFound
	}
	sub.Status = models.SubscriptionStatusCancelled
	sub.CancelReason = reason
	sub.CancelledAt = &cancelledAt
	if lastEventAt.After(sub.LastEventAt) {
		sub.LastEventAt = lastEventAt
	}
	sub.UpdatedAt = time.Now()
	s.subscriptions[providerSubID] = sub
	return &sub, nil
}

func (s *MemoryStore) DonationByRequestID(_ context.Context, requestID int64) (*models.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) UpsertDonation(_ context.Context, donation *models.Donation) (*models.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *models.Donation
	if existing, ok := s.donations[donation.RequestID]; ok {
		prior := existing
		prev = &prior
		donation.ID = existing.ID
		donation.CreatedAt = existing.CreatedAt
	} else {
		s.nextID++
		donation.ID = s.nextID
	}
	donation.UpdatedAt = time.Now()
	s.donations[donation.RequestID] = *donation
	return prev, nil
}

func (s *MemoryStore) MarkDonationCancelled(_ context.Context, requestID int64, cancelledAt, lastEventAt time.Time) (*models.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	d.Status = models.DonationStatusCancelled
	d.CancelledAt = &cancelledAt
	if lastEventAt.After(d.LastEventAt) {
		d.LastEventAt = lastEventAt
	}
	d.UpdatedAt = time.Now()
	s.donations[requestID] = d
	return &d, nil
}

func (s *MemoryStore) AppendPayment(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	payment.ID = s.nextID
	payment.CreatedAt = time.Now()
	s.payments = append(s.payments, *payment)
	return nil
}

func (s *MemoryStore) ListPayments(_ context.Context, filter PaymentFilter) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		if filter.TelegramUserID != 0 && p.TelegramUserID != filter.TelegramUserID {
			continue
		}
		if filter.Kind != "" && p.Kind != filter.Kind {
			continue
		}
		if !filter.From.IsZero() && p.PaidAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && p.PaidAt.After(filter.To) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.After(out[j].PaidAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
