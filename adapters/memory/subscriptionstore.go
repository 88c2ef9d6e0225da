package memory

import (
	"context"
	"sync"

	"github.com/artpar/metergate/domain/subscription"
	"github.com/artpar/metergate/ports"
)

// SubscriptionStore is an in-memory implementation of ports.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]subscription.Subscription

	// FailWith, when set, makes every operation return this error.
	FailWith error
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		subs: make(map[string]subscription.Subscription),
	}
}

// Get retrieves the subscription for a user.
func (s *SubscriptionStore) Get(ctx context.Context, userID string) (subscription.Subscription, error) {
	if s.FailWith != nil {
		return subscription.Subscription{}, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[userID]
	if !ok {
		return subscription.Subscription{}, ports.ErrNotFound
	}
	return sub, nil
}

// Upsert creates or replaces a user's subscription.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub subscription.Subscription) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs[sub.UserID] = sub
	return nil
}

// Ensure interface compliance.
var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)
