package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/AppHub/internal/domain"
	"github.com/Strob0t/AppHub/internal/domain/account"
	"github.com/Strob0t/AppHub/internal/port/cache"
	"github.com/Strob0t/AppHub/internal/port/database"
	"github.com/Strob0t/AppHub/internal/port/messagequeue"
	"github.com/Strob0t/AppHub/internal/port/subscription"
)

// loadingCache is a cache that coalesces concurrent misses for one key.
type loadingCache interface {
	cache.Cache
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// SubscriptionService resolves the upstream tenants an account follows.
// Results are cached for a short TTL and dropped on subscriptions.changed.
type SubscriptionService struct {
	store      database.Store
	cache      loadingCache
	ttl        time.Duration
	reconciler *ReconcileService
}

var (
	_ subscription.Resolver    = (*SubscriptionService)(nil)
	_ subscription.Invalidator = (*SubscriptionService)(nil)
)

// NewSubscriptionService creates a SubscriptionService. A nil cache reads
// through to the store on every call.
func NewSubscriptionService(store database.Store, c loadingCache, ttl time.Duration) *SubscriptionService {
	return &SubscriptionService{store: store, cache: c, ttl: ttl}
}

// SetReconciler enables proactive reconciliation when subscriptions change.
func (s *SubscriptionService) SetReconciler(r *ReconcileService) {
	s.reconciler = r
}

func subscriptionKey(accountID string) string {
	return cache.Key("subs", accountID)
}

// SubscribedTenantIDs returns the tenant ids accountID subscribes to.
func (s *SubscriptionService) SubscribedTenantIDs(ctx context.Context, accountID string) ([]string, error) {
	if s.cache == nil {
		return s.store.ListSubscribedTenantIDs(ctx, accountID)
	}

	data, err := s.cache.GetOrLoad(ctx, subscriptionKey(accountID), s.ttl, func(ctx context.Context) ([]byte, error) {
		ids, err := s.store.ListSubscribedTenantIDs(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ids)
	})
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode cached subscriptions for %s: %w", accountID, err)
	}
	return ids, nil
}

// Invalidate drops the cached subscription set of accountID.
func (s *SubscriptionService) Invalidate(ctx context.Context, accountID string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, subscriptionKey(accountID)); err != nil {
		return fmt.Errorf("invalidate subscriptions for %s: %w", accountID, err)
	}
	return nil
}

// StartConsumer subscribes to subscriptions.changed. The returned function
// stops the consumer.
func (s *SubscriptionService) StartConsumer(ctx context.Context, q messagequeue.Queue) (func(), error) {
	return q.Subscribe(ctx, messagequeue.SubjectSubscriptionsChanged, s.HandleSubscriptionsChanged)
}

// HandleSubscriptionsChanged invalidates the account's cached subscriptions
// and reconciles its current tenant when the account uses the normal role.
// Unknown accounts are acknowledged and ignored.
func (s *SubscriptionService) HandleSubscriptionsChanged(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.SubscriptionsChangedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode subscriptions.changed: %w", err)
	}

	if err := s.Invalidate(ctx, p.AccountID); err != nil {
		return err
	}
	if s.reconciler == nil {
		return nil
	}

	acct, err := s.store.GetAccount(ctx, p.AccountID)
	if errors.Is(err, domain.ErrNotFound) {
		slog.InfoContext(ctx, "subscriptions changed for unknown account", "account_id", p.AccountID)
		return nil
	}
	if err != nil {
		return err
	}
	if acct.Role != account.RoleNormal || acct.CurrentTenantID == "" {
		return nil
	}

	subs, err := s.SubscribedTenantIDs(ctx, acct.ID)
	if err != nil {
		return err
	}
	_, err = s.reconciler.Reconcile(ctx, acct.CurrentTenantID, subs)
	return err
}
