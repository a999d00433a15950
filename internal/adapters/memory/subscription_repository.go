package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
)

// SubscriptionRepository keeps subscriptions in a map and enforces the
// (payment_method, payment_id) uniqueness the database index provides.
// Records are copied on the way in and out.
type SubscriptionRepository struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*models.Subscription
	byPayment map[string]uuid.UUID
}

// NewSubscriptionRepository creates an empty repository
func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{
		byID:      make(map[uuid.UUID]*models.Subscription),
		byPayment: make(map[string]uuid.UUID),
	}
}

func paymentKey(method models.PaymentMethod, paymentID string) string {
	return string(method) + ":" + paymentID
}

func (r *SubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[sub.ID]; ok {
		return fmt.Errorf("subscription %s: %w", sub.ID, domain.ErrSubscriptionDuplicate)
	}
	if sub.PaymentID != "" {
		key := paymentKey(sub.PaymentMethod, sub.PaymentID)
		if _, ok := r.byPayment[key]; ok {
			return fmt.Errorf("payment id %s: %w", sub.PaymentID, domain.ErrSubscriptionDuplicate)
		}
		r.byPayment[key] = sub.ID
	}
	r.byID[sub.ID] = sub.Clone()
	return nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", id, domain.ErrSubscriptionNotFound)
	}
	return sub.Clone(), nil
}

func (r *SubscriptionRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*models.Subscription, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *SubscriptionRepository) GetByPaymentID(ctx context.Context, db ports.DBTX, method models.PaymentMethod, paymentID string) (*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPayment[paymentKey(method, paymentID)]
	if !ok {
		return nil, fmt.Errorf("payment id %s: %w", paymentID, domain.ErrSubscriptionNotFound)
	}
	return r.byID[id].Clone(), nil
}

func (r *SubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[sub.ID]; !ok {
		return fmt.Errorf("subscription %s: %w", sub.ID, domain.ErrSubscriptionNotFound)
	}
	r.byID[sub.ID] = sub.Clone()
	return nil
}

func (r *SubscriptionRepository) Delete(ctx context.Context, tx ports.DBTX, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("subscription %s: %w", id, domain.ErrSubscriptionNotFound)
	}
	delete(r.byPayment, paymentKey(sub.PaymentMethod, sub.PaymentID))
	delete(r.byID, id)
	return nil
}

func (r *SubscriptionRepository) CountByStatus(ctx context.Context, db ports.DBTX) (map[models.SubscriptionStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[models.SubscriptionStatus]int64, len(models.AllStatuses))
	for _, sub := range r.byID {
		counts[sub.Status]++
	}
	return counts, nil
}

func (r *SubscriptionRepository) ListSweepCandidates(ctx context.Context, db ports.DBTX, asOf time.Time, limit int) ([]*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Subscription
	for _, sub := range r.byID {
		if sweepDue(sub, asOf) {
			out = append(out, sub.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sweepDue mirrors the candidate query of the postgres store
func sweepDue(sub *models.Subscription, asOf time.Time) bool {
	switch sub.Status {
	case models.SubStatusExpired:
		return sub.GracePeriodEnd != nil && !sub.GracePeriodEnd.After(asOf)
	case models.SubStatusPendingCancellation:
		end := sub.NextBillingDate
		if end == nil {
			end = sub.EndDate
		}
		return end != nil && !end.After(asOf)
	}
	return false
}

var _ ports.SubscriptionRepository = (*SubscriptionRepository)(nil)
