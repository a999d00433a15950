package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
)

// DeliveryRepository is a map-backed provisioning outbox
type DeliveryRepository struct {
	mu         sync.Mutex
	deliveries map[uuid.UUID]models.ProvisioningDelivery
}

// NewDeliveryRepository creates an empty outbox
func NewDeliveryRepository() *DeliveryRepository {
	return &DeliveryRepository{deliveries: make(map[uuid.UUID]models.ProvisioningDelivery)}
}

func (r *DeliveryRepository) Create(ctx context.Context, db ports.DBTX, d *models.ProvisioningDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if _, ok := r.deliveries[d.ID]; ok {
		return fmt.Errorf("delivery %s already exists", d.ID)
	}
	r.deliveries[d.ID] = *d
	return nil
}

func (r *DeliveryRepository) Update(ctx context.Context, db ports.DBTX, d *models.ProvisioningDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.deliveries[d.ID]; !ok {
		return fmt.Errorf("delivery %s not found", d.ID)
	}
	r.deliveries[d.ID] = *d
	return nil
}

func (r *DeliveryRepository) ListDue(ctx context.Context, db ports.DBTX, asOf time.Time, limit int) ([]*models.ProvisioningDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.ProvisioningDelivery
	for _, d := range r.deliveries {
		if d.Status != models.DeliveryPending {
			continue
		}
		if d.NextRetryAt != nil && d.NextRetryAt.After(asOf) {
			continue
		}
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns a snapshot of every delivery
func (r *DeliveryRepository) All() []models.ProvisioningDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ProvisioningDelivery, 0, len(r.deliveries))
	for _, d := range r.deliveries {
		out = append(out, d)
	}
	return out
}

var _ ports.ProvisioningDeliveryRepository = (*DeliveryRepository)(nil)
