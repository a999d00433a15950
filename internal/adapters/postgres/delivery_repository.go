package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
)

// DeliveryRepository is the provisioning outbox table
type DeliveryRepository struct {
	db ports.DBPort
}

// NewDeliveryRepository creates a delivery repository
func NewDeliveryRepository(db ports.DBPort) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) q(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.Executor()
}

// Create inserts a delivery, assigning an id when unset
func (r *DeliveryRepository) Create(ctx context.Context, db ports.DBTX, d *models.ProvisioningDelivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.q(db).Exec(ctx, `
		INSERT INTO provisioning_deliveries
			(id, subscription_id, action, payload, status, attempts, last_error,
			 next_retry_at, delivered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.SubscriptionID, string(d.Action), d.Payload, string(d.Status), d.Attempts, d.LastError,
		d.NextRetryAt, d.DeliveredAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "create provisioning delivery", err)
	}
	return nil
}

// Update records the outcome of a delivery attempt
func (r *DeliveryRepository) Update(ctx context.Context, db ports.DBTX, d *models.ProvisioningDelivery) error {
	tag, err := r.q(db).Exec(ctx, `
		UPDATE provisioning_deliveries SET
			status = $2,
			attempts = $3,
			last_error = $4,
			next_retry_at = $5,
			delivered_at = $6,
			updated_at = $7
		WHERE id = $1`,
		d.ID, string(d.Status), d.Attempts, d.LastError, d.NextRetryAt, d.DeliveredAt, d.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "update provisioning delivery", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("provisioning delivery %s not found", d.ID)
	}
	return nil
}

// ListDue lists pending deliveries whose retry time has come, oldest first.
// Rows are locked with SKIP LOCKED so concurrent retry runs split the work.
func (r *DeliveryRepository) ListDue(ctx context.Context, db ports.DBTX, asOf time.Time, limit int) ([]*models.ProvisioningDelivery, error) {
	rows, err := r.q(db).Query(ctx, `
		SELECT id, subscription_id, action, payload, status, attempts, last_error,
		       next_retry_at, delivered_at, created_at, updated_at
		FROM provisioning_deliveries
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, asOf, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list due deliveries", err)
	}
	defer rows.Close()

	var out []*models.ProvisioningDelivery
	for rows.Next() {
		var (
			d              models.ProvisioningDelivery
			action, status string
		)
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &action, &d.Payload, &status, &d.Attempts, &d.LastError,
			&d.NextRetryAt, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan provisioning delivery: %w", err)
		}
		d.Action = models.ProvisioningAction(action)
		d.Status = models.DeliveryStatus(status)
		out = append(out, &d)
	}
	return out, rows.Err()
}

var _ ports.ProvisioningDeliveryRepository = (*DeliveryRepository)(nil)
