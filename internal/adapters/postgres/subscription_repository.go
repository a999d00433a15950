package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
)

const subscriptionColumns = `
	id, user_id, application_id, plan_id, external_plan_id,
	payment_method, payment_id, status, cancellation_source, payment_status, retry_count,
	retry_period_end, grace_period_end, next_billing_date,
	start_date, end_date, last_payment_date, last_failed_payment_date,
	amount, tax_amount, total_amount, currency, billing_frequency,
	customer_data, created_at, updated_at`

// SubscriptionRepository implements ports.SubscriptionRepository with pgx
type SubscriptionRepository struct {
	db ports.DBPort
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db ports.DBPort) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// q returns tx when given, else the pool
func (r *SubscriptionRepository) q(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.Executor()
}

// Create inserts a new subscription
func (r *SubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	amount, err := decimalToNumeric(sub.Amount)
	if err != nil {
		return err
	}
	tax, err := decimalToNumeric(sub.TaxAmount)
	if err != nil {
		return err
	}
	total, err := decimalToNumeric(sub.TotalAmount)
	if err != nil {
		return err
	}
	customer, err := json.Marshal(sub.CustomerData)
	if err != nil {
		return fmt.Errorf("marshal customer data: %w", err)
	}

	_, err = r.q(tx).Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		sub.ID, sub.UserID, sub.ApplicationID, sub.PlanID, sub.ExternalPlanID,
		string(sub.PaymentMethod), sub.PaymentID, string(sub.Status), string(sub.CancellationSource),
		string(sub.PaymentStatus), sub.RetryCount,
		sub.RetryPeriodEnd, sub.GracePeriodEnd, sub.NextBillingDate,
		sub.StartDate, sub.EndDate, sub.LastPaymentDate, sub.LastFailedPaymentDate,
		amount, tax, total, sub.Currency, string(sub.BillingFrequency),
		customer, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment id %s: %w", sub.PaymentID, domain.ErrSubscriptionDuplicate)
		}
		return domain.WrapError(domain.ErrorCodeDatabaseError, "create subscription", err)
	}
	return nil
}

// GetByID retrieves a subscription by its ID
func (r *SubscriptionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.Subscription, error) {
	row := r.q(db).QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	return r.scanOne(row, id.String())
}

// GetByIDForUpdate retrieves a subscription and locks its row until tx ends
func (r *SubscriptionRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id uuid.UUID) (*models.Subscription, error) {
	row := r.q(tx).QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id)
	return r.scanOne(row, id.String())
}

// GetByPaymentID retrieves a subscription by its provider-side identifier
func (r *SubscriptionRepository) GetByPaymentID(ctx context.Context, db ports.DBTX, method models.PaymentMethod, paymentID string) (*models.Subscription, error) {
	row := r.q(db).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE payment_method = $1 AND payment_id = $2`,
		string(method), paymentID)
	return r.scanOne(row, paymentID)
}

// Update persists every mutable lifecycle field. The monetary snapshot is
// never rewritten.
func (r *SubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	tag, err := r.q(tx).Exec(ctx, `
		UPDATE subscriptions SET
			status = $2,
			cancellation_source = $3,
			payment_status = $4,
			retry_count = $5,
			retry_period_end = $6,
			grace_period_end = $7,
			next_billing_date = $8,
			end_date = $9,
			last_payment_date = $10,
			last_failed_payment_date = $11,
			updated_at = $12
		WHERE id = $1`,
		sub.ID, string(sub.Status), string(sub.CancellationSource), string(sub.PaymentStatus), sub.RetryCount,
		sub.RetryPeriodEnd, sub.GracePeriodEnd, sub.NextBillingDate,
		sub.EndDate, sub.LastPaymentDate, sub.LastFailedPaymentDate, sub.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "update subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s: %w", sub.ID, domain.ErrSubscriptionNotFound)
	}
	return nil
}

// Delete physically removes a subscription
func (r *SubscriptionRepository) Delete(ctx context.Context, tx ports.DBTX, id uuid.UUID) error {
	tag, err := r.q(tx).Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "delete subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s: %w", id, domain.ErrSubscriptionNotFound)
	}
	return nil
}

// CountByStatus aggregates subscription counts per status
func (r *SubscriptionRepository) CountByStatus(ctx context.Context, db ports.DBTX) (map[models.SubscriptionStatus]int64, error) {
	rows, err := r.q(db).Query(ctx, `SELECT status, COUNT(*) FROM subscriptions GROUP BY status`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "count subscriptions", err)
	}
	defer rows.Close()

	counts := make(map[models.SubscriptionStatus]int64, len(models.AllStatuses))
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.SubscriptionStatus(status)] = n
	}
	return counts, rows.Err()
}

// ListSweepCandidates lists expired subscriptions whose grace period ended
// and pending cancellations whose paid period ended, oldest update first
func (r *SubscriptionRepository) ListSweepCandidates(ctx context.Context, db ports.DBTX, asOf time.Time, limit int) ([]*models.Subscription, error) {
	rows, err := r.q(db).Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE (status = 'expired' AND grace_period_end IS NOT NULL AND grace_period_end <= $1)
		   OR (status = 'pending_cancellation' AND COALESCE(next_billing_date, end_date) <= $1)
		ORDER BY updated_at
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list sweep candidates", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepository) scanOne(row pgx.Row, key string) (*models.Subscription, error) {
	sub, err := scanSubscription(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("subscription %s: %w", key, domain.ErrSubscriptionNotFound)
		}
		return nil, err
	}
	return sub, nil
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var (
		sub                               models.Subscription
		method, status, source, payStatus string
		frequency                         string
		amount, tax, total                pgtype.Numeric
		customer                          []byte
	)

	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ApplicationID, &sub.PlanID, &sub.ExternalPlanID,
		&method, &sub.PaymentID, &status, &source, &payStatus, &sub.RetryCount,
		&sub.RetryPeriodEnd, &sub.GracePeriodEnd, &sub.NextBillingDate,
		&sub.StartDate, &sub.EndDate, &sub.LastPaymentDate, &sub.LastFailedPaymentDate,
		&amount, &tax, &total, &sub.Currency, &frequency,
		&customer, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan subscription", err)
	}

	sub.PaymentMethod = models.PaymentMethod(method)
	sub.Status = models.SubscriptionStatus(status)
	sub.CancellationSource = models.CancellationSource(source)
	sub.PaymentStatus = models.PaymentStatus(payStatus)
	sub.BillingFrequency = models.BillingFrequency(frequency)

	if sub.Amount, err = pgNumericToDecimal(amount); err != nil {
		return nil, err
	}
	if sub.TaxAmount, err = pgNumericToDecimal(tax); err != nil {
		return nil, err
	}
	if sub.TotalAmount, err = pgNumericToDecimal(total); err != nil {
		return nil, err
	}
	if len(customer) > 0 {
		if err := json.Unmarshal(customer, &sub.CustomerData); err != nil {
			return nil, fmt.Errorf("unmarshal customer data: %w", err)
		}
	}

	return &sub, nil
}

var _ ports.SubscriptionRepository = (*SubscriptionRepository)(nil)
