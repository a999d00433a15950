package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/internal/services/lifecycle"
	"github.com/kevin07696/subscription-service/pkg/observability"
)

// SweepExpired cancels expired subscriptions whose grace period ended and
// pending cancellations whose paid period ended, as of now. Each candidate
// goes through the state machine under its own lock, so the sweep is safe to
// run concurrently with webhooks and from several hosts.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	candidates, err := s.subRepo.ListSweepCandidates(ctx, s.db.Executor(), now, s.cfg.SweepBatchSize)
	if err != nil {
		observability.RecordSweepRun("error")
		return nil, fmt.Errorf("list sweep candidates: %w", err)
	}

	var (
		cancelled []uuid.UUID
		errs      []error
	)
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		d, sub, err := s.apply(ctx, candidate.ID, lifecycle.Event{Type: lifecycle.EventGracePeriodSweep}, now)
		if err != nil {
			s.logger.Error("sweep failed for subscription",
				ports.String("subscription_id", candidate.ID.String()),
				ports.Err(err))
			errs = append(errs, fmt.Errorf("sweep %s: %w", candidate.ID, err))
			continue
		}
		if d.Next == nil {
			continue
		}

		_ = s.followUp(ctx, d, sub, "billing period ended")
		cancelled = append(cancelled, candidate.ID)
	}

	result := "success"
	if len(errs) > 0 {
		result = "partial"
	}
	observability.RecordSweepRun(result)

	s.logger.Info("sweep completed",
		ports.Time("as_of", now),
		ports.Int("candidates", len(candidates)),
		ports.Int("cancelled", len(cancelled)),
		ports.Int("failed", len(errs)))

	return cancelled, errors.Join(errs...)
}
