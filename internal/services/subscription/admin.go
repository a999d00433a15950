package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/subscription-service/internal/domain"
	"github.com/kevin07696/subscription-service/internal/domain/models"
	"github.com/kevin07696/subscription-service/internal/domain/ports"
	"github.com/kevin07696/subscription-service/internal/services/lifecycle"
	"github.com/kevin07696/subscription-service/pkg/observability"
)

// Cancel schedules the subscription to end with its paid period. The remote
// subscription stays untouched until the sweep so the cancellation can still
// be resumed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*ports.ActionResult, error) {
	return s.adminAction(ctx, id, lifecycle.Event{Type: lifecycle.EventAdminCancel},
		"Subscription will be cancelled at the end of the billing period")
}

// ForceCancel ends a pending cancellation immediately
func (s *Service) ForceCancel(ctx context.Context, id uuid.UUID) (*ports.ActionResult, error) {
	return s.adminAction(ctx, id, lifecycle.Event{Type: lifecycle.EventAdminForceCancel},
		"Subscription cancelled")
}

// Resume reverses a frontend-initiated pending cancellation. The remote
// status is fetched before any local change so a failed or cancelled
// provider call leaves the record untouched.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*ports.ActionResult, error) {
	sub, err := s.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	remote := ports.RemoteStatusActive
	if sub.Status == models.SubStatusPendingCancellation &&
		sub.CancellationSource == models.CancellationSourceFrontend &&
		sub.IsRemote() {
		remote, err = s.fetchRemoteStatus(ctx, sub)
		if err != nil {
			return nil, err
		}
	}

	return s.adminAction(ctx, id, lifecycle.Event{Type: lifecycle.EventAdminResume, RemoteStatus: remote},
		"Subscription resumed")
}

// Activate restores an expired subscription. A remote subscription the
// provider suspended is reactivated first; if that fails nothing changes
// locally.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*ports.ActionResult, error) {
	sub, err := s.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.Status == models.SubStatusExpired && sub.IsRemote() {
		remote, err := s.fetchRemoteStatus(ctx, sub)
		if err != nil {
			return nil, err
		}
		switch remote {
		case ports.RemoteStatusSuspended:
			if err := s.reactivateRemote(ctx, sub); err != nil {
				return nil, err
			}
		case ports.RemoteStatusCancelled, ports.RemoteStatusExpired:
			return nil, domain.NewCannotError("activate", fmt.Sprintf("remote subscription is %s", remote))
		}
	}

	return s.adminAction(ctx, id, lifecycle.Event{Type: lifecycle.EventAdminActivate},
		"Subscription activated")
}

// Delete physically removes a cancelled or expired subscription
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*ports.ActionResult, error) {
	var deleted *models.Subscription

	unlock := s.locks.Lock(id.String())
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sub, err := s.subRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !sub.IsDeletable() {
			return domain.NewCannotError("delete", fmt.Sprintf("subscription is %s", sub.Status))
		}
		if err := s.subRepo.Delete(ctx, tx, id); err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		deleted = sub
		return nil
	})
	unlock()

	if err != nil {
		if domain.IsTransitionError(err) {
			s.logger.Warn("delete rejected",
				ports.String("subscription_id", id.String()),
				ports.String("reason", domain.Reason(err)))
		}
		return nil, err
	}

	s.logger.Info("subscription deleted",
		ports.String("subscription_id", id.String()),
		ports.String("status", string(deleted.Status)))

	return &ports.ActionResult{Success: true, Message: "Subscription deleted", Subscription: deleted}, nil
}

func (s *Service) adminAction(ctx context.Context, id uuid.UUID, ev lifecycle.Event, message string) (*ports.ActionResult, error) {
	d, sub, err := s.apply(ctx, id, ev, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}

	result := &ports.ActionResult{Success: true, Message: message, Subscription: sub}
	if d.NoOp {
		result.Message = fmt.Sprintf("No change: %s", d.Reason)
		return result, nil
	}

	result.RemoteErr = s.followUp(ctx, d, sub, fmt.Sprintf("admin %s", ev.Type.Action()))
	return result, nil
}

func (s *Service) fetchRemoteStatus(ctx context.Context, sub *models.Subscription) (ports.RemoteStatus, error) {
	gateway, err := s.gatewayFor(sub.PaymentMethod)
	if err != nil {
		return "", err
	}

	ctx, cancel := s.cfg.Timeouts.ProviderContext(ctx)
	defer cancel()

	started := time.Now()
	status, err := gateway.FetchRemoteStatus(ctx, sub.PaymentID)
	observability.ObserveGatewayCall(string(sub.PaymentMethod), "fetch_status", started, err)
	if err != nil {
		s.logger.Error("fetch remote status failed",
			ports.String("subscription_id", sub.ID.String()),
			ports.String("payment_id", sub.PaymentID),
			ports.Err(err))
		return "", fmt.Errorf("fetch remote status: %w", err)
	}
	return status, nil
}

func (s *Service) reactivateRemote(ctx context.Context, sub *models.Subscription) error {
	gateway, err := s.gatewayFor(sub.PaymentMethod)
	if err != nil {
		return err
	}

	ctx, cancel := s.cfg.Timeouts.ProviderContext(ctx)
	defer cancel()

	started := time.Now()
	err = gateway.ReactivateRemote(ctx, sub.PaymentID, "reactivated by administrator")
	observability.ObserveGatewayCall(string(sub.PaymentMethod), "reactivate", started, err)
	if err != nil {
		return fmt.Errorf("reactivate remote subscription: %w", err)
	}
	return nil
}
