package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/metrics"
	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

func (o *Orchestrator) lockPayment(ctx context.Context, id string) (func(), error) {
	return o.acquire(ctx, "payment:"+id)
}

// lockAccount must only be called while holding the payment lock.
func (o *Orchestrator) lockAccount(ctx context.Context, id string) (func(), error) {
	return o.acquire(ctx, "account:"+id)
}

func (o *Orchestrator) acquire(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, o.lockTimeout)
	defer cancel()
	release, err := o.locker.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	return release, nil
}

// transition moves req to next and persists it, conditional on the status
// it was loaded with. req is left unchanged when the write fails.
func (o *Orchestrator) transition(ctx context.Context, req *models.PaymentRequest, next models.PaymentState) error {
	from, prevState, prevUpdated := req.Status(), req.State, req.UpdatedAt
	if err := req.TransitionTo(next, o.now()); err != nil {
		return err
	}
	if err := o.repo.Update(ctx, req, from); err != nil {
		req.State, req.UpdatedAt = prevState, prevUpdated
		return fmt.Errorf("save payment %s: %w", req.ID, err)
	}
	o.publishTransition(req, from)
	return nil
}

// fail appends the matching ledger row, then moves req to FAILED.
func (o *Orchestrator) fail(ctx context.Context, req *models.PaymentRequest, status models.AttemptStatus, reason, details string, acct *models.Account, meta models.RequestMeta) (*models.PaymentAttempt, error) {
	if !models.CanTransition(req.Status(), models.StatusFailed) {
		return nil, fmt.Errorf("%w: %s to %s", models.ErrInvalidState, req.Status(), models.StatusFailed)
	}
	attempt := models.NewAttempt(req, status, o.now(), meta).WithAccount(acct).WithError(reason, details)
	if err := o.record(ctx, attempt); err != nil {
		return nil, err
	}
	if err := o.transition(ctx, req, models.Failed{Reason: reason, Details: details}); err != nil {
		return nil, err
	}
	return attempt, nil
}

// applyExpiry records a failed_expired attempt for an overdue request and
// moves it to its expiry state. It reports whether it did so.
func (o *Orchestrator) applyExpiry(ctx context.Context, req *models.PaymentRequest, meta models.RequestMeta) (bool, error) {
	if !req.IsExpired(o.now()) {
		return false, nil
	}

	next := req.ExpiryState()
	reason := "payment request expired"
	if f, ok := next.(models.Failed); ok {
		reason = f.Reason
	}
	attempt := models.NewAttempt(req, models.AttemptFailedExpired, o.now(), meta).
		WithError(reason, fmt.Sprintf("expired at %s", req.ExpiresAt.Format(time.RFC3339)))
	if err := o.record(ctx, attempt); err != nil {
		return false, err
	}
	if err := o.transition(ctx, req, next); err != nil {
		return false, err
	}
	return true, nil
}

// record appends to the ledger and publishes the row. The append is durable
// before record returns; publishing is best effort.
func (o *Orchestrator) record(ctx context.Context, attempt *models.PaymentAttempt) error {
	if err := o.ledger.Append(ctx, attempt); err != nil {
		telemetry.Logger.Error("Failed to append payment attempt",
			zap.String("payment_id", attempt.PaymentRequestID),
			zap.String("attempt_status", string(attempt.Status)),
			zap.Error(err),
		)
		return err
	}

	row := *attempt
	o.dispatcher.Dispatch("publish_attempt", func(ctx context.Context) error {
		return o.publisher.Publish(ctx, models.TopicPaymentAttemptRecorded, row.PaymentRequestID, row)
	})
	return nil
}

func (o *Orchestrator) publishTransition(req *models.PaymentRequest, from models.PaymentStatus) {
	to := req.Status()
	metrics.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()

	telemetry.Logger.Info("Payment state transition",
		zap.String("payment_id", req.ID),
		zap.String("from_state", string(from)),
		zap.String("to_state", string(to)),
	)

	event := models.PaymentStateEvent{
		PaymentID:     req.ID,
		State:         to,
		PreviousState: from,
		MerchantID:    req.MerchantID,
		Timestamp:     req.UpdatedAt,
	}
	o.dispatcher.Dispatch("publish_state_change", func(ctx context.Context) error {
		return o.publisher.Publish(ctx, models.TopicPaymentStateChanged, event.PaymentID, event)
	})
}
