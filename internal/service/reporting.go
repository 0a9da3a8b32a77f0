package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/ledger"
	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/security"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

// ListFilter selects requests and attempts for reporting. AccountID narrows
// requests to those with at least one attempt by that account.
type ListFilter struct {
	SuccessfulOnly bool
	MerchantID     string
	AccountID      string
	From           time.Time
	To             time.Time
}

type Report struct {
	Requests []*models.PaymentRequest `json:"payment_requests"`
	Attempts []*models.PaymentAttempt `json:"attempts"`
	Stats    *models.AttemptStats     `json:"stats"`
}

type CleanupResult struct {
	Expired int   `json:"expired"`
	Purged  int64 `json:"purged"`
}

// ListAttempts returns matching requests and attempts plus statistics over
// the attempts. Listed requests that are past their window are expired first.
func (o *Orchestrator) ListAttempts(ctx context.Context, filter ListFilter) (*Report, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: range end is before range start", models.ErrValidation)
	}

	requests, err := o.repo.List(ctx, models.PaymentRequestFilter{
		MerchantID:     filter.MerchantID,
		SuccessfulOnly: filter.SuccessfulOnly,
		From:           filter.From,
		To:             filter.To,
	})
	if err != nil {
		return nil, fmt.Errorf("list payment requests: %w", err)
	}

	attempts, err := o.ledger.List(ctx, models.AttemptFilter{
		AccountID:      filter.AccountID,
		MerchantID:     filter.MerchantID,
		From:           filter.From,
		To:             filter.To,
		SuccessfulOnly: filter.SuccessfulOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	if filter.AccountID != "" {
		seen := make(map[string]bool, len(attempts))
		for _, a := range attempts {
			seen[a.PaymentRequestID] = true
		}
		kept := requests[:0]
		for _, r := range requests {
			if seen[r.ID] {
				kept = append(kept, r)
			}
		}
		requests = kept
	}

	now := o.now()
	for i, r := range requests {
		if !r.IsExpired(now) {
			continue
		}
		fresh, err := o.GetPaymentRequest(ctx, r.ID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		requests[i] = fresh
	}

	return &Report{
		Requests: requests,
		Attempts: attempts,
		Stats:    ledger.Summarize(attempts),
	}, nil
}

// ExpireStale applies expiry to every non-terminal request past its window
// and returns how many moved.
func (o *Orchestrator) ExpireStale(ctx context.Context) (int, error) {
	stale, err := o.repo.ListExpired(ctx, o.now())
	if err != nil {
		return 0, fmt.Errorf("list expired payment requests: %w", err)
	}

	expired := 0
	for _, r := range stale {
		moved, err := o.expireOne(ctx, r.ID)
		if err != nil {
			telemetry.Logger.Error("Failed to expire payment request",
				zap.String("payment_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		if moved {
			expired++
		}
	}
	return expired, nil
}

func (o *Orchestrator) expireOne(ctx context.Context, id string) (bool, error) {
	release, err := o.lockPayment(ctx, id)
	if err != nil {
		return false, err
	}
	defer release()

	req, err := o.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return o.applyExpiry(ctx, req, models.RequestMeta{})
}

// PurgeOld removes terminal requests last updated before now minus retention.
// Ledger rows are never purged.
func (o *Orchestrator) PurgeOld(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("%w: retention window must be positive", models.ErrValidation)
	}
	cutoff := o.now().Add(-retention)
	purged, err := o.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge payment requests: %w", err)
	}
	return purged, nil
}

// Cleanup runs ExpireStale then PurgeOld.
func (o *Orchestrator) Cleanup(ctx context.Context, retention time.Duration) (*CleanupResult, error) {
	expired, err := o.ExpireStale(ctx)
	if err != nil {
		return nil, err
	}
	purged, err := o.PurgeOld(ctx, retention)
	if err != nil {
		return nil, err
	}

	telemetry.Logger.Info("Cleanup finished",
		zap.Int("expired", expired),
		zap.Int64("purged", purged),
	)
	return &CleanupResult{Expired: expired, Purged: purged}, nil
}

func (o *Orchestrator) AssessAccount(ctx context.Context, accountID string) (*security.Assessment, error) {
	if _, err := o.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return o.engine.Assess(ctx, accountID)
}

// SuspendCredential suspends the account's credential until the given time
// and notifies the cardholder.
func (o *Orchestrator) SuspendCredential(ctx context.Context, accountID string, until time.Time) (*models.Account, error) {
	if !until.After(o.now()) {
		return nil, fmt.Errorf("%w: suspension end must be in the future", models.ErrValidation)
	}
	acct, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.CredentialID == "" {
		return nil, fmt.Errorf("%w: account %s has no credential", models.ErrInvalidCredential, accountID)
	}
	if err := o.verifier.Suspend(ctx, acct.CredentialID, until); err != nil {
		return nil, fmt.Errorf("suspend credential for account %s: %w", accountID, err)
	}

	telemetry.Logger.Warn("Credential suspended",
		zap.String("account_id", acct.ID),
		zap.Time("until", until),
	)
	notice := *acct
	o.dispatcher.Dispatch("suspension_notice", func(ctx context.Context) error {
		return o.notifier.SendSuspended(ctx, &notice, until)
	})
	return acct, nil
}
