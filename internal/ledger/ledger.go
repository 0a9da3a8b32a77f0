// Package ledger is the append-only record of every payment authorization
// attempt. It is the only input to risk scoring and attempt reporting.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/interfaces"
	"github.com/akylbek/payment-system/credential-payments/internal/metrics"
	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

type Ledger struct {
	store interfaces.AttemptStore
}

func New(store interfaces.AttemptStore) *Ledger {
	return &Ledger{store: store}
}

// Append validates and stores one attempt. The row is durable in the store
// when Append returns nil.
func (l *Ledger) Append(ctx context.Context, a *models.PaymentAttempt) error {
	if a == nil {
		return fmt.Errorf("%w: nil attempt", models.ErrValidation)
	}
	if strings.TrimSpace(a.PaymentRequestID) == "" {
		return fmt.Errorf("%w: attempt is missing payment request ID", models.ErrValidation)
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("%w: unknown attempt status %q", models.ErrValidation, a.Status)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	if err := l.store.Append(ctx, a); err != nil {
		return fmt.Errorf("append attempt for payment %s: %w", a.PaymentRequestID, err)
	}

	metrics.AttemptsTotal.WithLabelValues(string(a.Status)).Inc()
	telemetry.Logger.Info("Payment attempt recorded",
		zap.String("payment_id", a.PaymentRequestID),
		zap.String("attempt_status", string(a.Status)),
		zap.String("account_id", a.AccountID),
	)
	return nil
}

// List returns matching rows, newest first.
func (l *Ledger) List(ctx context.Context, filter models.AttemptFilter) ([]*models.PaymentAttempt, error) {
	return l.store.List(ctx, filter)
}

func (l *Ledger) ByAccount(ctx context.Context, accountID string) ([]*models.PaymentAttempt, error) {
	return l.store.List(ctx, models.AttemptFilter{AccountID: accountID})
}

func (l *Ledger) ByMerchant(ctx context.Context, merchantID string) ([]*models.PaymentAttempt, error) {
	return l.store.List(ctx, models.AttemptFilter{MerchantID: merchantID})
}

func (l *Ledger) ByDateRange(ctx context.Context, from, to time.Time) ([]*models.PaymentAttempt, error) {
	return l.store.List(ctx, models.AttemptFilter{From: from, To: to})
}

// Stats aggregates the matching rows. Nothing is cached between calls.
func (l *Ledger) Stats(ctx context.Context, filter models.AttemptFilter) (*models.AttemptStats, error) {
	rows, err := l.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Summarize(rows), nil
}

// Summarize computes totals, per-status counts and success amounts.
func Summarize(rows []*models.PaymentAttempt) *models.AttemptStats {
	stats := &models.AttemptStats{
		ByStatus:                make(map[models.AttemptStatus]int, len(models.AttemptStatuses)),
		SuccessfulAmount:        decimal.Zero,
		AverageSuccessfulAmount: decimal.Zero,
	}
	for _, s := range models.AttemptStatuses {
		stats.ByStatus[s] = 0
	}
	for _, a := range rows {
		stats.Total++
		stats.ByStatus[a.Status]++
		if a.Status.IsSuccess() {
			stats.Successful++
			stats.SuccessfulAmount = stats.SuccessfulAmount.Add(a.Amount)
		} else {
			stats.Failed++
		}
	}
	if stats.Successful > 0 {
		stats.AverageSuccessfulAmount = stats.SuccessfulAmount.
			Div(decimal.NewFromInt(int64(stats.Successful))).Round(2)
	}
	return stats
}
