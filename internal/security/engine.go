// Package security derives account risk from the attempt ledger and drives
// the alert and revoke responses.
package security

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/interfaces"
	"github.com/akylbek/payment-system/credential-payments/internal/metrics"
	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

// AttemptHistory is the slice of the ledger the engine reads.
type AttemptHistory interface {
	ByAccount(ctx context.Context, accountID string) ([]*models.PaymentAttempt, error)
}

type Revoker interface {
	Revoke(ctx context.Context, credentialID string) error
}

type Assessment struct {
	AccountID           string           `json:"account_id"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	Risk                models.RiskLevel `json:"risk"`
	ShouldAlert         bool             `json:"should_alert"`
	ShouldRevoke        bool             `json:"should_revoke"`
}

type Engine struct {
	policy     Policy
	history    AttemptHistory
	revoker    Revoker
	notifier   interfaces.Notifier
	dispatcher interfaces.Dispatcher
}

func NewEngine(policy Policy, history AttemptHistory, revoker Revoker, notifier interfaces.Notifier, dispatcher interfaces.Dispatcher) *Engine {
	return &Engine{
		policy:     policy,
		history:    history,
		revoker:    revoker,
		notifier:   notifier,
		dispatcher: dispatcher,
	}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// ConsecutiveFailures counts failed_pin rows from newest to oldest until a
// completed row. Other failure kinds neither count nor reset the streak.
func ConsecutiveFailures(newestFirst []*models.PaymentAttempt) int {
	count := 0
	for _, a := range newestFirst {
		switch a.Status {
		case models.AttemptFailedPIN:
			count++
		case models.AttemptCompleted:
			return count
		}
	}
	return count
}

// Assess computes the account's current streak and risk from the ledger.
func (e *Engine) Assess(ctx context.Context, accountID string) (*Assessment, error) {
	rows, err := e.history.ByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load attempts for account %s: %w", accountID, err)
	}
	count := ConsecutiveFailures(rows)
	return &Assessment{
		AccountID:           accountID,
		ConsecutiveFailures: count,
		Risk:                e.policy.RiskLevel(count),
		ShouldAlert:         e.policy.ShouldAlert(count),
		ShouldRevoke:        e.policy.ShouldRevoke(count),
	}, nil
}

// HandlePINFailure runs after a failed_pin row was appended for account.
// Alerts and revocation are dispatched; their failures never reach the caller.
func (e *Engine) HandlePINFailure(ctx context.Context, account *models.Account, req *models.PaymentRequest) (*Assessment, error) {
	assessment, err := e.Assess(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	logger := telemetry.Logger.With(
		zap.String("account_id", account.ID),
		zap.String("payment_id", req.ID),
		zap.Int("consecutive_failures", assessment.ConsecutiveFailures),
		zap.String("risk", string(assessment.Risk)),
	)

	acct := *account
	payment := req.Clone()
	count := assessment.ConsecutiveFailures

	if assessment.ShouldAlert {
		metrics.SecurityAlertsTotal.Inc()
		logger.Warn("Consecutive PIN failures reached alert threshold")
		e.dispatcher.Dispatch("security_alert", func(ctx context.Context) error {
			return e.notifier.SendSecurityAlert(ctx, &acct, payment, count)
		})
	}

	if assessment.ShouldRevoke {
		if acct.CredentialID == "" {
			logger.Warn("Revoke threshold reached but account has no credential to revoke")
			return assessment, nil
		}
		logger.Warn("Consecutive PIN failures reached revoke threshold")
		e.dispatcher.Dispatch("credential_revoke", func(ctx context.Context) error {
			if err := e.revoker.Revoke(ctx, acct.CredentialID); err != nil {
				metrics.RevocationsTotal.WithLabelValues("error").Inc()
				return err
			}
			metrics.RevocationsTotal.WithLabelValues("revoked").Inc()
			e.dispatcher.Dispatch("revocation_notice", func(ctx context.Context) error {
				return e.notifier.SendRevoked(ctx, &acct)
			})
			return nil
		})
	}

	return assessment, nil
}
