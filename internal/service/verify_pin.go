package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/security"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

// PINResult describes the outcome of one PIN submission. Completion fields
// are set only when Attempt.Status is completed; Assessment only after a
// wrong PIN.
type PINResult struct {
	Request         *models.PaymentRequest `json:"payment_request"`
	Attempt         *models.PaymentAttempt `json:"attempt,omitempty"`
	TransactionID   string                 `json:"transaction_id,omitempty"`
	PreviousBalance *decimal.Decimal       `json:"previous_balance,omitempty"`
	NewBalance      *decimal.Decimal       `json:"new_balance,omitempty"`
	Assessment      *security.Assessment   `json:"assessment,omitempty"`
}

// VerifyPIN authorizes a PROCESSING request: it resolves the account from the
// proof claims, checks the PIN and debits the balance. Every outcome except
// input validation and collaborator errors appends exactly one ledger row.
func (o *Orchestrator) VerifyPIN(ctx context.Context, id, pin string, meta models.RequestMeta) (result *PINResult, err error) {
	ctx, end := telemetry.StartSpan(ctx, "orchestrator.VerifyPIN", attribute.String("payment_id", id))
	defer func() { end(err) }()

	if strings.TrimSpace(pin) == "" {
		return nil, fmt.Errorf("%w: PIN is required", models.ErrValidation)
	}

	release, err := o.lockPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	result = &PINResult{Request: req}

	expired, err := o.applyExpiry(ctx, req, meta)
	if err != nil {
		return nil, err
	}
	if expired {
		return result, fmt.Errorf("%w: payment %s", models.ErrExpired, id)
	}

	processing, ok := req.State.(models.Processing)
	if !ok {
		attempt := models.NewAttempt(req, models.AttemptFailedInvalidState, o.now(), meta).
			WithError("invalid state", fmt.Sprintf("PIN verification requires %s, payment is %s",
				models.StatusProcessing, req.Status()))
		if err := o.record(ctx, attempt); err != nil {
			return nil, err
		}
		result.Attempt = attempt
		return result, fmt.Errorf("%w: payment %s is %s", models.ErrInvalidState, id, req.Status())
	}

	claims := processing.Proof.Claims
	if !claims.Complete() {
		attempt, err := o.fail(ctx, req, models.AttemptFailedInvalidCredential,
			"invalid credential", "proof is missing cardholder name or card digits", nil, meta)
		if err != nil {
			return nil, err
		}
		result.Attempt = attempt
		return result, fmt.Errorf("%w: payment %s", models.ErrInvalidCredential, id)
	}

	acct, err := o.accounts.GetByCredentialClaims(ctx, claims.CardholderName, claims.CardLast4)
	if errors.Is(err, models.ErrAccountNotFound) {
		attempt, err := o.fail(ctx, req, models.AttemptFailedInvalidCredential,
			"account not found", fmt.Sprintf("no account for cardholder %q ending %s",
				claims.CardholderName, claims.CardLast4), nil, meta)
		if err != nil {
			return nil, err
		}
		result.Attempt = attempt
		return result, fmt.Errorf("%w: payment %s", models.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve account for payment %s: %w", id, err)
	}

	releaseAccount, err := o.lockAccount(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	defer releaseAccount()

	if !acct.CheckPIN(pin) {
		return o.wrongPIN(ctx, req, acct, meta, result)
	}

	debit, err := o.accounts.Debit(ctx, models.Debit{
		AccountID:        acct.ID,
		PaymentRequestID: req.ID,
		TransactionID:    "txn_" + uuid.New().String(),
		Amount:           req.Amount,
	})
	if errors.Is(err, models.ErrInsufficientFunds) {
		current := acct.Balance
		if fresh, getErr := o.accounts.GetByID(ctx, acct.ID); getErr == nil {
			current = fresh.Balance
		}
		return o.insufficientFunds(ctx, req, acct, current, meta, result)
	}
	if err != nil {
		return nil, fmt.Errorf("debit account %s for payment %s: %w", acct.ID, id, err)
	}

	return o.complete(ctx, req, acct, debit, meta, result)
}

func (o *Orchestrator) wrongPIN(ctx context.Context, req *models.PaymentRequest, acct *models.Account, meta models.RequestMeta, result *PINResult) (*PINResult, error) {
	attempt := models.NewAttempt(req, models.AttemptFailedPIN, o.now(), meta).
		WithAccount(acct).
		WithError("incorrect PIN", "")
	if err := o.record(ctx, attempt); err != nil {
		return nil, err
	}
	result.Attempt = attempt

	assessment, err := o.engine.HandlePINFailure(ctx, acct, req)
	if err != nil {
		telemetry.Logger.Error("Security assessment failed",
			zap.String("payment_id", req.ID),
			zap.String("account_id", acct.ID),
			zap.Error(err),
		)
	}
	result.Assessment = assessment
	return result, fmt.Errorf("%w: payment %s", models.ErrWrongPIN, req.ID)
}

func (o *Orchestrator) insufficientFunds(ctx context.Context, req *models.PaymentRequest, acct *models.Account, balance decimal.Decimal, meta models.RequestMeta, result *PINResult) (*PINResult, error) {
	details := fmt.Sprintf("balance %s is below amount %s", balance.StringFixed(2), req.Amount.StringFixed(2))
	attempt, err := o.fail(ctx, req, models.AttemptFailedInsufficientFunds, "insufficient funds", details, acct, meta)
	if err != nil {
		return nil, err
	}
	result.Attempt = attempt
	return result, fmt.Errorf("%w: payment %s", models.ErrInsufficientFunds, req.ID)
}

// complete records the completed attempt, then moves req to COMPLETED. The
// debit is already stored, so when either step fails the request stays
// PROCESSING and the next submission replays the debit and finishes here.
func (o *Orchestrator) complete(ctx context.Context, req *models.PaymentRequest, acct *models.Account, debit *models.DebitResult, meta models.RequestMeta, result *PINResult) (*PINResult, error) {
	if debit.Replayed {
		telemetry.Logger.Warn("Resuming payment from stored debit",
			zap.String("payment_id", req.ID),
			zap.String("transaction_id", debit.TransactionID),
		)
	}

	attempt, err := o.completedAttempt(ctx, req)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		attempt = models.NewAttempt(req, models.AttemptCompleted, o.now(), meta).
			WithAccount(acct).
			WithCompletion(debit.TransactionID, debit.PreviousBalance, debit.NewBalance)
		if err := o.record(ctx, attempt); err != nil {
			telemetry.Logger.Error("Payment debited but ledger append failed",
				zap.String("payment_id", req.ID),
				zap.String("transaction_id", debit.TransactionID),
				zap.Error(err),
			)
			return nil, fmt.Errorf("record completion of payment %s: %w", req.ID, err)
		}
	}

	completed := models.Completed{
		TransactionID:   debit.TransactionID,
		AccountID:       acct.ID,
		PreviousBalance: debit.PreviousBalance,
		NewBalance:      debit.NewBalance,
		CompletedAt:     o.now(),
	}
	if err := o.transition(ctx, req, completed); err != nil {
		telemetry.Logger.Error("Payment debited but state update failed",
			zap.String("payment_id", req.ID),
			zap.String("transaction_id", debit.TransactionID),
			zap.Error(err),
		)
		return nil, err
	}

	telemetry.Logger.Info("Payment completed",
		zap.String("payment_id", req.ID),
		zap.String("account_id", acct.ID),
		zap.String("transaction_id", debit.TransactionID),
		zap.String("new_balance", debit.NewBalance.StringFixed(2)),
	)

	result.Attempt = attempt
	result.TransactionID = debit.TransactionID
	result.PreviousBalance = &debit.PreviousBalance
	result.NewBalance = &debit.NewBalance
	return result, nil
}

// completedAttempt returns the completed row already recorded for req, if any.
func (o *Orchestrator) completedAttempt(ctx context.Context, req *models.PaymentRequest) (*models.PaymentAttempt, error) {
	rows, err := o.ledger.List(ctx, models.AttemptFilter{PaymentRequestID: req.ID, SuccessfulOnly: true})
	if err != nil {
		return nil, fmt.Errorf("load attempts for payment %s: %w", req.ID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
