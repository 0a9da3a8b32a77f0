package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
)

// PaymentRequestRepository defines the contract for payment request data access
type PaymentRequestRepository interface {
	Insert(ctx context.Context, req *models.PaymentRequest) error
	// Update persists req only if the stored status still equals prev.
	Update(ctx context.Context, req *models.PaymentRequest, prev models.PaymentStatus) error
	GetByID(ctx context.Context, id string) (*models.PaymentRequest, error)
	List(ctx context.Context, filter models.PaymentRequestFilter) ([]*models.PaymentRequest, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.PaymentRequest, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AttemptStore is the append-only persistence behind the attempt ledger.
// List returns rows newest first.
type AttemptStore interface {
	Append(ctx context.Context, attempt *models.PaymentAttempt) error
	List(ctx context.Context, filter models.AttemptFilter) ([]*models.PaymentAttempt, error)
}

// AccountStore is the external account collaborator.
type AccountStore interface {
	GetByCredentialClaims(ctx context.Context, cardholderName, last4 string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// Debit must be atomic: it fails with models.ErrInsufficientFunds
	// instead of taking the balance below zero. A second debit for the same
	// payment request returns the first result with Replayed set.
	Debit(ctx context.Context, debit models.Debit) (*models.DebitResult, error)
}
