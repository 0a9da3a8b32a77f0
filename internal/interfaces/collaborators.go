package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
)

// CredentialVerifier fronts the external proof exchange service.
type CredentialVerifier interface {
	RequestProof(ctx context.Context) (string, error)
	ShareProof(ctx context.Context, proofReference string) (*models.ProofInvitation, error)
	GetProofState(ctx context.Context, proofReference string) (*models.ProofStatus, error)
	Revoke(ctx context.Context, credentialID string) error
	Suspend(ctx context.Context, credentialID string, until time.Time) error
}

// Notifier delivers security notices to cardholders. Best effort.
type Notifier interface {
	SendSecurityAlert(ctx context.Context, account *models.Account, req *models.PaymentRequest, failureCount int) error
	SendRevoked(ctx context.Context, account *models.Account) error
	SendSuspended(ctx context.Context, account *models.Account, until time.Time) error
}

// Publisher defines the interface for publishing events to Kafka topics.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, message interface{}) error
}

// Locker provides single-writer sections keyed by an arbitrary string.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Dispatcher runs best-effort side effects off the caller's path.
type Dispatcher interface {
	Dispatch(name string, task func(ctx context.Context) error)
}
