// Package mocks holds testify mocks for the collaborator interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
)

type MockCredentialVerifier struct {
	mock.Mock
}

func (m *MockCredentialVerifier) RequestProof(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockCredentialVerifier) ShareProof(ctx context.Context, proofReference string) (*models.ProofInvitation, error) {
	args := m.Called(ctx, proofReference)
	invitation, _ := args.Get(0).(*models.ProofInvitation)
	return invitation, args.Error(1)
}

func (m *MockCredentialVerifier) GetProofState(ctx context.Context, proofReference string) (*models.ProofStatus, error) {
	args := m.Called(ctx, proofReference)
	status, _ := args.Get(0).(*models.ProofStatus)
	return status, args.Error(1)
}

func (m *MockCredentialVerifier) Revoke(ctx context.Context, credentialID string) error {
	return m.Called(ctx, credentialID).Error(0)
}

func (m *MockCredentialVerifier) Suspend(ctx context.Context, credentialID string, until time.Time) error {
	return m.Called(ctx, credentialID, until).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendSecurityAlert(ctx context.Context, account *models.Account, req *models.PaymentRequest, failureCount int) error {
	return m.Called(ctx, account, req, failureCount).Error(0)
}

func (m *MockNotifier) SendRevoked(ctx context.Context, account *models.Account) error {
	return m.Called(ctx, account).Error(0)
}

func (m *MockNotifier) SendSuspended(ctx context.Context, account *models.Account, until time.Time) error {
	return m.Called(ctx, account, until).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, key string, message interface{}) error {
	return m.Called(ctx, topic, key, message).Error(0)
}
