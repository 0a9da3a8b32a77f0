package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/akylbek/payment-system/credential-payments/internal/interfaces"
	"github.com/akylbek/payment-system/credential-payments/internal/ledger"
	"github.com/akylbek/payment-system/credential-payments/internal/lock"
	"github.com/akylbek/payment-system/credential-payments/internal/mocks"
	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/publisher"
	"github.com/akylbek/payment-system/credential-payments/internal/repository"
	"github.com/akylbek/payment-system/credential-payments/internal/security"
	"github.com/akylbek/payment-system/credential-payments/internal/service"
	"github.com/akylbek/payment-system/credential-payments/internal/worker"
)

const correctPIN = "1234"

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeVerifier plays the external proof exchange service.
type fakeVerifier struct {
	mu         sync.Mutex
	requestErr error
	stateErr   error
	proof      models.ProofStatus
	requests   int
	revoked    []string
	suspended  map[string]time.Time
}

func (v *fakeVerifier) RequestProof(_ context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.requestErr != nil {
		return "", v.requestErr
	}
	v.requests++
	return fmt.Sprintf("proof-%d", v.requests), nil
}

func (v *fakeVerifier) ShareProof(_ context.Context, ref string) (*models.ProofInvitation, error) {
	return &models.ProofInvitation{QRURL: "https://verifier.test/qr/" + ref, AppURL: "wallet://proof/" + ref}, nil
}

func (v *fakeVerifier) GetProofState(_ context.Context, ref string) (*models.ProofStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stateErr != nil {
		return nil, v.stateErr
	}
	status := v.proof
	status.Reference = ref
	return &status, nil
}

func (v *fakeVerifier) Revoke(_ context.Context, credentialID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.revoked = append(v.revoked, credentialID)
	return nil
}

func (v *fakeVerifier) Suspend(_ context.Context, credentialID string, until time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.suspended == nil {
		v.suspended = make(map[string]time.Time)
	}
	v.suspended[credentialID] = until
	return nil
}

func (v *fakeVerifier) setProof(state models.ProofState, claims *models.CredentialClaims) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.proof = models.ProofStatus{State: state, Claims: claims}
}

func (v *fakeVerifier) revokedCredentials() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.revoked...)
}

var annClaims = &models.CredentialClaims{CardholderName: "Ann Lee", CardLast4: "4242"}

type fixture struct {
	orch       *service.Orchestrator
	repo       *repository.MemoryPaymentRequestRepository
	ledger     *ledger.Ledger
	accounts   *repository.MemoryAccountStore
	verifier   *fakeVerifier
	notifier   *mocks.MockNotifier
	dispatcher *worker.Dispatcher
	clock      *clock
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPolicy(t, security.DefaultAlertThreshold, security.DefaultRevokeThreshold)
}

func newFixtureWithPolicy(t *testing.T, alert, revoke int) *fixture {
	t.Helper()
	return buildFixture(t, alert, revoke, nil)
}

// storeWrapper lets a test put a faulty layer in front of the stores the
// orchestrator writes through.
type storeWrapper func(interfaces.PaymentRequestRepository, interfaces.AttemptStore) (interfaces.PaymentRequestRepository, interfaces.AttemptStore)

func newFixtureWithStores(t *testing.T, wrap storeWrapper) *fixture {
	t.Helper()
	return buildFixture(t, security.DefaultAlertThreshold, security.DefaultRevokeThreshold, wrap)
}

func buildFixture(t *testing.T, alert, revoke int, wrap storeWrapper) *fixture {
	t.Helper()

	hash, err := models.HashPIN(correctPIN, bcrypt.MinCost)
	require.NoError(t, err)

	f := &fixture{
		repo: repository.NewMemoryPaymentRequestRepository(),
		accounts: repository.NewMemoryAccountStore(&models.Account{
			ID:             "acct-1",
			CardholderName: "Ann Lee",
			Email:          "ann@example.com",
			CardLast4:      "4242",
			CredentialID:   "cred-1",
			Balance:        decimal.RequireFromString("100.00"),
			PINHash:        hash,
		}),
		verifier:   &fakeVerifier{},
		notifier:   &mocks.MockNotifier{},
		dispatcher: worker.NewDispatcher(worker.Config{Workers: 2, MaxAttempts: 1, Timeout: time.Second}),
		clock:      &clock{t: start},
	}
	t.Cleanup(f.dispatcher.Close)

	f.notifier.On("SendSecurityAlert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("SendRevoked", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("SendSuspended", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	var repo interfaces.PaymentRequestRepository = f.repo
	var attempts interfaces.AttemptStore = repository.NewMemoryAttemptStore()
	if wrap != nil {
		repo, attempts = wrap(repo, attempts)
	}

	f.ledger = ledger.New(attempts)
	policy, _ := security.NewPolicy(alert, revoke)
	engine := security.NewEngine(policy, f.ledger, f.verifier, f.notifier, f.dispatcher)

	f.orch = service.NewOrchestrator(service.Dependencies{
		Repo:       repo,
		Ledger:     f.ledger,
		Engine:     engine,
		Accounts:   f.accounts,
		Verifier:   f.verifier,
		Notifier:   f.notifier,
		Publisher:  publisher.Discard{},
		Locker:     lock.NewKeyedMutex(),
		Dispatcher: f.dispatcher,
	}, service.WithClock(f.clock.Now), service.WithLockTimeout(5*time.Second))
	return f
}

func (f *fixture) create(t *testing.T, amount string) *models.PaymentRequest {
	t.Helper()
	req, err := f.orch.CreatePaymentRequest(context.Background(), decimal.RequireFromString(amount), "m1", "order")
	require.NoError(t, err)
	return req
}

// processing drives a new request through the proof exchange with the
// given claims and returns it in PROCESSING.
func (f *fixture) processing(t *testing.T, amount string, claims *models.CredentialClaims) *models.PaymentRequest {
	t.Helper()
	ctx := context.Background()
	req := f.create(t, amount)

	exchange, err := f.orch.BeginProofExchange(ctx, req.ID)
	require.NoError(t, err)
	require.Empty(t, exchange.Warning)

	f.verifier.setProof(models.ProofAccepted, claims)
	req, err = f.orch.PollAndAdvance(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, req.Status())
	return req
}

func (f *fixture) attempts(t *testing.T, paymentID string) []*models.PaymentAttempt {
	t.Helper()
	rows, err := f.ledger.List(context.Background(), models.AttemptFilter{PaymentRequestID: paymentID})
	require.NoError(t, err)
	return rows
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	acct, err := f.accounts.GetByID(context.Background(), "acct-1")
	require.NoError(t, err)
	return acct.Balance
}

func meta() models.RequestMeta {
	return models.RequestMeta{ClientIP: "203.0.113.7", UserAgent: "terminal/1.0"}
}
