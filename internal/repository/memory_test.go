package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/repository"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newRequest(t *testing.T, created time.Time) *models.PaymentRequest {
	t.Helper()
	req, err := models.NewPaymentRequest(decimal.NewFromInt(10), "m1", "", created, time.Hour)
	require.NoError(t, err)
	return req
}

func TestMemoryPaymentRequestRepository_ConditionalUpdate(t *testing.T) {
	repo := repository.NewMemoryPaymentRequestRepository()
	ctx := context.Background()
	req := newRequest(t, now)
	require.NoError(t, repo.Insert(ctx, req))
	assert.Error(t, repo.Insert(ctx, req))

	first, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)

	require.NoError(t, first.TransitionTo(models.Processing{}, now))
	require.NoError(t, repo.Update(ctx, first, models.StatusPending))

	require.NoError(t, second.TransitionTo(models.Cancelled{}, now))
	err = repo.Update(ctx, second, models.StatusPending)
	assert.ErrorIs(t, err, models.ErrConcurrentUpdate)

	stored, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, stored.Status())

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryPaymentRequestRepository_ReturnsCopies(t *testing.T) {
	repo := repository.NewMemoryPaymentRequestRepository()
	ctx := context.Background()
	req := newRequest(t, now)
	require.NoError(t, repo.Insert(ctx, req))

	req.MerchantID = "changed"
	stored, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "m1", stored.MerchantID)
}

func TestMemoryPaymentRequestRepository_ExpiredAndPurge(t *testing.T) {
	repo := repository.NewMemoryPaymentRequestRepository()
	ctx := context.Background()

	old := newRequest(t, now.Add(-3*time.Hour))
	fresh := newRequest(t, now)
	done := newRequest(t, now.Add(-48*time.Hour))
	require.NoError(t, done.TransitionTo(models.Cancelled{}, now.Add(-47*time.Hour)))
	for _, r := range []*models.PaymentRequest{old, fresh, done} {
		require.NoError(t, repo.Insert(ctx, r))
	}

	expired, err := repo.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)

	purged, err := repo.DeleteTerminalBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = repo.GetByID(ctx, done.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	all, err := repo.List(ctx, models.PaymentRequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, fresh.ID, all[0].ID)
}

func TestMemoryAttemptStore_Ordering(t *testing.T) {
	store := repository.NewMemoryAttemptStore()
	ctx := context.Background()

	for _, s := range []models.AttemptStatus{models.AttemptFailedPIN, models.AttemptFailedPIN, models.AttemptCompleted} {
		require.NoError(t, store.Append(ctx, &models.PaymentAttempt{PaymentRequestID: "p1", AccountID: "a1", Status: s, Timestamp: now}))
	}

	rows, err := store.List(ctx, models.AttemptFilter{AccountID: "a1"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows[0].Sequence)
	assert.Equal(t, models.AttemptCompleted, rows[0].Status)
	assert.Equal(t, int64(1), rows[2].Sequence)
}

func TestMemoryAccountStore_LookupAndDebit(t *testing.T) {
	store := repository.NewMemoryAccountStore(&models.Account{
		ID:             "acct-1",
		CardholderName: "Ann Lee",
		CardLast4:      "4242",
		Balance:        decimal.RequireFromString("100.00"),
	})
	ctx := context.Background()

	acct, err := store.GetByCredentialClaims(ctx, "  ann lee ", "4242")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", acct.ID)

	_, err = store.GetByCredentialClaims(ctx, "Ann Lee", "0000")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	result, err := store.Debit(ctx, debitOf("acct-1", "p1", "40.00"))
	require.NoError(t, err)
	assert.Equal(t, "txn-p1", result.TransactionID)
	assert.False(t, result.Replayed)
	assert.True(t, result.PreviousBalance.Equal(decimal.NewFromInt(100)))
	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(60)))

	_, err = store.Debit(ctx, debitOf("acct-1", "p2", "60.01"))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	_, err = store.Debit(ctx, debitOf("missing", "p3", "1"))
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestMemoryAccountStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	store := repository.NewMemoryAccountStore(&models.Account{ID: "acct-1", Balance: decimal.NewFromInt(50)})
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Debit(ctx, debitOf("acct-1", fmt.Sprintf("p%d", i), "10")); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	acct, err := store.GetByID(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, acct.Balance.IsZero())
}

func TestMemoryAccountStore_DebitReplaysPerPaymentRequest(t *testing.T) {
	store := repository.NewMemoryAccountStore(&models.Account{ID: "acct-1", Balance: decimal.NewFromInt(100)})
	ctx := context.Background()

	first, err := store.Debit(ctx, debitOf("acct-1", "p1", "50"))
	require.NoError(t, err)

	retry := debitOf("acct-1", "p1", "50")
	retry.TransactionID = "txn-other"
	second, err := store.Debit(ctx, retry)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, second.NewBalance.Equal(decimal.NewFromInt(50)))

	acct, err := store.GetByID(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(50)))
}

func debitOf(accountID, paymentID, amount string) models.Debit {
	return models.Debit{
		AccountID:        accountID,
		PaymentRequestID: paymentID,
		TransactionID:    "txn-" + paymentID,
		Amount:           decimal.RequireFromString(amount),
	}
}
