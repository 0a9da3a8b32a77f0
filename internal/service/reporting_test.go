package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/service"
)

func TestCleanup_ExpiresThenPurges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := f.create(t, "10.00")
	active := f.processing(t, "20.00", annClaims)

	f.clock.Advance(20 * time.Minute)
	fresh := f.create(t, "30.00")
	f.clock.Advance(11 * time.Minute)

	result, err := f.orch.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Expired)
	assert.Zero(t, result.Purged)

	got, err := f.orch.GetPaymentRequest(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status())

	got, err = f.orch.GetPaymentRequest(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status())

	got, err = f.orch.GetPaymentRequest(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status())

	f.clock.Advance(25 * time.Hour)
	result, err = f.orch.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, int64(2), result.Purged)

	_, err = f.orch.GetPaymentRequest(ctx, stale.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	rows := f.attempts(t, stale.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.AttemptFailedExpired, rows[0].Status)
}

func TestExpireStale_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t, "10.00")
	f.clock.Advance(time.Hour)

	n, err := f.orch.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.orch.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.attempts(t, req.ID), 1)
}

func TestPurgeOld_RequiresPositiveRetention(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.PurgeOld(context.Background(), 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPurgeOld_KeepsActiveRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(t, "10.00")
	f.clock.Advance(10 * time.Minute)

	purged, err := f.orch.PurgeOld(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, purged)

	_, err = f.orch.GetPaymentRequest(ctx, req.ID)
	assert.NoError(t, err)
}

func TestListAttempts_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.processing(t, "25.00", annClaims)
	_, err := f.orch.VerifyPIN(ctx, paid.ID, correctPIN, meta())
	require.NoError(t, err)

	declined := f.processing(t, "10.00", annClaims)
	_, err = f.orch.VerifyPIN(ctx, declined.ID, "0000", meta())
	require.ErrorIs(t, err, models.ErrWrongPIN)

	other, err := f.orch.CreatePaymentRequest(ctx, decimal.RequireFromString("5.00"), "m2", "coffee")
	require.NoError(t, err)

	all, err := f.orch.ListAttempts(ctx, service.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all.Requests, 3)
	assert.Len(t, all.Attempts, 2)
	assert.Equal(t, 2, all.Stats.Total)
	assert.Equal(t, 1, all.Stats.Successful)
	assert.Equal(t, 1, all.Stats.ByStatus[models.AttemptFailedPIN])
	assert.True(t, all.Stats.SuccessfulAmount.Equal(decimal.RequireFromString("25")))

	successful, err := f.orch.ListAttempts(ctx, service.ListFilter{SuccessfulOnly: true})
	require.NoError(t, err)
	require.Len(t, successful.Requests, 1)
	assert.Equal(t, paid.ID, successful.Requests[0].ID)
	require.Len(t, successful.Attempts, 1)
	assert.Equal(t, models.AttemptCompleted, successful.Attempts[0].Status)

	byAccount, err := f.orch.ListAttempts(ctx, service.ListFilter{AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Len(t, byAccount.Requests, 2)
	assert.Len(t, byAccount.Attempts, 2)

	byMerchant, err := f.orch.ListAttempts(ctx, service.ListFilter{MerchantID: "m2"})
	require.NoError(t, err)
	require.Len(t, byMerchant.Requests, 1)
	assert.Equal(t, other.ID, byMerchant.Requests[0].ID)
	assert.Empty(t, byMerchant.Attempts)
	assert.Zero(t, byMerchant.Stats.Total)
}

func TestListAttempts_ExpiresListedRequests(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, "10.00")
	f.clock.Advance(time.Hour)

	report, err := f.orch.ListAttempts(context.Background(), service.ListFilter{})
	require.NoError(t, err)
	require.Len(t, report.Requests, 1)
	assert.Equal(t, req.ID, report.Requests[0].ID)
	assert.Equal(t, models.StatusExpired, report.Requests[0].Status())
}

func TestListAttempts_RejectsInvertedRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.ListAttempts(context.Background(), service.ListFilter{
		From: start,
		To:   start.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAssessAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.AssessAccount(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	req := f.processing(t, "10.00", annClaims)
	for i := 0; i < 3; i++ {
		_, err := f.orch.VerifyPIN(ctx, req.ID, "0000", meta())
		require.ErrorIs(t, err, models.ErrWrongPIN)
	}
	f.dispatcher.Wait()

	assessment, err := f.orch.AssessAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 3, assessment.ConsecutiveFailures)
	assert.Equal(t, models.RiskHigh, assessment.Risk)
	assert.True(t, assessment.ShouldAlert)
	assert.False(t, assessment.ShouldRevoke)
}

func TestSuspendCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	until := start.Add(24 * time.Hour)

	acct, err := f.orch.SuspendCredential(ctx, "acct-1", until)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", acct.ID)
	f.dispatcher.Wait()

	f.verifier.mu.Lock()
	assert.Equal(t, until, f.verifier.suspended["cred-1"])
	f.verifier.mu.Unlock()
	f.notifier.AssertCalled(t, "SendSuspended", mock.Anything, mock.Anything, until)
}

func TestSuspendCredential_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.SuspendCredential(ctx, "acct-1", start.Add(-time.Minute))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.orch.SuspendCredential(ctx, "nobody", start.Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	f.dispatcher.Wait()
	f.notifier.AssertNotCalled(t, "SendSuspended", mock.Anything, mock.Anything, mock.Anything)
}
