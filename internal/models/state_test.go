package models_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.PaymentStatus
		want     bool
	}{
		{models.StatusPending, models.StatusProcessing, true},
		{models.StatusPending, models.StatusExpired, true},
		{models.StatusPending, models.StatusFailed, true},
		{models.StatusPending, models.StatusCancelled, true},
		{models.StatusPending, models.StatusCompleted, false},
		{models.StatusProcessing, models.StatusCompleted, true},
		{models.StatusProcessing, models.StatusFailed, true},
		{models.StatusProcessing, models.StatusExpired, false},
		{models.StatusProcessing, models.StatusPending, false},
		{models.StatusCompleted, models.StatusFailed, false},
		{models.StatusExpired, models.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, models.CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransitionTo_TerminalStatesNeverMove(t *testing.T) {
	terminals := []models.PaymentState{
		models.Completed{TransactionID: "txn_1"},
		models.Failed{Reason: "boom"},
		models.Expired{},
		models.Cancelled{},
	}
	targets := []models.PaymentState{
		models.Pending{},
		models.Processing{},
		models.Completed{},
		models.Failed{},
		models.Expired{},
		models.Cancelled{},
	}

	for _, terminal := range terminals {
		for _, target := range targets {
			req := newRequest(t)
			req.State = terminal
			before := *req

			err := req.TransitionTo(target, now.Add(time.Minute))
			assert.ErrorIs(t, err, models.ErrInvalidState)
			assert.Equal(t, before.State, req.State)
			assert.Equal(t, before.UpdatedAt, req.UpdatedAt)
		}
	}
}

func TestTransitionTo_ForwardEdges(t *testing.T) {
	req := newRequest(t)
	later := now.Add(time.Minute)

	require.NoError(t, req.TransitionTo(models.Processing{Proof: models.ProofSnapshot{Reference: "p1"}}, later))
	assert.Equal(t, models.StatusProcessing, req.Status())
	assert.Equal(t, "p1", req.ProofReference())
	assert.Equal(t, later, req.UpdatedAt)

	err := req.TransitionTo(models.Expired{}, later)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	require.NoError(t, req.TransitionTo(models.Completed{TransactionID: "txn_1"}, later))
	assert.Equal(t, models.StatusCompleted, req.Status())
}

func TestAttachProof_OnlyWhilePending(t *testing.T) {
	req := newRequest(t)
	require.NoError(t, req.AttachProof("p1", models.ProofInvitation{QRURL: "qr"}, now))
	assert.Equal(t, "p1", req.ProofReference())

	require.NoError(t, req.TransitionTo(models.Processing{}, now))
	err := req.AttachProof("p2", models.ProofInvitation{}, now)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestIsExpired(t *testing.T) {
	req := newRequest(t)

	assert.False(t, req.IsExpired(req.ExpiresAt.Add(-time.Second)))
	assert.True(t, req.IsExpired(req.ExpiresAt))
	assert.True(t, req.IsExpired(req.ExpiresAt.Add(time.Hour)))

	req.State = models.Completed{}
	assert.False(t, req.IsExpired(req.ExpiresAt.Add(time.Hour)))
}

func TestExpiryState(t *testing.T) {
	req := newRequest(t)
	assert.Equal(t, models.StatusExpired, req.ExpiryState().Status())

	req.State = models.Processing{}
	next := req.ExpiryState()
	failed, ok := next.(models.Failed)
	require.True(t, ok)
	assert.Equal(t, models.ReasonExpiredDuringProcessing, failed.Reason)
}

func TestEncodeDecodeState_Completed(t *testing.T) {
	state := models.Completed{
		TransactionID:   "txn_1",
		AccountID:       "acct-1",
		PreviousBalance: decimal.RequireFromString("100.00"),
		NewBalance:      decimal.RequireFromString("49.50"),
		CompletedAt:     now,
	}

	data, err := models.EncodeState(state)
	require.NoError(t, err)

	decoded, err := models.DecodeState(models.StatusCompleted, data)
	require.NoError(t, err)
	completed, ok := decoded.(models.Completed)
	require.True(t, ok)
	assert.Equal(t, "txn_1", completed.TransactionID)
	assert.True(t, completed.NewBalance.Equal(state.NewBalance))
	assert.True(t, completed.CompletedAt.Equal(now))
}

func TestDecodeState_Errors(t *testing.T) {
	_, err := models.DecodeState("BOGUS", nil)
	assert.Error(t, err)

	_, err = models.DecodeState(models.StatusFailed, []byte("{not json"))
	assert.Error(t, err)

	state, err := models.DecodeState(models.StatusPending, nil)
	require.NoError(t, err)
	assert.Equal(t, models.Pending{}, state)
}
