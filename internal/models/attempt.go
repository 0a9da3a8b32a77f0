package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AttemptStatus string

const (
	AttemptCompleted               AttemptStatus = "completed"
	AttemptFailedPIN               AttemptStatus = "failed_pin"
	AttemptFailedExpired           AttemptStatus = "failed_expired"
	AttemptFailedInsufficientFunds AttemptStatus = "failed_insufficient_funds"
	AttemptFailedInvalidCredential AttemptStatus = "failed_invalid_credential"
	AttemptFailedInvalidState      AttemptStatus = "failed_invalid_state"
)

// AttemptStatuses lists the closed failure taxonomy, success first.
var AttemptStatuses = []AttemptStatus{
	AttemptCompleted,
	AttemptFailedPIN,
	AttemptFailedExpired,
	AttemptFailedInsufficientFunds,
	AttemptFailedInvalidCredential,
	AttemptFailedInvalidState,
}

func (s AttemptStatus) IsValid() bool {
	for _, v := range AttemptStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s AttemptStatus) IsSuccess() bool {
	return s == AttemptCompleted
}

// PaymentAttempt is one append-only ledger row.
type PaymentAttempt struct {
	ID               string          `json:"id"`
	Sequence         int64           `json:"sequence"`
	PaymentRequestID string          `json:"payment_request_id"`
	Status           AttemptStatus   `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	MerchantID       string          `json:"merchant_id"`
	Description      string          `json:"description,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`

	AccountID      string `json:"account_id,omitempty"`
	CardholderName string `json:"cardholder_name,omitempty"`
	AccountEmail   string `json:"account_email,omitempty"`

	TransactionID   string           `json:"transaction_id,omitempty"`
	PreviousBalance *decimal.Decimal `json:"previous_balance,omitempty"`
	NewBalance      *decimal.Decimal `json:"new_balance,omitempty"`

	ErrorReason  string `json:"error_reason,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`
	ClientIP     string `json:"client_ip,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
}

// RequestMeta carries caller diagnostics into ledger rows.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// NewAttempt builds a ledger row for req with the request's immutable fields.
func NewAttempt(req *PaymentRequest, status AttemptStatus, at time.Time, meta RequestMeta) *PaymentAttempt {
	return &PaymentAttempt{
		ID:               uuid.New().String(),
		PaymentRequestID: req.ID,
		Status:           status,
		Amount:           req.Amount,
		MerchantID:       req.MerchantID,
		Description:      req.Description,
		Timestamp:        at,
		ClientIP:         meta.ClientIP,
		UserAgent:        meta.UserAgent,
	}
}

// WithAccount fills the identity fields once an account is resolved.
func (a *PaymentAttempt) WithAccount(acct *Account) *PaymentAttempt {
	if acct != nil {
		a.AccountID = acct.ID
		a.CardholderName = acct.CardholderName
		a.AccountEmail = acct.Email
	}
	return a
}

func (a *PaymentAttempt) WithError(reason, details string) *PaymentAttempt {
	a.ErrorReason = reason
	a.ErrorDetails = details
	return a
}

func (a *PaymentAttempt) WithCompletion(transactionID string, previous, current decimal.Decimal) *PaymentAttempt {
	a.TransactionID = transactionID
	a.PreviousBalance = &previous
	a.NewBalance = &current
	return a
}

// AttemptFilter selects ledger rows. Zero fields match everything.
type AttemptFilter struct {
	AccountID        string
	MerchantID       string
	PaymentRequestID string
	From             time.Time
	To               time.Time
	SuccessfulOnly   bool
}

func (f AttemptFilter) Matches(a *PaymentAttempt) bool {
	if f.AccountID != "" && a.AccountID != f.AccountID {
		return false
	}
	if f.MerchantID != "" && a.MerchantID != f.MerchantID {
		return false
	}
	if f.PaymentRequestID != "" && a.PaymentRequestID != f.PaymentRequestID {
		return false
	}
	if !f.From.IsZero() && a.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.Timestamp.After(f.To) {
		return false
	}
	if f.SuccessfulOnly && !a.Status.IsSuccess() {
		return false
	}
	return true
}

// AttemptStats aggregates a set of ledger rows.
type AttemptStats struct {
	Total                   int                   `json:"total"`
	Successful              int                   `json:"successful"`
	Failed                  int                   `json:"failed"`
	ByStatus                map[AttemptStatus]int `json:"by_status"`
	SuccessfulAmount        decimal.Decimal       `json:"successful_amount"`
	AverageSuccessfulAmount decimal.Decimal       `json:"average_successful_amount"`
}
