package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Account is owned by the account store. The payment core only reads it and
// asks the store for debits.
type Account struct {
	ID             string          `json:"id"`
	CardholderName string          `json:"cardholder_name"`
	Email          string          `json:"email"`
	CardLast4      string          `json:"card_last4"`
	CredentialID   string          `json:"credential_id"`
	Balance        decimal.Decimal `json:"balance"`
	PINHash        string          `json:"-"`
}

// CheckPIN compares pin against the stored bcrypt hash.
func (a *Account) CheckPIN(pin string) bool {
	if a.PINHash == "" || pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PINHash), []byte(pin)) == nil
}

func HashPIN(pin string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Debit asks the account store to take Amount for one payment request. A
// payment request is debited at most once; TransactionID is kept with it.
type Debit struct {
	AccountID        string
	PaymentRequestID string
	TransactionID    string
	Amount           decimal.Decimal
}

// DebitResult describes the stored debit. Replayed is set when the payment
// request had already been debited and nothing moved.
type DebitResult struct {
	TransactionID   string
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Replayed        bool
}

type ProofState string

const (
	ProofPending   ProofState = "PENDING"
	ProofAccepted  ProofState = "ACCEPTED"
	ProofRejected  ProofState = "REJECTED"
	ProofAbandoned ProofState = "ABANDONED"
)

func (s ProofState) IsFinal() bool {
	return s == ProofAccepted || s == ProofRejected || s == ProofAbandoned
}

// CredentialClaims are the attributes revealed by the customer's wallet.
type CredentialClaims struct {
	CardholderName string `json:"cardholder_name"`
	CardLast4      string `json:"card_last4"`
}

// Complete reports whether the claims can identify an account.
func (c *CredentialClaims) Complete() bool {
	return c != nil && strings.TrimSpace(c.CardholderName) != "" && strings.TrimSpace(c.CardLast4) != ""
}

type ProofStatus struct {
	Reference string            `json:"reference"`
	State     ProofState        `json:"state"`
	Claims    *CredentialClaims `json:"claims,omitempty"`
}

type ProofInvitation struct {
	QRURL  string `json:"qr_url"`
	AppURL string `json:"app_url"`
}

// RiskLevel classifies a consecutive PIN failure count.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// NotificationType names the security notices sent to cardholders.
type NotificationType string

const (
	NotificationSecurityAlert NotificationType = "security_alert"
	NotificationRevoked       NotificationType = "credential_revoked"
	NotificationSuspended     NotificationType = "credential_suspended"
)

type NotificationEvent struct {
	Type             NotificationType `json:"type"`
	AccountID        string           `json:"account_id"`
	Email            string           `json:"email"`
	CardholderName   string           `json:"cardholder_name"`
	PaymentRequestID string           `json:"payment_request_id,omitempty"`
	MerchantID       string           `json:"merchant_id,omitempty"`
	FailureCount     int              `json:"failure_count,omitempty"`
	Until            *time.Time       `json:"until,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// PaymentStateEvent is published on every status change.
type PaymentStateEvent struct {
	PaymentID     string        `json:"payment_id"`
	State         PaymentStatus `json:"state"`
	PreviousState PaymentStatus `json:"previous_state"`
	MerchantID    string        `json:"merchant_id"`
	Timestamp     time.Time     `json:"timestamp"`
}

const (
	TopicPaymentStateChanged    = "payment.state.changed"
	TopicPaymentAttemptRecorded = "payment.attempt.recorded"
	TopicSecurityNotifications  = "security.notifications"
)
