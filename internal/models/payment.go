package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusProcessing PaymentStatus = "PROCESSING"
	StatusCompleted  PaymentStatus = "COMPLETED"
	StatusFailed     PaymentStatus = "FAILED"
	StatusExpired    PaymentStatus = "EXPIRED"
	StatusCancelled  PaymentStatus = "CANCELLED"
)

// DefaultPaymentWindow is how long a request stays payable after creation.
const DefaultPaymentWindow = 30 * time.Minute

func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentRequest is one merchant-initiated charge. Its lifecycle data lives in
// State, whose concrete type determines the status.
type PaymentRequest struct {
	ID          string
	Amount      decimal.Decimal
	MerchantID  string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
	State       PaymentState
}

// NewPaymentRequest validates the input and returns a request in PENDING.
func NewPaymentRequest(amount decimal.Decimal, merchantID, description string, now time.Time, window time.Duration) (*PaymentRequest, error) {
	merchantID = strings.TrimSpace(merchantID)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	if merchantID == "" {
		return nil, fmt.Errorf("%w: merchant ID is required", ErrValidation)
	}
	if window <= 0 {
		window = DefaultPaymentWindow
	}

	return &PaymentRequest{
		ID:          uuid.New().String(),
		Amount:      amount,
		MerchantID:  merchantID,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(window),
		State:       Pending{},
	}, nil
}

func (p *PaymentRequest) Status() PaymentStatus {
	if p.State == nil {
		return StatusPending
	}
	return p.State.Status()
}

// ProofReference returns the proof exchange handle, if one was requested.
func (p *PaymentRequest) ProofReference() string {
	switch s := p.State.(type) {
	case Pending:
		return s.ProofReference
	case Processing:
		return s.Proof.Reference
	default:
		return ""
	}
}

// Clone returns a copy safe to hand out of a store.
func (p *PaymentRequest) Clone() *PaymentRequest {
	if p == nil {
		return nil
	}
	c := *p
	if s, ok := p.State.(Processing); ok && s.Proof.Claims != nil {
		claims := *s.Proof.Claims
		s.Proof.Claims = &claims
		c.State = s
	}
	return &c
}

type paymentRequestView struct {
	ID             string          `json:"id"`
	Amount         decimal.Decimal `json:"amount"`
	MerchantID     string          `json:"merchant_id"`
	Description    string          `json:"description,omitempty"`
	Status         PaymentStatus   `json:"status"`
	ProofReference string          `json:"proof_reference,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	ResultMetadata PaymentState    `json:"result_metadata,omitempty"`
}

func (p PaymentRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(paymentRequestView{
		ID:             p.ID,
		Amount:         p.Amount,
		MerchantID:     p.MerchantID,
		Description:    p.Description,
		Status:         p.Status(),
		ProofReference: p.ProofReference(),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		ExpiresAt:      p.ExpiresAt,
		ResultMetadata: p.State,
	})
}

// PaymentRequestFilter selects payment requests for listing.
type PaymentRequestFilter struct {
	MerchantID     string
	SuccessfulOnly bool
	From           time.Time
	To             time.Time
}

func (f PaymentRequestFilter) Matches(p *PaymentRequest) bool {
	if f.MerchantID != "" && p.MerchantID != f.MerchantID {
		return false
	}
	if f.SuccessfulOnly && p.Status() != StatusCompleted {
		return false
	}
	if !f.From.IsZero() && p.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && p.CreatedAt.After(f.To) {
		return false
	}
	return true
}
