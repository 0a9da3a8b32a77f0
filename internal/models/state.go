package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState is the status-specific data of a PaymentRequest. Each status
// has exactly one concrete type carrying only the fields valid for it.
type PaymentState interface {
	Status() PaymentStatus
	isPaymentState()
}

type Pending struct {
	ProofReference string `json:"proof_reference,omitempty"`
	QRURL          string `json:"qr_url,omitempty"`
	AppURL         string `json:"app_url,omitempty"`
}

type Processing struct {
	Proof ProofSnapshot `json:"proof"`
}

type Completed struct {
	TransactionID   string          `json:"transaction_id"`
	AccountID       string          `json:"account_id"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	CompletedAt     time.Time       `json:"completed_at"`
}

type Failed struct {
	Reason  string `json:"error_reason"`
	Details string `json:"error_details,omitempty"`
}

type Expired struct {
	Reason string `json:"reason,omitempty"`
}

type Cancelled struct {
	Reason string `json:"reason,omitempty"`
}

// ProofSnapshot records the verifier's view of the proof at acceptance time.
type ProofSnapshot struct {
	Reference  string            `json:"reference"`
	State      ProofState        `json:"state"`
	Claims     *CredentialClaims `json:"claims,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

func (Pending) Status() PaymentStatus    { return StatusPending }
func (Processing) Status() PaymentStatus { return StatusProcessing }
func (Completed) Status() PaymentStatus  { return StatusCompleted }
func (Failed) Status() PaymentStatus     { return StatusFailed }
func (Expired) Status() PaymentStatus    { return StatusExpired }
func (Cancelled) Status() PaymentStatus  { return StatusCancelled }

func (Pending) isPaymentState()    {}
func (Processing) isPaymentState() {}
func (Completed) isPaymentState()  {}
func (Failed) isPaymentState()     {}
func (Expired) isPaymentState()    {}
func (Cancelled) isPaymentState()  {}

const ReasonExpiredDuringProcessing = "expired during processing"

var transitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:    {StatusProcessing, StatusExpired, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to PaymentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the request to next. Terminal states never move.
func (p *PaymentRequest) TransitionTo(next PaymentState, at time.Time) error {
	from := p.Status()
	if next == nil {
		return fmt.Errorf("%w: nil target state", ErrValidation)
	}
	to := next.Status()
	if from.IsTerminal() {
		return fmt.Errorf("%w: payment %s is %s", ErrInvalidState, p.ID, from)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: transition from %s to %s for payment %s", ErrInvalidState, from, to, p.ID)
	}
	p.State = next
	p.UpdatedAt = at
	return nil
}

// AttachProof stores the proof exchange handle on a PENDING request.
func (p *PaymentRequest) AttachProof(reference string, invitation ProofInvitation, at time.Time) error {
	if p.Status() != StatusPending {
		return fmt.Errorf("%w: proof can only be requested while %s, payment %s is %s",
			ErrInvalidState, StatusPending, p.ID, p.Status())
	}
	p.State = Pending{
		ProofReference: reference,
		QRURL:          invitation.QRURL,
		AppURL:         invitation.AppURL,
	}
	p.UpdatedAt = at
	return nil
}

// IsExpired reports whether a non-terminal request has reached ExpiresAt.
func (p *PaymentRequest) IsExpired(now time.Time) bool {
	return !p.Status().IsTerminal() && !now.Before(p.ExpiresAt)
}

// ExpiryState returns the state a request moves to once its window has
// passed: EXPIRED from PENDING, FAILED from PROCESSING.
func (p *PaymentRequest) ExpiryState() PaymentState {
	if p.Status() == StatusProcessing {
		return Failed{Reason: ReasonExpiredDuringProcessing}
	}
	return Expired{Reason: "payment window elapsed"}
}

// EncodeState renders the state data for storage.
func EncodeState(state PaymentState) ([]byte, error) {
	if state == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(state)
}

// DecodeState rebuilds the concrete state for status from stored data.
func DecodeState(status PaymentStatus, data []byte) (PaymentState, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	var (
		state PaymentState
		err   error
	)
	switch status {
	case StatusPending:
		var s Pending
		err = json.Unmarshal(data, &s)
		state = s
	case StatusProcessing:
		var s Processing
		err = json.Unmarshal(data, &s)
		state = s
	case StatusCompleted:
		var s Completed
		err = json.Unmarshal(data, &s)
		state = s
	case StatusFailed:
		var s Failed
		err = json.Unmarshal(data, &s)
		state = s
	case StatusExpired:
		var s Expired
		err = json.Unmarshal(data, &s)
		state = s
	case StatusCancelled:
		var s Cancelled
		err = json.Unmarshal(data, &s)
		state = s
	default:
		return nil, fmt.Errorf("unknown payment status %q", status)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s state: %w", status, err)
	}
	return state, nil
}
