package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/interfaces"
	"github.com/akylbek/payment-system/credential-payments/internal/ledger"
	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/security"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

// Dependencies wires the orchestrator to its stores and collaborators.
type Dependencies struct {
	Repo       interfaces.PaymentRequestRepository
	Ledger     *ledger.Ledger
	Engine     *security.Engine
	Accounts   interfaces.AccountStore
	Verifier   interfaces.CredentialVerifier
	Notifier   interfaces.Notifier
	Publisher  interfaces.Publisher
	Locker     interfaces.Locker
	Dispatcher interfaces.Dispatcher
}

type Option func(*Orchestrator)

// WithPaymentWindow sets how long new requests stay payable.
func WithPaymentWindow(d time.Duration) Option {
	return func(o *Orchestrator) { o.window = d }
}

// WithLockTimeout bounds how long an operation waits for a payment or
// account lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.lockTimeout = d }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator is the entry point for payment authorization. All mutations of
// one payment request run inside that request's lock; balance changes also
// hold the account lock, always taken after the payment lock.
type Orchestrator struct {
	repo        interfaces.PaymentRequestRepository
	ledger      *ledger.Ledger
	engine      *security.Engine
	accounts    interfaces.AccountStore
	verifier    interfaces.CredentialVerifier
	notifier    interfaces.Notifier
	publisher   interfaces.Publisher
	locker      interfaces.Locker
	dispatcher  interfaces.Dispatcher
	window      time.Duration
	lockTimeout time.Duration
	now         func() time.Time
}

func NewOrchestrator(deps Dependencies, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:        deps.Repo,
		ledger:      deps.Ledger,
		engine:      deps.Engine,
		accounts:    deps.Accounts,
		verifier:    deps.Verifier,
		notifier:    deps.Notifier,
		publisher:   deps.Publisher,
		locker:      deps.Locker,
		dispatcher:  deps.Dispatcher,
		window:      models.DefaultPaymentWindow,
		lockTimeout: 10 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProofExchange is the result of starting a proof exchange. Warning is set
// when the verifier could not be reached; the request itself is still valid.
type ProofExchange struct {
	Request *models.PaymentRequest `json:"payment_request"`
	QRURL   string                 `json:"qr_url,omitempty"`
	AppURL  string                 `json:"app_url,omitempty"`
	Warning string                 `json:"warning,omitempty"`
}

func (o *Orchestrator) CreatePaymentRequest(ctx context.Context, amount decimal.Decimal, merchantID, description string) (req *models.PaymentRequest, err error) {
	ctx, end := telemetry.StartSpan(ctx, "orchestrator.CreatePaymentRequest",
		attribute.String("merchant_id", merchantID))
	defer func() { end(err) }()

	req, err = models.NewPaymentRequest(amount, merchantID, description, o.now(), o.window)
	if err != nil {
		return nil, err
	}
	if err := o.repo.Insert(ctx, req); err != nil {
		return nil, fmt.Errorf("save payment request: %w", err)
	}

	telemetry.Logger.Info("Payment request created",
		zap.String("payment_id", req.ID),
		zap.String("merchant_id", req.MerchantID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.Time("expires_at", req.ExpiresAt),
	)
	o.publishTransition(req, "")
	return req, nil
}

// GetPaymentRequest returns the current view of a request with expiry applied.
func (o *Orchestrator) GetPaymentRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	release, err := o.lockPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := o.applyExpiry(ctx, req, models.RequestMeta{}); err != nil {
		return nil, err
	}
	return req, nil
}

func (o *Orchestrator) BeginProofExchange(ctx context.Context, id string) (result *ProofExchange, err error) {
	ctx, end := telemetry.StartSpan(ctx, "orchestrator.BeginProofExchange", attribute.String("payment_id", id))
	defer func() { end(err) }()

	release, err := o.lockPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	expired, err := o.applyExpiry(ctx, req, models.RequestMeta{})
	if err != nil {
		return nil, err
	}
	if expired {
		return &ProofExchange{Request: req}, fmt.Errorf("%w: payment %s", models.ErrExpired, id)
	}

	pending, ok := req.State.(models.Pending)
	if !ok {
		return &ProofExchange{Request: req}, fmt.Errorf("%w: proof exchange requires %s, payment %s is %s",
			models.ErrInvalidState, models.StatusPending, id, req.Status())
	}
	if pending.ProofReference != "" {
		return &ProofExchange{Request: req, QRURL: pending.QRURL, AppURL: pending.AppURL}, nil
	}

	reference, err := o.verifier.RequestProof(ctx)
	if err != nil {
		return o.verifierWarning(req, "request proof", err), nil
	}
	invitation, err := o.verifier.ShareProof(ctx, reference)
	if err != nil {
		return o.verifierWarning(req, "share proof", err), nil
	}

	if err := req.AttachProof(reference, *invitation, o.now()); err != nil {
		return nil, err
	}
	if err := o.repo.Update(ctx, req, models.StatusPending); err != nil {
		return nil, fmt.Errorf("save proof reference: %w", err)
	}

	telemetry.Logger.Info("Proof exchange started",
		zap.String("payment_id", req.ID),
		zap.String("proof_reference", reference),
	)
	return &ProofExchange{Request: req, QRURL: invitation.QRURL, AppURL: invitation.AppURL}, nil
}

func (o *Orchestrator) verifierWarning(req *models.PaymentRequest, op string, err error) *ProofExchange {
	telemetry.Logger.Warn("Credential verifier unavailable",
		zap.String("payment_id", req.ID),
		zap.String("operation", op),
		zap.Error(err),
	)
	return &ProofExchange{
		Request: req,
		Warning: fmt.Sprintf("credential verifier unavailable: %s failed", op),
	}
}

// PollAndAdvance applies expiry and moves PENDING to PROCESSING once the
// verifier reports the proof as accepted. Verifier errors leave the request
// untouched so the next poll can retry.
func (o *Orchestrator) PollAndAdvance(ctx context.Context, id string) (req *models.PaymentRequest, err error) {
	ctx, end := telemetry.StartSpan(ctx, "orchestrator.PollAndAdvance", attribute.String("payment_id", id))
	defer func() { end(err) }()

	release, err := o.lockPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err = o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expired, err := o.applyExpiry(ctx, req, models.RequestMeta{}); err != nil || expired {
		return req, err
	}

	reference := req.ProofReference()
	if req.Status() != models.StatusPending || reference == "" {
		return req, nil
	}

	proof, err := o.verifier.GetProofState(ctx, reference)
	if err != nil {
		telemetry.Logger.Warn("Proof state poll failed",
			zap.String("payment_id", id),
			zap.Error(err),
		)
		return req, fmt.Errorf("poll proof for payment %s: %w", id, err)
	}

	switch proof.State {
	case models.ProofAccepted:
		snapshot := models.ProofSnapshot{
			Reference:  reference,
			State:      proof.State,
			Claims:     proof.Claims,
			ReceivedAt: o.now(),
		}
		if err := o.transition(ctx, req, models.Processing{Proof: snapshot}); err != nil {
			return nil, err
		}
	case models.ProofRejected, models.ProofAbandoned:
		reason := fmt.Sprintf("proof %s", proof.State)
		if _, err := o.fail(ctx, req, models.AttemptFailedInvalidCredential, reason, "", nil, models.RequestMeta{}); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// CancelPaymentRequest aborts a request that has not reached a terminal state.
func (o *Orchestrator) CancelPaymentRequest(ctx context.Context, id, reason string) (*models.PaymentRequest, error) {
	release, err := o.lockPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	expired, err := o.applyExpiry(ctx, req, models.RequestMeta{})
	if err != nil {
		return nil, err
	}
	if expired {
		return req, fmt.Errorf("%w: payment %s", models.ErrExpired, id)
	}
	if err := o.transition(ctx, req, models.Cancelled{Reason: reason}); err != nil {
		if errors.Is(err, models.ErrInvalidState) {
			return req, err
		}
		return nil, err
	}
	return req, nil
}
