// Package verifier talks to the credential verification service over NATS
// request/reply.
package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/patrickmn/go-cache"

	"github.com/akylbek/payment-system/credential-payments/internal/metrics"
	"github.com/akylbek/payment-system/credential-payments/internal/models"
)

const (
	SubjectRequestProof = "credential.proof.request"
	SubjectShareProof   = "credential.proof.share"
	SubjectProofState   = "credential.proof.state"
	SubjectRevoke       = "credential.revoke"
	SubjectSuspend      = "credential.suspend"
)

// Requester is the request/reply half of *nats.Conn.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// NATSVerifier implements interfaces.CredentialVerifier. Proof states that
// can no longer change are cached so repeated polls skip the round trip.
type NATSVerifier struct {
	conn    Requester
	timeout time.Duration
	final   *cache.Cache
}

func NewNATSVerifier(conn Requester, timeout time.Duration) *NATSVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSVerifier{
		conn:    conn,
		timeout: timeout,
		final:   cache.New(10*time.Minute, 15*time.Minute),
	}
}

type replyError struct {
	Error string `json:"error,omitempty"`
}

type proofRequestReply struct {
	replyError
	ProofReference string `json:"proof_reference"`
}

type proofShareReply struct {
	replyError
	models.ProofInvitation
}

type proofStateReply struct {
	replyError
	models.ProofStatus
}

type credentialCommand struct {
	CredentialID string     `json:"credential_id"`
	Until        *time.Time `json:"until,omitempty"`
}

type proofQuery struct {
	ProofReference string `json:"proof_reference"`
}

func (v *NATSVerifier) RequestProof(ctx context.Context) (string, error) {
	var reply proofRequestReply
	if err := v.call(ctx, "request_proof", SubjectRequestProof, struct{}{}, &reply, &reply.replyError); err != nil {
		return "", err
	}
	if reply.ProofReference == "" {
		return "", fmt.Errorf("%w: empty proof reference", models.ErrVerifierUnavailable)
	}
	return reply.ProofReference, nil
}

func (v *NATSVerifier) ShareProof(ctx context.Context, proofReference string) (*models.ProofInvitation, error) {
	var reply proofShareReply
	if err := v.call(ctx, "share_proof", SubjectShareProof, proofQuery{proofReference}, &reply, &reply.replyError); err != nil {
		return nil, err
	}
	invitation := reply.ProofInvitation
	return &invitation, nil
}

func (v *NATSVerifier) GetProofState(ctx context.Context, proofReference string) (*models.ProofStatus, error) {
	if cached, ok := v.final.Get(proofReference); ok {
		status := cached.(models.ProofStatus)
		return &status, nil
	}

	var reply proofStateReply
	if err := v.call(ctx, "proof_state", SubjectProofState, proofQuery{proofReference}, &reply, &reply.replyError); err != nil {
		return nil, err
	}
	status := reply.ProofStatus
	if status.Reference == "" {
		status.Reference = proofReference
	}
	if status.State.IsFinal() {
		v.final.SetDefault(proofReference, status)
	}
	return &status, nil
}

func (v *NATSVerifier) Revoke(ctx context.Context, credentialID string) error {
	var reply replyError
	return v.call(ctx, "revoke", SubjectRevoke, credentialCommand{CredentialID: credentialID}, &reply, &reply)
}

func (v *NATSVerifier) Suspend(ctx context.Context, credentialID string, until time.Time) error {
	var reply replyError
	return v.call(ctx, "suspend", SubjectSuspend, credentialCommand{CredentialID: credentialID, Until: &until}, &reply, &reply)
}

// call performs one bounded request. Transport failures and timeouts wrap
// models.ErrVerifierUnavailable; an error field in the reply wraps
// models.ErrVerifierRejected.
func (v *NATSVerifier) call(ctx context.Context, op, subject string, payload, reply interface{}, remote *replyError) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	msg, err := v.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		metrics.VerifierDuration.WithLabelValues(op, "unavailable").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return fmt.Errorf("%w: %s timed out after %s", models.ErrVerifierUnavailable, op, v.timeout)
		}
		return fmt.Errorf("%w: %s: %v", models.ErrVerifierUnavailable, op, err)
	}

	if err := json.Unmarshal(msg.Data, reply); err != nil {
		metrics.VerifierDuration.WithLabelValues(op, "bad_reply").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%w: decode %s reply: %v", models.ErrVerifierUnavailable, op, err)
	}
	if remote.Error != "" {
		metrics.VerifierDuration.WithLabelValues(op, "rejected").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%w: %s: %s", models.ErrVerifierRejected, op, remote.Error)
	}

	metrics.VerifierDuration.WithLabelValues(op, "ok").Observe(time.Since(start).Seconds())
	return nil
}
