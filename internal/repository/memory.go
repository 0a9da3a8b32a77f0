package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"


	"github.com/akylbek/payment-system/credential-payments/internal/models"
)

// MemoryPaymentRequestRepository keeps payment requests in process. Used when
// no database is configured and in tests.
type MemoryPaymentRequestRepository struct {
	mu       sync.RWMutex
	requests map[string]*models.PaymentRequest
}

func NewMemoryPaymentRequestRepository() *MemoryPaymentRequestRepository {
	return &MemoryPaymentRequestRepository{requests: make(map[string]*models.PaymentRequest)}
}

func (r *MemoryPaymentRequestRepository) Insert(_ context.Context, req *models.PaymentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; ok {
		return fmt.Errorf("payment request %s already exists", req.ID)
	}
	r.requests[req.ID] = req.Clone()
	return nil
}

func (r *MemoryPaymentRequestRepository) Update(_ context.Context, req *models.PaymentRequest, prev models.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[req.ID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, req.ID)
	}
	if stored.Status() != prev {
		return fmt.Errorf("%w: payment %s is no longer %s", models.ErrConcurrentUpdate, req.ID, prev)
	}
	r.requests[req.ID] = req.Clone()
	return nil
}

func (r *MemoryPaymentRequestRepository) GetByID(_ context.Context, id string) (*models.PaymentRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return req.Clone(), nil
}

func (r *MemoryPaymentRequestRepository) List(_ context.Context, filter models.PaymentRequestFilter) ([]*models.PaymentRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.PaymentRequest
	for _, req := range r.requests {
		if filter.Matches(req) {
			out = append(out, req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryPaymentRequestRepository) ListExpired(_ context.Context, now time.Time) ([]*models.PaymentRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.PaymentRequest
	for _, req := range r.requests {
		if req.IsExpired(now) {
			out = append(out, req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (r *MemoryPaymentRequestRepository) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, req := range r.requests {
		if req.Status().IsTerminal() && req.UpdatedAt.Before(cutoff) {
			delete(r.requests, id)
			n++
		}
	}
	return n, nil
}

// MemoryAttemptStore is an append-only slice of ledger rows.
type MemoryAttemptStore struct {
	mu   sync.RWMutex
	rows []models.PaymentAttempt
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{}
}

func (s *MemoryAttemptStore) Append(_ context.Context, a *models.PaymentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Sequence = int64(len(s.rows) + 1)
	s.rows = append(s.rows, *a)
	return nil
}

func (s *MemoryAttemptStore) List(_ context.Context, filter models.AttemptFilter) ([]*models.PaymentAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PaymentAttempt
	for i := len(s.rows) - 1; i >= 0; i-- {
		row := s.rows[i]
		if filter.Matches(&row) {
			out = append(out, &row)
		}
	}
	return out, nil
}

// MemoryAccountStore is an account collaborator backed by a map.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	debits   map[string]models.DebitResult
}

func NewMemoryAccountStore(accounts ...*models.Account) *MemoryAccountStore {
	s := &MemoryAccountStore{
		accounts: make(map[string]*models.Account),
		debits:   make(map[string]models.DebitResult),
	}
	for _, a := range accounts {
		s.Put(a)
	}
	return s
}

func (s *MemoryAccountStore) Put(a *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	s.accounts[a.ID] = &c
}

func (s *MemoryAccountStore) GetByCredentialClaims(_ context.Context, cardholderName, last4 string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.TrimSpace(cardholderName)
	for _, a := range s.accounts {
		if strings.EqualFold(strings.TrimSpace(a.CardholderName), name) && a.CardLast4 == strings.TrimSpace(last4) {
			c := *a
			return &c, nil
		}
	}
	return nil, models.ErrAccountNotFound
}

func (s *MemoryAccountStore) GetByID(_ context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (s *MemoryAccountStore) Debit(_ context.Context, debit models.Debit) (*models.DebitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.debits[debit.PaymentRequestID]; ok {
		prior.Replayed = true
		return &prior, nil
	}
	a, ok := s.accounts[debit.AccountID]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	if a.Balance.LessThan(debit.Amount) {
		return nil, fmt.Errorf("%w: account %s", models.ErrInsufficientFunds, debit.AccountID)
	}
	prev := a.Balance
	a.Balance = a.Balance.Sub(debit.Amount)
	result := models.DebitResult{
		TransactionID:   debit.TransactionID,
		PreviousBalance: prev,
		NewBalance:      a.Balance,
	}
	s.debits[debit.PaymentRequestID] = result
	return &result, nil
}
