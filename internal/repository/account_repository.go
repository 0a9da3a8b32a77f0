package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
)

// AccountRepository reads cardholder accounts and applies debits. The
// accounts table belongs to the account service; InitDB only guarantees it
// exists for local deployments.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(64) PRIMARY KEY,
			cardholder_name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			card_last4 VARCHAR(4) NOT NULL,
			credential_id VARCHAR(255) NOT NULL DEFAULT '',
			balance NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			pin_hash VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS debits (
			payment_request_id VARCHAR(64) PRIMARY KEY,
			account_id VARCHAR(64) NOT NULL REFERENCES accounts(id),
			transaction_id VARCHAR(64) NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			previous_balance NUMERIC(18,2) NOT NULL,
			new_balance NUMERIC(18,2) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
	}
	for _, q := range queries {
		if _, err := r.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

const accountColumns = `id, cardholder_name, email, card_last4, credential_id, balance, pin_hash`

func (r *AccountRepository) GetByCredentialClaims(ctx context.Context, cardholderName, last4 string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE LOWER(TRIM(cardholder_name)) = LOWER(TRIM($1)) AND card_last4 = $2
		LIMIT 1
	`, cardholderName, last4)
	return scanAccount(row)
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// Debit subtracts the amount and records the debit in one transaction. The
// balance guard keeps concurrent debits from going negative, and the primary
// key on debits.payment_request_id keeps a payment request from being debited
// twice.
func (r *AccountRepository) Debit(ctx context.Context, debit models.Debit) (*models.DebitResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin debit: %w", err)
	}
	defer tx.Rollback()

	if prior, err := findDebit(ctx, tx, debit.PaymentRequestID); err != nil || prior != nil {
		return prior, err
	}

	var newBalance decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts SET balance = balance - $1
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`, debit.Amount, debit.AccountID).Scan(&newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, debit.AccountID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: account %s", models.ErrInsufficientFunds, debit.AccountID)
	}
	if err != nil {
		return nil, err
	}

	result := &models.DebitResult{
		TransactionID:   debit.TransactionID,
		PreviousBalance: newBalance.Add(debit.Amount),
		NewBalance:      newBalance,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO debits (payment_request_id, account_id, transaction_id, amount, previous_balance, new_balance)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, debit.PaymentRequestID, debit.AccountID, debit.TransactionID, debit.Amount,
		result.PreviousBalance, result.NewBalance)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		// Another process debited this request first; our update rolls back.
		tx.Rollback()
		return findDebit(ctx, r.db, debit.PaymentRequestID)
	}
	if err != nil {
		return nil, fmt.Errorf("record debit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit debit: %w", err)
	}
	return result, nil
}

const uniqueViolation = "23505"

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// findDebit returns the stored debit for the payment request, or nil.
func findDebit(ctx context.Context, q queryRower, paymentRequestID string) (*models.DebitResult, error) {
	result := &models.DebitResult{Replayed: true}
	err := q.QueryRowContext(ctx, `
		SELECT transaction_id, previous_balance, new_balance FROM debits
		WHERE payment_request_id = $1
	`, paymentRequestID).Scan(&result.TransactionID, &result.PreviousBalance, &result.NewBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load debit for payment %s: %w", paymentRequestID, err)
	}
	return result, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.CardholderName, &a.Email, &a.CardLast4, &a.CredentialID, &a.Balance, &a.PINHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
